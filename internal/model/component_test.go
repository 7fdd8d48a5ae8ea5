package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseComponentType(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expected  ComponentType
		expectErr bool
	}{
		{
			name:     "component type",
			input:    "transceiver",
			expected: ComponentTransceiver,
		},
		{
			name:     "upper case with spaces",
			input:    "  CPU ",
			expected: ComponentCPU,
		},
		{
			name:     "common memory slug",
			input:    "PhysicalMemory",
			expected: ComponentMemory,
		},
		{
			name:     "common drive slug",
			input:    "Drive",
			expected: ComponentStorage,
		},
		{
			name:     "alias",
			input:    "optics",
			expected: ComponentTransceiver,
		},
		{
			name:      "unknown",
			input:     "flux-capacitor",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseComponentType(tc.input)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrComponentType)
				return
			}

			assert.Nil(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestComponentTypeSlugRoundTrip(t *testing.T) {
	for _, ct := range []ComponentType{ComponentCPU, ComponentMemory, ComponentStorage, ComponentNIC} {
		got, err := ParseComponentType(ct.Slug())
		assert.Nil(t, err)
		assert.Equal(t, ct, got, ct.Slug())
	}
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "sfp-10g-sr", NormalizeModel("  SFP-10G-SR "))
	assert.Equal(t, "ddr4-3200 32gb rdimm", NormalizeModel("DDR4-3200   32GB\tRDIMM"))
}

func TestSlotAccepts(t *testing.T) {
	slot := Slot{Index: 0, AcceptedInterfaces: []string{"SFP+", "sfp28"}}

	assert.True(t, slot.Accepts("SFP+"))
	assert.True(t, slot.Accepts("sfp +"))
	assert.True(t, slot.Accepts("SFP28"))
	assert.False(t, slot.Accepts("QSFP28"))
	assert.False(t, slot.Accepts(""))
}

func TestAttributesCopy(t *testing.T) {
	attrs := Attributes{AttrSpeed: "10G"}
	c := attrs.Copy()
	c[AttrSpeed] = "25G"

	assert.Equal(t, "10G", attrs.Get(AttrSpeed))
	assert.Equal(t, "", Attributes(nil).Get(AttrSpeed))
	assert.Nil(t, Attributes(nil).Copy())
}
