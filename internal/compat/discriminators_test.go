package compat

import (
	"sync"
	"testing"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestSpeedClass(t *testing.T) {
	testCases := []struct {
		speed    string
		expected string
	}{
		{"10G", "10G"},
		{"10Gbps", "10G"},
		{"10 GbE", "10G"},
		{"25gbit/s", "25G"},
		{"2.5G", "2.5G"},
		{"3200", "3200"},
		{"DDR4-3200", "DDR4-3200"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.speed, func(t *testing.T) {
			assert.Equal(t, tc.expected, speedClass(tc.speed))
		})
	}
}

func TestTransceiverClass(t *testing.T) {
	testCases := []struct {
		value    string
		expected string
	}{
		{"SFP+", "SFP+"},
		{"sfp+ SR", "SFP+"},
		{"SFP28/25GBASE-SR", "SFP28"},
		{"  QSFP28 ", "QSFP28"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			assert.Equal(t, tc.expected, transceiverClass(tc.value))
		})
	}
}

func TestInterfaceType(t *testing.T) {
	testCases := []struct {
		name     string
		spec     model.ResolvedSpec
		expected string
	}{
		{"transceiver", spec25G, "SFP28"},
		{"memory", specDIMM, "DDR4"},
		{
			"storage",
			model.ResolvedSpec{ComponentType: model.ComponentStorage, Attributes: model.Attributes{model.AttrInterface: "u.2 nvme"}},
			"U.2NVME",
		},
		{
			"cpu",
			model.ResolvedSpec{ComponentType: model.ComponentCPU, Attributes: model.Attributes{model.AttrSocket: "LGA4189"}},
			"LGA4189",
		},
		{"no attribute", model.ResolvedSpec{ComponentType: model.ComponentNIC}, ""},
		{"unknown component type", model.ResolvedSpec{ComponentType: "gpu"}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, InterfaceType(&tc.spec))
		})
	}
}

func TestDiscriminatingAttributes(t *testing.T) {
	assert.Equal(t, []string{model.AttrTransceiverType, model.AttrSpeed}, DiscriminatingAttributes(model.ComponentTransceiver))
	assert.Equal(t, []string{model.AttrSocket}, DiscriminatingAttributes(model.ComponentCPU))
	assert.Equal(t, []string{}, DiscriminatingAttributes("gpu"))

	for _, ct := range model.ComponentTypes() {
		assert.NotEmpty(t, DiscriminatingAttributes(ct), ct)
		assert.Contains(t, interfaces, ct)
	}
}

func TestHostLocks(t *testing.T) {
	locks := NewHostLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders = map[string]int{}
		maxSeen = map[string]int{}
	)

	for i := 0; i < 32; i++ {
		hostID := "sw-1"
		if i%2 == 0 {
			hostID = "sw-2"
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := locks.Lock(hostID)
			defer unlock()

			mu.Lock()
			holders[hostID]++
			if holders[hostID] > maxSeen[hostID] {
				maxSeen[hostID] = holders[hostID]
			}
			mu.Unlock()

			mu.Lock()
			holders[hostID]--
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, map[string]int{"sw-1": 1, "sw-2": 1}, maxSeen)
	assert.Equal(t, 0, locks.Len())

	// unlock is idempotent
	unlock := locks.Lock("sw-1")
	assert.Equal(t, 1, locks.Len())
	unlock()
	unlock()
	assert.Equal(t, 0, locks.Len())
}
