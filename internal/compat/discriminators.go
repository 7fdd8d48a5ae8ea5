package compat

import (
	"regexp"
	"strings"

	"github.com/metal-toolbox/placer/internal/model"
)

// discriminator is an attribute units in one batch must agree on.
type discriminator struct {
	attribute string
	normalize func(string) string
}

func (d discriminator) value(spec *model.ResolvedSpec) string {
	return d.normalize(spec.Attribute(d.attribute))
}

// discriminators are the attribute tuples units of a component type must share to be installed as one batch.
var discriminators = map[model.ComponentType][]discriminator{
	model.ComponentTransceiver: {
		{model.AttrTransceiverType, transceiverClass},
		{model.AttrSpeed, speedClass},
	},
	model.ComponentMemory: {
		{model.AttrMemoryType, model.NormalizeInterface},
		{model.AttrSpeed, speedClass},
	},
	model.ComponentStorage: {
		{model.AttrInterface, model.NormalizeInterface},
		{model.AttrFormFactor, model.NormalizeInterface},
	},
	model.ComponentNIC: {
		{model.AttrInterface, model.NormalizeInterface},
		{model.AttrSpeed, speedClass},
	},
	model.ComponentCPU: {
		{model.AttrSocket, model.NormalizeInterface},
	},
	model.ComponentChassis: {
		{model.AttrFormFactor, model.NormalizeInterface},
	},
}

// interfaces is the discriminator matched against slot accepted interface types.
var interfaces = map[model.ComponentType]discriminator{
	model.ComponentTransceiver: {model.AttrTransceiverType, transceiverClass},
	model.ComponentMemory:      {model.AttrMemoryType, model.NormalizeInterface},
	model.ComponentStorage:     {model.AttrInterface, model.NormalizeInterface},
	model.ComponentNIC:         {model.AttrInterface, model.NormalizeInterface},
	model.ComponentCPU:         {model.AttrSocket, model.NormalizeInterface},
	model.ComponentChassis:     {model.AttrFormFactor, model.NormalizeInterface},
}

// DiscriminatingAttributes returns the attributes units of the component type must share in a batch.
func DiscriminatingAttributes(componentType model.ComponentType) []string {
	attrs := []string{}
	for _, d := range discriminators[componentType] {
		attrs = append(attrs, d.attribute)
	}

	return attrs
}

// InterfaceType returns the module interface type of the spec in its comparable form,
// empty when the spec does not carry the attribute.
func InterfaceType(spec *model.ResolvedSpec) string {
	d, exists := interfaces[spec.ComponentType]
	if !exists {
		return ""
	}

	return d.value(spec)
}

var gbitRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?)(?:G|GB|GBE|GBPS|GBIT|GBITS|GBIT/S|GB/S)$`)

// speedClass returns the speed with the gigabit unit spellings folded into a G suffix,
// 10Gbps, 10 GbE and 10G are all 10G.
func speedClass(speed string) string {
	s := model.NormalizeInterface(speed)

	if m := gbitRegex.FindStringSubmatch(s); m != nil {
		return m[1] + "G"
	}

	return s
}

// transceiverClass returns the form factor of a transceiver type value, SFP+ SR and SFP+/10GBASE-SR are SFP+.
func transceiverClass(transceiverType string) string {
	fields := strings.FieldsFunc(strings.ToUpper(transceiverType), func(r rune) bool {
		return r == ' ' || r == '/' || r == ',' || r == '\t'
	})

	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}
