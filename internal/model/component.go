package model

import (
	"strings"

	"github.com/bmc-toolbox/common"
	"github.com/pkg/errors"
)

// ComponentType identifies a kind of hardware component that has a catalog.
type ComponentType string

const (
	ComponentCPU         ComponentType = "cpu"
	ComponentMemory      ComponentType = "memory"
	ComponentStorage     ComponentType = "storage"
	ComponentNIC         ComponentType = "nic"
	ComponentTransceiver ComponentType = "transceiver"
	ComponentChassis     ComponentType = "chassis"
)

var (
	// ErrComponentType is returned when a component type is not known.
	ErrComponentType = errors.New("unknown component type")
)

// ComponentTypes returns the supported component types.
func ComponentTypes() []ComponentType {
	return []ComponentType{
		ComponentCPU,
		ComponentMemory,
		ComponentStorage,
		ComponentNIC,
		ComponentTransceiver,
		ComponentChassis,
	}
}

// componentSlugs maps the bmc-toolbox common component slugs reported by
// inventory collectors to the component type carrying their catalog.
var componentSlugs = map[string]ComponentType{
	strings.ToLower(common.SlugCPU):               ComponentCPU,
	strings.ToLower(common.SlugPhysicalMem):       ComponentMemory,
	strings.ToLower(common.SlugDrive):             ComponentStorage,
	strings.ToLower(common.SlugStorageController): ComponentStorage,
	strings.ToLower(common.SlugNIC):               ComponentNIC,
	strings.ToLower(common.SlugEnclosure):         ComponentChassis,
	"ram":                                         ComponentMemory,
	"dimm":                                        ComponentMemory,
	"disk":                                        ComponentStorage,
	"optic":                                       ComponentTransceiver,
	"optics":                                      ComponentTransceiver,
	"sfp":                                         ComponentTransceiver,
}

// ParseComponentType returns the ComponentType for the given name,
// the name may be a component type or a bmc-toolbox common component slug.
func ParseComponentType(name string) (ComponentType, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	for _, ct := range ComponentTypes() {
		if string(ct) == name {
			return ct, nil
		}
	}

	if ct, exists := componentSlugs[name]; exists {
		return ct, nil
	}

	return "", errors.Wrap(ErrComponentType, name)
}

// Slug returns the bmc-toolbox common slug for the component type.
func (c ComponentType) Slug() string {
	switch c {
	case ComponentCPU:
		return common.SlugCPU
	case ComponentMemory:
		return common.SlugPhysicalMem
	case ComponentStorage:
		return common.SlugDrive
	case ComponentNIC:
		return common.SlugNIC
	case ComponentChassis:
		return common.SlugEnclosure
	default:
		return string(c)
	}
}

// NormalizeBrand returns the canonical lower case vendor name for a brand.
func NormalizeBrand(brand string) string {
	return strings.ToLower(strings.TrimSpace(common.FormatVendorName(strings.TrimSpace(brand))))
}

// NormalizeModel returns the canonical lower case form of a model name with whitespace collapsed.
func NormalizeModel(model string) string {
	return strings.ToLower(strings.Join(strings.Fields(model), " "))
}
