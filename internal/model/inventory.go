package model

// Occupancy is the occupancy state of a physical unit.
type Occupancy string

const (
	OccupancyFree      Occupancy = "free"
	OccupancyReserved  Occupancy = "reserved"
	OccupancyInstalled Occupancy = "installed"
)

// InventoryItem is a physical unit as recorded by the inventory.
//
// Units are created on intake with a free occupancy and an optional catalog identifier,
// the identifier remains empty until the unit is matched to a catalog entry.
//
// nolint:govet // fieldalignment struct is easier to read in the current format
type InventoryItem struct {
	UnitID        string        `json:"unit_id" yaml:"unit_id" validate:"required"`
	ComponentType ComponentType `json:"component_type" yaml:"component_type" validate:"required,oneof=cpu memory storage nic transceiver chassis"`

	// CatalogIdentifier is the identifier of the matching catalog entry, if known.
	CatalogIdentifier string `json:"catalog_identifier,omitempty" yaml:"catalog_identifier,omitempty"`

	SerialOrTag string `json:"serial_or_tag,omitempty" yaml:"serial_or_tag,omitempty"`
	Notes       string `json:"notes,omitempty" yaml:"notes,omitempty"`

	Occupancy Occupancy `json:"occupancy" yaml:"occupancy" validate:"omitempty,oneof=free reserved installed"`

	// HostID and SlotIndex are set when the unit is reserved for or installed in a host.
	HostID    string `json:"host_id,omitempty" yaml:"host_id,omitempty"`
	SlotIndex *int   `json:"slot_index,omitempty" yaml:"slot_index,omitempty"`

	// Structured fields recorded on intake, these are the only source of
	// specification data when the unit cannot be matched to a catalog.
	Brand      string     `json:"brand,omitempty" yaml:"brand,omitempty"`
	Model      string     `json:"model,omitempty" yaml:"model,omitempty"`
	Attributes Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// IsFree returns true when the unit is neither reserved nor installed.
func (i *InventoryItem) IsFree() bool {
	return i.Occupancy == "" || i.Occupancy == OccupancyFree
}

// Placed returns true when the unit holds a slot on a host.
func (i *InventoryItem) Placed() bool {
	return i.HostID != "" && i.SlotIndex != nil
}
