package inventory

import (
	"context"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
)

var (
	ErrUnitNotFound  = errors.New("unit not found")
	ErrHostNotFound  = errors.New("host not found")
	ErrInvalidRecord = errors.New("invalid inventory record")
	ErrYAMLStore     = errors.New("error in YAML inventory")
	ErrUnitNotFree   = errors.New("unit is no longer free")
)

// Repository is the persistence collaborator holding the inventory units and host slot sets.
//
// Implementations return copies, changes to the returned records are not visible
// to the repository until they are committed or updated.
type Repository interface {
	// Units returns all inventory units.
	Units(ctx context.Context) ([]*model.InventoryItem, error)

	// UnitsByID returns the units in the given order, ErrUnitNotFound is returned when any is missing.
	UnitsByID(ctx context.Context, ids ...string) ([]*model.InventoryItem, error)

	// Hosts returns all host slot sets.
	Hosts(ctx context.Context) ([]*model.HostSlotSet, error)

	// HostSlots returns the slot set of the host.
	HostSlots(ctx context.Context, hostID string) (*model.HostSlotSet, error)

	// CommitPlan persists the assignment plan with the reserved units and the updated host slot set,
	// ErrUnitNotFree is returned when a stored unit was claimed since it was read.
	CommitPlan(ctx context.Context, plan *model.AssignmentPlan, units []*model.InventoryItem, host *model.HostSlotSet) error

	// UpdateUnits persists changes to existing units.
	UpdateUnits(ctx context.Context, units ...*model.InventoryItem) error

	// UpdateHost persists changes to an existing host slot set.
	UpdateHost(ctx context.Context, host *model.HostSlotSet) error
}
