package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Slot is an indexed attachment point on a host.
type Slot struct {
	Index int `json:"slot_index" yaml:"slot_index" validate:"gte=0"`

	// AcceptedInterfaces lists the module interface types this slot takes, e.g. SFP+, DDR4, U.2
	AcceptedInterfaces []string `json:"accepted_interface_types" yaml:"accepted_interface_types"`

	// OccupiedBy is the unit identifier occupying the slot, empty when the slot is free.
	OccupiedBy string `json:"occupied_by,omitempty" yaml:"occupied_by,omitempty"`
}

// Free returns true when no unit occupies the slot.
func (s *Slot) Free() bool {
	return s.OccupiedBy == ""
}

// Accepts returns true when the slot takes modules of the given interface type.
func (s *Slot) Accepts(iface string) bool {
	want := NormalizeInterface(iface)
	if want == "" {
		return false
	}

	for _, accepted := range s.AcceptedInterfaces {
		if NormalizeInterface(accepted) == want {
			return true
		}
	}

	return false
}

// HostSlotSet describes the attachment points of a device.
//
// Slot indices are unique per host, at most one unit occupies a slot at any time.
type HostSlotSet struct {
	HostID string `json:"host_id" yaml:"host_id" validate:"required"`

	// ComponentType is the kind of module the host slots take.
	ComponentType ComponentType `json:"component_type" yaml:"component_type" validate:"required"`

	Slots []Slot `json:"slots" yaml:"slots" validate:"dive"`
}

// NormalizeInterface returns the comparable form of an interface type value.
func NormalizeInterface(iface string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iface), ""))
}

// Assignment pairs a unit with a host slot.
type Assignment struct {
	UnitID    string `json:"unit_id"`
	HostID    string `json:"host_id"`
	SlotIndex int    `json:"slot_index"`
}

// Unassigned is a unit left out of an assignment plan.
type Unassigned struct {
	UnitID string `json:"unit_id"`
	Reason string `json:"reason"`
}

// AssignmentPlan is the outcome of a committed assignment.
//
// No two assignments in a plan share a host slot and each unit appears at most once.
type AssignmentPlan struct {
	ID          uuid.UUID    `json:"id"`
	HostID      string       `json:"host_id"`
	Assignments []Assignment `json:"assignments"`
	Unassigned  []Unassigned `json:"unassigned,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewAssignmentPlan returns an empty plan for the host.
func NewAssignmentPlan(hostID string) *AssignmentPlan {
	return &AssignmentPlan{
		ID:          uuid.New(),
		HostID:      hostID,
		Assignments: []Assignment{},
		CreatedAt:   time.Now(),
	}
}

// UnitIDs returns the units assigned in the plan, in plan order.
func (p *AssignmentPlan) UnitIDs() []string {
	ids := make([]string, 0, len(p.Assignments))
	for _, a := range p.Assignments {
		ids = append(ids, a.UnitID)
	}

	return ids
}
