package compat

import (
	"fmt"

	sw "github.com/filanov/stateswitch"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/metal-toolbox/placer/internal/slots"
	"github.com/pkg/errors"
)

const (
	StateFree      sw.State = sw.State(model.OccupancyFree)
	StateReserved  sw.State = sw.State(model.OccupancyReserved)
	StateInstalled sw.State = sw.State(model.OccupancyInstalled)

	// transition for units paired with a host slot
	TransitionTypeReserve sw.TransitionType = "reserve"
	// transition for units fitted in their reserved slot
	TransitionTypeInstall sw.TransitionType = "install"
	// transition for units taken out of, or released from, a host slot
	TransitionTypeRemove sw.TransitionType = "remove"
)

// unitSwitch implements the stateswitch.StateSwitch interface over an inventory unit.
type unitSwitch struct {
	unit *model.InventoryItem
}

// State implements the StateSwitch interface
func (u *unitSwitch) State() sw.State {
	if u.unit.Occupancy == "" {
		return StateFree
	}

	return sw.State(u.unit.Occupancy)
}

// SetState implements the StateSwitch interface
func (u *unitSwitch) SetState(state sw.State) error {
	u.unit.Occupancy = model.Occupancy(state)
	return nil
}

// occupancyArgs are the transition arguments, the tracker is the host view the transition updates.
type occupancyArgs struct {
	tracker   *slots.Tracker
	hostID    string
	slotIndex int
}

func transitionArgs(args sw.TransitionArgs) (*occupancyArgs, error) {
	a, ok := args.(*occupancyArgs)
	if !ok {
		return nil, errors.Wrap(ErrTransitionArgs, fmt.Sprintf("got %T", args))
	}

	return a, nil
}

// occupancyHandler holds the occupancy transition handlers.
type occupancyHandler struct{}

// Reserve claims the slot in the host view and records the placement on the unit.
func (h *occupancyHandler) Reserve(s sw.StateSwitch, args sw.TransitionArgs) error {
	unit := s.(*unitSwitch).unit

	a, err := transitionArgs(args)
	if err != nil {
		return err
	}

	if err := a.tracker.Reserve(a.hostID, a.slotIndex, unit.UnitID); err != nil {
		return err
	}

	idx := a.slotIndex
	unit.HostID = a.hostID
	unit.SlotIndex = &idx

	return nil
}

// placed is the install condition, the unit holds a slot.
func (h *occupancyHandler) placed(s sw.StateSwitch, _ sw.TransitionArgs) (bool, error) {
	return s.(*unitSwitch).unit.Placed(), nil
}

// Remove releases the unit slot in the host view, when one is given, and clears the placement on the unit.
func (h *occupancyHandler) Remove(s sw.StateSwitch, args sw.TransitionArgs) error {
	unit := s.(*unitSwitch).unit

	a, err := transitionArgs(args)
	if err != nil {
		return err
	}

	if a.tracker != nil && unit.Placed() {
		// only release the slot if the view agrees the unit holds it
		if idx, ok := a.tracker.SlotOf(unit.HostID, unit.UnitID); ok && idx == *unit.SlotIndex {
			if err := a.tracker.Release(unit.HostID, idx); err != nil {
				return err
			}
		}
	}

	unit.HostID = ""
	unit.SlotIndex = nil

	return nil
}

// NewOccupancyStateMachine returns the unit occupancy statemachine.
//
// free -> reserved -> installed, reserved and installed units return to free on removal.
func NewOccupancyStateMachine() sw.StateMachine {
	handler := &occupancyHandler{}
	sm := sw.NewStateMachine()

	sm.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionTypeReserve,
		SourceStates:     sw.States{StateFree},
		DestinationState: StateReserved,
		Transition:       handler.Reserve,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Reserve",
			Description: "Unit is paired with a free host slot.",
		},
	})

	sm.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionTypeInstall,
		SourceStates:     sw.States{StateReserved},
		DestinationState: StateInstalled,
		Condition:        handler.placed,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Install",
			Description: "Unit is fitted in its reserved slot.",
		},
	})

	sm.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionTypeRemove,
		SourceStates:     sw.States{StateReserved, StateInstalled},
		DestinationState: StateFree,
		Transition:       handler.Remove,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Remove",
			Description: "Unit is taken out of its slot, the slot is released.",
		},
	})

	return sm
}

// runTransition runs the occupancy transition on the unit.
func runTransition(sm sw.StateMachine, transitionType sw.TransitionType, unit *model.InventoryItem, args *occupancyArgs) error {
	s := &unitSwitch{unit: unit}

	err := sm.Run(transitionType, s, args)
	if err != nil {
		if errors.Is(err, sw.NoConditionPassedToRunTransaction) {
			return errors.Wrap(
				ErrOccupancyTransition,
				fmt.Sprintf("unit %s: no transition rule found for transition type '%s' and state '%s'", unit.UnitID, transitionType, s.State()),
			)
		}

		return errors.Wrap(err, fmt.Sprintf("unit %s: %s", unit.UnitID, transitionType))
	}

	return nil
}
