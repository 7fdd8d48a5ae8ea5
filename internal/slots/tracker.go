package slots

import (
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	ErrSlotAlreadyOccupied = errors.New("slot already occupied")
	ErrUnknownHost         = errors.New("unknown host")
	ErrUnknownSlot         = errors.New("unknown slot index")
	ErrDuplicateSlotIndex  = errors.New("duplicate slot index")
	ErrDuplicateHost       = errors.New("duplicate host")
	ErrEmptyUnitID         = errors.New("empty unit identifier")
)

// Tracker is an in-memory occupancy view over host slot sets supplied by the caller.
//
// Reservations and releases modify the given host slot sets in place, the Tracker
// itself persists nothing. Methods are not safe for concurrent use, callers hold
// the per host exclusion scope while mutating a host.
type Tracker struct {
	hosts  map[string]*model.HostSlotSet
	logger *logrus.Logger
}

// NewTracker returns a Tracker over the host slot sets, slot indices must be unique per host.
func NewTracker(logger *logrus.Logger, hosts ...*model.HostSlotSet) (*Tracker, error) {
	t := &Tracker{
		hosts:  make(map[string]*model.HostSlotSet, len(hosts)),
		logger: logger,
	}

	for _, h := range hosts {
		if _, exists := t.hosts[h.HostID]; exists {
			return nil, errors.Wrap(ErrDuplicateHost, h.HostID)
		}

		seen := make(map[int]bool, len(h.Slots))

		for _, s := range h.Slots {
			if seen[s.Index] {
				return nil, errors.Wrap(ErrDuplicateSlotIndex, fmt.Sprintf("host %s, slot %d", h.HostID, s.Index))
			}

			seen[s.Index] = true
		}

		t.hosts[h.HostID] = h
	}

	return t, nil
}

// Host returns the host slot set of the host.
func (t *Tracker) Host(hostID string) (*model.HostSlotSet, error) {
	h, exists := t.hosts[hostID]
	if !exists {
		return nil, errors.Wrap(ErrUnknownHost, hostID)
	}

	return h, nil
}

// HostIDs returns the hosts in the view, in lexical order.
func (t *Tracker) HostIDs() []string {
	ids := maps.Keys(t.hosts)
	slices.Sort(ids)

	return ids
}

// FreeSlots returns the free slot indices of the host in ascending order.
func (t *Tracker) FreeSlots(hostID string) ([]int, error) {
	return t.freeSlots(hostID, func(*model.Slot) bool { return true })
}

// FreeSlotsAccepting returns the free slot indices of the host that accept the interface type,
// in ascending order.
func (t *Tracker) FreeSlotsAccepting(hostID, iface string) ([]int, error) {
	return t.freeSlots(hostID, func(s *model.Slot) bool { return s.Accepts(iface) })
}

func (t *Tracker) freeSlots(hostID string, match func(*model.Slot) bool) ([]int, error) {
	h, err := t.Host(hostID)
	if err != nil {
		return nil, err
	}

	free := []int{}

	for i := range h.Slots {
		if h.Slots[i].Free() && match(&h.Slots[i]) {
			free = append(free, h.Slots[i].Index)
		}
	}

	slices.Sort(free)

	return free, nil
}

func (t *Tracker) slot(hostID string, index int) (*model.Slot, error) {
	h, err := t.Host(hostID)
	if err != nil {
		return nil, err
	}

	for i := range h.Slots {
		if h.Slots[i].Index == index {
			return &h.Slots[i], nil
		}
	}

	return nil, errors.Wrap(ErrUnknownSlot, fmt.Sprintf("host %s, slot %d", hostID, index))
}

// Reserve marks the slot occupied by the unit.
//
// ErrSlotAlreadyOccupied is returned when the slot is not free, occupied slots are never overwritten.
func (t *Tracker) Reserve(hostID string, index int, unitID string) error {
	if unitID == "" {
		return ErrEmptyUnitID
	}

	s, err := t.slot(hostID, index)
	if err != nil {
		return err
	}

	if !s.Free() {
		// a stale view was passed in
		t.logger.WithFields(logrus.Fields{
			"hostID":     hostID,
			"slotIndex":  index,
			"unitID":     unitID,
			"occupiedBy": s.OccupiedBy,
		}).Error("slot reservation on an occupied slot")

		return errors.Wrap(
			ErrSlotAlreadyOccupied,
			fmt.Sprintf("host %s, slot %d occupied by %s", hostID, index, s.OccupiedBy),
		)
	}

	s.OccupiedBy = unitID

	return nil
}

// Release marks the slot free, releasing a free slot is a no-op.
func (t *Tracker) Release(hostID string, index int) error {
	s, err := t.slot(hostID, index)
	if err != nil {
		return err
	}

	s.OccupiedBy = ""

	return nil
}

// SlotOf returns the slot index the unit occupies on the host.
func (t *Tracker) SlotOf(hostID, unitID string) (int, bool) {
	h, exists := t.hosts[hostID]
	if !exists || unitID == "" {
		return 0, false
	}

	for _, s := range h.Slots {
		if s.OccupiedBy == unitID {
			return s.Index, true
		}
	}

	return 0, false
}

// Clone returns a Tracker over deep copies of the host slot sets,
// changes to the clone are not visible in the receiver.
func (t *Tracker) Clone() (*Tracker, error) {
	hosts := make([]*model.HostSlotSet, 0, len(t.hosts))

	for _, id := range t.HostIDs() {
		h := &model.HostSlotSet{}
		if err := copier.CopyWithOption(h, t.hosts[id], copier.Option{DeepCopy: true}); err != nil {
			return nil, errors.Wrap(err, "host "+id)
		}

		hosts = append(hosts, h)
	}

	return NewTracker(t.logger, hosts...)
}
