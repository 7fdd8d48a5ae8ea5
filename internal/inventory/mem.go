package inventory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
)

// MemStore is an in memory Repository.
type MemStore struct {
	mu *sync.RWMutex

	// units and hosts keep their insertion order
	units     map[string]*model.InventoryItem
	unitOrder []string
	hosts     map[string]*model.HostSlotSet
	hostOrder []string

	plans []*model.AssignmentPlan
}

// NewMemStore returns a MemStore holding copies of the given records, the records are validated.
func NewMemStore(units []*model.InventoryItem, hosts []*model.HostSlotSet) (*MemStore, error) {
	if err := Validate(units, hosts); err != nil {
		return nil, err
	}

	m := &MemStore{
		mu:    &sync.RWMutex{},
		units: map[string]*model.InventoryItem{},
		hosts: map[string]*model.HostSlotSet{},
	}

	for _, u := range units {
		c, err := copyUnit(u)
		if err != nil {
			return nil, err
		}

		m.units[u.UnitID] = c
		m.unitOrder = append(m.unitOrder, u.UnitID)
	}

	for _, h := range hosts {
		c, err := copyHost(h)
		if err != nil {
			return nil, err
		}

		m.hosts[h.HostID] = c
		m.hostOrder = append(m.hostOrder, h.HostID)
	}

	return m, nil
}

func copyUnit(u *model.InventoryItem) (*model.InventoryItem, error) {
	c := &model.InventoryItem{}
	if err := copier.CopyWithOption(c, u, copier.Option{DeepCopy: true}); err != nil {
		return nil, errors.Wrap(err, "unit "+u.UnitID)
	}

	return c, nil
}

func copyHost(h *model.HostSlotSet) (*model.HostSlotSet, error) {
	c := &model.HostSlotSet{}
	if err := copier.CopyWithOption(c, h, copier.Option{DeepCopy: true}); err != nil {
		return nil, errors.Wrap(err, "host "+h.HostID)
	}

	return c, nil
}

func (m *MemStore) Units(_ context.Context) ([]*model.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	units := make([]*model.InventoryItem, 0, len(m.unitOrder))

	for _, id := range m.unitOrder {
		c, err := copyUnit(m.units[id])
		if err != nil {
			return nil, err
		}

		units = append(units, c)
	}

	return units, nil
}

func (m *MemStore) UnitsByID(_ context.Context, ids ...string) ([]*model.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	units := make([]*model.InventoryItem, 0, len(ids))
	missing := []string{}

	for _, id := range ids {
		u, exists := m.units[id]
		if !exists {
			missing = append(missing, id)
			continue
		}

		c, err := copyUnit(u)
		if err != nil {
			return nil, err
		}

		units = append(units, c)
	}

	if len(missing) > 0 {
		return nil, errors.Wrap(ErrUnitNotFound, strings.Join(missing, ", "))
	}

	return units, nil
}

func (m *MemStore) Hosts(_ context.Context) ([]*model.HostSlotSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hosts := make([]*model.HostSlotSet, 0, len(m.hostOrder))

	for _, id := range m.hostOrder {
		c, err := copyHost(m.hosts[id])
		if err != nil {
			return nil, err
		}

		hosts = append(hosts, c)
	}

	return hosts, nil
}

func (m *MemStore) HostSlots(_ context.Context, hostID string) (*model.HostSlotSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, exists := m.hosts[hostID]
	if !exists {
		return nil, errors.Wrap(ErrHostNotFound, hostID)
	}

	return copyHost(h)
}

func (m *MemStore) CommitPlan(_ context.Context, plan *model.AssignmentPlan, units []*model.InventoryItem, host *model.HostSlotSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.hosts[host.HostID]; !exists {
		return errors.Wrap(ErrHostNotFound, host.HostID)
	}

	if err := m.checkUnits(units); err != nil {
		return err
	}

	// units committed with a plan must still be free in the store
	for _, u := range units {
		if stored := m.units[u.UnitID]; !stored.IsFree() {
			return errors.Wrap(ErrUnitNotFree, fmt.Sprintf("unit %s is %s", u.UnitID, stored.Occupancy))
		}
	}

	if err := m.setUnits(units); err != nil {
		return err
	}

	c, err := copyHost(host)
	if err != nil {
		return err
	}

	m.hosts[host.HostID] = c
	m.plans = append(m.plans, plan)

	return nil
}

func (m *MemStore) UpdateUnits(_ context.Context, units ...*model.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUnits(units); err != nil {
		return err
	}

	return m.setUnits(units)
}

func (m *MemStore) UpdateHost(_ context.Context, host *model.HostSlotSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.hosts[host.HostID]; !exists {
		return errors.Wrap(ErrHostNotFound, host.HostID)
	}

	if err := Validate(nil, []*model.HostSlotSet{host}); err != nil {
		return err
	}

	c, err := copyHost(host)
	if err != nil {
		return err
	}

	m.hosts[host.HostID] = c

	return nil
}

// Plans returns the committed assignment plans, in commit order.
func (m *MemStore) Plans() []*model.AssignmentPlan {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plans := make([]*model.AssignmentPlan, len(m.plans))
	copy(plans, m.plans)

	return plans
}

// checkUnits returns an error when a unit is unknown or invalid, the caller holds the write lock.
func (m *MemStore) checkUnits(units []*model.InventoryItem) error {
	for _, u := range units {
		if _, exists := m.units[u.UnitID]; !exists {
			return errors.Wrap(ErrUnitNotFound, u.UnitID)
		}
	}

	return Validate(units, nil)
}

func (m *MemStore) setUnits(units []*model.InventoryItem) error {
	for _, u := range units {
		c, err := copyUnit(u)
		if err != nil {
			return err
		}

		m.units[u.UnitID] = c
	}

	return nil
}

// snapshot returns copies of all records, the caller holds a lock.
func (m *MemStore) snapshot() *document {
	doc := &document{
		Units: make([]*model.InventoryItem, 0, len(m.unitOrder)),
		Hosts: make([]*model.HostSlotSet, 0, len(m.hostOrder)),
	}

	for _, id := range m.unitOrder {
		doc.Units = append(doc.Units, m.units[id])
	}

	for _, id := range m.hostOrder {
		doc.Hosts = append(doc.Hosts, m.hosts[id])
	}

	return doc
}

// restore resets the records to the snapshot and drops plans committed after it, the caller holds the write lock.
func (m *MemStore) restore(doc *document, plans int) {
	for _, u := range doc.Units {
		m.units[u.UnitID] = u
	}

	for _, h := range doc.Hosts {
		m.hosts[h.HostID] = h
	}

	m.plans = m.plans[:plans]
}
