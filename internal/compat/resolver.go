package compat

import (
	"context"
	"fmt"

	sw "github.com/filanov/stateswitch"
	"github.com/metal-toolbox/placer/internal/metrics"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/metal-toolbox/placer/internal/slots"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	reasonDuplicate = "duplicate unit in batch"
)

// Options are the batch compatibility parameters.
type Options struct {
	// MinConfidence is the match confidence a unit spec needs to take part in a batch.
	MinConfidence float64 `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
}

// SpecResolver resolves the specification of an inventory unit.
type SpecResolver interface {
	Resolve(ctx context.Context, componentType model.ComponentType, unit *model.InventoryItem) model.ResolvedSpec
}

// SlotStore is the persistence collaborator of committed assignments.
type SlotStore interface {
	// UnitsByID returns the current records of the units in the given order.
	UnitsByID(ctx context.Context, ids ...string) ([]*model.InventoryItem, error)

	// HostSlots returns the current slot set of the host.
	HostSlots(ctx context.Context, hostID string) (*model.HostSlotSet, error)

	// CommitPlan persists the plan along with the updated units and host slot set,
	// it fails when a unit was claimed by another plan since it was read.
	CommitPlan(ctx context.Context, plan *model.AssignmentPlan, units []*model.InventoryItem, host *model.HostSlotSet) error
}

// HostChoice is the result of a host selection.
//
// HostID is empty when no candidate host can take the batch, Reason then says why.
type HostChoice struct {
	HostID         string `json:"host_id,omitempty"`
	FreeSlots      int    `json:"free_slots"`
	RemainingAfter int    `json:"remaining_after"`
	Reason         string `json:"reason,omitempty"`
}

// Found returns true when a host was chosen.
func (h HostChoice) Found() bool {
	return h.HostID != ""
}

// Resolver checks batches of units for compatibility and pairs them with host slots.
type Resolver struct {
	specs  SpecResolver
	locks  *HostLocks
	sm     sw.StateMachine
	opts   Options
	logger *logrus.Logger
}

// NewResolver returns a compatibility Resolver.
func NewResolver(specs SpecResolver, opts Options, logger *logrus.Logger) *Resolver {
	return &Resolver{
		specs:  specs,
		locks:  NewHostLocks(),
		sm:     NewOccupancyStateMachine(),
		opts:   opts,
		logger: logger,
	}
}

// Locks returns the per host lock table guarding assignments.
func (r *Resolver) Locks() *HostLocks {
	return r.locks
}

// ValidateBatch resolves the units and checks they share the discriminating attributes of their component type.
//
// The first unit is the batch reference, every unit that differs from it on an attribute is listed in the
// returned *ValidationError. The resolved specs are returned in unit order.
func (r *Resolver) ValidateBatch(ctx context.Context, units []*model.InventoryItem) ([]model.ResolvedSpec, error) {
	if len(units) == 0 {
		return nil, ErrEmptyBatch
	}

	specs := make([]model.ResolvedSpec, 0, len(units))
	for _, u := range units {
		specs = append(specs, r.specs.Resolve(ctx, u.ComponentType, u))
	}

	ref := &specs[0]
	verr := &ValidationError{ComponentType: ref.ComponentType}

	for i := range specs {
		spec := &specs[i]

		if spec.MatchConfidence < r.opts.MinConfidence {
			verr.Mismatches = append(verr.Mismatches, Mismatch{
				UnitID:          spec.UnitID,
				ReferenceUnitID: ref.UnitID,
				Attribute:       "match_confidence",
				Expected:        fmt.Sprintf(">= %.2f", r.opts.MinConfidence),
				Actual:          fmt.Sprintf("%.2f", spec.MatchConfidence),
			})
		}

		if i == 0 {
			continue
		}

		if spec.ComponentType != ref.ComponentType {
			verr.Mismatches = append(verr.Mismatches, Mismatch{
				UnitID:          spec.UnitID,
				ReferenceUnitID: ref.UnitID,
				Attribute:       "component_type",
				Expected:        string(ref.ComponentType),
				Actual:          string(spec.ComponentType),
			})

			continue
		}

		for _, d := range discriminators[ref.ComponentType] {
			expected, actual := d.value(ref), d.value(spec)
			if expected == actual {
				continue
			}

			verr.Mismatches = append(verr.Mismatches, Mismatch{
				UnitID:          spec.UnitID,
				ReferenceUnitID: ref.UnitID,
				Attribute:       d.attribute,
				Expected:        expected,
				Actual:          actual,
			})
		}
	}

	result := "passed"
	if len(verr.Mismatches) > 0 {
		result = "failed"
	}

	metrics.ValidationCounter.With(prometheus.Labels{
		"component_type": string(ref.ComponentType),
		"result":         result,
	}).Inc()

	if len(verr.Mismatches) > 0 {
		r.logger.WithFields(logrus.Fields{
			"componentType": ref.ComponentType,
			"units":         verr.UnitIDs(),
		}).Debug(verr.Error())

		return specs, verr
	}

	return specs, nil
}

// ChooseOptimalHost returns the candidate host the batch packs most tightly into.
//
// Hosts that do not take the batch component type, or have fewer free slots accepting the batch
// interface type than units in the batch are skipped. The remaining hosts are ranked by the free slots
// left after a hypothetical assignment, ties go to the lowest host identifier. No candidate is a result
// with a reason, not an error, the error is set for batches that fail validation.
func (r *Resolver) ChooseOptimalHost(ctx context.Context, units []*model.InventoryItem, hosts []*model.HostSlotSet) (HostChoice, error) {
	specs, err := r.ValidateBatch(ctx, units)
	if err != nil {
		return HostChoice{}, err
	}

	if len(hosts) == 0 {
		return HostChoice{Reason: "no candidate hosts"}, nil
	}

	ref := &specs[0]

	iface := InterfaceType(ref)
	if iface == "" {
		return HostChoice{Reason: fmt.Sprintf("batch %s spec has no interface type", ref.ComponentType)}, nil
	}

	batchSize := len(distinctUnits(units))

	view, err := slots.NewTracker(r.logger, distinctHosts(hosts)...)
	if err != nil {
		return HostChoice{}, err
	}

	// scored on a copy, the caller host views are left as is
	whatIf, err := view.Clone()
	if err != nil {
		return HostChoice{}, err
	}

	var best HostChoice

	for _, hostID := range whatIf.HostIDs() {
		host, _ := whatIf.Host(hostID)
		le := r.logger.WithFields(logrus.Fields{"hostID": hostID, "interface": iface, "batchSize": batchSize})

		if host.ComponentType != "" && host.ComponentType != ref.ComponentType {
			le.Trace("host skipped, component type")
			continue
		}

		free, _ := whatIf.FreeSlotsAccepting(hostID, iface)
		if len(free) < batchSize {
			le.WithField("freeSlots", len(free)).Trace("host skipped, free slots")
			continue
		}

		for i := 0; i < batchSize; i++ {
			if err := whatIf.Reserve(hostID, free[i], fmt.Sprintf("what-if-%d", i)); err != nil {
				return HostChoice{}, err
			}
		}

		remaining, _ := whatIf.FreeSlots(hostID)

		if !best.Found() || len(remaining) < best.RemainingAfter {
			best = HostChoice{HostID: hostID, FreeSlots: len(free), RemainingAfter: len(remaining)}
		}
	}

	if !best.Found() {
		return HostChoice{
			Reason: fmt.Sprintf("no candidate host has %d free slots accepting %s", batchSize, iface),
		}, nil
	}

	return best, nil
}

// Assign pairs the free units with the host free slots in ascending slot index order, in unit order.
//
// Duplicate and non free units are listed as unassigned in the plan, the other units are placed all or nothing:
// when the host has fewer free slots accepting the batch interface type than units, ErrInsufficientCapacity is
// returned and neither the host view nor the units are modified. On success the units are reserved and the
// host slot set is updated in place.
func (r *Resolver) Assign(ctx context.Context, units []*model.InventoryItem, host *model.HostSlotSet) (*model.AssignmentPlan, error) {
	unlock := r.locks.Lock(host.HostID)
	defer unlock()

	plan, _, err := r.assign(ctx, units, host)

	return plan, err
}

// AssignAndCommit assigns the units to the host and commits the plan through the store.
//
// The unit records and the host view are read from the store while the host lock is held, so
// concurrent calls for one host observe each other's commits. A failed commit rolls back the
// reservations made on the units.
func (r *Resolver) AssignAndCommit(ctx context.Context, unitIDs []string, hostID string, store SlotStore) (*model.AssignmentPlan, error) {
	if len(unitIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	unlock := r.locks.Lock(hostID)
	defer unlock()

	units, err := store.UnitsByID(ctx, unitIDs...)
	if err != nil {
		return nil, err
	}

	host, err := store.HostSlots(ctx, hostID)
	if err != nil {
		return nil, err
	}

	plan, rollback, err := r.assign(ctx, units, host)
	if err != nil {
		return nil, err
	}

	if len(plan.Assignments) == 0 {
		return plan, nil
	}

	if err := store.CommitPlan(ctx, plan, assignedUnits(units, plan), host); err != nil {
		rollback()

		r.logger.WithError(err).WithFields(logrus.Fields{
			"hostID": hostID,
			"planID": plan.ID.String(),
		}).Warn("assignment commit failed, reservations rolled back")

		return nil, errors.Wrap(err, "commit assignment plan")
	}

	return plan, nil
}

// ChooseAndAssign chooses a host for the units among the candidate hosts and commits the assignment,
// ErrNoCandidateHost is returned when no host can take the batch.
func (r *Resolver) ChooseAndAssign(ctx context.Context, unitIDs, hostIDs []string, store SlotStore) (*model.AssignmentPlan, error) {
	units, err := store.UnitsByID(ctx, unitIDs...)
	if err != nil {
		return nil, err
	}

	hosts := make([]*model.HostSlotSet, 0, len(hostIDs))

	for _, id := range hostIDs {
		h, err := store.HostSlots(ctx, id)
		if err != nil {
			return nil, err
		}

		hosts = append(hosts, h)
	}

	choice, err := r.ChooseOptimalHost(ctx, freeUnits(units), hosts)
	if err != nil {
		return nil, err
	}

	if !choice.Found() {
		return nil, errors.Wrap(ErrNoCandidateHost, choice.Reason)
	}

	// units and the choice are re-validated under the host lock
	return r.AssignAndCommit(ctx, unitIDs, choice.HostID, store)
}

func (r *Resolver) assign(ctx context.Context, units []*model.InventoryItem, host *model.HostSlotSet) (*model.AssignmentPlan, func(), error) {
	if len(units) == 0 {
		return nil, nil, ErrEmptyBatch
	}

	le := r.logger.WithFields(logrus.Fields{"hostID": host.HostID})
	plan := model.NewAssignmentPlan(host.HostID)

	seen := map[string]bool{}
	batch := []*model.InventoryItem{}

	for _, u := range units {
		switch {
		case seen[u.UnitID]:
			plan.Unassigned = append(plan.Unassigned, model.Unassigned{UnitID: u.UnitID, Reason: reasonDuplicate})
		case !u.IsFree():
			plan.Unassigned = append(plan.Unassigned, model.Unassigned{UnitID: u.UnitID, Reason: "unit is " + string(u.Occupancy)})
		default:
			batch = append(batch, u)
		}

		seen[u.UnitID] = true
	}

	if len(batch) == 0 {
		countAssign("no_units")
		return plan, func() {}, nil
	}

	specs, err := r.ValidateBatch(ctx, batch)
	if err != nil {
		countAssign("invalid")
		return nil, nil, err
	}

	ref := &specs[0]
	if host.ComponentType != "" && host.ComponentType != ref.ComponentType {
		countAssign("incompatible")
		return nil, nil, errors.Wrap(ErrIncompatibleHost, fmt.Sprintf("host %s takes %s, batch is %s", host.HostID, host.ComponentType, ref.ComponentType))
	}

	tracker, err := slots.NewTracker(r.logger, host)
	if err != nil {
		return nil, nil, err
	}

	iface := InterfaceType(ref)

	// re-validated here, the host view may be stale since the host was chosen
	free, err := tracker.FreeSlotsAccepting(host.HostID, iface)
	if err != nil {
		return nil, nil, err
	}

	if len(free) < len(batch) {
		countAssign("insufficient_capacity")

		return nil, nil, errors.Wrap(
			ErrInsufficientCapacity,
			fmt.Sprintf("host %s has %d free slots accepting '%s', batch requires %d", host.HostID, len(free), iface, len(batch)),
		)
	}

	type saved struct {
		occupancy model.Occupancy
		hostID    string
		slotIndex *int
	}

	restore := make([]saved, 0, len(batch))
	reserved := []int{}

	rollback := func() {
		for _, idx := range reserved {
			_ = tracker.Release(host.HostID, idx)
		}

		for i, s := range restore {
			batch[i].Occupancy = s.occupancy
			batch[i].HostID = s.hostID
			batch[i].SlotIndex = s.slotIndex
		}
	}

	for i, u := range batch {
		restore = append(restore, saved{u.Occupancy, u.HostID, u.SlotIndex})

		args := &occupancyArgs{tracker: tracker, hostID: host.HostID, slotIndex: free[i]}
		if err := runTransition(r.sm, TransitionTypeReserve, u, args); err != nil {
			rollback()
			countAssign("failed")

			return nil, nil, err
		}

		reserved = append(reserved, free[i])

		plan.Assignments = append(plan.Assignments, model.Assignment{
			UnitID:    u.UnitID,
			HostID:    host.HostID,
			SlotIndex: free[i],
		})
	}

	countAssign("assigned")

	metrics.SlotsReservedCounter.With(prometheus.Labels{
		"component_type": string(ref.ComponentType),
	}).Add(float64(len(plan.Assignments)))

	le.WithFields(logrus.Fields{
		"planID":     plan.ID.String(),
		"assigned":   len(plan.Assignments),
		"unassigned": len(plan.Unassigned),
	}).Debug("units assigned")

	return plan, rollback, nil
}

// CompatibleUnitsForHost returns the free, resolved units whose interface type is accepted by any slot of the host,
// in unit order.
func (r *Resolver) CompatibleUnitsForHost(ctx context.Context, host *model.HostSlotSet, units []*model.InventoryItem) []string {
	compatible := []string{}
	seen := map[string]bool{}

	for _, u := range units {
		if seen[u.UnitID] || !u.IsFree() {
			continue
		}

		if host.ComponentType != "" && u.ComponentType != host.ComponentType {
			continue
		}

		spec := r.specs.Resolve(ctx, u.ComponentType, u)
		if !spec.Resolved() || spec.MatchConfidence < r.opts.MinConfidence {
			continue
		}

		iface := InterfaceType(&spec)

		for i := range host.Slots {
			if host.Slots[i].Accepts(iface) {
				compatible = append(compatible, u.UnitID)
				seen[u.UnitID] = true

				break
			}
		}
	}

	return compatible
}

// Install marks the reserved units installed, no unit is changed unless all of them are reserved.
func (r *Resolver) Install(_ context.Context, units []*model.InventoryItem) error {
	for _, u := range units {
		s := &unitSwitch{unit: u}
		if s.State() != StateReserved || !u.Placed() {
			return errors.Wrap(
				ErrOccupancyTransition,
				fmt.Sprintf("unit %s: no transition rule found for transition type '%s' and state '%s'", u.UnitID, TransitionTypeInstall, s.State()),
			)
		}
	}

	for _, u := range units {
		if err := runTransition(r.sm, TransitionTypeInstall, u, &occupancyArgs{}); err != nil {
			return err
		}
	}

	return nil
}

// Remove returns the unit to free, the slot it holds is released in the host view when one is given.
//
// Callers sharing the host view hold the host lock from Locks().
func (r *Resolver) Remove(_ context.Context, unit *model.InventoryItem, host *model.HostSlotSet) error {
	args := &occupancyArgs{}

	if host != nil {
		tracker, err := slots.NewTracker(r.logger, host)
		if err != nil {
			return err
		}

		args.tracker = tracker
	}

	return runTransition(r.sm, TransitionTypeRemove, unit, args)
}

func countAssign(result string) {
	metrics.AssignCounter.With(prometheus.Labels{"result": result}).Inc()
}

func distinctUnits(units []*model.InventoryItem) []*model.InventoryItem {
	seen := map[string]bool{}
	distinct := []*model.InventoryItem{}

	for _, u := range units {
		if !seen[u.UnitID] {
			seen[u.UnitID] = true
			distinct = append(distinct, u)
		}
	}

	return distinct
}

// distinctHosts returns the hosts without repeats, the first view of a host is kept.
func distinctHosts(hosts []*model.HostSlotSet) []*model.HostSlotSet {
	seen := map[string]bool{}
	distinct := []*model.HostSlotSet{}

	for _, h := range hosts {
		if !seen[h.HostID] {
			seen[h.HostID] = true
			distinct = append(distinct, h)
		}
	}

	return distinct
}

func freeUnits(units []*model.InventoryItem) []*model.InventoryItem {
	free := []*model.InventoryItem{}

	for _, u := range distinctUnits(units) {
		if u.IsFree() {
			free = append(free, u)
		}
	}

	return free
}

func assignedUnits(units []*model.InventoryItem, plan *model.AssignmentPlan) []*model.InventoryItem {
	assigned := map[string]bool{}
	for _, a := range plan.Assignments {
		assigned[a.UnitID] = true
	}

	found := []*model.InventoryItem{}

	for _, u := range units {
		if assigned[u.UnitID] {
			found = append(found, u)
			assigned[u.UnitID] = false
		}
	}

	return found
}
