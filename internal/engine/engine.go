package engine

import (
	"context"
	"sync"

	"github.com/metal-toolbox/placer/internal/cache"
	"github.com/metal-toolbox/placer/internal/catalog"
	"github.com/metal-toolbox/placer/internal/compat"
	"github.com/metal-toolbox/placer/internal/identity"
	"github.com/metal-toolbox/placer/internal/inventory"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/metal-toolbox/placer/internal/worker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	pkgName = "internal/engine"

	DefaultConcurrency = 4

	// DefaultReconcileMinConfidence is the smart match confidence a reconcile run writes back from.
	DefaultReconcileMinConfidence = 0.9

	// removeAttempts bounds the re-reads of a unit that moves host while it is being removed.
	removeAttempts = 3
)

// ErrUnitMoved is returned when a unit kept moving between hosts while it was being removed.
var ErrUnitMoved = errors.New("unit moved while being removed")

// Options are the engine component parameters.
type Options struct {
	Cache       cache.Options
	Matching    identity.Options
	Compat      compat.Options
	Shapes      map[model.ComponentType]catalog.ShapeName
	Concurrency int

	// ReconcileMinConfidence is the lowest smart match confidence reconcile records on a unit.
	ReconcileMinConfidence float64
}

// Engine is the call surface of the component specification and slot assignment engine.
//
// It is constructed once and shared by concurrent callers, unit and host records are read from
// the inventory repository on each call.
type Engine struct {
	cache       *cache.Cache
	catalogs    *catalog.Store
	specs       *identity.Resolver
	compat      *compat.Resolver
	repository  inventory.Repository
	concurrency int
	writeBack   float64
	logger      *logrus.Logger
}

// New returns an Engine reading catalogs from the source.
func New(source catalog.Source, repository inventory.Repository, opts Options, logger *logrus.Logger) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}

	if opts.ReconcileMinConfidence <= 0 {
		opts.ReconcileMinConfidence = DefaultReconcileMinConfidence
	}

	c := cache.New(opts.Cache, logger)
	catalogs := catalog.NewStore(source, c, logger, catalog.WithShapes(opts.Shapes))
	specs := identity.NewResolver(catalogs, c, opts.Matching, logger)

	return &Engine{
		cache:       c,
		catalogs:    catalogs,
		specs:       specs,
		compat:      compat.NewResolver(specs, opts.Compat, logger),
		repository:  repository,
		concurrency: opts.Concurrency,
		writeBack:   opts.ReconcileMinConfidence,
		logger:      logger,
	}
}

// Catalogs returns the catalog store.
func (e *Engine) Catalogs() *catalog.Store {
	return e.catalogs
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(pkgName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func spanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// ResolveSpec returns the resolved specification of the inventory unit.
func (e *Engine) ResolveSpec(ctx context.Context, unitID string) (model.ResolvedSpec, error) {
	ctx, span := e.startSpan(ctx, "Engine.ResolveSpec", attribute.String("unit_id", unitID))
	defer span.End()

	units, err := e.repository.UnitsByID(ctx, unitID)
	if err != nil {
		spanError(span, err)
		return model.ResolvedSpec{}, err
	}

	spec := e.specs.Resolve(ctx, units[0].ComponentType, units[0])
	span.SetAttributes(attribute.String("matched_by", string(spec.MatchedBy)))

	return spec, nil
}

// ResolveIdentifier returns the specification of the catalog identifier.
func (e *Engine) ResolveIdentifier(ctx context.Context, componentType model.ComponentType, identifier string) model.ResolvedSpec {
	ctx, span := e.startSpan(
		ctx,
		"Engine.ResolveIdentifier",
		attribute.String("component_type", string(componentType)),
		attribute.String("identifier", identifier),
	)
	defer span.End()

	return e.specs.ResolveIdentifier(ctx, componentType, identifier)
}

// ValidationResult is the outcome of a batch validation.
type ValidationResult struct {
	Success bool                 `json:"success"`
	Errors  []compat.Mismatch    `json:"errors"`
	Specs   []model.ResolvedSpec `json:"specs,omitempty"`
}

// ValidateBatch checks the units share the discriminating attributes of their component type,
// mismatches are reported in the result, the error is set for lookup failures.
func (e *Engine) ValidateBatch(ctx context.Context, unitIDs []string) (ValidationResult, error) {
	ctx, span := e.startSpan(ctx, "Engine.ValidateBatch", attribute.Int("units", len(unitIDs)))
	defer span.End()

	units, err := e.repository.UnitsByID(ctx, unitIDs...)
	if err != nil {
		spanError(span, err)
		return ValidationResult{}, err
	}

	specs, err := e.compat.ValidateBatch(ctx, units)
	if err != nil {
		var verr *compat.ValidationError
		if errors.As(err, &verr) {
			return ValidationResult{Errors: verr.Mismatches, Specs: specs}, nil
		}

		spanError(span, err)

		return ValidationResult{}, err
	}

	return ValidationResult{Success: true, Errors: []compat.Mismatch{}, Specs: specs}, nil
}

// candidateHosts returns the slot sets of the hosts, all hosts when none are named.
func (e *Engine) candidateHosts(ctx context.Context, hostIDs []string) ([]*model.HostSlotSet, error) {
	if len(hostIDs) == 0 {
		return e.repository.Hosts(ctx)
	}

	hosts := make([]*model.HostSlotSet, 0, len(hostIDs))

	for _, id := range hostIDs {
		h, err := e.repository.HostSlots(ctx, id)
		if err != nil {
			return nil, err
		}

		hosts = append(hosts, h)
	}

	return hosts, nil
}

// ChooseOptimalHost returns the candidate host the units pack most tightly into, all hosts are candidates when
// none are named. No candidate host is a result with a reason.
func (e *Engine) ChooseOptimalHost(ctx context.Context, unitIDs, hostIDs []string) (compat.HostChoice, error) {
	ctx, span := e.startSpan(ctx, "Engine.ChooseOptimalHost", attribute.Int("units", len(unitIDs)))
	defer span.End()

	units, err := e.repository.UnitsByID(ctx, unitIDs...)
	if err != nil {
		spanError(span, err)
		return compat.HostChoice{}, err
	}

	hosts, err := e.candidateHosts(ctx, hostIDs)
	if err != nil {
		spanError(span, err)
		return compat.HostChoice{}, err
	}

	choice, err := e.compat.ChooseOptimalHost(ctx, units, hosts)
	if err != nil {
		spanError(span, err)
		return compat.HostChoice{}, err
	}

	span.SetAttributes(attribute.String("host_id", choice.HostID))

	return choice, nil
}

// Assign pairs the units with the host free slots and commits the plan to the repository.
func (e *Engine) Assign(ctx context.Context, unitIDs []string, hostID string) (*model.AssignmentPlan, error) {
	ctx, span := e.startSpan(ctx, "Engine.Assign", attribute.String("host_id", hostID), attribute.Int("units", len(unitIDs)))
	defer span.End()

	plan, err := e.compat.AssignAndCommit(ctx, unitIDs, hostID, e.repository)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("plan_id", plan.ID.String()))

	return plan, nil
}

// ChooseAndAssign chooses a host for the units among the candidate hosts and commits the assignment,
// all hosts are candidates when none are named.
func (e *Engine) ChooseAndAssign(ctx context.Context, unitIDs, hostIDs []string) (*model.AssignmentPlan, error) {
	ctx, span := e.startSpan(ctx, "Engine.ChooseAndAssign", attribute.Int("units", len(unitIDs)))
	defer span.End()

	if len(hostIDs) == 0 {
		hosts, err := e.repository.Hosts(ctx)
		if err != nil {
			spanError(span, err)
			return nil, err
		}

		for _, h := range hosts {
			hostIDs = append(hostIDs, h.HostID)
		}
	}

	plan, err := e.compat.ChooseAndAssign(ctx, unitIDs, hostIDs, e.repository)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("host_id", plan.HostID), attribute.String("plan_id", plan.ID.String()))

	return plan, nil
}

// CompatibleUnitsForHost returns the free, resolved units the host slots take.
func (e *Engine) CompatibleUnitsForHost(ctx context.Context, hostID string) ([]string, error) {
	ctx, span := e.startSpan(ctx, "Engine.CompatibleUnitsForHost", attribute.String("host_id", hostID))
	defer span.End()

	host, err := e.repository.HostSlots(ctx, hostID)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	units, err := e.repository.Units(ctx)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	return e.compat.CompatibleUnitsForHost(ctx, host, units), nil
}

// InvalidateCatalog drops the catalog of the component type and every specification derived from it,
// it returns the number of cache entries dropped.
func (e *Engine) InvalidateCatalog(componentType model.ComponentType) int {
	n := e.catalogs.Invalidate(componentType)

	e.logger.WithFields(logrus.Fields{
		"componentType": componentType,
		"entries":       n,
	}).Info("catalog invalidated")

	return n
}

// CacheStats returns the specification cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// Install marks the reserved units installed in their slots.
func (e *Engine) Install(ctx context.Context, unitIDs []string) error {
	ctx, span := e.startSpan(ctx, "Engine.Install", attribute.Int("units", len(unitIDs)))
	defer span.End()

	units, err := e.repository.UnitsByID(ctx, unitIDs...)
	if err != nil {
		spanError(span, err)
		return err
	}

	// host locks are taken in host order
	hostIDs := []string{}
	for _, u := range units {
		if u.HostID != "" && !slices.Contains(hostIDs, u.HostID) {
			hostIDs = append(hostIDs, u.HostID)
		}
	}

	slices.Sort(hostIDs)

	for _, id := range hostIDs {
		unlock := e.compat.Locks().Lock(id)
		defer unlock()
	}

	// re-read under the host locks
	units, err = e.repository.UnitsByID(ctx, unitIDs...)
	if err != nil {
		spanError(span, err)
		return err
	}

	if err := e.compat.Install(ctx, units); err != nil {
		spanError(span, err)
		return err
	}

	if err := e.repository.UpdateUnits(ctx, units...); err != nil {
		spanError(span, err)
		return err
	}

	return nil
}

// Remove returns the unit to free and releases the slot it holds.
func (e *Engine) Remove(ctx context.Context, unitID string) error {
	ctx, span := e.startSpan(ctx, "Engine.Remove", attribute.String("unit_id", unitID))
	defer span.End()

	for attempt := 0; attempt < removeAttempts; attempt++ {
		units, err := e.repository.UnitsByID(ctx, unitID)
		if err != nil {
			spanError(span, err)
			return err
		}

		moved, err := e.removeFromHost(ctx, unitID, units[0].HostID)
		if err != nil {
			spanError(span, err)
			return err
		}

		if !moved {
			return nil
		}

		e.logger.WithFields(logrus.Fields{
			"unitID":  unitID,
			"attempt": attempt,
		}).Debug("unit moved host before removal, retrying")
	}

	err := errors.Wrap(ErrUnitMoved, unitID)
	spanError(span, err)

	return err
}

// removeFromHost releases the unit from the host it was read on, moved is set when the unit
// record re-read under the host lock names another host.
func (e *Engine) removeFromHost(ctx context.Context, unitID, hostID string) (moved bool, err error) {
	if hostID != "" {
		unlock := e.compat.Locks().Lock(hostID)
		defer unlock()
	}

	units, err := e.repository.UnitsByID(ctx, unitID)
	if err != nil {
		return false, err
	}

	unit := units[0]
	if unit.HostID != hostID {
		return true, nil
	}

	var host *model.HostSlotSet

	if hostID != "" {
		host, err = e.repository.HostSlots(ctx, hostID)
		if err != nil {
			if !errors.Is(err, inventory.ErrHostNotFound) {
				return false, err
			}

			e.logger.WithFields(logrus.Fields{
				"unitID": unitID,
				"hostID": hostID,
			}).Warn("unit placed on an unknown host, releasing the unit only")
		}
	}

	if err := e.compat.Remove(ctx, unit, host); err != nil {
		return false, err
	}

	if host != nil {
		if err := e.repository.UpdateHost(ctx, host); err != nil {
			return false, err
		}
	}

	return false, e.repository.UpdateUnits(ctx, unit)
}

// ReconcileResult lists the units a reconcile run looked at.
type ReconcileResult struct {
	// Matched are the units smart matched to a catalog entry, their identifier was written back.
	Matched map[string]string `json:"matched"`

	// Suggested are the units smart matched below the write back confidence, they are left unchanged.
	Suggested map[string]Suggestion `json:"suggested"`

	// Unmatched are the units that resolve to their own fields only.
	Unmatched []string `json:"unmatched"`
}

// Suggestion is a smart match too weak to be recorded on the unit.
type Suggestion struct {
	Identifier string  `json:"identifier"`
	Confidence float64 `json:"confidence"`
}

// Reconcile resolves the units without a catalog identifier and records the identifier
// of the catalog entry each smart matched unit resolves to with at least the write back confidence.
func (e *Engine) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	ctx, span := e.startSpan(ctx, "Engine.Reconcile")
	defer span.End()

	units, err := e.repository.Units(ctx)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	var (
		mu     sync.Mutex
		result = &ReconcileResult{
			Matched:   map[string]string{},
			Suggested: map[string]Suggestion{},
			Unmatched: []string{},
		}
	)

	limiter := worker.NewLimiter(e.concurrency)

	for _, u := range units {
		if u.CatalogIdentifier != "" {
			continue
		}

		unit := u

		err := limiter.DispatchWait(ctx, func() {
			spec := e.specs.Resolve(ctx, unit.ComponentType, unit)

			mu.Lock()
			defer mu.Unlock()

			if spec.MatchedBy == model.MatchedSmart && spec.Identifier != "" {
				if spec.MatchConfidence >= e.writeBack {
					result.Matched[unit.UnitID] = spec.Identifier
				} else {
					result.Suggested[unit.UnitID] = Suggestion{Identifier: spec.Identifier, Confidence: spec.MatchConfidence}
				}

				return
			}

			result.Unmatched = append(result.Unmatched, unit.UnitID)
		})
		if err != nil {
			break
		}
	}

	limiter.StopWait()

	if err := ctx.Err(); err != nil {
		spanError(span, err)
		return nil, err
	}

	slices.Sort(result.Unmatched)

	if len(result.Matched) == 0 {
		return result, nil
	}

	ids := maps.Keys(result.Matched)
	slices.Sort(ids)

	// identifiers are set on fresh copies, occupancy may have changed while resolving
	current, err := e.repository.UnitsByID(ctx, ids...)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	for _, u := range current {
		u.CatalogIdentifier = result.Matched[u.UnitID]
	}

	if err := e.repository.UpdateUnits(ctx, current...); err != nil {
		spanError(span, err)
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"matched":   len(result.Matched),
		"suggested": len(result.Suggested),
		"unmatched": len(result.Unmatched),
	}).Info("inventory reconciled")

	return result, nil
}
