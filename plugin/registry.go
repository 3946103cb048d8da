package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/event"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
)

// DefaultTimeout bounds how long a single hook may run.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onLicensePlateCreated []OnLicensePlateCreated
	onLicensePlateChanged []OnLicensePlateChanged
	onStatusChanged       []OnStatusChanged
	onQAStatusChanged     []OnQAStatusChanged
	onReservationCreated  []OnReservationCreated
	onReservationReleased []OnReservationReleased
	onReservationConsumed []OnReservationConsumed
	onOverCommit          []OnOverCommit
	onSplit               []OnSplit
	onMerge               []OnMerge
	onConflictRetry       []OnConflictRetry
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnLicensePlateCreated); ok {
		r.onLicensePlateCreated = append(r.onLicensePlateCreated, v)
	}
	if v, ok := p.(OnLicensePlateChanged); ok {
		r.onLicensePlateChanged = append(r.onLicensePlateChanged, v)
	}
	if v, ok := p.(OnStatusChanged); ok {
		r.onStatusChanged = append(r.onStatusChanged, v)
	}
	if v, ok := p.(OnQAStatusChanged); ok {
		r.onQAStatusChanged = append(r.onQAStatusChanged, v)
	}
	if v, ok := p.(OnReservationCreated); ok {
		r.onReservationCreated = append(r.onReservationCreated, v)
	}
	if v, ok := p.(OnReservationReleased); ok {
		r.onReservationReleased = append(r.onReservationReleased, v)
	}
	if v, ok := p.(OnReservationConsumed); ok {
		r.onReservationConsumed = append(r.onReservationConsumed, v)
	}
	if v, ok := p.(OnOverCommit); ok {
		r.onOverCommit = append(r.onOverCommit, v)
	}
	if v, ok := p.(OnSplit); ok {
		r.onSplit = append(r.onSplit, v)
	}
	if v, ok := p.(OnMerge); ok {
		r.onMerge = append(r.onMerge, v)
	}
	if v, ok := p.(OnConflictRetry); ok {
		r.onConflictRetry = append(r.onConflictRetry, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnLicensePlateCreated", reflect.TypeOf((*OnLicensePlateCreated)(nil)).Elem()},
	{"OnLicensePlateChanged", reflect.TypeOf((*OnLicensePlateChanged)(nil)).Elem()},
	{"OnStatusChanged", reflect.TypeOf((*OnStatusChanged)(nil)).Elem()},
	{"OnQAStatusChanged", reflect.TypeOf((*OnQAStatusChanged)(nil)).Elem()},
	{"OnReservationCreated", reflect.TypeOf((*OnReservationCreated)(nil)).Elem()},
	{"OnReservationReleased", reflect.TypeOf((*OnReservationReleased)(nil)).Elem()},
	{"OnReservationConsumed", reflect.TypeOf((*OnReservationConsumed)(nil)).Elem()},
	{"OnOverCommit", reflect.TypeOf((*OnOverCommit)(nil)).Elem()},
	{"OnSplit", reflect.TypeOf((*OnSplit)(nil)).Elem()},
	{"OnMerge", reflect.TypeOf((*OnMerge)(nil)).Elem()},
	{"OnConflictRetry", reflect.TypeOf((*OnConflictRetry)(nil)).Elem()},
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// dispatch calls fn for every plugin in hooks, logging failures.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	dispatch(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitLicensePlateCreated emits a plate created event.
func (r *Registry) EmitLicensePlateCreated(ctx context.Context, p *lp.LicensePlate) {
	dispatch(ctx, r, "OnLicensePlateCreated", snapshot(r, &r.onLicensePlateCreated), func(h OnLicensePlateCreated) error {
		return h.OnLicensePlateCreated(ctx, p)
	})
}

// EmitLicensePlateChanged emits a committed change event.
func (r *Registry) EmitLicensePlateChanged(ctx context.Context, e *event.ChangeEvent) {
	dispatch(ctx, r, "OnLicensePlateChanged", snapshot(r, &r.onLicensePlateChanged), func(h OnLicensePlateChanged) error {
		return h.OnLicensePlateChanged(ctx, e)
	})
}

// EmitStatusChanged emits a status transition.
func (r *Registry) EmitStatusChanged(ctx context.Context, p *lp.LicensePlate, from, to lp.Status, automatic bool) {
	dispatch(ctx, r, "OnStatusChanged", snapshot(r, &r.onStatusChanged), func(h OnStatusChanged) error {
		return h.OnStatusChanged(ctx, p, from, to, automatic)
	})
}

// EmitQAStatusChanged emits a QA status transition.
func (r *Registry) EmitQAStatusChanged(ctx context.Context, p *lp.LicensePlate, from, to lp.QAStatus) {
	dispatch(ctx, r, "OnQAStatusChanged", snapshot(r, &r.onQAStatusChanged), func(h OnQAStatusChanged) error {
		return h.OnQAStatusChanged(ctx, p, from, to)
	})
}

// EmitReservationCreated emits a reservation created event.
func (r *Registry) EmitReservationCreated(ctx context.Context, rsv *reservation.Reservation) {
	dispatch(ctx, r, "OnReservationCreated", snapshot(r, &r.onReservationCreated), func(h OnReservationCreated) error {
		return h.OnReservationCreated(ctx, rsv)
	})
}

// EmitReservationReleased emits a reservation released event.
func (r *Registry) EmitReservationReleased(ctx context.Context, rsv *reservation.Reservation) {
	dispatch(ctx, r, "OnReservationReleased", snapshot(r, &r.onReservationReleased), func(h OnReservationReleased) error {
		return h.OnReservationReleased(ctx, rsv)
	})
}

// EmitReservationConsumed emits a reservation consumed event.
func (r *Registry) EmitReservationConsumed(ctx context.Context, rsv *reservation.Reservation, p *lp.LicensePlate) {
	dispatch(ctx, r, "OnReservationConsumed", snapshot(r, &r.onReservationConsumed), func(h OnReservationConsumed) error {
		return h.OnReservationConsumed(ctx, rsv, p)
	})
}

// EmitOverCommit emits an over-commit warning.
func (r *Registry) EmitOverCommit(ctx context.Context, rsv *reservation.Reservation, free decimal.Decimal) {
	dispatch(ctx, r, "OnOverCommit", snapshot(r, &r.onOverCommit), func(h OnOverCommit) error {
		return h.OnOverCommit(ctx, rsv, free)
	})
}

// EmitSplit emits a split event.
func (r *Registry) EmitSplit(ctx context.Context, source, created *lp.LicensePlate, qty decimal.Decimal) {
	dispatch(ctx, r, "OnSplit", snapshot(r, &r.onSplit), func(h OnSplit) error {
		return h.OnSplit(ctx, source, created, qty)
	})
}

// EmitMerge emits a merge event.
func (r *Registry) EmitMerge(ctx context.Context, merged *lp.LicensePlate, sources []*lp.LicensePlate) {
	dispatch(ctx, r, "OnMerge", snapshot(r, &r.onMerge), func(h OnMerge) error {
		return h.OnMerge(ctx, merged, sources)
	})
}

// EmitConflictRetry emits a retry after a lost optimistic race.
func (r *Registry) EmitConflictRetry(ctx context.Context, op string, attempt int, err error) {
	dispatch(ctx, r, "OnConflictRetry", snapshot(r, &r.onConflictRetry), func(h OnConflictRetry) error {
		return h.OnConflictRetry(ctx, op, attempt, err)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the allocation path.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
