package plate

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/plugin"
	"github.com/xraph/plate/store"
)

// Engine is the license plate allocation and lifecycle engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	retry            RetryPolicy
	overCommit       OverCommitPolicy
	acceptableQA     []lp.QAStatus
	demandResolver   DemandResolver
	settingsResolver SettingsResolver
	skipMigrate      bool
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		now:          time.Now,
		retry:        DefaultRetryPolicy(),
		overCommit:   OverCommitReject,
		acceptableQA: []lp.QAStatus{lp.QAPassed},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithRetry sets the conflict retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(e *Engine) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		e.retry = p
	}
}

// WithOverCommitPolicy sets how reservations beyond free quantity are treated.
func WithOverCommitPolicy(p OverCommitPolicy) Option {
	return func(e *Engine) { e.overCommit = p }
}

// WithAcceptableQA sets the QA statuses a plate must have to be allocated.
// The default is passed only.
func WithAcceptableQA(statuses ...lp.QAStatus) Option {
	return func(e *Engine) {
		if len(statuses) > 0 {
			e.acceptableQA = slices.Clone(statuses)
		}
	}
}

// WithDemandResolver sets the resolver that supplies product and warehouse
// expectations for a demand reference.
func WithDemandResolver(r DemandResolver) Option {
	return func(e *Engine) { e.demandResolver = r }
}

// WithSettingsResolver sets the resolver for per-tenant split/merge settings.
func WithSettingsResolver(r SettingsResolver) Option {
	return func(e *Engine) { e.settingsResolver = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSkipMigrate makes Start leave the schema alone.
func WithSkipMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("plate engine started",
		"over_commit", string(e.overCommit),
		"retry_attempts", e.retry.MaxAttempts,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	e.logger.Info("plate engine stopped")
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

func (e *Engine) clock() time.Time { return e.now().UTC() }

func (e *Engine) qaAcceptable(q lp.QAStatus) bool {
	return slices.Contains(e.acceptableQA, q)
}

// ──────────────────────────────────────────────────
// Policies and collaborators
// ──────────────────────────────────────────────────

// OverCommitPolicy decides whether a reservation may exceed free quantity.
type OverCommitPolicy string

const (
	// OverCommitReject refuses with EXCEEDS_AVAILABLE_QUANTITY.
	OverCommitReject OverCommitPolicy = "reject"
	// OverCommitWarn accepts when the request explicitly opts in, returning
	// a warning instead of an error.
	OverCommitWarn OverCommitPolicy = "warn"
)

// DemandExpectation is what a demand reference expects to consume. Empty
// fields are not checked.
type DemandExpectation struct {
	ProductID   string
	WarehouseID string
}

// DemandResolver looks up the expectation behind a demand reference.
type DemandResolver interface {
	ResolveDemand(ctx context.Context, tenantID, demandRef string) (DemandExpectation, error)
}

// DemandResolverFunc adapts a function to DemandResolver.
type DemandResolverFunc func(ctx context.Context, tenantID, demandRef string) (DemandExpectation, error)

// ResolveDemand calls f.
func (f DemandResolverFunc) ResolveDemand(ctx context.Context, tenantID, demandRef string) (DemandExpectation, error) {
	return f(ctx, tenantID, demandRef)
}

// SplitMergeSettings toggles the split/merge operator for one call.
type SplitMergeSettings struct {
	SplitEnabled bool `json:"split_enabled" yaml:"split_enabled"`
	MergeEnabled bool `json:"merge_enabled" yaml:"merge_enabled"`
}

// SettingsResolver supplies per-tenant split/merge settings.
type SettingsResolver interface {
	SplitMergeSettings(ctx context.Context, tenantID string) (SplitMergeSettings, error)
}

// StaticSettings is a SettingsResolver that returns the same settings for
// every tenant.
type StaticSettings SplitMergeSettings

// SplitMergeSettings returns s.
func (s StaticSettings) SplitMergeSettings(context.Context, string) (SplitMergeSettings, error) {
	return SplitMergeSettings(s), nil
}

func (e *Engine) splitMergeSettings(ctx context.Context, tenantID string, override *SplitMergeSettings) (SplitMergeSettings, error) {
	if override != nil {
		return *override, nil
	}
	if e.settingsResolver == nil {
		return SplitMergeSettings{SplitEnabled: true, MergeEnabled: true}, nil
	}
	return e.settingsResolver.SplitMergeSettings(ctx, tenantID)
}

// ──────────────────────────────────────────────────
// Tenant scope
// ──────────────────────────────────────────────────

type tenantKey struct{}

// WithTenant returns a context scoped to tenantID. Every engine operation
// requires a tenant scope; records of other tenants are invisible.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the tenant scope of ctx, or "".
func TenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}

func tenantScope(ctx context.Context) (string, error) {
	t := TenantFromContext(ctx)
	if t == "" {
		return "", ErrTenantRequired
	}
	return t, nil
}
