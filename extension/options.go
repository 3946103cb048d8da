package extension

import (
	"github.com/xraph/plate"
	audithook "github.com/xraph/plate/audit_hook"
	"github.com/xraph/plate/plugin"
	"github.com/xraph/plate/store"
	"github.com/xraph/plate/store/driver"
)

// Option configures the Plate Forge extension.
type Option func(*Extension)

// WithStore sets the store for the plate engine, bypassing the configured driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPlateOption passes a plate.Option through to the underlying engine.
func WithPlateOption(opt plate.Option) Option {
	return func(e *Extension) {
		e.plateOpts = append(e.plateOpts, opt)
	}
}

// WithPlugin registers a plate plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.plateOpts = append(e.plateOpts, plate.WithPlugin(p))
	}
}

// WithAuditRecorder forwards lifecycle events to r through the audit hook.
func WithAuditRecorder(r audithook.Recorder, opts ...audithook.Option) Option {
	return func(e *Extension) {
		e.plateOpts = append(e.plateOpts, plate.WithPlugin(audithook.New(r, opts...)))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithStoreDriver selects the backend by name.
func WithStoreDriver(cfg driver.Config) Option {
	return func(e *Extension) { e.config.Store = cfg }
}

// WithRedis enables change event publishing to the Redis server at addr.
func WithRedis(addr string) Option {
	return func(e *Extension) { e.config.RedisAddr = addr }
}

// WithMetrics registers lifecycle metrics with the default Prometheus registerer.
func WithMetrics() Option {
	return func(e *Extension) { e.config.EnableMetrics = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
