// Package extension provides the Forge extension adapter for Plate.
//
// It implements the forge.Extension interface to integrate the license plate
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.plate" or "plate" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/plate"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/observability"
	platepub "github.com/xraph/plate/publisher/redis"
	"github.com/xraph/plate/store"
	"github.com/xraph/plate/store/driver"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "plate"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "License plate inventory allocation and lifecycle engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Plate as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *plate.Engine
	store     store.Store
	plateOpts []plate.Option
}

// New creates a new Plate Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *plate.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration, opens the
// configured store, builds the engine and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := driver.Open(context.Background(), e.config.Store, nil)
		if err != nil {
			return fmt.Errorf("plate: open store: %w", err)
		}
		e.store = s
	}

	opts, err := e.buildPlateOpts()
	if err != nil {
		return err
	}
	e.engine = plate.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*plate.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("plate: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	defer e.MarkStopped()
	if e.engine != nil {
		return e.engine.Stop()
	}
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("plate: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildPlateOpts constructs plate.Option values from the resolved config.
func (e *Extension) buildPlateOpts() ([]plate.Option, error) {
	cfg := e.config
	opts := make([]plate.Option, 0, len(e.plateOpts)+6)

	policy := plate.OverCommitPolicy(cfg.OverCommitPolicy)
	if policy != plate.OverCommitReject && policy != plate.OverCommitWarn {
		return nil, fmt.Errorf("plate: unknown over_commit_policy %q", cfg.OverCommitPolicy)
	}
	opts = append(opts, plate.WithOverCommitPolicy(policy))

	qa := make([]lp.QAStatus, 0, len(cfg.AcceptableQA))
	for _, s := range cfg.AcceptableQA {
		q := lp.QAStatus(s)
		if !q.IsValid() {
			return nil, fmt.Errorf("plate: unknown acceptable_qa status %q", s)
		}
		qa = append(qa, q)
	}
	opts = append(opts,
		plate.WithAcceptableQA(qa...),
		plate.WithRetry(plate.RetryPolicy{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
		}),
		plate.WithSettingsResolver(plate.StaticSettings{
			SplitEnabled: !cfg.DisableSplit,
			MergeEnabled: !cfg.DisableMerge,
		}),
	)

	if cfg.DisableMigrate {
		opts = append(opts, plate.WithSkipMigrate())
	}

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		opts = append(opts, plate.WithPlugin(platepub.New(rdb,
			platepub.WithPrefix(cfg.RedisChannelPrefix),
			platepub.WithCloseClient(),
		)))
	}

	if cfg.EnableMetrics {
		factory := observability.NewPrometheusFactory(prometheus.DefaultRegisterer)
		opts = append(opts, plate.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	// Pass-through options go last so they win over config.
	opts = append(opts, e.plateOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("plate: configuration is required but not found in config files; " +
				"ensure 'extensions.plate' or 'plate' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("plate: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("store_driver", e.config.Store.Driver),
		forge.F("over_commit_policy", e.config.OverCommitPolicy),
		forge.F("acceptable_qa", e.config.AcceptableQA),
		forge.F("retry_max_attempts", e.config.RetryMaxAttempts),
		forge.F("redis", e.config.RedisAddr != ""),
		forge.F("metrics", e.config.EnableMetrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.plate", "plate"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("plate: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("plate: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaults.Store.Driver
	}
	if cfg.OverCommitPolicy == "" {
		cfg.OverCommitPolicy = defaults.OverCommitPolicy
	}
	if len(cfg.AcceptableQA) == 0 {
		cfg.AcceptableQA = defaults.AcceptableQA
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = defaults.RetryMaxAttempts
	}
	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = defaults.RetryInitialInterval
	}
	if cfg.RetryMaxInterval == 0 {
		cfg.RetryMaxInterval = defaults.RetryMaxInterval
	}
	if cfg.RedisChannelPrefix == "" {
		cfg.RedisChannelPrefix = defaults.RedisChannelPrefix
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML takes precedence; programmatic values fill gaps and true bool flags
// always apply.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableSplit {
		yamlConfig.DisableSplit = true
	}
	if programmaticConfig.DisableMerge {
		yamlConfig.DisableMerge = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	if yamlConfig.Store.Driver == "" {
		yamlConfig.Store = programmaticConfig.Store
	}
	if yamlConfig.OverCommitPolicy == "" {
		yamlConfig.OverCommitPolicy = programmaticConfig.OverCommitPolicy
	}
	if len(yamlConfig.AcceptableQA) == 0 {
		yamlConfig.AcceptableQA = programmaticConfig.AcceptableQA
	}
	if yamlConfig.RetryMaxAttempts == 0 {
		yamlConfig.RetryMaxAttempts = programmaticConfig.RetryMaxAttempts
	}
	if yamlConfig.RetryInitialInterval == 0 {
		yamlConfig.RetryInitialInterval = programmaticConfig.RetryInitialInterval
	}
	if yamlConfig.RetryMaxInterval == 0 {
		yamlConfig.RetryMaxInterval = programmaticConfig.RetryMaxInterval
	}
	if yamlConfig.RedisAddr == "" {
		yamlConfig.RedisAddr = programmaticConfig.RedisAddr
	}
	if yamlConfig.RedisChannelPrefix == "" {
		yamlConfig.RedisChannelPrefix = programmaticConfig.RedisChannelPrefix
	}

	return mergeWithDefaults(yamlConfig)
}
