package extension

import (
	"time"

	"github.com/xraph/plate/store/driver"
)

// Config holds the Plate extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.plate" or "plate" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Store selects the backend. Ignored when a store is passed with WithStore.
	Store driver.Config `json:"store" mapstructure:"store" yaml:"store"`

	// OverCommitPolicy is "reject" (default) or "warn".
	OverCommitPolicy string `json:"over_commit_policy" mapstructure:"over_commit_policy" yaml:"over_commit_policy"`

	// AcceptableQA lists the QA statuses that may be allocated (default: passed).
	AcceptableQA []string `json:"acceptable_qa" mapstructure:"acceptable_qa" yaml:"acceptable_qa"`

	// DisableSplit and DisableMerge turn the split/merge operator off for
	// every tenant.
	DisableSplit bool `json:"disable_split" mapstructure:"disable_split" yaml:"disable_split"`
	DisableMerge bool `json:"disable_merge" mapstructure:"disable_merge" yaml:"disable_merge"`

	// RetryMaxAttempts bounds how often a conflicting write is attempted (default: 3).
	RetryMaxAttempts int `json:"retry_max_attempts" mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`

	// RetryInitialInterval is the first backoff delay (default: 10ms).
	RetryInitialInterval time.Duration `json:"retry_initial_interval" mapstructure:"retry_initial_interval" yaml:"retry_initial_interval"`

	// RetryMaxInterval caps the backoff delay (default: 250ms).
	RetryMaxInterval time.Duration `json:"retry_max_interval" mapstructure:"retry_max_interval" yaml:"retry_max_interval"`

	// RedisAddr enables change event publishing to Redis when set.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// RedisChannelPrefix prefixes the per-tenant event channels (default: "plate").
	RedisChannelPrefix string `json:"redis_channel_prefix" mapstructure:"redis_channel_prefix" yaml:"redis_channel_prefix"`

	// EnableMetrics registers lifecycle metrics with the default Prometheus registerer.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Store:                driver.Config{Driver: driver.Memory},
		OverCommitPolicy:     "reject",
		AcceptableQA:         []string{"passed"},
		RetryMaxAttempts:     3,
		RetryInitialInterval: 10 * time.Millisecond,
		RetryMaxInterval:     250 * time.Millisecond,
		RedisChannelPrefix:   "plate",
	}
}
