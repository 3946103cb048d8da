package extension

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/plate"
	audithook "github.com/xraph/plate/audit_hook"
	"github.com/xraph/plate/store/driver"
	"github.com/xraph/plate/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{RetryMaxAttempts: 5})

	if cfg.RetryMaxAttempts != 5 {
		t.Errorf("RetryMaxAttempts = %d, want 5", cfg.RetryMaxAttempts)
	}
	if cfg.Store.Driver != driver.Memory {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, driver.Memory)
	}
	if cfg.OverCommitPolicy != "reject" {
		t.Errorf("OverCommitPolicy = %q, want reject", cfg.OverCommitPolicy)
	}
	if len(cfg.AcceptableQA) != 1 || cfg.AcceptableQA[0] != "passed" {
		t.Errorf("AcceptableQA = %v, want [passed]", cfg.AcceptableQA)
	}
	if cfg.RetryInitialInterval != 10*time.Millisecond {
		t.Errorf("RetryInitialInterval = %v", cfg.RetryInitialInterval)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yamlConfig := Config{
		Store:            driver.Config{Driver: "sqlite", DSN: "file:plate.db"},
		OverCommitPolicy: "warn",
	}
	programmatic := Config{
		Store:          driver.Config{Driver: "badger"},
		DisableMigrate: true,
		DisableSplit:   true,
		RedisAddr:      "localhost:6379",
	}

	cfg := mergeConfigurations(yamlConfig, programmatic)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"yaml store wins", cfg.Store.Driver, "sqlite"},
		{"yaml policy wins", cfg.OverCommitPolicy, "warn"},
		{"programmatic flag applies", cfg.DisableMigrate, true},
		{"programmatic split flag applies", cfg.DisableSplit, true},
		{"merge stays enabled", cfg.DisableMerge, false},
		{"programmatic fills gap", cfg.RedisAddr, "localhost:6379"},
		{"defaults fill rest", cfg.RetryMaxAttempts, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestBuildPlateOptsRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"policy", Config{OverCommitPolicy: "maybe", AcceptableQA: []string{"passed"}}},
		{"qa", Config{OverCommitPolicy: "reject", AcceptableQA: []string{"great"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(WithConfig(tt.cfg))
			if _, err := e.buildPlateOpts(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWithAuditRecorderRegistersPlugin(t *testing.T) {
	e := New(WithAuditRecorder(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return nil
	})))
	if len(e.plateOpts) != 1 {
		t.Fatalf("expected one pass-through option, got %d", len(e.plateOpts))
	}

	eng := plate.New(memory.New(), e.plateOpts...)
	if eng.Plugins().Count() != 1 {
		t.Errorf("expected the audit hook to be registered, got %d plugins", eng.Plugins().Count())
	}
}
