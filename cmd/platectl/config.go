package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xraph/plate"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/store/driver"
)

// config is the platectl configuration file.
type config struct {
	Tenant           string              `yaml:"tenant"`
	Store            driver.Config       `yaml:"store"`
	OverCommitPolicy string              `yaml:"over_commit_policy"`
	AcceptableQA     []lp.QAStatus       `yaml:"acceptable_qa"`
	SplitMerge       *splitMergeSettings `yaml:"split_merge"`
	Retry            plate.RetryPolicy   `yaml:"retry"`
}

type splitMergeSettings struct {
	Split *bool `yaml:"split"`
	Merge *bool `yaml:"merge"`
}

func defaultConfig() config {
	return config{
		Store:            driver.Config{Driver: driver.SQLite, DSN: "file:plate.db"},
		OverCommitPolicy: string(plate.OverCommitReject),
		Retry:            plate.DefaultRetryPolicy(),
	}
}

// loadConfig reads path over the defaults. A missing file at the default
// path is not an error.
func loadConfig(path string, explicit bool) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// engineOptions translates the file into engine options.
func (c config) engineOptions() ([]plate.Option, error) {
	var opts []plate.Option

	switch p := plate.OverCommitPolicy(c.OverCommitPolicy); p {
	case "", plate.OverCommitReject, plate.OverCommitWarn:
		if p != "" {
			opts = append(opts, plate.WithOverCommitPolicy(p))
		}
	default:
		return nil, fmt.Errorf("unknown over_commit_policy %q", c.OverCommitPolicy)
	}

	for _, q := range c.AcceptableQA {
		if !q.IsValid() {
			return nil, fmt.Errorf("unknown acceptable_qa status %q", q)
		}
	}
	if len(c.AcceptableQA) > 0 {
		opts = append(opts, plate.WithAcceptableQA(c.AcceptableQA...))
	}

	if c.SplitMerge != nil {
		s := plate.SplitMergeSettings{SplitEnabled: true, MergeEnabled: true}
		if c.SplitMerge.Split != nil {
			s.SplitEnabled = *c.SplitMerge.Split
		}
		if c.SplitMerge.Merge != nil {
			s.MergeEnabled = *c.SplitMerge.Merge
		}
		opts = append(opts, plate.WithSettingsResolver(plate.StaticSettings(s)))
	}

	opts = append(opts, plate.WithRetry(c.Retry))
	return opts, nil
}
