package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xraph/plate"
	"github.com/xraph/plate/store/driver"
)

const defaultConfigPath = "platectl.yaml"

// cli carries the state shared by every subcommand.
type cli struct {
	out        io.Writer
	configPath string
	tenant     string
	actor      string
	verbose    bool

	engine *plate.Engine
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "platectl",
		Short: "Manage license plates in a Plate store",
		Long: `platectl creates, allocates, splits, merges and traces license plates
against the store named in its configuration file.

Every command works inside one tenant, taken from --tenant or the "tenant"
key of the configuration file. Results are printed as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", defaultConfigPath, "Configuration file")
	flags.StringVarP(&c.tenant, "tenant", "t", "", "Tenant scope (overrides the config file)")
	flags.StringVar(&c.actor, "actor", "platectl", "Actor recorded on changes")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log engine activity to stderr")

	root.AddCommand(
		c.migrateCmd(),
		c.createCmd(),
		c.getCmd(),
		c.availableCmd(),
		c.reserveCmd(),
		c.releaseCmd(),
		c.consumeCmd(),
		c.splitCmd(),
		c.mergeCmd(),
		c.statusCmd(),
		c.qaCmd(),
		c.traceCmd(),
		c.auditCmd(),
	)
	return root
}

// run opens the engine, scopes ctx to the tenant and calls fn. The engine
// is stopped, closing the store, before run returns.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context) (any, error)) error {
	explicit := cmd.Flags().Changed("config")
	cfg, err := loadConfig(c.configPath, explicit)
	if err != nil {
		return err
	}
	if c.tenant != "" {
		cfg.Tenant = c.tenant
	}
	if cfg.Tenant == "" {
		return errors.New("no tenant: pass --tenant or set tenant in the config file")
	}

	opts, err := cfg.engineOptions()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if c.verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	opts = append(opts, plate.WithLogger(logger))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := driver.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	c.engine = plate.New(s, opts...)
	if err := c.engine.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	defer c.engine.Stop()

	result, err := fn(plate.WithTenant(ctx, cfg.Tenant))
	if err != nil {
		return err
	}
	return c.print(result)
}

func (c *cli) print(v any) error {
	if v == nil {
		return nil
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
