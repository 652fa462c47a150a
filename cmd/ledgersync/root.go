package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/schema"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand once the config is loaded.
type app struct {
	configFile string
	logLevel   string

	cfg      *config.Config
	log      zerolog.Logger
	registry *schema.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ledgersync",
		Short: "Export Supabase records into monthly spreadsheet ledgers mirrored to Google Drive",
		Long: `ledgersync fetches purchases, expenses and campaigns, groups them into one
ledger per card, employee or project and month, merges each batch into the
ledger already on disk, converts receipts to PDF and mirrors ledgers and
receipts into a Google Drive folder tree.

Example usage:
  ledgersync run all                 # one pass over every enabled entity
  ledgersync run purchases --local-only
  ledgersync daemon                  # scheduled runs plus status API
  ledgersync auth                    # authorize Drive access once`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "path to the configuration file (default "+config.DefaultFile+" if present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		newRunCmd(a),
		newDaemonCmd(a),
		newAuthCmd(a),
		newSchemasCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.log = logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	reg, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	a.registry = reg
	return nil
}

// loadRegistry returns the built-in schemas with schemas_file overrides and
// per-entity schedule overrides applied.
func loadRegistry(cfg *config.Config) (*schema.Registry, error) {
	reg, err := schema.Defaults()
	if err != nil {
		return nil, err
	}
	if cfg.SchemasFile != "" {
		schemas, err := schema.LoadFile(cfg.SchemasFile)
		if err != nil {
			return nil, err
		}
		if err := reg.Override(schemas...); err != nil {
			return nil, fmt.Errorf("schemas_file %s: %w", cfg.SchemasFile, err)
		}
	}
	for _, s := range reg.All() {
		s.Schedule = cfg.EntitySchedule(s.Name, s.Schedule)
	}
	return reg, nil
}

// selectEntities resolves command arguments to schemas. "all" or no
// arguments selects every enabled entity.
func selectEntities(cfg *config.Config, reg *schema.Registry, args []string) ([]*schema.EntitySchema, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "all") {
		var out []*schema.EntitySchema
		for _, s := range reg.All() {
			if cfg.EntityEnabled(s.Name) {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no entities enabled")
		}
		return out, nil
	}

	var out []*schema.EntitySchema
	seen := map[string]bool{}
	for _, name := range args {
		s, ok := reg.Get(name)
		if !ok {
			known := reg.Names()
			sort.Strings(known)
			return nil, fmt.Errorf("unknown entity %q (known: %s)", name, strings.Join(known, ", "))
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, s)
		}
	}
	return out, nil
}
