package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/orchestrator"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		localOnly  bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run [entity...|all]",
		Short: "Run one sync pass for the given entities",
		Long: `Run fetches every record of each entity, merges them into the ledgers under
the export root and mirrors new ledgers and receipts to Drive. Entities run
one after another; a failure in one does not stop the others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := selectEntities(a.cfg, a.registry, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logger.WithContext(ctx, a.log)

			rt, err := buildRuntime(ctx, a.cfg, a.log, schemas, localOnly)
			if err != nil {
				return err
			}
			defer rt.Close()

			reports, failed := runAll(ctx, rt)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d entities ended early", failed, len(rt.order))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local-only", false, "write ledgers and attachments locally without touching Drive")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run reports as JSON")
	return cmd
}

// runAll runs each orchestrator in order and returns the reports plus the
// number of runs that ended early.
func runAll(ctx context.Context, rt *runtime) ([]*orchestrator.RunReport, int) {
	log := logger.FromContext(ctx)
	var (
		reports []*orchestrator.RunReport
		failed  int
	)
	for _, name := range rt.order {
		if ctx.Err() != nil {
			log.Warn().Msg("Interrupted, skipping remaining entities")
			break
		}
		report, err := rt.orchestrators[name].Run(ctx)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			failed++
			log.Error().Err(err).Str("entity", name).Msg("Sync run ended early")
		}
	}
	return reports, failed
}
