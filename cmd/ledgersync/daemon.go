package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-sync/internal/api/handlers"
	"github.com/dvloznov/ledger-sync/internal/api/middleware"
	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/dvloznov/ledger-sync/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/scheduler"
	"github.com/spf13/cobra"
)

func newDaemonCmd(a *app) *cobra.Command {
	var noStartupRun bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled syncs and serve the job status API",
		Long: `Daemon enqueues one run per enabled entity at startup and then one on every
activation of the entity's cron schedule. With http_addr set it serves
/health, /api/jobs and /api/sync/{entity}. SIGINT or SIGTERM drains
in-flight runs and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), a, !noStartupRun)
		},
	}
	cmd.Flags().BoolVar(&noStartupRun, "no-startup-run", false, "wait for the first scheduled activation instead of syncing immediately")
	return cmd
}

func runDaemon(parent context.Context, a *app, runOnStart bool) error {
	log := a.log
	schemas, err := selectEntities(a.cfg, a.registry, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(logger.WithContext(parent, log))
	defer cancel()

	rt, err := buildRuntime(ctx, a.cfg, log, schemas, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, a.cfg.Workers, jobStore)

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		syncJob, ok := job.(*jobs.SyncJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}
		orch, ok := rt.orchestrators[syncJob.Entity]
		if !ok {
			return fmt.Errorf("unknown entity: %s", syncJob.Entity)
		}

		report, err := orch.Run(ctx)
		syncJob.Report = report
		return err
	}

	if err := jobQueue.Start(ctx, jobHandler); err != nil {
		return fmt.Errorf("failed to start job consumer: %w", err)
	}

	var entries []scheduler.Entry
	for _, s := range schemas {
		entries = append(entries, scheduler.Entry{Entity: s.Name, Schedule: s.Schedule})
	}
	sched := scheduler.New(jobQueue, scheduler.NewCronTrigger(log, a.cfg.Location()), entries)
	sched.RunOnStart = runOnStart

	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	schedErr := make(chan error, 1)
	go func() {
		schedErr <- sched.Start(schedCtx)
	}()

	var server *http.Server
	if a.cfg.HTTPAddr != "" {
		mux := handlers.Routes(
			handlers.NewJobsHandler(jobStore, log),
			handlers.NewSyncHandler(jobQueue, rt.order, log),
		)
		server = &http.Server{
			Addr: a.cfg.HTTPAddr,
			Handler: middleware.Chain(mux,
				middleware.Recovery(log),
				middleware.RequestID,
				middleware.Logger(log),
				middleware.Auth(a.cfg.APIToken),
			),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", a.cfg.HTTPAddr).Msg("Starting status API")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status API stopped")
				cancel()
			}
		}()
	}

	log.Info().Strs("entities", rt.order).Int("workers", a.cfg.Workers).Msg("Daemon started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down daemon...")
	case err := <-schedErr:
		runErr = err
	case <-ctx.Done():
	}

	stopScheduler()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status API forced to shutdown")
		}
	}

	// In-flight runs keep a live context until the queue has drained.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancel()

	log.Info().Msg("Daemon exited")
	return runErr
}
