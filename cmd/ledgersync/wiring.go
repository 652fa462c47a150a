package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dvloznov/ledger-sync/internal/attachments"
	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/credentials"
	"github.com/dvloznov/ledger-sync/internal/objectstore"
	"github.com/dvloznov/ledger-sync/internal/orchestrator"
	"github.com/dvloznov/ledger-sync/internal/remote"
	"github.com/dvloznov/ledger-sync/internal/schema"
	"github.com/dvloznov/ledger-sync/internal/source"
	"github.com/dvloznov/ledger-sync/internal/supabase"
	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
)

// runtime owns the collaborators shared by every entity's orchestrator.
type runtime struct {
	orchestrators map[string]*orchestrator.Orchestrator
	order         []string
	closers       []func() error
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// buildRuntime wires one orchestrator per schema. Drive is skipped when
// localOnly is set or mirroring is disabled in the config.
func buildRuntime(ctx context.Context, cfg *config.Config, log zerolog.Logger, schemas []*schema.EntitySchema, localOnly bool) (*runtime, error) {
	if err := cfg.RequireSource(); err != nil {
		return nil, err
	}
	rt := &runtime{orchestrators: make(map[string]*orchestrator.Orchestrator)}

	var sb *supabase.Client
	if cfg.Source.URL != "" && cfg.Source.APIKey != "" {
		c, err := supabase.NewClient(ctx, cfg.Source.URL, cfg.Source.APIKey, supabase.WithTimeout(cfg.Source.Timeout))
		if err != nil {
			return nil, err
		}
		sb = c
	}

	newSource, err := sourceFactory(ctx, cfg, sb, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}

	store, err := objectStore(ctx, cfg, sb, rt, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	stageDir, err := os.MkdirTemp("", "ledgersync-stage-")
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	rt.closers = append(rt.closers, func() error { return os.RemoveAll(stageDir) })
	pipeline := attachments.NewPipeline(store, attachments.NewPDFConverter(stageDir))

	var mirror *remote.Mirror
	if !localOnly && cfg.Drive.On() {
		mirror, err = driveMirror(ctx, cfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
	} else {
		log.Info().Msg("Remote mirroring disabled, writing local files only")
	}

	for _, s := range schemas {
		rt.orchestrators[s.Name] = orchestrator.New(s, newSource(s), pipeline, mirror, orchestrator.Options{
			ExportRoot: cfg.ExportRoot,
			LocalOnly:  localOnly,
		})
		rt.order = append(rt.order, s.Name)
	}
	return rt, nil
}

func sourceFactory(ctx context.Context, cfg *config.Config, sb *supabase.Client, rt *runtime) (func(*schema.EntitySchema) source.RecordSource, error) {
	switch cfg.Source.Kind {
	case config.SourceBigQuery:
		bq, err := source.NewBigQuerySource(ctx, cfg.Source.BigQuery.Project, cfg.Source.BigQuery.Dataset)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, bq.Close)
		return func(*schema.EntitySchema) source.RecordSource { return bq }, nil
	default:
		if sb == nil {
			return nil, fmt.Errorf("supabase source requires source.url and source.api_key")
		}
		return func(s *schema.EntitySchema) source.RecordSource {
			return source.NewSupabaseSource(sb, cfg.Source.PageSize, s.IDField)
		}, nil
	}
}

func objectStore(ctx context.Context, cfg *config.Config, sb *supabase.Client, rt *runtime, log zerolog.Logger) (objectstore.Store, error) {
	router := &objectstore.Router{}

	if cfg.Objects.Kind == config.ObjectsGCS || cfg.Objects.GCS {
		gcs, err := objectstore.NewGCSStore(ctx)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, gcs.Close)
		router.GCS = gcs
		if cfg.Objects.Kind == config.ObjectsGCS {
			router.Default = gcs.WithBucket(cfg.Objects.Bucket)
		}
	}

	if cfg.Objects.Kind == config.ObjectsSupabase {
		if sb == nil {
			log.Warn().Msg("No Supabase credentials, attachments stored in Supabase cannot be fetched")
		} else {
			router.Default = objectstore.NewSupabaseStore(sb)
		}
	}
	return router, nil
}

func driveMirror(ctx context.Context, cfg *config.Config) (*remote.Mirror, error) {
	oauthCfg, err := credentials.LoadConfig(cfg.Drive.CredentialsFile, drive.DriveScope)
	if err != nil {
		return nil, err
	}
	ts, err := credentials.NewTokenFile(cfg.Drive.TokenFile, oauthCfg).TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := remote.NewDriveService(ctx, ts)
	if err != nil {
		return nil, err
	}
	return remote.NewMirror(svc), nil
}
