package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dvloznov/ledger-sync/internal/attachments"
	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/remote"
	"github.com/dvloznov/ledger-sync/internal/schema"
	"github.com/dvloznov/ledger-sync/internal/source"
	"github.com/dvloznov/ledger-sync/internal/syncerr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned when a run for the same entity is in progress.
var ErrAlreadyRunning = errors.New("a run for this entity is already in progress")

// AttachmentProcessor turns an attachment reference into a canonical document.
type AttachmentProcessor interface {
	Process(ctx context.Context, ref string) (*attachments.Attachment, error)
}

// Options configures an Orchestrator.
type Options struct {
	// ExportRoot is the local directory holding ledgers and attachments.
	ExportRoot string
	// LocalOnly disables remote mirroring.
	LocalOnly bool
	// Now overrides the clock, used for quarantine names.
	Now func() time.Time
}

// Orchestrator runs the pipeline for one entity: fetch, partition, then per
// group merge, render and mirror the ledger, then per record convert and
// mirror the attachment. Failures inside a group or record are recorded and
// the run moves on.
type Orchestrator struct {
	schema      *schema.EntitySchema
	source      source.RecordSource
	attachments AttachmentProcessor
	mirror      *remote.Mirror
	opts        Options

	running atomic.Bool
}

// New creates an orchestrator. mirror may be nil, which implies LocalOnly.
func New(s *schema.EntitySchema, src source.RecordSource, att AttachmentProcessor, mirror *remote.Mirror, opts Options) *Orchestrator {
	if opts.ExportRoot == "" {
		opts.ExportRoot = "exports"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if mirror == nil {
		opts.LocalOnly = true
	}
	return &Orchestrator{schema: s, source: src, attachments: att, mirror: mirror, opts: opts}
}

// Entity returns the entity name this orchestrator syncs.
func (o *Orchestrator) Entity() string {
	return o.schema.Name
}

// Run performs one pass. The returned error is non-nil only when the run
// ended early: the source was unavailable, the schema does not match the
// data, or another run was in progress. Per-group and per-record failures
// are listed in the report.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	s := o.schema
	report := &RunReport{
		RunID:     uuid.New().String(),
		Entity:    s.Name,
		StartedAt: o.opts.Now(),
	}

	log := logger.FromContext(ctx).With().
		Str("entity", s.Name).
		Str("run_id", report.RunID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().Str("collection", s.Collection).Bool("local_only", o.opts.LocalOnly).Msg("Starting sync run")

	rows, err := o.source.Fetch(ctx, s.Collection)
	if err != nil {
		se := syncerr.New(syncerr.SourceUnavailable, err).WithContext(s.Name, "", "")
		report.fail(se)
		report.FinishedAt = o.opts.Now()
		log.Error().Err(err).Msg("Record source unavailable, ending run")
		return report, se
	}

	records := source.Records(rows, s.IDField)
	report.Fetched = len(records)
	if len(records) == 0 {
		report.FinishedAt = o.opts.Now()
		log.Info().Msg("No records found")
		return report, nil
	}

	groups, err := ledger.Partition(ctx, s, records)
	if err != nil {
		se := syncerr.As(err, syncerr.SchemaMisconfigured).WithContext(s.Name, "", "")
		report.fail(se)
		report.FinishedAt = o.opts.Now()
		log.Error().Err(err).Msg("Cannot partition records, ending run")
		return report, se
	}
	report.Groups = len(groups)

	var folders *remote.FolderResolver
	if !o.opts.LocalOnly {
		folders = remote.NewFolderResolver(o.mirror)
	}

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("Run cancelled between groups")
			break
		}
		o.syncGroup(ctx, folders, g, report)
	}

	report.FinishedAt = o.opts.Now()
	log.Info().
		Int("fetched", report.Fetched).
		Int("groups", report.Groups).
		Int("ledgers_rendered", report.LedgersRendered).
		Int("ledgers_uploaded", report.LedgersUploaded).
		Int("attachments_staged", report.AttachmentsStaged).
		Int("attachments_uploaded", report.AttachmentsUploaded).
		Int("attachments_skipped", report.AttachmentsSkipped).
		Int("failures", len(report.Failures)).
		Dur("duration", report.Duration()).
		Msg("Sync run completed")

	return report, nil
}

func (o *Orchestrator) syncGroup(ctx context.Context, folders *remote.FolderResolver, g ledger.Group, report *RunReport) {
	s := o.schema
	key := g.Key
	log := logger.FromContext(ctx).With().
		Str("group_key", key.Group).
		Str("period", key.Period.String()).
		Logger()
	ctx = logger.WithContext(ctx, log)

	var records []domain.Record
	for _, r := range g.Records {
		if r.ID == "" {
			log.Warn().Str("field", s.IDField).Msg("Skipping record without identifier")
			continue
		}
		records = append(records, r)
	}

	path := s.LedgerPath(o.opts.ExportRoot, key)
	existing, err := ledger.Load(path, s)
	if err != nil {
		o.recordFailure(log, report, err, syncerr.MalformedLedger, key, "")
		if moved, qerr := ledger.Quarantine(path, o.opts.Now()); qerr != nil {
			log.Error().Err(qerr).Str("path", path).Msg("Failed to quarantine malformed ledger")
		} else {
			report.Quarantined = append(report.Quarantined, moved)
			log.Warn().Str("path", path).Str("moved_to", moved).Msg("Quarantined malformed ledger, rebuilding from fetched records")
		}
		existing = nil
	}

	merged := ledger.Merge(s, existing, ledger.RowsFromRecords(s, records))

	if err := ledger.Render(path, s, key, records, merged); err != nil {
		o.recordFailure(log, report, err, syncerr.RenderFailure, key, "")
	} else {
		report.LedgersRendered++
		log.Info().
			Str("path", path).
			Int("rows", len(merged.Rows)).
			Str("total", merged.Total.String()).
			Msg("Ledger rendered")
		o.mirrorLedger(ctx, log, folders, key, path, report)
	}

	for _, r := range records {
		o.syncAttachment(ctx, folders, key, r, report)
	}
}

func (o *Orchestrator) mirrorLedger(ctx context.Context, log zerolog.Logger, folders *remote.FolderResolver, key domain.LedgerKey, path string, report *RunReport) {
	if folders == nil {
		return
	}
	s := o.schema

	folderID, err := folders.ResolvePath(ctx, s.LedgerFolderPath(key))
	if err != nil {
		o.recordFailure(log, report, err, syncerr.RemoteMirrorFailure, key, "")
		return
	}
	res, err := o.mirror.UploadIfAbsent(ctx, path, s.LedgerFileName(key), folderID)
	if err != nil {
		o.recordFailure(log, report, err, syncerr.RemoteMirrorFailure, key, "")
		return
	}
	if res == remote.Uploaded {
		report.LedgersUploaded++
	} else {
		report.LedgersSkipped++
	}
}

func (o *Orchestrator) syncAttachment(ctx context.Context, folders *remote.FolderResolver, key domain.LedgerKey, r domain.Record, report *RunReport) {
	s := o.schema
	ref, ok := s.AttachmentRef(r)
	if !ok {
		return
	}
	report.Attachments++

	log := logger.FromContext(ctx).With().Str("record_id", r.ID).Str("ref", ref).Logger()
	ctx = logger.WithContext(ctx, log)
	name := s.AttachmentFileName(key, r)

	var folderID string
	if folders != nil {
		var err error
		folderID, err = folders.ResolvePath(ctx, s.AttachmentFolderPath(key, r))
		if err != nil {
			o.recordFailure(log, report, err, syncerr.RemoteMirrorFailure, key, r.ID)
			return
		}
		exists, err := o.mirror.Exists(ctx, name, folderID)
		if err != nil {
			o.recordFailure(log, report, err, syncerr.RemoteMirrorFailure, key, r.ID)
			return
		}
		if exists {
			report.AttachmentsSkipped++
			log.Debug().Str("remote_name", name).Msg("Attachment already mirrored")
			return
		}
	}

	att, err := o.attachments.Process(ctx, ref)
	if err != nil {
		o.recordFailure(log, report, err, syncerr.AttachmentUnavailable, key, r.ID)
		return
	}
	if att == nil {
		return
	}

	localPath := s.AttachmentPath(o.opts.ExportRoot, key, r)
	if err := writeFile(localPath, att.Document); err != nil {
		o.recordFailure(log, report, err, syncerr.RenderFailure, key, r.ID)
		return
	}
	report.AttachmentsStaged++
	log.Info().Str("path", localPath).Str("format", string(att.Format)).Msg("Attachment staged")

	if folders == nil {
		return
	}
	res, err := o.mirror.UploadIfAbsent(ctx, localPath, name, folderID)
	if err != nil {
		o.recordFailure(log, report, err, syncerr.RemoteMirrorFailure, key, r.ID)
		return
	}
	if res == remote.Uploaded {
		report.AttachmentsUploaded++
	} else {
		report.AttachmentsSkipped++
	}
}

func (o *Orchestrator) recordFailure(log zerolog.Logger, report *RunReport, err error, fallback syncerr.Kind, key domain.LedgerKey, recordID string) {
	se := syncerr.As(err, fallback).WithContext(o.schema.Name, key.String(), recordID)
	report.fail(se)
	log.Warn().Err(se.Err).Str("kind", string(se.Kind)).Msg("Step failed, continuing")
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create attachment dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	return nil
}
