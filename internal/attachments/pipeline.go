package attachments

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/syncerr"
)

// Fetcher returns the raw bytes stored under an object reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Converter turns raw image bytes into canonical document bytes.
type Converter interface {
	Convert(ctx context.Context, name string, raw []byte) ([]byte, error)
}

// Attachment is one record's attachment after processing.
type Attachment struct {
	Ref      string
	Format   Format
	Document []byte
}

// Pipeline fetches, classifies and converts attachments.
type Pipeline struct {
	fetcher   Fetcher
	converter Converter
}

// NewPipeline creates a pipeline reading from fetcher and converting with converter.
func NewPipeline(fetcher Fetcher, converter Converter) *Pipeline {
	return &Pipeline{fetcher: fetcher, converter: converter}
}

// Process returns the canonical document for ref. An empty ref yields nil, nil.
// Fetch and conversion failures are AttachmentUnavailable; the caller skips
// the attachment and moves on.
func (p *Pipeline) Process(ctx context.Context, ref string) (*Attachment, error) {
	if ref == "" {
		return nil, nil
	}
	log := logger.FromContext(ctx)

	raw, err := p.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, syncerr.New(syncerr.AttachmentUnavailable, fmt.Errorf("fetch %q: %w", ref, err))
	}

	format := Classify(ref)
	if format == FormatPDF {
		log.Debug().Str("ref", ref).Int("bytes", len(raw)).Msg("Attachment already a PDF")
		return &Attachment{Ref: ref, Format: format, Document: raw}, nil
	}

	doc, err := p.converter.Convert(ctx, ref, raw)
	if err != nil {
		return nil, syncerr.New(syncerr.AttachmentUnavailable, fmt.Errorf("convert %q: %w", ref, err))
	}
	log.Debug().Str("ref", ref).Int("raw_bytes", len(raw)).Int("pdf_bytes", len(doc)).Msg("Converted image attachment")

	return &Attachment{Ref: ref, Format: format, Document: doc}, nil
}
