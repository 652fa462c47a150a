package syncerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure raised by one step of a sync run.
type Kind string

const (
	// SourceUnavailable means the record fetch failed. Ends the run for the entity.
	SourceUnavailable Kind = "source_unavailable"
	// SchemaMisconfigured means the entity schema does not match the fetched data.
	SchemaMisconfigured Kind = "schema_misconfigured"
	// MalformedLedger means an existing ledger artifact could not be parsed.
	MalformedLedger Kind = "malformed_ledger"
	// AttachmentUnavailable means one attachment could not be fetched or converted.
	AttachmentUnavailable Kind = "attachment_unavailable"
	// RemoteMirrorFailure means folder resolution or upload failed.
	RemoteMirrorFailure Kind = "remote_mirror_failure"
	// RenderFailure means the ledger artifact could not be written.
	RenderFailure Kind = "render_failure"
)

// Fatal reports whether a failure of this kind ends the run for its entity.
func (k Kind) Fatal() bool {
	return k == SourceUnavailable || k == SchemaMisconfigured
}

// Error is a step failure carrying enough context to diagnose it after the fact.
type Error struct {
	Kind     Kind
	Entity   string
	Key      string
	RecordID string
	Err      error
}

// New wraps err as a failure of the given kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf formats a failure of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Entity != "" {
		b.WriteString(" entity=" + e.Entity)
	}
	if e.Key != "" {
		b.WriteString(" key=" + e.Key)
	}
	if e.RecordID != "" {
		b.WriteString(" record=" + e.RecordID)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the underlying error text without the kind prefix.
func (e *Error) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

type errorJSON struct {
	Kind     Kind   `json:"kind"`
	Entity   string `json:"entity,omitempty"`
	Key      string `json:"key,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// MarshalJSON encodes the failure with its message, as served in run reports.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(errorJSON{
		Kind:     e.Kind,
		Entity:   e.Entity,
		Key:      e.Key,
		RecordID: e.RecordID,
		Message:  e.Message(),
	})
}

// UnmarshalJSON restores a failure encoded by MarshalJSON.
func (e *Error) UnmarshalJSON(data []byte) error {
	var v errorJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = Error{Kind: v.Kind, Entity: v.Entity, Key: v.Key, RecordID: v.RecordID}
	if v.Message != "" {
		e.Err = errors.New(v.Message)
	}
	return nil
}

// WithContext returns a copy annotated with entity, ledger key and record id.
func (e *Error) WithContext(entity, key, recordID string) *Error {
	cp := *e
	if entity != "" {
		cp.Entity = entity
	}
	if key != "" {
		cp.Key = key
	}
	if recordID != "" {
		cp.RecordID = recordID
	}
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As converts err into an *Error, classifying unknown errors with the fallback kind.
func As(err error, fallback Kind) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return New(fallback, err)
}
