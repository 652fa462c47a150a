package orchestrator

import (
	"time"

	"github.com/dvloznov/ledger-sync/internal/syncerr"
)

// RunReport summarises one pass of the pipeline for one entity.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Entity     string    `json:"entity"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Fetched int `json:"fetched"`
	Groups  int `json:"groups"`

	LedgersRendered int      `json:"ledgers_rendered"`
	LedgersUploaded int      `json:"ledgers_uploaded"`
	LedgersSkipped  int      `json:"ledgers_skipped"`
	Quarantined     []string `json:"quarantined,omitempty"`

	Attachments         int `json:"attachments"`
	AttachmentsStaged   int `json:"attachments_staged"`
	AttachmentsUploaded int `json:"attachments_uploaded"`
	AttachmentsSkipped  int `json:"attachments_skipped"`

	Failures []*syncerr.Error `json:"failures,omitempty"`
}

// FailureCount returns the number of failures of the given kind.
func (r *RunReport) FailureCount(kind syncerr.Kind) int {
	n := 0
	for _, f := range r.Failures {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) fail(err *syncerr.Error) {
	r.Failures = append(r.Failures, err)
}
