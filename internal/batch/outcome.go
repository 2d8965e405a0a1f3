package batch

import (
	"errors"

	"comicvault/internal/lifecycle"
)

// ErrClaimed reports that another worker or process owns a source path.
var ErrClaimed = errors.New("source path already claimed")

// ErrSourceMissing marks records skipped because their file is gone.
var ErrSourceMissing = errors.New("source file missing")

// Outcome is the per-record result of a job.
type Outcome string

const (
	// OutcomeAdvanced means every attempted transition committed.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeGuardRejected means a retryable guard held the record back; the
	// next run tries again.
	OutcomeGuardRejected Outcome = "guard_rejected"
	// OutcomeFatal means the record cannot progress without intervention.
	OutcomeFatal Outcome = "fatal"
)

// Classify maps a stage or commit error to an outcome. Retryable guard
// failures, concurrent transitions and busy claims are deferred; everything
// else, including missing files, unreadable archives, unknown formats and
// commit failures, is fatal for the job.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeAdvanced
	}
	if gf, ok := lifecycle.IsGuardFailure(err); ok {
		if gf.Retryable {
			return OutcomeGuardRejected
		}
		return OutcomeFatal
	}
	if errors.Is(err, lifecycle.ErrConcurrentTransition) || errors.Is(err, ErrClaimed) {
		return OutcomeGuardRejected
	}
	return OutcomeFatal
}
