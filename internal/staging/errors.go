package staging

import "errors"

var (
	// ErrNotStaged means no submission blob exists for the checklist.
	ErrNotStaged = errors.New("submission not staged")
	// ErrInvalidSubmission means the submission cannot be keyed or decoded.
	ErrInvalidSubmission = errors.New("invalid staged submission")
	// ErrNothingApplied means every item of a replay failed with a retryable
	// cause, so replaying the whole submission again is safe.
	ErrNothingApplied = errors.New("replay applied no items")
)
