package consolidation

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrMatchLookupFailed = errors.New("match lookup failed")
)

const (
	WarningMatchLookupFailed   = "match_lookup_failed"
	ErrorCodeMaterialization   = "materialization_failed"
	ErrorCodeUpdateConflict    = "update_conflict"
	ErrorCodeWorkOrderNotFound = "work_order_not_found"
	ErrorCodeDuplicate         = "duplicate_record"
)

// ValidationError lists every problem found in a request.
type ValidationError struct {
	Problems []FieldProblem
}

// FieldProblem names one invalid field.
type FieldProblem struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return ErrInvalidRequest.Error()
	}
	return ErrInvalidRequest.Error() + ": " + e.Problems[0].Field + " " + e.Problems[0].Issue
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

func (e *ValidationError) add(field, issue string) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Issue: issue})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
