package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/queue"
	"maintenance-backend/internal/staging"
)

// Replayer runs a staged submission through the consolidation engine.
type Replayer interface {
	ReplayKey(ctx context.Context, key, requestID string) (consolidation.SubmissionResult, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingChecklistID indicates a message without a checklist id or key.
type ErrMissingChecklistID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingChecklistID) Error() string { return "missing checklist id" }

// ErrProcess indicates the replay failed after successful parsing. Retryable
// is false when redelivering the message cannot change the outcome.
type ErrProcess struct {
	ChecklistID string
	RequestID   string
	Retryable   bool
	Err         error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "replay submission"
	}
	return "replay submission: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// IsPermanent reports whether a message should be dropped instead of retried.
func IsPermanent(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		missing ErrMissingChecklistID
		process ErrProcess
	)
	switch {
	case errors.As(err, &empty), errors.As(err, &decode), errors.As(err, &missing):
		return true
	case errors.As(err, &process):
		return !process.Retryable
	}
	return false
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.ChecklistID) == "" && strings.TrimSpace(msg.StorageKey) == "" {
		return msg, meta, ErrMissingChecklistID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses a replay message and replays the staged submission.
func HandleMessage(ctx context.Context, replayer Replayer, body string) (consolidation.SubmissionResult, error) {
	if replayer == nil {
		return consolidation.SubmissionResult{}, errors.New("replayer not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return consolidation.SubmissionResult{}, err
		}
	}

	key := strings.TrimSpace(msg.StorageKey)
	if key == "" {
		if strings.TrimSpace(msg.ChecklistID) == "" {
			return consolidation.SubmissionResult{}, ErrMissingChecklistID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
		}
		var err error
		key, err = staging.StorageKey(msg.ChecklistID)
		if err != nil {
			return consolidation.SubmissionResult{}, ErrProcess{ChecklistID: msg.ChecklistID, RequestID: msg.RequestID, Err: err}
		}
	}

	result, err := replayer.ReplayKey(ctx, key, msg.RequestID)
	if err != nil {
		return result, ErrProcess{
			ChecklistID: msg.ChecklistID,
			RequestID:   msg.RequestID,
			Retryable:   retryable(err),
			Err:         err,
		}
	}
	return result, nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, staging.ErrNotStaged),
		errors.Is(err, staging.ErrInvalidSubmission),
		errors.Is(err, consolidation.ErrInvalidRequest):
		return false
	}
	return true
}
