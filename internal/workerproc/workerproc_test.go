package workerproc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/queue"
	"maintenance-backend/internal/staging"
)

type fakeReplayer struct {
	keys       []string
	requestIDs []string
	result     consolidation.SubmissionResult
	err        error
}

func (f *fakeReplayer) ReplayKey(_ context.Context, key, requestID string) (consolidation.SubmissionResult, error) {
	f.keys = append(f.keys, key)
	f.requestIDs = append(f.requestIDs, requestID)
	return f.result, f.err
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	payload, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(payload)
}

func TestParseMessageErrors(t *testing.T) {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		missing ErrMissingChecklistID
	)
	tests := []struct {
		name   string
		body   string
		target any
	}{
		{"empty", "  ", &empty},
		{"decode", "{", &decode},
		{"missing", `{"requestId":"r-1"}`, &missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, meta, err := ParseMessage(tt.body)
			if !errors.As(err, tt.target) {
				t.Fatalf("unexpected error %v", err)
			}
			if !IsPermanent(err) {
				t.Fatalf("expected permanent error")
			}
			if meta.BodyLen != len(tt.body) {
				t.Fatalf("unexpected meta %+v", meta)
			}
		})
	}
}

func TestHandleMessageUsesStorageKey(t *testing.T) {
	replayer := &fakeReplayer{result: consolidation.SubmissionResult{NewWorkOrders: 1}}
	body := encode(t, queue.Message{ChecklistID: "chk-1", StorageKey: "submissions/custom.json", RequestID: "r-1"})

	result, err := HandleMessage(context.Background(), replayer, body)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.NewWorkOrders != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(replayer.keys) != 1 || replayer.keys[0] != "submissions/custom.json" || replayer.requestIDs[0] != "r-1" {
		t.Fatalf("unexpected replay calls %v %v", replayer.keys, replayer.requestIDs)
	}
}

func TestHandleMessageDerivesKeyFromChecklist(t *testing.T) {
	replayer := &fakeReplayer{}
	body := encode(t, queue.Message{ChecklistID: "chk-7"})
	if _, err := HandleMessage(context.Background(), replayer, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if replayer.keys[0] != "submissions/chk-7.json" {
		t.Fatalf("unexpected key %q", replayer.keys[0])
	}
}

func TestHandleMessageReusesParsedMessage(t *testing.T) {
	replayer := &fakeReplayer{}
	ctx := WithParsedMessage(context.Background(), queue.Message{ChecklistID: "chk-2"})
	if _, err := HandleMessage(ctx, replayer, "ignored"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if replayer.keys[0] != "submissions/chk-2.json" {
		t.Fatalf("unexpected key %q", replayer.keys[0])
	}
}

func TestHandleMessageClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"not staged", fmt.Errorf("wrap: %w", staging.ErrNotStaged), true},
		{"invalid submission", staging.ErrInvalidSubmission, true},
		{"invalid request", &consolidation.ValidationError{Problems: []consolidation.FieldProblem{{Field: "items", Issue: "required"}}}, true},
		{"nothing applied", staging.ErrNothingApplied, false},
		{"store down", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replayer := &fakeReplayer{err: tt.err}
			_, err := HandleMessage(context.Background(), replayer, encode(t, queue.Message{ChecklistID: "chk-1"}))
			var perr ErrProcess
			if !errors.As(err, &perr) {
				t.Fatalf("expected ErrProcess, got %v", err)
			}
			if perr.ChecklistID != "chk-1" {
				t.Fatalf("unexpected checklist id %q", perr.ChecklistID)
			}
			if IsPermanent(err) != tt.permanent {
				t.Fatalf("expected permanent=%v for %v", tt.permanent, err)
			}
		})
	}
}

func TestHandleMessageRequiresReplayer(t *testing.T) {
	if _, err := HandleMessage(context.Background(), nil, "{}"); err == nil {
		t.Fatalf("expected error without replayer")
	}
}
