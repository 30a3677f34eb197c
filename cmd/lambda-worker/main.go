package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"maintenance-backend/internal/bootstrap"
	"maintenance-backend/internal/shared/config"
	"maintenance-backend/internal/shared/metrics"
	"maintenance-backend/internal/shared/telemetry"
	"maintenance-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return process(ctx, app.Replayer, event), nil
}

// process replays every record. Only retryable failures are reported back,
// so permanent failures are removed from the queue with the batch.
func process(ctx context.Context, replayer workerproc.Replayer, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncReplayReceived()
		_, err := workerproc.HandleMessage(ctx, replayer, record.Body)
		if err == nil {
			metrics.IncReplayCompleted()
			continue
		}
		metrics.IncReplayFailed()
		fields := map[string]any{
			"sqs_message_id": record.MessageId,
			"error":          err.Error(),
		}
		if workerproc.IsPermanent(err) {
			metrics.IncReplayDropped()
			telemetry.Error("worker.replay.unrecoverable", fields)
			continue
		}
		telemetry.Error("worker.replay.failed", fields)
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
