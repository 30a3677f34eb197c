package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"maintenance-backend/internal/bootstrap"
	"maintenance-backend/internal/shared/config"
	"maintenance-backend/internal/shared/metrics"
	"maintenance-backend/internal/shared/telemetry"
	"maintenance-backend/internal/workerproc"
)

const (
	defaultVisibilitySeconds  = 300
	defaultWorkerConcurrency  = 4
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()

	queueURL := strings.TrimSpace(cfg.WorkOrderQueueURL)
	if queueURL == "" {
		log.Fatal("WO_SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("WO_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("WO_WORKER_CONCURRENCY", defaultWorkerConcurrency)
	shutdownTimeout := time.Duration(envInt("WO_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncReplayReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, sqsClient, queueURL, app.Replayer, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight replays", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight replays")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// handleMessage replays one message. Unrecoverable messages are deleted;
// retryable failures are left for SQS to redeliver.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, replayer workerproc.Replayer, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		var missing workerproc.ErrMissingChecklistID
		switch {
		case errors.As(err, &missing):
			fields["request_id"] = missing.RequestID
			telemetry.Error("worker.replay.missing_checklist_id", fields)
		default:
			fields["error"] = err.Error()
			telemetry.Error("worker.replay.decode_failed", fields)
		}
		if deleteMessage(ctx, client, queueURL, msg, "", "") {
			metrics.IncReplayDropped()
		}
		return
	}

	telemetry.Info("worker.replay.received", baseFields(msg, decoded.ChecklistID, decoded.RequestID))

	result, err := workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), replayer, body)
	if err != nil {
		metrics.IncReplayFailed()
		fields := baseFields(msg, decoded.ChecklistID, decoded.RequestID)
		fields["error"] = err.Error()
		if workerproc.IsPermanent(err) {
			telemetry.Error("worker.replay.unrecoverable", fields)
			if deleteMessage(ctx, client, queueURL, msg, decoded.ChecklistID, decoded.RequestID) {
				metrics.IncReplayDropped()
			}
			return
		}
		telemetry.Error("worker.replay.failed", fields)
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.ChecklistID, decoded.RequestID) {
		fields := baseFields(msg, decoded.ChecklistID, decoded.RequestID)
		fields["new"] = result.NewWorkOrders
		fields["consolidated"] = result.ConsolidatedIssues
		fields["escalated"] = result.Escalated
		fields["failed"] = result.Failed
		telemetry.Info("worker.replay.completed", fields)
		metrics.IncReplayCompleted()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, checklistID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, checklistID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.replay.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, checklistID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.replay.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, checklistID, requestID string) map[string]any {
	fields := map[string]any{
		"checklist_id":   checklistID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	parsed, err := strconv.Atoi(msg.Attributes["ApproximateReceiveCount"])
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}
