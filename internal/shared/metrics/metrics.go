package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	submissionsTotal           atomic.Uint64
	workOrdersCreatedTotal     atomic.Uint64
	issuesConsolidatedTotal    atomic.Uint64
	workOrdersEscalatedTotal   atomic.Uint64
	materializationFailedTotal atomic.Uint64
	matchLookupFailedTotal     atomic.Uint64
	updateConflictsTotal       atomic.Uint64
	replayJobsReceivedTotal    atomic.Uint64
	replayJobsCompletedTotal   atomic.Uint64
	replayJobsFailedTotal      atomic.Uint64
	replayJobsDroppedTotal     atomic.Uint64

	submissionDuration = newHistogram([]float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000})
)

// IncSubmissions counts a processed checklist submission.
func IncSubmissions() {
	submissionsTotal.Add(1)
}

// AddWorkOrdersCreated counts newly created work orders.
func AddWorkOrdersCreated(n int) {
	addNonNegative(&workOrdersCreatedTotal, n)
}

// AddIssuesConsolidated counts issues appended to existing work orders.
func AddIssuesConsolidated(n int) {
	addNonNegative(&issuesConsolidatedTotal, n)
}

// AddWorkOrdersEscalated counts escalations to high priority.
func AddWorkOrdersEscalated(n int) {
	addNonNegative(&workOrdersEscalatedTotal, n)
}

// AddMaterializationFailed counts items whose write failed.
func AddMaterializationFailed(n int) {
	addNonNegative(&materializationFailedTotal, n)
}

// IncMatchLookupFailed counts similarity lookups that failed open.
func IncMatchLookupFailed() {
	matchLookupFailedTotal.Add(1)
}

// IncUpdateConflict counts optimistic update conflicts, retried or not.
func IncUpdateConflict() {
	updateConflictsTotal.Add(1)
}

// IncReplayReceived increments the replay jobs received counter.
func IncReplayReceived() {
	replayJobsReceivedTotal.Add(1)
}

// IncReplayCompleted increments the replay jobs completed counter.
func IncReplayCompleted() {
	replayJobsCompletedTotal.Add(1)
}

// IncReplayFailed increments the replay jobs failed counter.
func IncReplayFailed() {
	replayJobsFailedTotal.Add(1)
}

// IncReplayDropped counts replay messages deleted without a successful replay.
func IncReplayDropped() {
	replayJobsDroppedTotal.Add(1)
}

// ObserveSubmissionDurationMs records a submission duration in milliseconds.
func ObserveSubmissionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	submissionDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "submissions_total", "Total checklist submissions processed", submissionsTotal.Load())
	writeCounter(&buf, "work_orders_created_total", "Total work orders created", workOrdersCreatedTotal.Load())
	writeCounter(&buf, "issues_consolidated_total", "Total issues consolidated into existing work orders", issuesConsolidatedTotal.Load())
	writeCounter(&buf, "work_orders_escalated_total", "Total work orders escalated to high priority", workOrdersEscalatedTotal.Load())
	writeCounter(&buf, "materialization_failed_total", "Total issues whose work order write failed", materializationFailedTotal.Load())
	writeCounter(&buf, "match_lookup_failed_total", "Total similarity lookups that failed open", matchLookupFailedTotal.Load())
	writeCounter(&buf, "update_conflicts_total", "Total optimistic update conflicts", updateConflictsTotal.Load())
	writeCounter(&buf, "replay_jobs_received_total", "Total offline replay jobs received", replayJobsReceivedTotal.Load())
	writeCounter(&buf, "replay_jobs_completed_total", "Total offline replay jobs completed", replayJobsCompletedTotal.Load())
	writeCounter(&buf, "replay_jobs_failed_total", "Total offline replay jobs failed", replayJobsFailedTotal.Load())
	writeCounter(&buf, "replay_jobs_dropped_total", "Total offline replay jobs dropped as unrecoverable", replayJobsDroppedTotal.Load())
	writeHistogram(&buf, "submission_duration_ms", "Submission processing duration in milliseconds", submissionDuration.Snapshot())
	return buf.String()
}

func addNonNegative(counter *atomic.Uint64, n int) {
	if n > 0 {
		counter.Add(uint64(n))
	}
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMillis returns the elapsed time since start in milliseconds.
func SinceMillis(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
