package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// JobIDCleanupExpired identifies the scheduled sweep of expired sessions
// and pairing sessions.
const JobIDCleanupExpired = "authbroker.cleanup.expired"

// CleanupRunner is the slice of the broker service the cleanup job needs.
type CleanupRunner interface {
	CleanupExpired(ctx context.Context) error
}

// RetryPolicy bounds requeue behavior so a persistently failing cleanup
// lands in the dead-letter queue instead of looping forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Normalize clamps nack options for the given attempt number.
func (p RetryPolicy) Normalize(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NewCleanupMessage builds the execution message for one cleanup run. The
// idempotency key collapses duplicate enqueues within a scheduler tick.
func NewCleanupMessage(idempotencyKey string) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDCleanupExpired,
		Parameters:     map[string]any{},
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// CleanupEnqueuer pushes cleanup runs onto a go-job queue.
type CleanupEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewCleanupEnqueuer(enqueuer queue.Enqueuer) *CleanupEnqueuer {
	return &CleanupEnqueuer{enqueuer: enqueuer}
}

func (e *CleanupEnqueuer) EnqueueCleanup(ctx context.Context, idempotencyKey string) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return e.enqueuer.Enqueue(ctx, NewCleanupMessage(idempotencyKey))
}

// CleanupConsumer drains cleanup deliveries: each delivery runs one sweep,
// acks on success, and nacks through the retry policy on failure.
type CleanupConsumer struct {
	runner CleanupRunner
	policy RetryPolicy
}

func NewCleanupConsumer(runner CleanupRunner, policy RetryPolicy) *CleanupConsumer {
	return &CleanupConsumer{runner: runner, policy: policy}
}

func (c *CleanupConsumer) Handle(ctx context.Context, delivery queue.Delivery) error {
	return c.HandleAttempt(ctx, delivery, 0)
}

func (c *CleanupConsumer) HandleAttempt(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if c == nil || c.runner == nil {
		return fmt.Errorf("gojob: cleanup runner is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDCleanupExpired {
		return delivery.Nack(ctx, c.policy.Normalize(queue.NackOptions{
			Reason:     "unexpected job id",
			DeadLetter: true,
		}, attempt))
	}
	if err := c.runner.CleanupExpired(ctx); err != nil {
		nackErr := delivery.Nack(ctx, c.policy.Normalize(queue.NackOptions{
			Reason:  err.Error(),
			Requeue: true,
		}, attempt))
		if nackErr != nil {
			return fmt.Errorf("gojob: nack cleanup delivery: %w", nackErr)
		}
		return err
	}
	return delivery.Ack(ctx)
}

// LoggingHook mirrors worker lifecycle events into the broker's log sink.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Info("cleanup job started", "job_id", eventJobID(event), "attempt", event.Attempt)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Info("cleanup job finished", "job_id", eventJobID(event), "duration", event.Duration)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Error("cleanup job failed", "job_id", eventJobID(event), "attempt", event.Attempt, "error", event.Err)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Warn("cleanup job retrying", "job_id", eventJobID(event), "attempt", event.Attempt, "delay", event.Delay)
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return message.JobID
}

var _ worker.Hook = (*LoggingHook)(nil)
