package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// metricTagKeys are the redacted-field keys promoted to metric tags.
var metricTagKeys = []string{"provider", "user_id", "tool", "pairing_code"}

// observeOperation emits the per-operation counter, duration histogram, and
// a structured log line. Fields pass through the redaction scrub first, so
// callers may include anything they already hold.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	duration := time.Since(startedAt)

	status := "success"
	if err != nil {
		status = "failure"
	}

	scrubbed := RedactSensitiveMap(fields)
	scrubbed["event_type"] = operation
	scrubbed["status"] = status
	scrubbed["duration_ms"] = duration.Milliseconds()
	if err != nil {
		scrubbed["error"] = err.Error()
	}

	s.emitMetrics(ctx, operation, status, duration, scrubbed)

	if err != nil {
		s.logError(ctx, operation+" failed", scrubbed)
		return
	}
	s.logInfo(ctx, operation+" succeeded", scrubbed)
}

func (s *Service) emitMetrics(ctx context.Context, operation, status string, duration time.Duration, fields map[string]any) {
	if s.metricsRecorder == nil {
		return
	}
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range metricTagKeys {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		if value := strings.TrimSpace(fmt.Sprint(raw)); value != "" {
			tags[key] = value
		}
	}
	s.metricsRecorder.IncCounter(ctx, "authbroker."+operation+".total", 1, cloneTags(tags))
	s.metricsRecorder.ObserveHistogram(ctx, "authbroker."+operation+".duration_ms", float64(duration.Milliseconds()), cloneTags(tags))
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	if logger := s.fieldLogger(ctx, fields); logger != nil {
		logger.Info(message, flattenFields(fields)...)
	}
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	if logger := s.fieldLogger(ctx, fields); logger != nil {
		logger.Error(message, flattenFields(fields)...)
	}
}

// fieldLogger binds the request context and, when the backend supports it,
// the structured fields themselves.
func (s *Service) fieldLogger(ctx context.Context, fields map[string]any) Logger {
	if s == nil || s.logger == nil {
		return nil
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fl, ok := logger.(FieldsLogger); ok {
		logger = fl.WithFields(cloneFields(fields))
	}
	return logger
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

// flattenFields renders a field map as sorted key/value pairs for the
// variadic logger calls, keeping log lines deterministic.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	if operation == "" {
		return "unknown"
	}
	return operation
}
