package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-auth-broker/core"
)

// Component names used by the broker packages when resolving named loggers.
const (
	ComponentBroker  = "auth-broker"
	ComponentSession = "auth-broker-session"
	ComponentFlow    = "auth-broker-flow"
	ComponentCleanup = "auth-broker-cleanup"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ResolveComponent resolves a named logger for one broker component,
// scrubbing nothing itself; pair it with RedactFields for sensitive payloads.
func ResolveComponent(component string, provider glog.LoggerProvider, logger glog.Logger) glog.Logger {
	_, resolved := glog.Resolve(component, provider, logger)
	return glog.Ensure(resolved)
}

// RedactFields scrubs token-bearing keys before they reach a log sink.
func RedactFields(fields map[string]any) map[string]any {
	return core.RedactSensitiveMap(fields)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the cleanup component logger and returns the
// go-job equivalents alongside, so scheduled cleanup logs land in the same
// sink as the broker's own output.
func ResolveForJob(
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := glog.Resolve(ComponentCleanup, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
