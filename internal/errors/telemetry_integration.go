// Package errors - telemetry integration (optional)
package errors

import (
	"sync"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
)

func init() {
	hasActiveReporting.Store(false)
}

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry. It sends every
// error handed to it and does not filter by category or priority; nothing
// outside the tests installs one with SetTelemetryReporter.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled reports whether this reporter is active
func (r *SentryReporter) IsEnabled() bool {
	return r.enabled
}

// ReportError sends an enhanced error to Sentry with its category, priority
// and context attached as tags/extra data.
func (r *SentryReporter) ReportError(ee *EnhancedError) {
	if !r.enabled || ee == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for k, v := range ee.GetContext() {
			scope.SetExtra(k, v)
		}

		event := sentry.NewEvent()
		event.Message = ee.GetMessage()
		event.Level = sentry.LevelError

		exception := sentry.Exception{
			Type:  string(ee.Category),
			Value: ee.GetMessage(),
		}
		event.Exception = []sentry.Exception{exception}

		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// ErrorHook is a callback invoked for each reported error while no event
// publisher is installed (see reportToTelemetryLegacy); registering one
// turns reporting on even when no telemetry reporter is enabled.
type ErrorHook func(ee *EnhancedError)

var globalTelemetryReporter TelemetryReporter

var (
	errorHooks         []ErrorHook
	errorHooksMutex    sync.RWMutex
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter sets the global telemetry reporter
func SetTelemetryReporter(reporter TelemetryReporter) {
	globalTelemetryReporter = reporter
	updateActiveReportingStatus()
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	return globalTelemetryReporter
}

// AddErrorHook adds a hook function that will be called when errors are reported
func AddErrorHook(hook ErrorHook) {
	errorHooksMutex.Lock()
	errorHooks = append(errorHooks, hook)
	errorHooksMutex.Unlock()
	updateActiveReportingStatus()
}

// ClearErrorHooks removes all error hooks
func ClearErrorHooks() {
	errorHooksMutex.Lock()
	errorHooks = nil
	errorHooksMutex.Unlock()
	updateActiveReportingStatus()
}

func updateActiveReportingStatus() {
	errorHooksMutex.RLock()
	hooksExist := len(errorHooks) > 0
	errorHooksMutex.RUnlock()

	telemetryActive := globalTelemetryReporter != nil && globalTelemetryReporter.IsEnabled()
	hasActiveReporting.Store(hooksExist || telemetryActive)
}

// reportToTelemetryLegacy reports an error synchronously, used when the
// event bus has not been initialized yet.
func reportToTelemetryLegacy(ee *EnhancedError) {
	if !hasActiveReporting.Load() {
		return
	}

	if globalTelemetryReporter != nil && globalTelemetryReporter.IsEnabled() {
		globalTelemetryReporter.ReportError(ee)
	}

	errorHooksMutex.RLock()
	hooksExist := len(errorHooks) > 0
	if !hooksExist {
		errorHooksMutex.RUnlock()
		return
	}
	hooks := make([]ErrorHook, len(errorHooks))
	copy(hooks, errorHooks)
	errorHooksMutex.RUnlock()

	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			hook(ee)
		}()
	}
}
