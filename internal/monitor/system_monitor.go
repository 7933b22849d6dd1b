// Package monitor provides system resource monitoring with threshold-based
// notifications, published on the engine's event bus so a headless
// deployment can alert without a UI.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/gndl/talkgraph/internal/conf"
	"github.com/gndl/talkgraph/internal/events"
	"github.com/gndl/talkgraph/internal/logging"
)

func logger() *slog.Logger {
	return logging.ForService("monitor")
}

// ResourceType identifies the kind of system resource being monitored
type ResourceType string

const (
	ResourceCPU    ResourceType = "cpu"
	ResourceMemory ResourceType = "memory"
	ResourceDisk   ResourceType = "disk"
)

const (
	defaultCriticalResendInterval = 30 * time.Minute
	defaultHysteresisPercent      = 5.0
	stateKeySeparator             = "|"
)

// AlertState tracks the current alert state for a resource
type AlertState struct {
	InWarning         bool
	InCritical        bool
	LastValue         float64
	LastCheck         time.Time
	LastNotifiedAt    time.Time
	CriticalStartTime time.Time
}

// SystemMonitor polls CPU, memory, and disk usage on an interval and
// publishes a ResourceEvent on the event bus whenever a threshold is
// crossed, with hysteresis before a recovery event fires.
type SystemMonitor struct {
	config         *conf.Settings
	interval       time.Duration
	alertStates    map[string]*AlertState
	validatedPaths map[string]bool
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// NewSystemMonitor creates a monitor from the engine's Monitor settings.
func NewSystemMonitor(config *conf.Settings) *SystemMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	interval := 30 * time.Second
	if config.Monitor.IntervalSeconds > 0 {
		interval = time.Duration(config.Monitor.IntervalSeconds) * time.Second
	}

	_, autoDetected, merged := GetMonitoringPathsInfo(config)
	config.Monitor.DiskPaths = merged

	logger().Info("system monitor created",
		"enabled", config.Monitor.Enabled,
		"interval", interval,
		"auto_detected_paths", autoDetected,
		"monitored_paths", merged,
	)

	return &SystemMonitor{
		config:         config,
		interval:       interval,
		alertStates:    make(map[string]*AlertState),
		validatedPaths: make(map[string]bool),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start begins the monitoring loop in the background.
func (m *SystemMonitor) Start() {
	if !m.config.Monitor.Enabled {
		logger().Warn("system monitoring disabled in configuration")
		return
	}

	logger().Info("starting system resource monitoring", "interval", m.interval)
	m.wg.Add(1)
	go m.loop()
}

// Stop halts the monitoring loop and waits for it to exit.
func (m *SystemMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *SystemMonitor) loop() {
	defer m.wg.Done()

	m.checkAll()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAll()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *SystemMonitor) checkAll() {
	m.checkCPU()
	m.checkMemory()
	m.checkDisk()
}

func (m *SystemMonitor) checkCPU() {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		if err != nil {
			logger().Error("failed to read CPU usage", "error", err)
		}
		return
	}
	m.checkThresholds(ResourceCPU, percents[0],
		m.config.Monitor.CPUWarnPercent, m.config.Monitor.CPUCritPercent, "")
}

func (m *SystemMonitor) checkMemory() {
	info, err := mem.VirtualMemory()
	if err != nil {
		logger().Error("failed to read memory usage", "error", err)
		return
	}
	m.checkThresholds(ResourceMemory, info.UsedPercent,
		m.config.Monitor.MemoryWarnPercent, m.config.Monitor.MemoryCritPercent, "")
}

func (m *SystemMonitor) checkDisk() {
	paths := m.config.Monitor.DiskPaths
	if len(paths) == 0 {
		paths = []string{"/"}
	}

	groups, err := groupPathsByMountPoint(paths)
	if err != nil {
		for _, path := range paths {
			m.checkDiskPath(path)
		}
		return
	}

	for _, group := range groups {
		m.checkDiskGroup(group)
	}
}

func (m *SystemMonitor) checkDiskGroup(group MountGroup) {
	if !m.validatePath(group.MountPoint) {
		return
	}

	usage, err := disk.Usage(group.MountPoint)
	if err != nil {
		logger().Error("failed to read disk usage", "mount_point", group.MountPoint, "error", err)
		return
	}

	m.checkThresholdsWithGroup(usage.UsedPercent, group)
}

func (m *SystemMonitor) checkDiskPath(path string) {
	if !m.validatePath(path) {
		return
	}

	usage, err := disk.Usage(path)
	if err != nil {
		logger().Error("failed to read disk usage", "path", path, "error", err)
		return
	}

	m.checkThresholds(ResourceDisk, usage.UsedPercent,
		m.config.Monitor.DiskWarnPercent, m.config.Monitor.DiskCritPercent, path)
}

func (m *SystemMonitor) validatePath(path string) bool {
	m.mu.RLock()
	validated, exists := m.validatedPaths[path]
	m.mu.RUnlock()
	if exists {
		return validated
	}

	_, err := os.Stat(path)
	ok := err == nil
	if !ok {
		logger().Error("monitored path is not accessible", "path", path, "error", err)
	}

	m.mu.Lock()
	m.validatedPaths[path] = ok
	m.mu.Unlock()
	return ok
}

func (m *SystemMonitor) stateFor(resource ResourceType, key string) *AlertState {
	stateKey := string(resource)
	if key != "" {
		stateKey = fmt.Sprintf("%s%s%s", resource, stateKeySeparator, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	state, exists := m.alertStates[stateKey]
	if !exists {
		state = &AlertState{}
		m.alertStates[stateKey] = state
	}
	return state
}

func (m *SystemMonitor) hysteresis() float64 {
	if m.config.Monitor.HysteresisPercent > 0 {
		return m.config.Monitor.HysteresisPercent
	}
	return defaultHysteresisPercent
}

func (m *SystemMonitor) resendInterval() time.Duration {
	if m.config.Monitor.CriticalResendMinutes > 0 {
		return time.Duration(m.config.Monitor.CriticalResendMinutes) * time.Minute
	}
	return defaultCriticalResendInterval
}

// checkThresholds evaluates current usage against warning/critical
// thresholds for a single path (or the whole-resource key when path is "").
func (m *SystemMonitor) checkThresholds(resource ResourceType, current, warn, crit float64, path string) {
	state := m.stateFor(resource, path)
	state.LastValue = current
	state.LastCheck = time.Now()

	switch {
	case current >= crit:
		if !state.InCritical || time.Since(state.LastNotifiedAt) > m.resendInterval() {
			m.publish(resource, current, crit, events.SeverityCritical, path, "")
			state.InCritical = true
			state.InWarning = true
			state.CriticalStartTime = time.Now()
			state.LastNotifiedAt = time.Now()
		}
	case current >= warn:
		if !state.InWarning {
			m.publish(resource, current, warn, events.SeverityWarning, path, "")
			state.InWarning = true
			state.LastNotifiedAt = time.Now()
		}
		if state.InCritical && current < crit-m.hysteresis() {
			m.publishRecovery(resource, current, state, path, "")
			state.InCritical = false
		}
	default:
		if state.InWarning && current < warn-m.hysteresis() {
			m.publishRecovery(resource, current, state, path, "")
			state.InWarning = false
			state.InCritical = false
		}
	}
}

func (m *SystemMonitor) checkThresholdsWithGroup(current float64, group MountGroup) {
	state := m.stateFor(ResourceDisk, group.MountPoint)
	state.LastValue = current
	state.LastCheck = time.Now()

	warn, crit := m.config.Monitor.DiskWarnPercent, m.config.Monitor.DiskCritPercent

	switch {
	case current >= crit:
		if !state.InCritical || time.Since(state.LastNotifiedAt) > m.resendInterval() {
			m.publish(ResourceDisk, current, crit, events.SeverityCritical, group.MountPoint, fmt.Sprintf("%v", group.Paths))
			state.InCritical = true
			state.InWarning = true
			state.CriticalStartTime = time.Now()
			state.LastNotifiedAt = time.Now()
		}
	case current >= warn:
		if !state.InWarning {
			m.publish(ResourceDisk, current, warn, events.SeverityWarning, group.MountPoint, fmt.Sprintf("%v", group.Paths))
			state.InWarning = true
			state.LastNotifiedAt = time.Now()
		}
		if state.InCritical && current < crit-m.hysteresis() {
			m.publishRecovery(ResourceDisk, current, state, group.MountPoint, fmt.Sprintf("%v", group.Paths))
			state.InCritical = false
		}
	default:
		if state.InWarning && current < warn-m.hysteresis() {
			m.publishRecovery(ResourceDisk, current, state, group.MountPoint, fmt.Sprintf("%v", group.Paths))
			state.InWarning = false
			state.InCritical = false
		}
	}
}

func (m *SystemMonitor) publish(resource ResourceType, current, threshold float64, severity, path, affected string) {
	logger().Warn("resource threshold exceeded",
		"resource", string(resource), "current", current, "threshold", threshold, "severity", severity, "path", path)

	bus := events.GetEventBus()
	if bus == nil {
		return
	}

	var ev events.ResourceEvent
	if path != "" {
		ev = events.NewResourceEventWithPath(string(resource), current, threshold, severity, path)
	} else {
		ev = events.NewResourceEvent(string(resource), current, threshold, severity)
	}
	if !bus.TryPublishResource(ev) {
		logger().Debug("resource event dropped, bus has no consumers or is full")
	}
}

func (m *SystemMonitor) publishRecovery(resource ResourceType, current float64, state *AlertState, path, affected string) {
	var duration time.Duration
	if !state.CriticalStartTime.IsZero() {
		duration = time.Since(state.CriticalStartTime)
		state.CriticalStartTime = time.Time{}
	}

	logger().Info("resource usage recovered",
		"resource", string(resource), "current", current, "path", path, "duration", duration)

	bus := events.GetEventBus()
	if bus == nil {
		return
	}

	var ev events.ResourceEvent
	if path != "" {
		ev = events.NewResourceEventWithPath(string(resource), current, 0, events.SeverityRecovery, path)
	} else {
		ev = events.NewResourceEvent(string(resource), current, 0, events.SeverityRecovery)
	}
	if meta := ev.GetMetadata(); meta != nil && duration > 0 {
		meta["duration"] = duration.String()
	}
	bus.TryPublishResource(ev)
}

// GetResourceStatus returns a snapshot of every tracked resource's alert state.
func (m *SystemMonitor) GetResourceStatus() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]any, len(m.alertStates))
	for key, state := range m.alertStates {
		status[key] = map[string]any{
			"current_value": fmt.Sprintf("%.1f%%", state.LastValue),
			"in_warning":     state.InWarning,
			"in_critical":    state.InCritical,
			"last_check":     state.LastCheck.Format(time.RFC3339),
		}
	}
	return status
}

// TriggerCheck runs an immediate out-of-band resource check.
func (m *SystemMonitor) TriggerCheck() {
	if !m.config.Monitor.Enabled {
		return
	}
	m.checkAll()
}

// GetMonitoredPaths returns the disk paths currently being monitored.
func (m *SystemMonitor) GetMonitoredPaths() []string {
	return m.config.Monitor.DiskPaths
}
