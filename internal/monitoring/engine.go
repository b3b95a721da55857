// internal/monitoring/engine.go
package monitoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"pingmon/internal/config"
	"pingmon/internal/database"
	"pingmon/internal/metrics"
)

// Engine owns the device registry and the monitor loop. It is the control
// surface used by the web layer: Start, Stop, SetInterval, Add, Remove and
// Snapshot.
type Engine struct {
	registry   *Registry
	prober     Prober
	dispatcher *Dispatcher
	metrics    *metrics.Collector

	// lifecycle serializes Start and Stop so a new loop never overlaps one
	// that is still finishing its probe.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	interval  time.Duration
	timeout   time.Duration
	run       *loopRun
	lastSweep time.Time

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

type loopRun struct {
	stop chan struct{}
	done chan struct{}
}

// EngineStatus is a summary of the engine for display.
type EngineStatus struct {
	Running   bool      `json:"running"`
	Interval  int       `json:"interval_seconds"`
	Timeout   int       `json:"timeout_seconds"`
	Prober    string    `json:"prober"`
	Devices   int       `json:"devices"`
	Online    int       `json:"online"`
	Offline   int       `json:"offline"`
	Unknown   int       `json:"unknown"`
	LastSweep time.Time `json:"last_sweep,omitempty"`
}

func NewEngine(cfg *config.Config, store database.Store, prober Prober, metricsCollector *metrics.Collector) (*Engine, error) {
	if prober == nil {
		var err error
		if prober, err = NewProber(cfg.Monitoring.Prober); err != nil {
			return nil, err
		}
	}

	engine := &Engine{
		registry:   NewRegistry(store),
		prober:     prober,
		dispatcher: NewDispatcher(cfg.Monitoring.EventBuffer),
		metrics:    metricsCollector,
		interval:   cfg.Monitoring.Interval,
		timeout:    cfg.Monitoring.Timeout,
		now:        time.Now,
		after:      time.After,
	}
	engine.registry.OnSave(engine.recordSave)

	logrus.WithFields(logrus.Fields{
		"prober":   prober.Name(),
		"interval": engine.interval,
		"timeout":  engine.timeout,
	}).Info("Initialized monitoring engine")

	return engine, nil
}

// LoadDevices fills the registry from the store. A load failure leaves the
// registry empty and is reported as a diagnostic event, never returned.
// When the store holds nothing, seed devices from the configuration are added.
func (e *Engine) LoadDevices(ctx context.Context, seed []config.DeviceConfig) {
	err := e.registry.Load(ctx)
	e.metrics.RecordDatabaseOperation("load", err)
	if err != nil {
		logrus.WithError(err).Error("Starting with an empty device list")
		e.publish(Event{
			Kind:    EventDiagnostic,
			Message: fmt.Sprintf("Device list could not be loaded: %v", err),
		})
	}

	if e.registry.Len() == 0 && len(seed) > 0 {
		for _, d := range seed {
			if _, err := e.Add(ctx, d.Name, d.Address); err != nil {
				logrus.WithError(err).WithField("device", d.Name).Warn("Skipping configured device")
			}
		}
	}

	e.metrics.SetRegisteredDevices(e.registry.Len())
	logrus.WithField("devices", e.registry.Len()).Info("Loaded devices")
}

// Start launches the monitor loop. It is a no-op while already running. The
// loop also ends when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.run != nil {
		e.mu.Unlock()
		return
	}
	r := &loopRun{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	e.run = r
	interval := e.interval
	e.mu.Unlock()

	logrus.WithField("interval", interval).Info("Starting monitoring")
	e.metrics.SetRunning(true)
	e.publish(Event{Kind: EventInfo, Message: "Monitoring started"})

	go e.loop(ctx, r)
}

// Stop requests the loop to end and waits for it. An in-flight probe is
// allowed to finish, so Stop may take up to the probe timeout. No-op when
// already stopped.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	r := e.run
	e.run = nil
	e.mu.Unlock()

	if r == nil {
		return
	}

	logrus.Info("Stopping monitoring")
	close(r.stop)
	<-r.done

	e.metrics.SetRunning(false)
	e.publish(Event{Kind: EventInfo, Message: "Monitoring stopped"})
}

func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.run != nil
}

// Close stops monitoring and flushes pending events to subscribers.
func (e *Engine) Close() {
	e.Stop()
	e.dispatcher.Close()
}

// SetInterval changes the pause between sweeps. The new value applies from
// the next pause on.
func (e *Engine) SetInterval(seconds int) error {
	if seconds < config.MinIntervalSeconds || seconds > config.MaxIntervalSeconds {
		return fmt.Errorf("%w: %d seconds (must be %d-%d)", ErrOutOfRange, seconds, config.MinIntervalSeconds, config.MaxIntervalSeconds)
	}
	interval := time.Duration(seconds) * time.Second

	e.mu.Lock()
	if interval <= e.timeout {
		timeout := e.timeout
		e.mu.Unlock()
		return fmt.Errorf("%w: %d seconds does not exceed probe timeout %s", ErrOutOfRange, seconds, timeout)
	}
	e.interval = interval
	e.mu.Unlock()

	logrus.WithField("interval", interval).Info("Updated sweep interval")
	e.publish(Event{
		Kind:    EventInfo,
		Message: fmt.Sprintf("Sweep interval set to %d seconds", seconds),
	})
	return nil
}

func (e *Engine) Interval() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.interval
}

func (e *Engine) Timeout() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.timeout
}

// Add registers a device. It may run concurrently with a sweep; the device
// is probed from the next sweep on.
func (e *Engine) Add(ctx context.Context, name, address string) (database.Device, error) {
	device, err := e.registry.Add(ctx, name, address)
	if err != nil {
		return database.Device{}, err
	}

	logrus.WithFields(logrus.Fields{
		"device":  device.Name,
		"address": device.Address,
	}).Info("Device added")
	e.metrics.SetRegisteredDevices(e.registry.Len())
	e.publish(Event{
		Kind:       EventInfo,
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Address:    device.Address,
		Status:     device.Status,
		Message:    fmt.Sprintf("Device added: %s (%s)", device.Name, device.Address),
	})
	return device, nil
}

// Remove deletes the device at index in Snapshot order.
func (e *Engine) Remove(ctx context.Context, index int) (database.Device, error) {
	device, err := e.registry.Remove(ctx, index)
	if err != nil {
		return database.Device{}, err
	}

	logrus.WithFields(logrus.Fields{
		"device":  device.Name,
		"address": device.Address,
	}).Info("Device removed")
	e.metrics.SetRegisteredDevices(e.registry.Len())
	e.metrics.ForgetDevice(device.Name, device.Address)
	e.publish(Event{
		Kind:       EventInfo,
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Address:    device.Address,
		Status:     device.Status,
		Message:    fmt.Sprintf("Device removed: %s (%s)", device.Name, device.Address),
	})
	return device, nil
}

func (e *Engine) Snapshot() []database.Device {
	return e.registry.List()
}

// Subscribe registers sink for all future events.
func (e *Engine) Subscribe(sink EventSink) func() {
	return e.dispatcher.Subscribe(sink)
}

func (e *Engine) Status() EngineStatus {
	devices := e.registry.List()

	e.mu.RLock()
	status := EngineStatus{
		Running:   e.run != nil,
		Interval:  int(e.interval / time.Second),
		Timeout:   int(e.timeout / time.Second),
		Prober:    e.prober.Name(),
		Devices:   len(devices),
		LastSweep: e.lastSweep,
	}
	e.mu.RUnlock()

	for _, d := range devices {
		switch d.Status {
		case database.StatusOnline:
			status.Online++
		case database.StatusOffline:
			status.Offline++
		default:
			status.Unknown++
		}
	}
	return status
}

func (e *Engine) publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.dispatcher.Publish(event)
}

// recordSave is the registry's hook for saves after Add and Remove.
func (e *Engine) recordSave(err error) {
	e.metrics.RecordDatabaseOperation("save", err)
	if err != nil {
		e.saveFailed(err)
	}
}

func (e *Engine) saveFailed(err error) {
	logrus.WithError(err).Error("Failed to persist device list")
	e.publish(Event{
		Kind:    EventDiagnostic,
		Message: fmt.Sprintf("Device list could not be saved: %v", err),
	})
}

func statusLabel(status database.DeviceStatus) string {
	return strings.ToUpper(string(status))
}
