// internal/monitoring/scheduler.go - sweep loop
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"pingmon/internal/database"
)

const saveTimeout = 30 * time.Second

const (
	resultReachable   = "reachable"
	resultUnreachable = "unreachable"
	resultError       = "error"
)

func (e *Engine) loop(ctx context.Context, r *loopRun) {
	defer func() {
		e.mu.Lock()
		if e.run == r {
			// Ended by ctx rather than Stop.
			e.run = nil
			e.metrics.SetRunning(false)
		}
		e.mu.Unlock()
		close(r.done)
	}()

	for {
		if !e.sweep(ctx, r.stop) {
			return
		}
		if !e.wait(ctx, r.stop, e.Interval()) {
			return
		}
	}
}

// sweep probes every device of one snapshot in order. It reports false when
// a stop request cut it short; the end-of-sweep save is skipped then.
func (e *Engine) sweep(ctx context.Context, stop <-chan struct{}) bool {
	started := time.Now()
	devices := e.registry.List()
	timeout := e.Timeout()

	for i, device := range devices {
		if stopRequested(ctx, stop) {
			logrus.WithFields(logrus.Fields{
				"probed": i,
				"total":  len(devices),
			}).Info("Sweep aborted")
			e.metrics.RecordSweep(false, time.Since(started))
			return false
		}
		e.probeDevice(i, device, timeout)
	}

	e.mu.Lock()
	e.lastSweep = e.now()
	e.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	err := e.registry.Save(saveCtx)
	cancel()
	e.metrics.RecordDatabaseOperation("save", err)
	if err != nil {
		e.saveFailed(err)
	}

	e.metrics.RecordSweep(true, time.Since(started))
	logrus.WithFields(logrus.Fields{
		"devices":  len(devices),
		"duration": time.Since(started),
	}).Debug("Sweep completed")
	return true
}

// probeDevice runs one probe and applies the result. The probe context is
// detached from the stop signal: a started probe always runs to completion or
// its own timeout.
func (e *Engine) probeDevice(index int, device database.Device, timeout time.Duration) {
	logrus.WithFields(logrus.Fields{
		"device":  device.Name,
		"address": device.Address,
	}).Debug("Probing device")

	started := time.Now()
	reachable, err := e.prober.Probe(context.Background(), device.Address, timeout)
	elapsed := time.Since(started)

	status := database.StatusOffline
	result := resultUnreachable
	if err != nil {
		result = resultError
	} else if reachable {
		status = database.StatusOnline
		result = resultReachable
	}
	e.metrics.RecordProbe(result, elapsed)

	now := e.now()
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"device":  device.Name,
			"address": device.Address,
		}).Warn("Probe failed")
		e.publish(Event{
			Kind:       EventDiagnostic,
			Timestamp:  now,
			DeviceID:   device.ID,
			DeviceName: device.Name,
			Address:    device.Address,
			Status:     status,
			Message:    fmt.Sprintf("Probe error for %s (%s): %v", device.Name, device.Address, err),
		})
	}

	updated, transition, err := e.registry.Update(index, device.ID, status, now)
	if errors.Is(err, ErrDeviceGone) {
		logrus.WithField("device", device.Name).Debug("Device removed during probe, result dropped")
		return
	}

	e.metrics.UpdateDeviceStatus(updated.Name, updated.Address, string(updated.Status), transition)

	event := Event{
		Kind:       EventInfo,
		Timestamp:  now,
		DeviceID:   updated.ID,
		DeviceName: updated.Name,
		Address:    updated.Address,
		Status:     updated.Status,
		Message:    fmt.Sprintf("%s (%s): %s", updated.Name, updated.Address, statusLabel(updated.Status)),
	}
	if transition {
		event.Kind = EventTransition
		event.Message = fmt.Sprintf("%s (%s) status changed: %s", updated.Name, updated.Address, statusLabel(updated.Status))
	}
	e.publish(event)
}

// wait pauses for d. It returns false as soon as a stop is requested.
func (e *Engine) wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-e.after(d):
		return true
	}
}

func stopRequested(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
