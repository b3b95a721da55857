// internal/metrics/prometheus.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pingmon_probe_duration_seconds",
			Help:    "Time spent executing reachability probes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pingmon_probes_total",
			Help: "Total number of probes executed",
		},
		[]string{"result"},
	)

	DeviceStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pingmon_device_status",
			Help: "Current status of devices (0=Unknown, 1=Online, 2=Offline)",
		},
		[]string{"device", "address"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pingmon_status_transitions_total",
			Help: "Device status transitions by new status",
		},
		[]string{"status"},
	)

	SweepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pingmon_sweeps_total",
			Help: "Sweeps by outcome (completed or aborted)",
		},
		[]string{"outcome"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pingmon_sweep_duration_seconds",
			Help:    "Wall time of completed sweeps",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	RegisteredDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pingmon_registered_devices",
			Help: "Number of devices in the registry",
		},
	)

	MonitorRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pingmon_monitor_running",
			Help: "1 while the monitor loop is running",
		},
	)

	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pingmon_database_operations_total",
			Help: "Total database operations performed",
		},
		[]string{"operation", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pingmon_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

// Collector is the engine's and web server's handle on the metrics above.
// A nil *Collector records nothing.
type Collector struct{}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) RecordProbe(result string, duration time.Duration) {
	if c == nil {
		return
	}
	ProbeDuration.WithLabelValues(result).Observe(duration.Seconds())
	ProbeTotal.WithLabelValues(result).Inc()
}

func (c *Collector) UpdateDeviceStatus(device, address, status string, transition bool) {
	if c == nil {
		return
	}
	DeviceStatus.WithLabelValues(device, address).Set(statusValue(status))
	if transition {
		Transitions.WithLabelValues(status).Inc()
	}
}

// ForgetDevice drops the status series of a removed device.
func (c *Collector) ForgetDevice(device, address string) {
	if c == nil {
		return
	}
	DeviceStatus.DeleteLabelValues(device, address)
}

func (c *Collector) RecordSweep(completed bool, duration time.Duration) {
	if c == nil {
		return
	}
	if !completed {
		SweepTotal.WithLabelValues("aborted").Inc()
		return
	}
	SweepTotal.WithLabelValues("completed").Inc()
	SweepDuration.Observe(duration.Seconds())
}

func (c *Collector) SetRegisteredDevices(n int) {
	if c == nil {
		return
	}
	RegisteredDevices.Set(float64(n))
}

func (c *Collector) SetRunning(running bool) {
	if c == nil {
		return
	}
	if running {
		MonitorRunning.Set(1)
	} else {
		MonitorRunning.Set(0)
	}
}

func (c *Collector) RecordDatabaseOperation(operation string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperations.WithLabelValues(operation, status).Inc()
}

func (c *Collector) RecordWebSocketConnection(delta int) {
	if c == nil {
		return
	}
	WebSocketConnections.Add(float64(delta))
}

func statusValue(status string) float64 {
	switch status {
	case "online":
		return 1
	case "offline":
		return 2
	default:
		return 0
	}
}
