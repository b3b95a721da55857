// internal/monitoring/events.go
package monitoring

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"pingmon/internal/database"
)

type EventKind string

const (
	EventInfo       EventKind = "info"
	EventTransition EventKind = "transition"
	EventDiagnostic EventKind = "diagnostic"
)

type Event struct {
	Kind       EventKind             `json:"kind"`
	Timestamp  time.Time             `json:"timestamp"`
	DeviceID   string                `json:"device_id,omitempty"`
	DeviceName string                `json:"device_name,omitempty"`
	Address    string                `json:"address,omitempty"`
	Status     database.DeviceStatus `json:"status,omitempty"`
	Message    string                `json:"message"`
}

// EventSink receives events in publish order.
type EventSink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) HandleEvent(e Event) { f(e) }

const DefaultEventBuffer = 256

// Dispatcher delivers published events to every subscriber from a single
// goroutine, in publish order. The queue is bounded and Publish blocks while
// it is full; nothing is dropped until Close.
type Dispatcher struct {
	queue chan Event
	done  chan struct{}

	// closeMu guards closed and sends on queue, sinkMu the subscriber set.
	// A Publish blocked on a full queue must never hold sinkMu.
	closeMu sync.RWMutex
	closed  bool

	sinkMu sync.RWMutex
	sinks  map[int]EventSink
	order  []int
	nextID int
}

func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	d := &Dispatcher{
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
		sinks: make(map[int]EventSink),
	}
	go d.run()
	return d
}

// Subscribe registers sink and returns a function removing it again.
func (d *Dispatcher) Subscribe(sink EventSink) func() {
	d.sinkMu.Lock()
	id := d.nextID
	d.nextID++
	d.sinks[id] = sink
	d.order = append(d.order, id)
	d.sinkMu.Unlock()

	return func() {
		d.sinkMu.Lock()
		defer d.sinkMu.Unlock()
		if _, ok := d.sinks[id]; !ok {
			return
		}
		delete(d.sinks, id)
		for i, v := range d.order {
			if v == id {
				d.order = append(d.order[:i:i], d.order[i+1:]...)
				break
			}
		}
	}
}

// Publish queues e, blocking while the queue is full.
func (d *Dispatcher) Publish(e Event) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed {
		logrus.WithFields(logrus.Fields{
			"kind":    e.Kind,
			"message": e.Message,
		}).Warn("Event published after dispatcher closed, dropping")
		return
	}
	d.queue <- e
}

// Close stops accepting events and returns once queued events are delivered.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.closeMu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for e := range d.queue {
		for _, sink := range d.subscribers() {
			sink.HandleEvent(e)
		}
	}
}

func (d *Dispatcher) subscribers() []EventSink {
	d.sinkMu.RLock()
	defer d.sinkMu.RUnlock()

	sinks := make([]EventSink, 0, len(d.order))
	for _, id := range d.order {
		sinks = append(sinks, d.sinks[id])
	}
	return sinks
}
