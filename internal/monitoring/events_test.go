package monitoring

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	d := NewDispatcher(4)

	first := &eventRecorder{}
	second := &eventRecorder{}
	d.Subscribe(first)
	d.Subscribe(second)

	for i := 0; i < 50; i++ {
		d.Publish(Event{Kind: EventInfo, Message: fmt.Sprintf("m%d", i)})
	}
	d.Close()

	for _, rec := range []*eventRecorder{first, second} {
		events := rec.snapshot()
		if len(events) != 50 {
			t.Fatalf("expected 50 events, got %d", len(events))
		}
		for i, e := range events {
			if e.Message != fmt.Sprintf("m%d", i) {
				t.Fatalf("event %d out of order: %s", i, e.Message)
			}
		}
	}
}

func TestDispatcherBlocksInsteadOfDropping(t *testing.T) {
	d := NewDispatcher(1)

	gate := make(chan struct{})
	var delivered atomic.Int32
	d.Subscribe(SinkFunc(func(Event) {
		<-gate
		delivered.Add(1)
	}))

	published := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Publish(Event{Kind: EventInfo})
		}
		close(published)
	}()

	select {
	case <-published:
		t.Fatalf("Publish did not block on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	<-published
	d.Close()

	if got := delivered.Load(); got != 5 {
		t.Fatalf("expected 5 deliveries, got %d", got)
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := NewDispatcher(8)
	rec := &eventRecorder{}
	unsubscribe := d.Subscribe(rec)

	d.Publish(Event{Message: "before"})
	d.Close()
	unsubscribe()
	unsubscribe()

	if got := len(rec.snapshot()); got != 1 {
		t.Fatalf("expected 1 event, got %d", got)
	}
}

func TestDispatcherPublishAfterClose(t *testing.T) {
	d := NewDispatcher(1)
	rec := &eventRecorder{}
	d.Subscribe(rec)
	d.Close()
	d.Close()

	d.Publish(Event{Message: "late"})
	if got := len(rec.snapshot()); got != 0 {
		t.Fatalf("late event delivered")
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	sink := NewLogSink(logger)
	sink.HandleEvent(Event{Kind: EventTransition, DeviceName: "router", Message: "router status changed: OFFLINE"})
	sink.HandleEvent(Event{Kind: EventDiagnostic, Message: "save failed"})
	sink.HandleEvent(Event{Kind: EventInfo, Message: "Monitoring started"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %q", len(lines), buf.String())
	}
	for i, level := range []string{"level=warning", "level=error", "level=info"} {
		if !strings.Contains(lines[i], level) {
			t.Fatalf("line %d missing %s: %s", i, level, lines[i])
		}
	}
	if !strings.Contains(lines[0], "device=router") {
		t.Fatalf("transition line missing device field: %s", lines[0])
	}
}
