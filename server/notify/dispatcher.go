package notify

import (
	"fmt"
	"sync"

	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
	"github.com/mattermost/mattermost-plugin-civicsos/server/metrics"
)

// Sink delivers events somewhere. Sinks ignore kinds they do not handle.
type Sink interface {
	Send(event Event) error
}

type namedSink struct {
	name string
	sink Sink
}

// Dispatcher fans every event out to all registered sinks. A failing sink is logged and
// never keeps the others from receiving the event.
type Dispatcher struct {
	mu      sync.RWMutex
	sinks   []namedSink
	dedup   *Deduplicator
	log     logging.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher. dedup may be nil to disable new-alert deduplication.
func NewDispatcher(dedup *Deduplicator, log logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		dedup:   dedup,
		log:     log,
		metrics: m,
	}
}

// AddSink registers a sink under a name used in logs.
func (d *Dispatcher) AddSink(name string, sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sinks = append(d.sinks, namedSink{name: name, sink: sink})
}

// Dispatch delivers event. It returns false when the event was dropped as a duplicate
// new-alert notification for the same user.
func (d *Dispatcher) Dispatch(event Event) bool {
	if event.Kind == KindNewSOSAlert && d.dedup != nil && event.Alert != nil && event.UserID != "" {
		if !d.dedup.Record(event.UserID, event.Alert.ID) {
			d.log.Debug("Skipping duplicate SOS notification",
				"user_id", event.UserID,
				"alert_id", event.Alert.ID)
			return false
		}
	}

	d.mu.RLock()
	sinks := make([]namedSink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, s := range sinks {
		d.send(s, event)
	}
	d.metrics.ObserveNotification(string(event.Kind))
	return true
}

func (d *Dispatcher) send(s namedSink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Notification sink panicked",
				"sink", s.name,
				"kind", string(event.Kind),
				"panic", fmt.Sprint(r))
		}
	}()

	if err := s.sink.Send(event); err != nil {
		d.log.Warn("Failed to deliver notification",
			"sink", s.name,
			"kind", string(event.Kind),
			"user_id", event.UserID,
			"error", err.Error())
	}
}
