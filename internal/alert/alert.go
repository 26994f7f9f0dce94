// Package alert carries user-visible notifications about failed background
// writes. The synchronizers only report; presenting the message is up to the
// consumer.
package alert

import (
	"log/slog"
	"sync"
	"time"
)

// Alert is one notification.
type Alert struct {
	Message   string    `json:"message"`
	Operation string    `json:"operation"`
	Target    string    `json:"target"`
	At        time.Time `json:"at"`
}

// Sink receives alerts.
type Sink interface {
	Alert(a Alert)
}

// Discard drops every alert.
var Discard Sink = discard{}

type discard struct{}

func (discard) Alert(Alert) {}

const defaultCapacity = 50

// Recorder keeps the most recent alerts for later display and logs each one.
type Recorder struct {
	mu       sync.Mutex
	alerts   []Alert
	capacity int
	logger   *slog.Logger
}

// NewRecorder creates a recorder keeping up to capacity alerts (0 means 50).
func NewRecorder(capacity int, logger *slog.Logger) *Recorder {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Recorder{capacity: capacity, logger: logger}
}

// Alert records a.
func (r *Recorder) Alert(a Alert) {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	if len(r.alerts) > r.capacity {
		r.alerts = r.alerts[len(r.alerts)-r.capacity:]
	}
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Warn("user alert", "message", a.Message, "operation", a.Operation, "target", a.Target)
	}
}

// Recent returns recorded alerts, oldest first.
func (r *Recorder) Recent() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Clear forgets every recorded alert.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.alerts = nil
	r.mu.Unlock()
}
