package event

import (
	"github.com/felixgeelhaar/storyboard/internal/log"
)

// Sink receives orchestration events. Implementations must never block and
// must swallow their own errors; a slow or broken observer cannot be allowed
// to stall the scheduling loop.
type Sink interface {
	Emit(e Event)
}

// ChannelSink buffers events on a bounded channel for a transport adapter to
// drain. When the buffer is full the oldest pending delivery is dropped in
// favor of the new event (observers prefer fresh snapshots over stale ones).
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 64
	}
	return &ChannelSink{ch: make(chan Event, size)}
}

// Emit implements Sink.Emit without ever blocking the caller.
func (s *ChannelSink) Emit(e Event) {
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch: // drop oldest
		default:
		}
	}
}

// Events returns the receive side for the transport adapter.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// LogSink writes events to the structured logger. Useful for the CLI and as
// a default when no transport is attached.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &LogSink{logger: logger}
}

// Emit implements Sink.Emit
func (s *LogSink) Emit(e Event) {
	s.logger.Debug("event", "type", string(e.Type), "payload", e.Payload)
}

// NopSink discards all events.
type NopSink struct{}

// Emit implements Sink.Emit
func (NopSink) Emit(Event) {}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

// Emit implements Sink.Emit
func (m MultiSink) Emit(e Event) {
	for _, sink := range m {
		sink.Emit(e)
	}
}
