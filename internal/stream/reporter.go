package stream

import (
	"sync"
)

// Emitter is the minimal surface stages use to report progress. Emission is
// best effort: it must never gate orchestration correctness.
type Emitter interface {
	Progress(tools []string, message string)
	Content(chunk string)
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Progress([]string, string) {}
func (NopEmitter) Content(string)            {}

// ReporterConfig holds reporter buffer configuration.
type ReporterConfig struct {
	// BufferSize is the bounded event buffer size.
	BufferSize int
}

// DefaultReporterConfig returns the default reporter configuration.
func DefaultReporterConfig() ReporterConfig {
	return ReporterConfig{BufferSize: 256}
}

// Reporter buffers the ordered event sequence for one session and hands it
// to exactly one subscriber. Emission never blocks the orchestrator: when
// the bounded buffer is full, the oldest queued event is dropped to make
// room, and the terminal event is always delivered. After a terminal event
// the channel is closed and further emissions are no-ops, which makes the
// terminal event exactly-once.
type Reporter struct {
	config ReporterConfig

	mu       sync.Mutex
	events   chan Event
	finished bool
	dropped  uint64
}

// NewReporter creates a reporter with default configuration.
func NewReporter() *Reporter {
	return NewReporterWithConfig(DefaultReporterConfig())
}

// NewReporterWithConfig creates a reporter with custom configuration.
func NewReporterWithConfig(config ReporterConfig) *Reporter {
	if config.BufferSize < 2 {
		config.BufferSize = 2
	}
	return &Reporter{
		config: config,
		events: make(chan Event, config.BufferSize),
	}
}

// Events returns the subscriber channel. A late subscriber misses events
// already dropped from the bounded buffer; the stream is live, not a log.
func (r *Reporter) Events() <-chan Event {
	return r.events
}

// Dropped returns the number of progress events evicted under backpressure.
func (r *Reporter) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Emit appends an event to the sequence. Safe for a single producer; the
// orchestrator owns the session and is that producer.
func (r *Reporter) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}

	for {
		select {
		case r.events <- ev:
			if ev.Terminal() {
				r.finished = true
				close(r.events)
			}
			return
		default:
		}
		// Buffer full: evict the oldest queued event to make room. The
		// terminal event is always the newest, so eviction only ever
		// discards informational progress.
		select {
		case <-r.events:
			r.dropped++
		default:
		}
		if !ev.Terminal() {
			// For non-terminal events one eviction attempt is enough;
			// if the buffer is still contended, drop the new event.
			select {
			case r.events <- ev:
			default:
				r.dropped++
			}
			return
		}
	}
}

// Connected emits the stream-open event. First event of every sequence.
func (r *Reporter) Connected() {
	r.Emit(Event{Type: EventConnected})
}

// Progress emits a stage or role dispatch notice.
func (r *Reporter) Progress(tools []string, message string) {
	r.Emit(Event{Type: EventProgress, Tools: tools, Message: message})
}

// ToolsCompleted emits the fan-in barrier release notice.
func (r *Reporter) ToolsCompleted() {
	r.Emit(Event{Type: EventToolsCompleted})
}

// Content emits an incremental chunk of synthesis or decision text.
func (r *Reporter) Content(chunk string) {
	r.Emit(Event{Type: EventContent, Chunk: chunk})
}

// Done emits the terminal success event, exactly once.
func (r *Reporter) Done(conversationID string, metadata map[string]any) {
	r.Emit(Event{Type: EventDone, ConversationID: conversationID, Metadata: metadata})
}

// Error emits the terminal failure event, exactly once.
func (r *Reporter) Error(message string) {
	r.Emit(Event{Type: EventError, Message: message})
}
