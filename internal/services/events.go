package services

import "time"

// EventType identifies what a progress Event carries.
type EventType string

const (
	EventOverall  EventType = "overall"  // Fraction of the queue done
	EventChunk    EventType = "chunk"    // Fraction of the current chunk done
	EventStatus   EventType = "status"   // Message
	EventFinished EventType = "finished" // Outputs, terminal
	EventFailed   EventType = "failed"   // Message and Err, terminal
)

// Event is one update on the pipeline's progress channel.
type Event struct {
	Type      EventType
	Fraction  float64
	Message   string
	Outputs   []string
	Err       error
	Timestamp time.Time
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventFinished || e.Type == EventFailed
}

// Emitter receives progress events in emission order.
type Emitter func(Event)

func (emit Emitter) status(msg string) {
	emit(Event{Type: EventStatus, Message: msg})
}

func (emit Emitter) chunk(fraction float64) {
	emit(Event{Type: EventChunk, Fraction: fraction})
}

func (emit Emitter) overall(fraction float64) {
	emit(Event{Type: EventOverall, Fraction: fraction})
}

// chunkProgress clamps per-chunk fractions so they never move backwards.
type chunkProgress struct {
	emit Emitter
	last float64
}

func (p *chunkProgress) set(fraction float64) {
	if fraction < p.last {
		return
	}
	p.last = fraction
	p.emit.chunk(fraction)
}
