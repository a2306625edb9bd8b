package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind categorizes an outbound event.
type EventKind string

const (
	// EventToken carries one incremental text fragment of a streamed message.
	// The final token event for a message has Done=true and repeats the full
	// content together with Message metadata.
	EventToken EventKind = "token"
	// EventStatus carries a non-content progress signal (routing decisions,
	// stage transitions, warnings, the terminal run marker).
	EventStatus EventKind = "status"
	// EventMultiToken carries one fragment of a named speaker's stream in a
	// multi-speaker flow. Speaker identifies the source; the speaker's
	// terminal event has Done=true.
	EventMultiToken EventKind = "multiToken"
	// EventError reports a failed run or a failed participant.
	EventError EventKind = "error"
)

// Attachments lists auxiliary resources referenced by a completed message.
type Attachments struct {
	Links  []string `json:"links,omitempty"`
	Images []string `json:"images,omitempty"`
}

// Message is the structured metadata attached exactly once to the final event
// of a completed text, distinguishing it from the incremental partials.
type Message struct {
	Role        string      `json:"role"`
	Content     string      `json:"content"`
	Attachments Attachments `json:"attachments"`
}

// Event is one unit of the streamed response protocol. After emission it
// should be treated as immutable.
type Event struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	Kind      EventKind         `json:"kind"`
	Payload   string            `json:"payload"`
	Done      bool              `json:"done"`
	Speaker   string            `json:"speaker,omitempty"`
	Message   *Message          `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent creates a bare event of the given kind bound to a run.
func NewEvent(runID string, kind EventKind) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenEvent creates a partial token event carrying one text fragment.
func NewTokenEvent(runID, fragment string) Event {
	e := NewEvent(runID, EventToken)
	e.Payload = fragment
	return e
}

// NewFinalTokenEvent creates the terminal token event of a completed message.
// It carries the full content plus role/attachment metadata with Done=true.
func NewFinalTokenEvent(runID string, msg Message) Event {
	e := NewEvent(runID, EventToken)
	e.Payload = msg.Content
	e.Done = true
	e.Message = &msg
	return e
}

// NewStatusEvent creates a status event with the given payload.
func NewStatusEvent(runID, payload string) Event {
	e := NewEvent(runID, EventStatus)
	e.Payload = payload
	return e
}

// NewDoneEvent creates the terminal marker closing a run's event stream.
func NewDoneEvent(runID string) Event {
	e := NewStatusEvent(runID, "done")
	e.Done = true
	return e
}

// NewSpeakerTokenEvent creates a partial fragment event for one speaker of a
// multi-speaker flow.
func NewSpeakerTokenEvent(runID, speaker, fragment string) Event {
	e := NewEvent(runID, EventMultiToken)
	e.Speaker = speaker
	e.Payload = fragment
	return e
}

// NewSpeakerDoneEvent creates the exactly-once terminal event for a speaker.
// A non-nil err marks the speaker as failed without affecting its siblings.
func NewSpeakerDoneEvent(runID, speaker string, err error) Event {
	e := NewEvent(runID, EventMultiToken)
	e.Speaker = speaker
	e.Done = true
	if err != nil {
		e.Metadata = map[string]string{"error": err.Error()}
	}
	return e
}

// NewErrorEvent creates a terminal error event for a failed run.
func NewErrorEvent(runID string, err error) Event {
	e := NewEvent(runID, EventError)
	e.Done = true
	if err != nil {
		e.Payload = err.Error()
	}
	return e
}

// IsTerminal reports whether the event closes its logical stream (a completed
// message, a finished speaker, a failed run, or the run's done marker).
func (e Event) IsTerminal() bool { return e.Done }

// Failed reports whether the event carries an error indicator.
func (e Event) Failed() bool {
	if e.Kind == EventError {
		return true
	}
	_, ok := e.Metadata["error"]
	return ok
}

// NewID generates a new unique identifier for events and runs.
func NewID() string { return uuid.NewString() }
