package research

import (
	"github.com/rs/zerolog"

	"github.com/harun/ideascout/pkg/conversation"
)

// EventType identifies a progress event
type EventType string

const (
	EventAttemptStarted EventType = "attempt_started"
	EventNodeCompleted  EventType = "node_completed"
	EventAttemptFailed  EventType = "attempt_failed"
	EventRunCompleted   EventType = "run_completed"
)

// Event reports run progress to observers.
type Event struct {
	Type      EventType             `json:"type"`
	SessionID string                `json:"session_id"`
	Attempt   int                   `json:"attempt"`
	Node      string                `json:"node,omitempty"`
	Phase     Phase                 `json:"phase,omitempty"`
	Err       string                `json:"error,omitempty"`
	Message   *conversation.Message `json:"message,omitempty"`
}

// Observer receives events synchronously from the run goroutine.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) OnEvent(e Event) {
	for _, o := range m {
		o.OnEvent(e)
	}
}

// Observers fans an event out to every non-nil observer
func Observers(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// LoggingObserver logs every event at debug level, failures at warn.
func LoggingObserver(logger zerolog.Logger) Observer {
	return ObserverFunc(func(e Event) {
		ev := logger.Debug()
		if e.Type == EventAttemptFailed {
			ev = logger.Warn().Str("error", e.Err)
		}
		ev.Str("event", string(e.Type)).
			Str("session_id", e.SessionID).
			Int("attempt", e.Attempt).
			Str("node", e.Node).
			Str("phase", string(e.Phase)).
			Msg("Research event")
	})
}
