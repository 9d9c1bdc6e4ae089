// Package fsm defines the interaction lifecycle transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateAnnouncing State = "announcing"
)

const (
	EventPress     Event = "press"
	EventCaptured  Event = "captured"
	EventAnswered  Event = "answered"
	EventFailed    Event = "failed"
	EventAnnounced Event = "announced"
)

// Transition returns the next state for event, or the current state and an
// error when the event is not accepted in that state.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventPress:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventCaptured:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventAnswered, EventFailed:
			return StateAnnouncing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAnnouncing:
		switch event {
		case EventAnnounced:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
