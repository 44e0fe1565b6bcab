package engine

import (
	"github.com/mcdev12/racedraft/go/internal/models"
)

type EventType string

const (
	EvtDraftStarted   EventType = "DraftStarted"
	EvtPickMade       EventType = "PickMade"
	EvtTurnSkipped    EventType = "TurnSkipped"
	EvtTurnAdvanced   EventType = "TurnAdvanced"
	EvtDraftCompleted EventType = "DraftCompleted"
)

// Event records one state change produced by a transition. TurnIndex is
// the draft's current turn index after the change.
type Event struct {
	Type      EventType
	UserID    string
	Race      models.Race
	TurnIndex int
}

// HasEvent reports whether events contains an event of type t.
func HasEvent(events []Event, t EventType) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}
