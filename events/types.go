// Package events broadcasts controller state changes to observers.
// Delivery is fire-and-forget: having no subscriber is not an error.
package events

import (
	"time"

	"github.com/brettboylen/linkedin-agent/models"
)

// Event types
const (
	TypeStatusChanged    = "status:changed"
	TypeActivityRecorded = "activity:recorded"
	TypeLogAppended      = "log:appended"
	TypeCountdownTick    = "countdown:tick"
)

// Event is one broadcast message
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// StatusData is the payload of status:changed
type StatusData struct {
	RunID   string          `json:"run_id,omitempty"`
	State   string          `json:"state"`
	Message string          `json:"message"`
	Stats   models.RunStats `json:"stats"`
}

// CountdownData is the payload of countdown:tick
type CountdownData struct {
	Description string `json:"description"`
	Remaining   int    `json:"remaining"`
	Total       int    `json:"total"`
}

// NewStatusEvent creates a status:changed event
func NewStatusEvent(runID, state, message string, stats models.RunStats) Event {
	return Event{
		Type: TypeStatusChanged,
		Data: StatusData{RunID: runID, State: state, Message: message, Stats: stats},
		Time: time.Now().UTC(),
	}
}

// NewActivityEvent creates an activity:recorded event
func NewActivityEvent(activity models.Activity) Event {
	return Event{Type: TypeActivityRecorded, Data: activity, Time: time.Now().UTC()}
}

// NewLogEvent creates a log:appended event
func NewLogEvent(entry models.LogEntry) Event {
	return Event{Type: TypeLogAppended, Data: entry, Time: time.Now().UTC()}
}

// NewCountdownEvent creates a countdown:tick event
func NewCountdownEvent(description string, remaining, total int) Event {
	return Event{
		Type: TypeCountdownTick,
		Data: CountdownData{Description: description, Remaining: remaining, Total: total},
		Time: time.Now().UTC(),
	}
}

// Publisher accepts events for broadcast
type Publisher interface {
	Publish(event Event)
}

// Discard is a Publisher that drops everything
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
