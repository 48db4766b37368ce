package model

import "time"

// Event is an existing calendar entry owned by the scheduling collaborator
type Event struct {
	Ref        string
	AssigneeID string
	Title      string
	Start      time.Time
	End        time.Time
}

// Window is a half-open [Start, End) interval
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the window
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Slot is a candidate interval for a scheduled event
type Slot struct {
	Start time.Time
	End   time.Time
	Score float64
}

// Window returns the slot interval
func (s Slot) Window() Window {
	return Window{Start: s.Start, End: s.End}
}

// EventSpec describes an event to create or update
type EventSpec struct {
	Title      string
	AssigneeID string
	Attendees  []string
	Start      time.Time
	End        time.Time
	// Ref is set when updating or cancelling an existing event
	Ref string
}
