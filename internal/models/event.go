package models

import "time"

// EventType identifies a logged user event. Values are stable wire
// identifiers shared with audit consumers.
type EventType int

const (
	EventUserLoggedIn       EventType = 1000
	EventUserFailedLogIn    EventType = 1005
	EventUserFailedLogIn2FA EventType = 1006
)

// Event is a persisted user audit event.
type Event struct {
	ID        string
	UserID    string
	Type      EventType
	IPAddress string
	Date      time.Time
}
