package out

import "context"

// CalendarEvent is the minimal event shape the meeting-prep task (§4.N.5)
// extracts via the LLM client and hands to CreateDraftEvent.
type CalendarEvent struct {
	Title     string
	StartTime string // ISO-8601
	EndTime   string // ISO-8601
	Attendees []string
	Notes     string
}

// CalendarPort is an interface-only boundary (§4.N "Calendar draft
// (supplemented)"): no concrete Google/Microsoft Calendar client is
// implemented, mirroring the Mail Client's OAuth-scope note in §6.
type CalendarPort interface {
	CreateDraftEvent(ctx context.Context, userID string, event CalendarEvent) (eventID string, err error)
}
