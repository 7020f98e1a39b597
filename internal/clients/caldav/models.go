package caldav

import "time"

// Calendar is a calendar collection found on the server.
type Calendar struct {
	Path        string
	DisplayName string
	Description string
}

type Attendee struct {
	Name     string
	Email    string
	Required bool
}

// Event is a VEVENT reduced to what the assistant needs.
type Event struct {
	UID          string
	Summary      string
	Description  string
	Location     string
	Status       string
	StartTime    time.Time
	EndTime      time.Time
	AllDay       bool
	RRule        string    // e.g. "FREQ=WEEKLY;BYDAY=MO"
	ExDates      []time.Time
	RecurrenceID time.Time // set on overrides of a single occurrence
	Organizer    *Attendee
	Attendees    []Attendee
}

func (e Event) Cancelled() bool {
	return e.Status == "CANCELLED"
}
