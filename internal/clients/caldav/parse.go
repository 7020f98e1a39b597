package caldav

import (
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/orgassist/internal/logging"
)

// ParseCalendar extracts every VEVENT of cal. Overrides of single
// occurrences are returned as their own events and excluded from the
// recurring master.
func ParseCalendar(cal *ical.Calendar, loc *time.Location) []Event {
	var events []Event
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, err := parseEvent(comp, loc)
		if err != nil {
			logging.Warn("caldav", "skipping event: %v", err)
			continue
		}
		events = append(events, ev)
	}

	overridden := make(map[string][]time.Time)
	for _, ev := range events {
		if !ev.RecurrenceID.IsZero() {
			overridden[ev.UID] = append(overridden[ev.UID], ev.RecurrenceID)
		}
	}
	for i := range events {
		if events[i].RRule != "" && events[i].RecurrenceID.IsZero() {
			events[i].ExDates = append(events[i].ExDates, overridden[events[i].UID]...)
		}
	}
	return events
}

func parseEvent(comp *ical.Component, loc *time.Location) (Event, error) {
	ev := Event{
		UID:         text(comp, ical.PropUID),
		Summary:     text(comp, ical.PropSummary),
		Description: text(comp, ical.PropDescription),
		Location:    text(comp, ical.PropLocation),
		Status:      strings.ToUpper(text(comp, ical.PropStatus)),
		RRule:       text(comp, ical.PropRecurrenceRule),
	}

	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return ev, errMissing(ev.UID, ical.PropDateTimeStart)
	}
	t, err := start.DateTime(loc)
	if err != nil {
		return ev, err
	}
	ev.StartTime = t
	ev.AllDay = isDate(start)

	if end := comp.Props.Get(ical.PropDateTimeEnd); end != nil {
		if t, err := end.DateTime(loc); err == nil {
			ev.EndTime = t
		}
	}
	if ev.EndTime.IsZero() {
		if d, ok := duration(comp); ok {
			ev.EndTime = ev.StartTime.Add(d)
		} else if ev.AllDay {
			ev.EndTime = ev.StartTime.AddDate(0, 0, 1)
		} else {
			ev.EndTime = ev.StartTime
		}
	}

	if rid := comp.Props.Get(ical.PropRecurrenceID); rid != nil {
		if t, err := rid.DateTime(loc); err == nil {
			ev.RecurrenceID = t
		}
	}

	for _, p := range comp.Props.Values(ical.PropExceptionDates) {
		for _, v := range strings.Split(p.Value, ",") {
			single := p
			single.Value = strings.TrimSpace(v)
			if t, err := single.DateTime(loc); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := comp.Props.Get(ical.PropOrganizer); p != nil {
		o := attendee(*p)
		o.Required = true
		ev.Organizer = &o
	}
	for _, p := range comp.Props.Values(ical.PropAttendee) {
		ev.Attendees = append(ev.Attendees, attendee(p))
	}
	return ev, nil
}

func text(comp *ical.Component, name string) string {
	p := comp.Props.Get(name)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

func duration(comp *ical.Component) (time.Duration, bool) {
	p := comp.Props.Get(ical.PropDuration)
	if p == nil {
		return 0, false
	}
	d, err := p.Duration()
	return d, err == nil
}

func isDate(p *ical.Prop) bool {
	if p.Params.Get(ical.ParamValue) == string(ical.ValueDate) {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func attendee(p ical.Prop) Attendee {
	email := p.Value
	if i := strings.Index(strings.ToLower(email), "mailto:"); i >= 0 {
		email = email[i+len("mailto:"):]
	}
	role := strings.ToUpper(p.Params.Get(ical.ParamRole))
	return Attendee{
		Name:     p.Params.Get(ical.ParamCommonName),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Required: role == "" || role == "REQ-PARTICIPANT" || role == "CHAIR",
	}
}

type missingPropError struct {
	uid  string
	prop string
}

func (e *missingPropError) Error() string {
	return "event " + strconv.Quote(e.uid) + " has no " + e.prop
}

func errMissing(uid, prop string) error {
	return &missingPropError{uid: uid, prop: prop}
}
