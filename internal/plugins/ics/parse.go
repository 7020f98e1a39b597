package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/tazhate/orgassist/internal/logging"
	"github.com/tazhate/orgassist/internal/recur"
)

var ErrEmptyBody = errors.New("empty ICS body")

// Entry is a VEVENT with its recurrence data.
type Entry struct {
	UID          string
	Summary      string
	Description  string
	Location     string
	Status       string
	RecurrenceID time.Time

	recur.Entry
}

// Parse reads an iCalendar payload. Floating times are interpreted in loc.
// Overridden occurrences are excluded from their recurring master.
func Parse(body []byte, loc *time.Location) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var entries []Entry
	for _, ve := range cal.Events() {
		e, err := parseEvent(ve, loc)
		if err != nil {
			logging.Warn("ics", "skipping event: %v", err)
			continue
		}
		entries = append(entries, e)
	}

	overridden := make(map[string][]time.Time)
	for _, e := range entries {
		if !e.RecurrenceID.IsZero() {
			overridden[e.UID] = append(overridden[e.UID], e.RecurrenceID)
		}
	}
	for i := range entries {
		if entries[i].RRule != "" && entries[i].RecurrenceID.IsZero() {
			entries[i].ExDates = append(entries[i].ExDates, overridden[entries[i].UID]...)
		}
	}
	return entries, nil
}

func parseEvent(ve *ical.VEvent, loc *time.Location) (Entry, error) {
	var e Entry
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		e.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		e.Summary = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		e.Description = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		e.Location = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		e.Status = strings.ToUpper(strings.TrimSpace(p.Value))
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return e, fmt.Errorf("event %q has no DTSTART", e.UID)
	}
	e.AllDay = isDate(dtStart)

	start, err := propTime(dtStart, loc)
	if err != nil {
		return e, fmt.Errorf("event %q: %w", e.UID, err)
	}
	e.Start = start

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, err := propTime(dtEnd, loc); err == nil {
			e.End = end
		}
	}
	if e.End.IsZero() {
		if e.AllDay {
			e.End = e.Start.AddDate(0, 0, 1)
		} else {
			e.End = e.Start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		e.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseTime(part, tzid(p), loc); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := propTime(p, loc); err == nil {
			e.RecurrenceID = t
		}
	}
	return e, nil
}

func isDate(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzid(p *ical.IANAProperty) string {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseTime(p.Value, tzid(p), loc)
}

// parseTime handles the UTC, zoned, floating and date-only forms.
func parseTime(v, tz string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			logging.Debug("ics", "unknown TZID %q, using %s", tz, loc)
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
