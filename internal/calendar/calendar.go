// Package calendar keeps the events of all source plugins sorted by their
// relevant date and answers windowed queries over them.
package calendar

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tazhate/orgassist/internal/domain"
	"github.com/tazhate/orgassist/internal/logging"
	"github.com/tazhate/orgassist/internal/templates"
)

// Calendar is safe for concurrent use. Events are always kept sorted
// ascending by relevant sort date; events without a date go last.
type Calendar struct {
	mu     sync.RWMutex
	events []*domain.Event
}

func New() *Calendar {
	return &Calendar{}
}

// AddEvents stamps events with tag and merges them into the calendar.
func (c *Calendar) AddEvents(events []*domain.Event, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(events, tag)
}

// DelEvents drops all events owned by tag.
func (c *Calendar) DelEvents(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delLocked(tag)
}

// Clear drops every event.
func (c *Calendar) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// UpdateEvents atomically replaces the events owned by tag.
func (c *Calendar) UpdateEvents(events []*domain.Event, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delLocked(tag)
	c.addLocked(events, tag)
	logging.Debug("calendar", "tag %s replaced with %d events, %d total", tag, len(events), len(c.events))
}

func (c *Calendar) addLocked(events []*domain.Event, tag string) {
	for _, e := range events {
		e.SetCalendarTag(tag)
	}
	c.events = append(c.events, events...)
	sort.SliceStable(c.events, func(i, j int) bool {
		return less(c.events[i], c.events[j])
	})
}

func (c *Calendar) delLocked(tag string) {
	kept := c.events[:0:0]
	for _, e := range c.events {
		if e.CalendarTag() != tag {
			kept = append(kept, e)
		}
	}
	c.events = kept
}

func less(a, b *domain.Event) bool {
	ra, rb := a.RelevantDate(), b.RelevantDate()
	switch {
	case ra == nil:
		return false
	case rb == nil:
		return true
	default:
		return ra.Before(*rb)
	}
}

// Events returns a snapshot of the sorted events.
func (c *Calendar) Events() []*domain.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Calendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// EventKey identifies an event across rescans, which rebuild event values
// from scratch.
func EventKey(e *domain.Event) string {
	rd := "-"
	if r := e.RelevantDate(); r != nil {
		rd = r.SortDate().UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s|%s|%s", e.CalendarTag(), e.Headline, rd)
}

// Find returns the event with the given key or nil.
func (c *Calendar) Find(key string) *domain.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.events {
		if EventKey(e) == key {
			return e
		}
	}
	return nil
}

// Contains reports whether an event with the given key is present.
func (c *Calendar) Contains(key string) bool {
	return c.Find(key) != nil
}

// GetUnfinished lists open events whose relevant date lies in
// [horizon, now]. Unless includeNonAppointments is set only events with a
// scheduled or deadline date are listed.
func (c *Calendar) GetUnfinished(horizon time.Time, includeNonAppointments bool, now time.Time) []*domain.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var unfinished []*domain.Event
	for _, e := range c.events {
		rd := e.RelevantDate()
		if rd == nil {
			break
		}
		date := rd.SortDate()
		if date.After(now) {
			// Sorted, so everything from here on is in the future.
			break
		}
		if date.Before(horizon) {
			continue
		}
		if !e.IsOpen() {
			continue
		}
		if !includeNonAppointments &&
			!e.HasDateType(domain.Scheduled) && !e.HasDateType(domain.Deadline) {
			continue
		}
		unfinished = append(unfinished, e)
	}
	return unfinished
}

// GetAppointments lists events whose relevant date is an appointment within
// [since, horizon].
func (c *Calendar) GetAppointments(since, horizon time.Time) []*domain.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var appointments []*domain.Event
	for _, e := range c.events {
		rd := e.RelevantDate()
		if rd == nil {
			break
		}
		date := rd.SortDate()
		if date.After(horizon) {
			break
		}
		if !rd.IsAppointment() || date.Before(since) {
			continue
		}
		appointments = append(appointments, e)
	}
	return appointments
}

// GetScheduled lists appointments within [now, horizon] regardless of the
// event state.
func (c *Calendar) GetScheduled(horizon, now time.Time) []*domain.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var scheduled []*domain.Event
	for _, e := range c.events {
		rd := e.RelevantDate()
		if rd == nil {
			break
		}
		date := rd.SortDate()
		if date.After(horizon) {
			break
		}
		if date.Before(now) || !rd.IsAppointment() {
			continue
		}
		scheduled = append(scheduled, e)
	}
	return scheduled
}

// AgendaSince is the start of the appointment window of an agenda: midnight
// of now's day, moved 4 hours back when now is less than 4 hours past
// midnight so a late night still shows the evening before.
func AgendaSince(now time.Time) time.Time {
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Sub(since) < 4*time.Hour {
		since = since.Add(-4 * time.Hour)
	}
	return since
}

// GetAgenda renders the agenda template with unfinished events and the
// appointments between AgendaSince(now) and horizonIncoming.
func (c *Calendar) GetAgenda(tmpl templates.Source, horizonIncoming, horizonUnfinished time.Time,
	includeNonAppointments bool, now time.Time) (string, error) {
	logging.Info("calendar", "getting agenda from %s to %s",
		horizonUnfinished.Format(time.RFC3339), horizonIncoming.Format(time.RFC3339))

	data := map[string]any{
		"planned":      []*domain.Event{},
		"unfinished":   c.GetUnfinished(horizonUnfinished, includeNonAppointments, now),
		"appointments": c.GetAppointments(AgendaSince(now), horizonIncoming),
		"now":          now,
	}
	return templates.Render(tmpl, data)
}
