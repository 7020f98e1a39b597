package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MetaCalendarTag is the Meta key holding the tag of the source that owns
// the event inside a calendar.
const MetaCalendarTag = "calendar_tag"

var ErrDuplicateDate = errors.New("date already added to event")

type Priority string

const (
	PriorityNone Priority = ""
	PriorityA    Priority = "A"
	PriorityB    Priority = "B"
	PriorityC    Priority = "C"
)

// ParsePriority accepts A, B, C (any case) or an empty string.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityNone, PriorityA, PriorityB, PriorityC:
		return p, nil
	default:
		return PriorityNone, fmt.Errorf("invalid priority %q", s)
	}
}

// Event is a calendar entry produced by a source plugin.
type Event struct {
	Headline string
	State    *EventState
	Tags     map[string]struct{}
	Priority Priority
	Body     string
	Meta     map[string]any

	dates     []EventDate
	relevant  *EventDate
	dateTypes map[DateCategory]struct{}
}

func NewEvent(headline string, state *EventState) *Event {
	return &Event{
		Headline:  headline,
		State:     state,
		Tags:      make(map[string]struct{}),
		Meta:      make(map[string]any),
		dateTypes: make(map[DateCategory]struct{}),
	}
}

// AddDate appends a date and updates the relevant date when the new one is
// more relevant at now. The first date always becomes relevant.
func (e *Event) AddDate(d EventDate, now time.Time) error {
	for _, existing := range e.dates {
		if existing.Equal(d) {
			return fmt.Errorf("%w: %s", ErrDuplicateDate, d)
		}
	}

	e.dates = append(e.dates, d)

	if e.relevant == nil || d.IsMoreRelevant(*e.relevant, now) {
		rd := d
		e.relevant = &rd
	}

	if e.dateTypes == nil {
		e.dateTypes = make(map[DateCategory]struct{})
	}
	e.dateTypes[d.Category()] = struct{}{}
	return nil
}

// Dates returns a copy of the event dates in insertion order.
func (e *Event) Dates() []EventDate {
	out := make([]EventDate, len(e.dates))
	copy(out, e.dates)
	return out
}

// RelevantDate returns nil for an event without dates.
func (e *Event) RelevantDate() *EventDate {
	return e.relevant
}

func (e *Event) HasDateType(c DateCategory) bool {
	_, ok := e.dateTypes[c]
	return ok
}

func (e *Event) AddTags(tags ...string) *Event {
	if e.Tags == nil {
		e.Tags = make(map[string]struct{})
	}
	for _, t := range tags {
		e.Tags[t] = struct{}{}
	}
	return e
}

// SortedTags returns tags in lexical order, handy for templates.
func (e *Event) SortedTags() []string {
	tags := make([]string, 0, len(e.Tags))
	for t := range e.Tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// CalendarTag returns the tag of the source owning the event, if any.
func (e *Event) CalendarTag() string {
	tag, _ := e.Meta[MetaCalendarTag].(string)
	return tag
}

func (e *Event) SetCalendarTag(tag string) {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[MetaCalendarTag] = tag
}

// IsOpen is false for events without a state.
func (e *Event) IsOpen() bool {
	return e.State != nil && e.State.Open
}

func (e *Event) String() string {
	state := ""
	if e.State != nil {
		state = e.State.Name + " "
	}
	rd := "no date"
	if e.relevant != nil {
		rd = e.relevant.String()
	}
	return fmt.Sprintf("<Event %s%q %s>", state, e.Headline, rd)
}
