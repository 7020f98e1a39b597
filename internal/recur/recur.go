// Package recur expands recurring calendar entries into single occurrences.
package recur

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxOccurrences caps the expansion of a single entry.
const MaxOccurrences = 5000

var ErrBadRange = errors.New("range end is before range start")

// Entry is a calendar entry as read from an iCalendar source.
type Entry struct {
	Start   time.Time
	End     time.Time
	AllDay  bool
	RRule   string // with or without the "RRULE:" prefix
	ExDates []time.Time
}

type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Expand returns the occurrences of e that overlap [from, to] in
// chronological order. Entries without a rule yield at most one occurrence.
func Expand(e Entry, from, to time.Time) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, ErrBadRange
	}
	end := e.End
	if end.Before(e.Start) {
		end = e.Start
	}
	dur := end.Sub(e.Start)

	if strings.TrimSpace(e.RRule) == "" {
		if overlaps(e.Start, end, from, to) {
			return []Occurrence{{Start: e.Start, End: end}}, nil
		}
		return nil, nil
	}

	r, err := rrule.StrToRRule(strings.TrimPrefix(strings.TrimSpace(e.RRule), "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", e.RRule, err)
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	loc := e.Start.Location()
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(loc))
	}

	// Occurrences that started before from may still be running.
	starts := set.Between(from.Add(-dur).In(loc), to.In(loc), true)
	if len(starts) > MaxOccurrences {
		starts = starts[:MaxOccurrences]
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		if e.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
		}
		out = append(out, Occurrence{Start: s, End: s.Add(dur)})
	}
	return out, nil
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
