package domain

import (
	"errors"
	"fmt"
	"time"
)

// DateCategory describes what kind of date an EventDate is.
// Smaller values win relevance ties.
type DateCategory int

const (
	Deadline  DateCategory = 1
	Timestamp DateCategory = 2 // active date, an appointment when it carries a time
	Scheduled DateCategory = 3
	Range     DateCategory = 4
)

func (c DateCategory) String() string {
	switch c {
	case Deadline:
		return "DEADLINE"
	case Timestamp:
		return "TIMESTAMP"
	case Scheduled:
		return "SCHEDULED"
	case Range:
		return "RANGE"
	default:
		return fmt.Sprintf("DateCategory(%d)", int(c))
	}
}

var (
	ErrRangeWithoutEnd = errors.New("range date requires an end")
	ErrRangeInverted   = errors.New("range end is before its start")
	ErrUnknownCategory = errors.New("unknown date category")
)

// EventDate is a single point or range in time attached to an Event.
type EventDate struct {
	date        time.Time
	end         time.Time
	category    DateCategory
	appointment bool
	sortDate    time.Time
}

// NewDateTime creates a date carrying a time of day (an appointment).
func NewDateTime(t time.Time, category DateCategory) (EventDate, error) {
	if err := checkCategory(category); err != nil {
		return EventDate{}, err
	}
	return EventDate{
		date:        t,
		category:    category,
		appointment: true,
		sortDate:    t,
	}, nil
}

// NewDay creates a date without a time of day. It sorts as the last second
// of that day.
func NewDay(t time.Time, category DateCategory) (EventDate, error) {
	if err := checkCategory(category); err != nil {
		return EventDate{}, err
	}
	day := startOfDay(t)
	return EventDate{
		date:     day,
		category: category,
		sortDate: endOfDay(day),
	}, nil
}

// NewRange creates a Range date. When allDay is set both ends are truncated
// to calendar days and the date is not an appointment.
func NewRange(start, end time.Time, allDay bool) (EventDate, error) {
	if end.Before(start) {
		return EventDate{}, fmt.Errorf("%w: %s < %s", ErrRangeInverted, end, start)
	}
	d := EventDate{
		date:     start,
		end:      end,
		category: Range,
	}
	if allDay {
		d.date = startOfDay(start)
		d.end = startOfDay(end)
		d.sortDate = endOfDay(d.date)
	} else {
		d.appointment = true
		d.sortDate = start
	}
	return d, nil
}

func checkCategory(c DateCategory) error {
	switch c {
	case Deadline, Timestamp, Scheduled:
		return nil
	case Range:
		return ErrRangeWithoutEnd
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
}

func (d EventDate) Date() time.Time { return d.date }
func (d EventDate) End() time.Time { return d.end }
func (d EventDate) Category() DateCategory { return d.category }
func (d EventDate) SortDate() time.Time { return d.sortDate }
func (d EventDate) IsAppointment() bool { return d.appointment }
func (d EventDate) Before(other EventDate) bool { return d.sortDate.Before(other.sortDate) }

// Equal reports structural equality.
func (d EventDate) Equal(other EventDate) bool {
	return d.category == other.category &&
		d.appointment == other.appointment &&
		d.date.Equal(other.date) &&
		d.end.Equal(other.end)
}

// IsMoreRelevant reports whether d matters more than other at the instant now.
//
// Both dates are mapped to (sign, |delta|, category) where delta is the
// whole-second offset of the sort date from now and sign is -1 for the
// future (including now) and +1 for the past. The smaller tuple wins, ties
// included, so any future date beats any past one and a closer date beats a
// farther one.
func (d EventDate) IsMoreRelevant(other EventDate, now time.Time) bool {
	a := d.relevance(now)
	b := other.relevance(now)
	if a.sign != b.sign {
		return a.sign < b.sign
	}
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return a.category <= b.category
}

type relevanceKey struct {
	sign     int
	distance int64
	category DateCategory
}

func (d EventDate) relevance(now time.Time) relevanceKey {
	delta := d.sortDate.Sub(now)
	key := relevanceKey{sign: -1, category: d.category}
	if delta < 0 {
		key.sign = 1
		delta = -delta
	}
	key.distance = int64(delta / time.Second)
	return key
}

func (d EventDate) String() string {
	format := func(t time.Time) string {
		if d.appointment {
			return t.Format("2006-01-02 15:04")
		}
		return t.Format("2006-01-02")
	}
	if d.category == Range {
		return fmt.Sprintf("<%s<->%s %s>", format(d.date), format(d.end), d.category)
	}
	return fmt.Sprintf("<%s %s>", format(d.date), d.category)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
