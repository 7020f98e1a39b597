package core

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tazhate/orgassist/internal/calendar"
	"github.com/tazhate/orgassist/internal/domain"
	"github.com/tazhate/orgassist/internal/logging"
)

// scanWindow is how far past the lead time a scan looks for appointments.
const scanWindow = 5 * time.Minute

// Timers arms and cancels one-shot jobs. *scheduler.Scheduler satisfies it.
type Timers interface {
	After(d time.Duration, job func()) cron.EntryID
	Cancel(id cron.EntryID)
}

type armKey struct {
	event string
	lead  time.Duration
}

// Notifier arms a reminder for every appointment, once per lead time.
//
// For each lead time it keeps a watermark: the latest event date already
// considered. Scans only look at dates after the watermark, so rescanning
// an unchanged calendar never arms the same reminder twice. An event that
// shows up after its reminder time has passed is never reminded about.
type Notifier struct {
	cal             *calendar.Calendar
	timers          Timers
	leads           []time.Duration
	cancelOnRemoval bool
	send            func(e *domain.Event)

	mu        sync.Mutex
	positions map[time.Duration]time.Time
	armed     map[armKey]cron.EntryID
}

func NewNotifier(cal *calendar.Calendar, timers Timers, leads []time.Duration,
	cancelOnRemoval bool, send func(e *domain.Event)) *Notifier {
	sorted := make([]time.Duration, len(leads))
	copy(sorted, leads)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &Notifier{
		cal:             cal,
		timers:          timers,
		leads:           sorted,
		cancelOnRemoval: cancelOnRemoval,
		send:            send,
		positions:       make(map[time.Duration]time.Time),
		armed:           make(map[armKey]cron.EntryID),
	}
}

// Reset sets every watermark to now plus its lead time.
func (n *Notifier) Reset(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, lead := range n.leads {
		n.positions[lead] = now.Add(lead)
	}
}

// Watermark returns the position of the given lead time.
func (n *Notifier) Watermark(lead time.Duration) time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.positions[lead]
}

// Armed is the number of reminders waiting to fire.
func (n *Notifier) Armed() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.armed)
}

// Scan arms reminders for appointments entering the window of each lead
// time and returns how many were armed.
func (n *Notifier) Scan(now time.Time) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	events := n.cal.Events()
	if n.cancelOnRemoval {
		n.dropRemovedLocked(events)
	}

	count := 0
	for _, lead := range n.leads {
		start := now.Add(lead)
		if wm, ok := n.positions[lead]; ok && wm.After(start) {
			start = wm
		}
		end := start.Add(scanWindow)
		last := start

		for _, e := range events {
			rd := e.RelevantDate()
			if rd == nil {
				break
			}
			date := rd.SortDate()
			if date.After(end) {
				break
			}
			if !rd.IsAppointment() || !date.After(start) {
				continue
			}

			key := armKey{event: calendar.EventKey(e), lead: lead}
			if _, ok := n.armed[key]; ok {
				continue
			}
			delay := date.Sub(now) - lead
			logging.Info("notifier", "scheduling %s notification for %v in %s", lead, e, delay.Round(time.Second))
			n.armed[key] = n.timers.After(delay, func() { n.fire(key, e) })
			count++

			if date.After(last) {
				last = date
			}
		}
		n.positions[lead] = last
	}
	return count
}

func (n *Notifier) dropRemovedLocked(events []*domain.Event) {
	if len(n.armed) == 0 {
		return
	}
	present := make(map[string]struct{}, len(events))
	for _, e := range events {
		present[calendar.EventKey(e)] = struct{}{}
	}
	for key, id := range n.armed {
		if _, ok := present[key.event]; ok {
			continue
		}
		n.timers.Cancel(id)
		delete(n.armed, key)
		logging.Info("notifier", "cancelled %s notification for removed event %s", key.lead, key.event)
	}
}

func (n *Notifier) fire(key armKey, armedFor *domain.Event) {
	n.mu.Lock()
	delete(n.armed, key)
	n.mu.Unlock()

	e := n.cal.Find(key.event)
	if e == nil {
		if n.cancelOnRemoval {
			logging.Debug("notifier", "event %s is gone, notification dropped", key.event)
			return
		}
		e = armedFor
	}
	n.send(e)
}
