package core

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tazhate/orgassist/internal/calendar"
	"github.com/tazhate/orgassist/internal/domain"
)

var t0 = time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

type fakeJob struct {
	delay time.Duration
	run   func()
}

type fakeTimers struct {
	next cron.EntryID
	jobs map[cron.EntryID]fakeJob
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{jobs: make(map[cron.EntryID]fakeJob)}
}

func (f *fakeTimers) After(d time.Duration, job func()) cron.EntryID {
	f.next++
	f.jobs[f.next] = fakeJob{delay: d, run: job}
	return f.next
}

func (f *fakeTimers) Cancel(id cron.EntryID) {
	delete(f.jobs, id)
}

func (f *fakeTimers) delays() []time.Duration {
	var out []time.Duration
	for id := cron.EntryID(1); id <= f.next; id++ {
		if j, ok := f.jobs[id]; ok {
			out = append(out, j.delay)
		}
	}
	return out
}

func (f *fakeTimers) runAll() {
	for id, j := range f.jobs {
		delete(f.jobs, id)
		j.run()
	}
}

func appointment(t *testing.T, headline string, at time.Time) *domain.Event {
	t.Helper()
	d, err := domain.NewDateTime(at, domain.Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	e := domain.NewEvent(headline, &domain.EventState{Name: "TODO", Open: true})
	if err := e.AddDate(d, t0); err != nil {
		t.Fatal(err)
	}
	return e
}

type sent struct {
	events []*domain.Event
}

func (s *sent) send(e *domain.Event) {
	s.events = append(s.events, e)
}

func TestScanArmsOnceAcrossRescans(t *testing.T) {
	cal := calendar.New()
	cal.UpdateEvents([]*domain.Event{appointment(t, "standup", t0.Add(9*time.Minute))}, "org")

	timers := newFakeTimers()
	n := NewNotifier(cal, timers, []time.Duration{5 * time.Minute}, true, (&sent{}).send)
	n.Reset(t0)

	if got := n.Scan(t0); got != 1 {
		t.Fatalf("first scan armed %d, want 1", got)
	}
	if d := timers.delays(); len(d) != 1 || d[0] != 4*time.Minute {
		t.Errorf("delays = %v, want [4m]", d)
	}

	// A rescan rebuilds every event value from scratch.
	cal.UpdateEvents([]*domain.Event{appointment(t, "standup", t0.Add(9*time.Minute))}, "org")
	if got := n.Scan(t0.Add(10 * time.Second)); got != 0 {
		t.Errorf("second scan armed %d, want 0", got)
	}
	if len(timers.jobs) != 1 {
		t.Errorf("jobs = %d", len(timers.jobs))
	}
}

func TestLateEventIsNeverNotified(t *testing.T) {
	cal := calendar.New()
	timers := newFakeTimers()
	n := NewNotifier(cal, timers, []time.Duration{5 * time.Minute}, true, (&sent{}).send)
	n.Reset(t0)
	n.Scan(t0)

	cal.UpdateEvents([]*domain.Event{appointment(t, "surprise", t0.Add(4*time.Minute))}, "org")
	for i := 1; i <= 5; i++ {
		n.Scan(t0.Add(time.Duration(i) * time.Minute))
	}
	if len(timers.jobs) != 0 {
		t.Errorf("late event armed: %v", timers.delays())
	}
}

func TestScanSkipsNonAppointments(t *testing.T) {
	day, _ := domain.NewDay(t0, domain.Scheduled)
	e := domain.NewEvent("whole day", nil)
	e.AddDate(day, t0)

	cal := calendar.New()
	cal.UpdateEvents([]*domain.Event{e, domain.NewEvent("no date", nil)}, "org")
	timers := newFakeTimers()
	n := NewNotifier(cal, timers, []time.Duration{5 * time.Minute}, true, (&sent{}).send)
	n.Reset(t0)

	for i := 0; i < 24*60; i += 5 {
		n.Scan(t0.Add(time.Duration(i) * time.Minute))
	}
	if len(timers.jobs) != 0 {
		t.Errorf("armed %d jobs for non-appointments", len(timers.jobs))
	}
}

func TestEveryLeadTimeIsArmed(t *testing.T) {
	cal := calendar.New()
	cal.UpdateEvents([]*domain.Event{appointment(t, "review", t0.Add(23*time.Minute))}, "org")
	timers := newFakeTimers()
	n := NewNotifier(cal, timers, []time.Duration{20 * time.Minute, 5 * time.Minute}, true, (&sent{}).send)
	n.Reset(t0)

	for i := 0; i <= 20; i++ {
		n.Scan(t0.Add(time.Duration(i) * time.Minute))
	}

	d := timers.delays()
	if len(d) != 2 {
		t.Fatalf("delays = %v, want two reminders", d)
	}
	if d[0] != 3*time.Minute {
		t.Errorf("20m reminder delay = %v", d[0])
	}
	// Armed by the scan at t0+13m, whose window ends exactly at the event.
	if d[1] != 5*time.Minute {
		t.Errorf("5m reminder delay = %v", d[1])
	}
}

func TestWatermarkIsMonotonic(t *testing.T) {
	cal := calendar.New()
	cal.UpdateEvents([]*domain.Event{
		appointment(t, "a", t0.Add(8*time.Minute)),
		appointment(t, "b", t0.Add(9*time.Minute)),
	}, "org")
	lead := 5 * time.Minute
	n := NewNotifier(cal, newFakeTimers(), []time.Duration{lead}, true, (&sent{}).send)
	n.Reset(t0)

	prev := n.Watermark(lead)
	for _, offset := range []time.Duration{0, time.Second, 30 * time.Second, -time.Minute, 2 * time.Minute} {
		n.Scan(t0.Add(offset))
		wm := n.Watermark(lead)
		if wm.Before(prev) {
			t.Fatalf("watermark moved back from %v to %v", prev, wm)
		}
		prev = wm
	}
	if !prev.Equal(t0.Add(9 * time.Minute)) {
		t.Errorf("final watermark = %v", prev)
	}
}

func TestCancelOnRemoval(t *testing.T) {
	cal := calendar.New()
	cal.UpdateEvents([]*domain.Event{appointment(t, "meeting", t0.Add(8*time.Minute))}, "caldav")
	timers := newFakeTimers()
	out := &sent{}
	n := NewNotifier(cal, timers, []time.Duration{5 * time.Minute}, true, out.send)
	n.Reset(t0)
	n.Scan(t0)

	cal.UpdateEvents(nil, "caldav")
	n.Scan(t0.Add(time.Minute))

	if len(timers.jobs) != 0 || n.Armed() != 0 {
		t.Errorf("timer for removed event survived: jobs=%d armed=%d", len(timers.jobs), n.Armed())
	}
}

func TestRemovedBeforeRescanIsNotSent(t *testing.T) {
	cal := calendar.New()
	cal.UpdateEvents([]*domain.Event{appointment(t, "meeting", t0.Add(8*time.Minute))}, "caldav")
	timers := newFakeTimers()
	out := &sent{}
	n := NewNotifier(cal, timers, []time.Duration{5 * time.Minute}, true, out.send)
	n.Reset(t0)
	n.Scan(t0)

	cal.DelEvents("caldav")
	timers.runAll()
	if len(out.events) != 0 {
		t.Errorf("notice sent for removed event")
	}
}

func TestKeepStaleTimersWhenConfigured(t *testing.T) {
	cal := calendar.New()
	cal.UpdateEvents([]*domain.Event{appointment(t, "meeting", t0.Add(8*time.Minute))}, "caldav")
	timers := newFakeTimers()
	out := &sent{}
	n := NewNotifier(cal, timers, []time.Duration{5 * time.Minute}, false, out.send)
	n.Reset(t0)
	n.Scan(t0)

	cal.UpdateEvents(nil, "caldav")
	n.Scan(t0.Add(time.Minute))
	timers.runAll()

	if len(out.events) != 1 || out.events[0].Headline != "meeting" {
		t.Errorf("sent %v", out.events)
	}
}

func TestFireSendsCurrentEvent(t *testing.T) {
	cal := calendar.New()
	cal.UpdateEvents([]*domain.Event{appointment(t, "meeting", t0.Add(8*time.Minute))}, "org")
	timers := newFakeTimers()
	out := &sent{}
	n := NewNotifier(cal, timers, []time.Duration{5 * time.Minute}, true, out.send)
	n.Reset(t0)
	n.Scan(t0)

	fresh := appointment(t, "meeting", t0.Add(8*time.Minute))
	fresh.Body = "room 4"
	cal.UpdateEvents([]*domain.Event{fresh}, "org")
	timers.runAll()

	if len(out.events) != 1 || out.events[0] != fresh {
		t.Errorf("sent %v, want the rescanned event", out.events)
	}
	if n.Armed() != 0 {
		t.Errorf("Armed = %d after firing", n.Armed())
	}
}
