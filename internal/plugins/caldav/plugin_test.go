package caldav

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tazhate/orgassist/config"
	"github.com/tazhate/orgassist/internal/assistant"
	"github.com/tazhate/orgassist/internal/calendar"
	client "github.com/tazhate/orgassist/internal/clients/caldav"
	"github.com/tazhate/orgassist/internal/domain"
	"github.com/tazhate/orgassist/internal/scheduler"
)

var t0 = time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

const me = "me@example.com"

type fakeSource struct {
	events   []client.Event
	err      error
	path     string
	from, to time.Time
}

func (f *fakeSource) GetEvents(_ context.Context, path string, from, to time.Time) ([]client.Event, error) {
	f.path, f.from, f.to = path, from, to
	return f.events, f.err
}

func newAssistant() *assistant.Assistant {
	a := assistant.New("test", time.UTC, scheduler.New(time.UTC),
		assistant.WithClock(func() time.Time { return t0 }))
	a.SetCalendar(calendar.New())
	return a
}

func meeting(summary string, start time.Time) client.Event {
	return client.Event{
		UID:       summary,
		Summary:   summary,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Organizer: &client.Attendee{Name: "Alice", Email: "alice@example.com", Required: true},
	}
}

func TestHeadline(t *testing.T) {
	base := meeting("Planning", t0)
	base.Attendees = []client.Attendee{{Name: "Me", Email: me, Required: true}, {Email: "bob@example.com"}}

	mine := base
	mine.Organizer = &client.Attendee{Name: "Me", Email: me}
	mine.Location = "Room 1"

	optional := base
	optional.Attendees = []client.Attendee{{Name: "Me", Email: me, Required: false}}

	orphan := base
	orphan.Organizer = nil
	orphan.Attendees = nil

	tests := []struct {
		name     string
		ev       client.Event
		want     string
		priority domain.Priority
	}{
		{"required", base, `Required by Alice for "Planning" (2 attending)`, domain.PriorityB},
		{"own", mine, `[Room 1] Your meeting "Planning" (2 attending)`, domain.PriorityA},
		{"optional", optional, `Informed by Alice about "Planning" (1 attending)`, domain.PriorityC},
		{"no organizer", orphan, `Informed by unknown about "Planning" (0 attending)`, domain.PriorityC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, prio := Headline(tt.ev, me)
			if got != tt.want || prio != tt.priority {
				t.Errorf("Headline = %q/%q, want %q/%q", got, prio, tt.want, tt.priority)
			}
		})
	}
}

func TestConvertExpandsRecurrences(t *testing.T) {
	ev := meeting("Standup", t0.Add(time.Hour))
	ev.RRule = "FREQ=DAILY"
	ev.ExDates = []time.Time{t0.Add(25 * time.Hour)}
	ev.Description = "daily sync"

	events, err := Convert(ev, me, t0, t0.Add(72*time.Hour), t0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(events))
	}
	d := events[0].RelevantDate()
	if d == nil || d.Category() != domain.Range || !d.IsAppointment() || !d.End().Equal(t0.Add(2*time.Hour)) {
		t.Errorf("date = %v", d)
	}
	if events[0].Body != "daily sync" || events[1].RelevantDate().Date().Sub(t0) != 49*time.Hour {
		t.Errorf("events = %v, %v", events[0], events[1])
	}
}

func TestConvertAllDay(t *testing.T) {
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	ev := client.Event{Summary: "Offsite", StartTime: day, EndTime: day.AddDate(0, 0, 1), AllDay: true}

	events, err := Convert(ev, me, day, day.AddDate(0, 0, 2), t0)
	if err != nil || len(events) != 1 {
		t.Fatalf("Convert = %v, %v", events, err)
	}
	if events[0].RelevantDate().IsAppointment() {
		t.Error("all-day event became an appointment")
	}
}

func TestRefresh(t *testing.T) {
	a := newAssistant()
	cancelled := meeting("Dropped", t0.Add(3*time.Hour))
	cancelled.Status = "CANCELLED"
	src := &fakeSource{events: []client.Event{
		meeting("Review", t0.Add(2*time.Hour)),
		cancelled,
		{UID: "bad", Summary: "Bad rule", StartTime: t0, EndTime: t0, RRule: "FREQ=SOMETIMES"},
	}}
	p := NewWithSource(a, Config{Calendar: "/cal/work/", HorizonIncoming: 24, RefreshInterval: 600}, src)

	n, err := p.Refresh(t.Context())
	if err != nil || n != 1 {
		t.Fatalf("Refresh = %d, %v", n, err)
	}
	if src.path != "/cal/work/" || !src.from.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)) ||
		!src.to.Equal(t0.Add(24*time.Hour)) {
		t.Errorf("query = %s [%v, %v]", src.path, src.from, src.to)
	}
	events := a.Calendar().Events()
	if len(events) != 1 || events[0].CalendarTag() != Tag {
		t.Errorf("calendar = %v", events)
	}

	src.err = errors.New("server down")
	if _, err := p.Refresh(t.Context()); err == nil {
		t.Error("expected error")
	}
	if a.Calendar().Len() != 1 {
		t.Error("failed refresh must keep the previous events")
	}
}

func TestRefreshCommand(t *testing.T) {
	a := newAssistant()
	src := &fakeSource{events: []client.Event{meeting("A", t0.Add(time.Hour)), meeting("B", t0.Add(2*time.Hour))}}
	p := NewWithSource(a, DefaultConfig(), src)
	if err := p.Register(); err != nil {
		t.Fatal(err)
	}

	var got []string
	a.Dispatch(assistant.NewMessage("caldav.refresh", "boss", func(text string) error {
		got = append(got, text)
		return nil
	}))
	if len(got) != 1 || got[0] != "Read 2 events from your calendar." {
		t.Errorf("replies = %q", got)
	}
}

func TestRefreshWithoutCalendar(t *testing.T) {
	a := assistant.New("test", time.UTC, nil, assistant.WithClock(func() time.Time { return t0 }))
	p := NewWithSource(a, DefaultConfig(), &fakeSource{})
	if _, err := p.Refresh(t.Context()); !errors.Is(err, ErrNoCalendar) {
		t.Errorf("err = %v", err)
	}
	if err := p.Initialize(t.Context()); !errors.Is(err, ErrNoCalendar) {
		t.Errorf("Initialize err = %v", err)
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing url", "\n    username: me\n    password: x\n"},
		{"missing password", "\n    url: https://dav\n    username: me\n"},
		{"bad interval", "\n    url: https://dav\n    username: me\n    password: x\n    refresh_interval: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte("plugins:\n  caldav:" + tt.body))
			if err != nil {
				t.Fatal(err)
			}
			_, err = New(newAssistant(), cfg.Plugins[0])
			var ce *config.ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("err = %v, want ConfigError", err)
			}
		})
	}
}
