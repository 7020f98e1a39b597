package core

import (
	"strings"
	"testing"
	"time"

	"github.com/tazhate/orgassist/internal/assistant"
	"github.com/tazhate/orgassist/internal/domain"
)

func TestSearchNarrowsDown(t *testing.T) {
	dentist := appointment(t, "Dentist", t0.Add(time.Hour))
	dentist.Body = "Call the CLINIC first"
	standup := appointment(t, "Standup", t0.Add(2*time.Hour))
	clinic := domain.NewEvent("Clinic bills", nil)

	s := NewSearchContext([]*domain.Event{dentist, standup, clinic})
	r := &replies{}

	if done := s.Handle(assistant.NewMessage("clinic", "boss", r.send)); done {
		t.Fatal("search closed with matches left")
	}
	want := "2 matches for 'clinic':\n 1. TODO Dentist\n   Call the CLINIC first\n 2. Clinic bills"
	if r.lines[0] != want {
		t.Errorf("first reply:\n%s\nwant:\n%s", r.lines[0], want)
	}

	s.Handle(assistant.NewMessage("bills", "boss", r.send))
	if !strings.HasPrefix(r.lines[1], "1 dropped, 1 matches for 'clinic bills':") {
		t.Errorf("second reply = %q", r.lines[1])
	}
	if s.Describe() != "Search for: clinic bills" {
		t.Errorf("Describe = %q", s.Describe())
	}

	if done := s.Handle(assistant.NewMessage("zzz", "boss", r.send)); !done {
		t.Error("search should close when nothing matches")
	}
	if r.lines[2] != "'clinic bills zzz' not found - closing search." {
		t.Errorf("last reply = %q", r.lines[2])
	}
}

func TestSearchLimitsOutput(t *testing.T) {
	var events []*domain.Event
	for i := 0; i < 15; i++ {
		e := domain.NewEvent("task", nil)
		e.Body = strings.Repeat("x", 250)
		events = append(events, e)
	}
	s := NewSearchContext(events)
	r := &replies{}
	s.Handle(assistant.NewMessage("task", "boss", r.send))

	out := r.lines[0]
	if strings.Contains(out, "11. task") || !strings.Contains(out, "10. task") {
		t.Errorf("expected exactly ten results:\n%s", out)
	}
	if !strings.Contains(out, "   "+strings.Repeat("x", 200)+"...") {
		t.Error("long body not trimmed")
	}
}

func TestSearchDoesNotTouchCalendarSlice(t *testing.T) {
	events := []*domain.Event{domain.NewEvent("a", nil), domain.NewEvent("b", nil)}
	s := NewSearchContext(events)
	s.Handle(assistant.NewMessage("b", "boss", (&replies{}).send))
	if events[0].Headline != "a" || events[1].Headline != "b" {
		t.Error("search reordered the caller's slice")
	}
}

func TestFormatDelta(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Minute, "now"},
		{0, "now"},
		{10 * time.Second, "1m"},
		{49 * time.Second, "1m"},
		{90 * time.Second, "2m"},
		{4*time.Minute + 20*time.Second, "4m"},
		{20 * time.Minute, "20m"},
		{time.Hour, "1h"},
		{time.Hour + 29*time.Second, "1h"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{59*time.Minute + 45*time.Second, "1h"},
	}
	for _, tt := range tests {
		if got := FormatDelta(tt.d); got != tt.want {
			t.Errorf("FormatDelta(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
