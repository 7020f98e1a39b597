// Package ics reads iCalendar subscriptions and files into the shared
// calendar.
package ics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/orgassist/config"
	"github.com/tazhate/orgassist/internal/assistant"
	"github.com/tazhate/orgassist/internal/domain"
	"github.com/tazhate/orgassist/internal/logging"
	"github.com/tazhate/orgassist/internal/recur"
)

const Name = "ics"

var ErrNoCalendar = errors.New("no calendar plugin configured")

type SourceConfig struct {
	ID   string `yaml:"id"`
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

type Config struct {
	Sources         []SourceConfig `yaml:"sources"`
	HorizonIncoming float64        `yaml:"horizon_incoming"` // hours
	RefreshInterval int            `yaml:"refresh_interval"` // seconds
}

func DefaultConfig() Config {
	return Config{
		HorizonIncoming: 72,
		RefreshInterval: 900,
	}
}

func (c *Config) validate() error {
	key := "plugins." + Name
	if len(c.Sources) == 0 {
		return config.Errorf(key+".sources", "at least one source is required")
	}
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.ID == "" {
			return config.Errorf(fmt.Sprintf("%s.sources[%d].id", key, i), "is required")
		}
		if seen[s.ID] {
			return config.Errorf(fmt.Sprintf("%s.sources[%d].id", key, i), "duplicate id %q", s.ID)
		}
		seen[s.ID] = true
		if (s.URL == "") == (s.Path == "") {
			return config.Errorf(fmt.Sprintf("%s.sources[%d]", key, i), "exactly one of url or path must be set")
		}
	}
	if c.RefreshInterval <= 0 {
		return config.Errorf(key+".refresh_interval", "must be positive, got %d", c.RefreshInterval)
	}
	if c.HorizonIncoming <= 0 {
		return config.Errorf(key+".horizon_incoming", "must be positive, got %v", c.HorizonIncoming)
	}
	return nil
}

// Tag is the calendar tag of the events read from a source.
func (s SourceConfig) Tag() string {
	return "ics:" + s.ID
}

type Plugin struct {
	a       *assistant.Assistant
	cfg     Config
	fetcher *Fetcher

	mu sync.Mutex
}

// New is the assistant.Factory of the ICS plugin.
func New(a *assistant.Assistant, pc config.Plugin) (assistant.Plugin, error) {
	cfg := DefaultConfig()
	if err := pc.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return NewWithFetcher(a, cfg, NewFetcher(nil)), nil
}

func NewWithFetcher(a *assistant.Assistant, cfg Config, f *Fetcher) *Plugin {
	return &Plugin{a: a, cfg: cfg, fetcher: f}
}

func (p *Plugin) Register() error {
	return p.a.Register([]string{"ics.refresh"}, assistant.HandlerFunc(p.handleRefresh))
}

// Initialize loads every source once and schedules the periodic refresh.
func (p *Plugin) Initialize(ctx context.Context) error {
	if p.a.Calendar() == nil {
		return ErrNoCalendar
	}
	if _, err := p.Refresh(ctx); err != nil {
		logging.Error("ics", "initial refresh: %v", err)
	}
	if s := p.a.Scheduler(); s != nil {
		s.Every(time.Duration(p.cfg.RefreshInterval)*time.Second, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := p.Refresh(ctx); err != nil {
				logging.Error("ics", "refresh: %v", err)
			}
		})
	}
	return nil
}

// Refresh reloads every source. A failing source keeps its previous events;
// the failures are joined into the returned error.
func (p *Plugin) Refresh(ctx context.Context) (int, error) {
	cal := p.a.Calendar()
	if cal == nil {
		return 0, ErrNoCalendar
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.a.Now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := now.Add(time.Duration(p.cfg.HorizonIncoming * float64(time.Hour)))

	total := 0
	var errs []error
	for _, src := range p.cfg.Sources {
		events, err := p.load(ctx, src, from, to, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
			continue
		}
		cal.UpdateEvents(events, src.Tag())
		total += len(events)
	}
	logging.Info("ics", "read %d events from %d sources", total, len(p.cfg.Sources)-len(errs))
	return total, errors.Join(errs...)
}

func (p *Plugin) load(ctx context.Context, src SourceConfig, from, to, now time.Time) ([]*domain.Event, error) {
	body, cached, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	if cached {
		logging.Debug("ics", "source %s unchanged or unreachable, using cached copy", src.ID)
	}
	entries, err := Parse(body, p.a.Location())
	if err != nil {
		return nil, err
	}

	var events []*domain.Event
	for _, entry := range entries {
		if entry.Status == "CANCELLED" {
			continue
		}
		converted, err := Convert(entry, src, from, to, now)
		if err != nil {
			logging.Warn("ics", "source %s event %q: %v", src.ID, entry.UID, err)
			continue
		}
		events = append(events, converted...)
	}
	return events, nil
}

// Convert returns one calendar event per occurrence of entry in [from, to].
func Convert(entry Entry, src SourceConfig, from, to, now time.Time) ([]*domain.Event, error) {
	occurrences, err := recur.Expand(entry.Entry, from, to)
	if err != nil {
		return nil, err
	}

	headline := entry.Summary
	if entry.Location != "" {
		headline = "[" + entry.Location + "] " + headline
	}
	var events []*domain.Event
	for _, occ := range occurrences {
		date, err := domain.NewRange(occ.Start.In(now.Location()), occ.End.In(now.Location()), entry.AllDay)
		if err != nil {
			return nil, err
		}
		e := domain.NewEvent(headline, nil)
		e.Body = entry.Description
		e.Meta["uid"] = entry.UID
		if src.Name != "" {
			e.AddTags(tagName(src.Name))
		}
		if err := e.AddDate(date, now); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func tagName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

func (p *Plugin) handleRefresh(msg *assistant.Message) assistant.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := p.Refresh(ctx)
	reply := fmt.Sprintf("Read %d events from %d subscriptions.", n, len(p.cfg.Sources))
	if err != nil {
		logging.Error("ics", "refresh: %v", err)
		reply += "\nSome failed: " + err.Error()
	}
	msg.Respond(reply)
	return nil
}
