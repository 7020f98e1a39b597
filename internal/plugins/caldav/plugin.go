// Package caldav feeds meetings from a CalDAV calendar into the shared
// calendar.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/orgassist/config"
	"github.com/tazhate/orgassist/internal/assistant"
	client "github.com/tazhate/orgassist/internal/clients/caldav"
	"github.com/tazhate/orgassist/internal/domain"
	"github.com/tazhate/orgassist/internal/logging"
	"github.com/tazhate/orgassist/internal/recur"
)

const (
	Name = "caldav"
	Tag  = "caldav"
)

var ErrNoCalendar = errors.New("no calendar plugin configured")

type Config struct {
	URL             string  `yaml:"url"`
	Username        string  `yaml:"username"`
	Password        string  `yaml:"password"`
	Calendar        string  `yaml:"calendar"`
	HorizonIncoming float64 `yaml:"horizon_incoming"` // hours
	RefreshInterval int     `yaml:"refresh_interval"` // seconds
	MyEmail         string  `yaml:"my_email"`
}

func DefaultConfig() Config {
	return Config{
		HorizonIncoming: 24,
		RefreshInterval: 600,
	}
}

func (c *Config) validate() error {
	key := "plugins." + Name
	for _, f := range []struct{ name, value string }{
		{"url", c.URL},
		{"username", c.Username},
		{"password", c.Password},
	} {
		if strings.TrimSpace(f.value) == "" {
			return config.Errorf(key+"."+f.name, "is required")
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

// Source returns the events of one calendar collection.
type Source interface {
	GetEvents(ctx context.Context, calendarPath string, from, to time.Time) ([]client.Event, error)
}

// Plugin periodically mirrors a CalDAV calendar.
type Plugin struct {
	a      *assistant.Assistant
	cfg    Config
	source Source

	mu       sync.Mutex // one refresh at a time
	calendar string
}

// New is the assistant.Factory of the CalDAV plugin.
func New(a *assistant.Assistant, pc config.Plugin) (assistant.Plugin, error) {
	cfg := DefaultConfig()
	if err := pc.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.Password = os.ExpandEnv(cfg.Password)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.MyEmail = strings.ToLower(strings.TrimSpace(cfg.MyEmail))
	return &Plugin{
		a:        a,
		cfg:      cfg,
		source:   client.NewClient(cfg.URL, cfg.Username, cfg.Password, a.Location()),
		calendar: cfg.Calendar,
	}, nil
}

// NewWithSource builds the plugin around an already connected source.
func NewWithSource(a *assistant.Assistant, cfg Config, src Source) *Plugin {
	cfg.MyEmail = strings.ToLower(strings.TrimSpace(cfg.MyEmail))
	return &Plugin{a: a, cfg: cfg, source: src, calendar: cfg.Calendar}
}

func (p *Plugin) Register() error {
	return p.a.Register([]string{"caldav.refresh"}, assistant.HandlerFunc(p.handleRefresh))
}

// Initialize reads the calendar once and schedules the periodic refresh.
// A failing first read is logged; the next refresh retries.
func (p *Plugin) Initialize(ctx context.Context) error {
	if p.a.Calendar() == nil {
		return ErrNoCalendar
	}
	if p.calendar == "" {
		if err := p.discover(ctx); err != nil {
			logging.Warn("caldav", "calendar discovery: %v", err)
		}
	}
	if _, err := p.Refresh(ctx); err != nil {
		logging.Error("caldav", "initial refresh: %v", err)
	}

	if s := p.a.Scheduler(); s != nil {
		s.Every(time.Duration(p.cfg.RefreshInterval)*time.Second, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := p.Refresh(ctx); err != nil {
				logging.Error("caldav", "refresh: %v", err)
			}
		})
	}
	return nil
}

func (p *Plugin) discover(ctx context.Context) error {
	d, ok := p.source.(interface {
		DiscoverCalendars(ctx context.Context) ([]client.Calendar, error)
	})
	if !ok {
		return nil
	}
	cals, err := d.DiscoverCalendars(ctx)
	if err != nil {
		return err
	}
	if len(cals) == 0 {
		return fmt.Errorf("server has no calendars")
	}
	p.mu.Lock()
	p.calendar = cals[0].Path
	p.mu.Unlock()
	logging.Info("caldav", "using calendar %q (%s)", cals[0].DisplayName, cals[0].Path)
	return nil
}

// Refresh replaces the CalDAV events in the calendar and returns how many
// were read.
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

	raw, err := p.source.GetEvents(ctx, p.calendar, from, to)
	if err != nil {
		return 0, fmt.Errorf("read calendar: %w", err)
	}

	var events []*domain.Event
	for _, ev := range raw {
		if ev.Cancelled() {
			continue
		}
		converted, err := Convert(ev, p.cfg.MyEmail, from, to, now)
		if err != nil {
			logging.Warn("caldav", "event %q: %v", ev.UID, err)
			continue
		}
		events = append(events, converted...)
	}
	cal.UpdateEvents(events, Tag)
	logging.Info("caldav", "read %d events", len(events))
	return len(events), nil
}

func (p *Plugin) handleRefresh(msg *assistant.Message) assistant.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := p.Refresh(ctx)
	if err != nil {
		logging.Error("caldav", "refresh: %v", err)
		msg.Respond("Unable to read your calendar: " + err.Error())
		return nil
	}
	msg.Respond(fmt.Sprintf("Read %d events from your calendar.", n))
	return nil
}

// Convert turns one CalDAV event into calendar events, one per occurrence
// within [from, to].
func Convert(ev client.Event, myEmail string, from, to, now time.Time) ([]*domain.Event, error) {
	occurrences, err := recur.Expand(recur.Entry{
		Start:   ev.StartTime,
		End:     ev.EndTime,
		AllDay:  ev.AllDay,
		RRule:   ev.RRule,
		ExDates: ev.ExDates,
	}, from, to)
	if err != nil {
		return nil, err
	}

	headline, priority := Headline(ev, myEmail)
	var events []*domain.Event
	for _, occ := range occurrences {
		date, err := domain.NewRange(occ.Start, occ.End, ev.AllDay)
		if err != nil {
			return nil, err
		}
		e := domain.NewEvent(headline, nil)
		e.Priority = priority
		e.Body = ev.Description
		e.Meta["uid"] = ev.UID
		if err := e.AddDate(date, now); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// Headline describes the meeting from the point of view of myEmail and
// rates it: A when it is ours, B when we are required, C otherwise.
func Headline(ev client.Event, myEmail string) (string, domain.Priority) {
	organizer := client.Attendee{Name: "unknown", Email: "none", Required: true}
	if ev.Organizer != nil {
		organizer = *ev.Organizer
		if organizer.Name == "" {
			organizer.Name = organizer.Email
		}
	}

	yourMeeting := myEmail != "" && organizer.Email == myEmail
	required := false
	for _, a := range ev.Attendees {
		if myEmail != "" && a.Email == myEmail {
			required = a.Required
			break
		}
	}

	var parts []string
	if ev.Location != "" {
		parts = append(parts, "["+ev.Location+"]")
	}
	priority := domain.PriorityC
	switch {
	case yourMeeting:
		parts = append(parts, "Your meeting")
		priority = domain.PriorityA
	case required:
		parts = append(parts, fmt.Sprintf("Required by %s for", organizer.Name))
		priority = domain.PriorityB
	default:
		parts = append(parts, fmt.Sprintf("Informed by %s about", organizer.Name))
	}
	parts = append(parts, `"`+ev.Summary+`"`, fmt.Sprintf("(%d attending)", len(ev.Attendees)))
	return strings.Join(parts, " "), priority
}
