// Package core is the calendar plugin. It owns the shared calendar, answers
// the agenda and search commands and reminds the boss about appointments.
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tazhate/orgassist/config"
	"github.com/tazhate/orgassist/internal/assistant"
	"github.com/tazhate/orgassist/internal/calendar"
	"github.com/tazhate/orgassist/internal/domain"
	"github.com/tazhate/orgassist/internal/logging"
	"github.com/tazhate/orgassist/internal/scheduler"
	"github.com/tazhate/orgassist/internal/templates"
)

const Name = "calendar"

type AgendaConfig struct {
	Times                      []string `yaml:"times"`
	HorizonUnfinished          float64  `yaml:"horizon_unfinished"` // hours
	HorizonIncoming            float64  `yaml:"horizon_incoming"`   // hours
	ListUnfinishedAppointments bool     `yaml:"list_unfinished_appointments"`
	AgendaTemplatePath         string   `yaml:"agenda_template_path"`
	NoticeTemplatePath         string   `yaml:"notice_template_path"`
}

type Config struct {
	NotifyPeriod    []int        `yaml:"notify_period"` // minutes
	ScanInterval    int          `yaml:"scan_interval"` // seconds
	CancelOnRemoval bool         `yaml:"cancel_on_removal"`
	Agenda          AgendaConfig `yaml:"agenda"`
}

func DefaultConfig() Config {
	return Config{
		NotifyPeriod:    []int{5, 20},
		ScanInterval:    60,
		CancelOnRemoval: true,
		Agenda: AgendaConfig{
			Times:             []string{"7:00", "12:00"},
			HorizonUnfinished: 24,
			HorizonIncoming:   720,
		},
	}
}

func (c *Config) validate() error {
	key := "plugins." + Name
	if c.ScanInterval <= 0 {
		return config.Errorf(key+".scan_interval", "must be positive, got %d", c.ScanInterval)
	}
	for _, p := range c.NotifyPeriod {
		if p <= 0 {
			return config.Errorf(key+".notify_period", "lead times must be positive, got %d", p)
		}
	}
	for _, t := range c.Agenda.Times {
		if _, err := scheduler.DailySpec(t); err != nil {
			return config.Errorf(key+".agenda.times", "invalid agenda time '%s', use HH:MM format", t)
		}
	}
	if c.Agenda.HorizonUnfinished < 0 || c.Agenda.HorizonIncoming < 0 {
		return config.Errorf(key+".agenda", "horizons can't be negative")
	}
	return nil
}

// Plugin is the calendar core.
type Plugin struct {
	a   *assistant.Assistant
	cfg Config

	cal      *calendar.Calendar
	notifier *Notifier
	agenda   templates.Source
	notice   templates.Source
}

// New is the assistant.Factory of the calendar plugin.
func New(a *assistant.Assistant, pc config.Plugin) (assistant.Plugin, error) {
	cfg := DefaultConfig()
	if err := pc.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Plugin{
		a:      a,
		cfg:    cfg,
		agenda: templates.Source{Name: "Agenda", Path: config.ExpandPath(cfg.Agenda.AgendaTemplatePath), Default: templates.Agenda},
		notice: templates.Source{Name: "Notice", Path: config.ExpandPath(cfg.Agenda.NoticeTemplatePath), Default: templates.Notice},
	}
	for _, src := range []templates.Source{p.agenda, p.notice} {
		if err := src.Check(); err != nil {
			return nil, config.Errorf("plugins."+Name+".agenda", "unable to open template: %v", err)
		}
	}
	return p, nil
}

// Register creates the calendar, publishes it and binds the commands.
func (p *Plugin) Register() error {
	p.cal = calendar.New()
	p.a.SetCalendar(p.cal)

	leads := make([]time.Duration, len(p.cfg.NotifyPeriod))
	for i, m := range p.cfg.NotifyPeriod {
		leads[i] = time.Duration(m) * time.Minute
	}
	var timers Timers
	if s := p.a.Scheduler(); s != nil {
		timers = s
	}
	p.notifier = NewNotifier(p.cal, timers, leads, p.cfg.CancelOnRemoval, p.sendNotice)

	commands := []struct {
		names []string
		h     assistant.HandlerFunc
	}{
		{[]string{"agenda", "ag"}, p.handleAgenda},
		{[]string{"search", "s"}, p.handleSearch},
	}
	for _, c := range commands {
		if err := p.a.Register(c.names, c.h); err != nil {
			return err
		}
	}
	return nil
}

// Initialize starts the periodic scan and the daily agenda pushes.
func (p *Plugin) Initialize(ctx context.Context) error {
	s := p.a.Scheduler()
	if s == nil {
		return fmt.Errorf("calendar plugin needs a scheduler")
	}
	p.notifier.Reset(p.a.Now())

	s.Every(time.Duration(p.cfg.ScanInterval)*time.Second, p.scan)
	for _, t := range p.cfg.Agenda.Times {
		if _, err := s.DailyAt(t, p.sendAgenda); err != nil {
			return config.Errorf("plugins."+Name+".agenda.times", "%v", err)
		}
	}
	logging.Info("calendar", "notifications %v min before, agenda at %s",
		p.cfg.NotifyPeriod, strings.Join(p.cfg.Agenda.Times, ", "))
	return nil
}

func (p *Plugin) Calendar() *calendar.Calendar {
	return p.cal
}

func (p *Plugin) scan() {
	if n := p.notifier.Scan(p.a.Now()); n > 0 {
		logging.Debug("calendar", "armed %d notifications", n)
	}
}

// Agenda renders the current agenda. Render failures degrade to a fixed
// text.
func (p *Plugin) Agenda() string {
	now := p.a.Now()
	horizonUnfinished := now.Add(-hours(p.cfg.Agenda.HorizonUnfinished))
	horizonIncoming := now.Add(hours(p.cfg.Agenda.HorizonIncoming))

	agenda, err := p.cal.GetAgenda(p.agenda, horizonIncoming, horizonUnfinished,
		p.cfg.Agenda.ListUnfinishedAppointments, now)
	if err != nil {
		logging.Error("calendar", "agenda: %v", err)
		return "Error while rendering Agenda template."
	}
	return agenda
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func (p *Plugin) sendAgenda() {
	if err := p.a.TellBoss(p.Agenda()); err != nil {
		logging.Error("calendar", "send agenda: %v", err)
	}
}

func (p *Plugin) sendNotice(e *domain.Event) {
	text, err := RenderNotice(p.notice, e, p.a.Now())
	if err != nil {
		logging.Error("calendar", "notice for %v: %v", e, err)
		text = "Error while rendering Notice template."
	}
	if err := p.a.TellBoss(text); err != nil {
		logging.Error("calendar", "send notice: %v", err)
	}
}

func (p *Plugin) handleAgenda(msg *assistant.Message) assistant.Context {
	agenda := p.Agenda()
	logging.Debug("calendar", "sending agenda: %s", logging.Truncate(agenda, 120))
	msg.Respond(agenda)
	return nil
}

func (p *Plugin) handleSearch(msg *assistant.Message) assistant.Context {
	ctx := NewSearchContext(p.cal.Events())
	if done := ctx.Handle(msg); done {
		return nil
	}
	return ctx
}
