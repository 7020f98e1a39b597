// Package tasks mirrors dated tasks from a family task database into the
// shared calendar.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tazhate/orgassist/config"
	"github.com/tazhate/orgassist/internal/assistant"
	"github.com/tazhate/orgassist/internal/domain"
	"github.com/tazhate/orgassist/internal/logging"
	"github.com/tazhate/orgassist/internal/storage"
)

const (
	Name = "tasks"
	Tag  = "tasks"
)

var ErrNoCalendar = errors.New("no calendar plugin configured")

type Config struct {
	Database     string  `yaml:"database"`
	ScanInterval int     `yaml:"scan_interval_s"` // seconds
	DoneHorizon  float64 `yaml:"done_horizon"`    // hours to keep finished tasks
}

func DefaultConfig() Config {
	return Config{ScanInterval: 300, DoneHorizon: 24}
}

func (c *Config) validate() error {
	key := "plugins." + Name
	if c.Database == "" {
		return config.Errorf(key+".database", "is required")
	}
	if c.ScanInterval <= 0 {
		return config.Errorf(key+".scan_interval_s", "must be positive, got %d", c.ScanInterval)
	}
	if c.DoneHorizon < 0 {
		return config.Errorf(key+".done_horizon", "can't be negative")
	}
	return nil
}

// Store lists dated tasks.
type Store interface {
	ListDatedTasks(doneSince time.Time) ([]*storage.Task, error)
}

type Plugin struct {
	a      *assistant.Assistant
	cfg    Config
	states *domain.StateTable

	mu    sync.Mutex
	store Store
}

// New is the assistant.Factory of the tasks plugin. The database is opened
// in Initialize.
func New(a *assistant.Assistant, pc config.Plugin) (assistant.Plugin, error) {
	cfg := DefaultConfig()
	if err := pc.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.Database = config.ExpandPath(cfg.Database)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Plugin{a: a, cfg: cfg, states: domain.DefaultStates()}, nil
}

func NewWithStore(a *assistant.Assistant, cfg Config, store Store) *Plugin {
	return &Plugin{a: a, cfg: cfg, states: domain.DefaultStates(), store: store}
}

func (p *Plugin) Register() error {
	return p.a.Register([]string{"tasks.refresh"}, assistant.HandlerFunc(p.handleRefresh))
}

func (p *Plugin) Initialize(ctx context.Context) error {
	if p.a.Calendar() == nil {
		return ErrNoCalendar
	}
	if p.store == nil {
		s, err := storage.Open(p.cfg.Database)
		if err != nil {
			return config.Errorf("plugins."+Name+".database", "%v", err)
		}
		p.store = s
	}
	if _, err := p.Refresh(); err != nil {
		logging.Error("tasks", "initial refresh: %v", err)
	}
	if s := p.a.Scheduler(); s != nil {
		s.Every(time.Duration(p.cfg.ScanInterval)*time.Second, func() {
			if _, err := p.Refresh(); err != nil {
				logging.Error("tasks", "refresh: %v", err)
			}
		})
	}
	return nil
}

// Refresh replaces the task events in the calendar.
func (p *Plugin) Refresh() (int, error) {
	cal := p.a.Calendar()
	if cal == nil {
		return 0, ErrNoCalendar
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.a.Now()
	tasks, err := p.store.ListDatedTasks(now.Add(-time.Duration(p.cfg.DoneHorizon * float64(time.Hour))))
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}
	events := make([]*domain.Event, 0, len(tasks))
	for _, t := range tasks {
		e, err := p.Convert(t, now)
		if err != nil {
			logging.Warn("tasks", "task %d: %v", t.ID, err)
			continue
		}
		events = append(events, e)
	}
	cal.UpdateEvents(events, Tag)
	logging.Debug("tasks", "read %d tasks", len(events))
	return len(events), nil
}

// Convert maps a task to an event with a deadline. A due date at midnight
// is a whole-day deadline.
func (p *Plugin) Convert(t *storage.Task, now time.Time) (*domain.Event, error) {
	if t.DueDate == nil {
		return nil, fmt.Errorf("task has no due date")
	}
	stateName := "TODO"
	if t.IsDone() {
		stateName = "DONE"
	}
	state, err := p.states.Lookup(stateName)
	if err != nil {
		return nil, err
	}

	e := domain.NewEvent(t.Title, state)
	e.Body = t.Description
	e.Priority = priority(t.Priority)
	e.Meta["task_id"] = t.ID

	due := t.DueDate.In(now.Location())
	var date domain.EventDate
	if due.Hour() == 0 && due.Minute() == 0 && due.Second() == 0 {
		date, err = domain.NewDay(due, domain.Deadline)
	} else {
		date, err = domain.NewDateTime(due, domain.Deadline)
	}
	if err != nil {
		return nil, err
	}
	if err := e.AddDate(date, now); err != nil {
		return nil, err
	}
	return e, nil
}

func priority(p string) domain.Priority {
	switch p {
	case storage.PriorityUrgent:
		return domain.PriorityA
	case storage.PriorityWeek:
		return domain.PriorityB
	case storage.PrioritySomeday:
		return domain.PriorityC
	default:
		return domain.PriorityNone
	}
}

func (p *Plugin) handleRefresh(msg *assistant.Message) assistant.Context {
	if p.store == nil {
		msg.Respond("Task database is not open yet.")
		return nil
	}
	n, err := p.Refresh()
	if err != nil {
		logging.Error("tasks", "refresh: %v", err)
		msg.Respond("Unable to read tasks: " + err.Error())
		return nil
	}
	msg.Respond(fmt.Sprintf("Read %d tasks.", n))
	return nil
}
