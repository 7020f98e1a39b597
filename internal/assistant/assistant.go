// Package assistant ties the command dispatcher, the plugins and the
// channels used to reach the boss together.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tazhate/orgassist/config"
	"github.com/tazhate/orgassist/internal/calendar"
	"github.com/tazhate/orgassist/internal/logging"
	"github.com/tazhate/orgassist/internal/scheduler"
)

type namedPlugin struct {
	name   string
	plugin Plugin
}

// Assistant serves a single boss.
type Assistant struct {
	Name string

	loc      *time.Location
	clock    func() time.Time
	dispatch *Dispatcher
	sched    *scheduler.Scheduler

	mu       sync.RWMutex
	calendar *calendar.Calendar
	channels []func(text string) error
	plugins  []namedPlugin
}

type Option func(*Assistant)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		a.clock = now
	}
}

func New(name string, loc *time.Location, sched *scheduler.Scheduler, opts ...Option) *Assistant {
	if loc == nil {
		loc = time.UTC
	}
	a := &Assistant{
		Name:  name,
		loc:   loc,
		clock: time.Now,
		sched: sched,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.dispatch = NewDispatcher(a.Now)
	if sched != nil {
		sched.SetAnnouncer(func(text string) {
			if err := a.TellBoss(text); err != nil {
				logging.Error("assistant", "announce failure: %v", err)
			}
		})
	}
	_ = a.dispatch.Register([]string{"help"}, HandlerFunc(a.help))
	return a
}

// Now is the current time in the assistant's timezone.
func (a *Assistant) Now() time.Time {
	return a.clock().In(a.loc)
}

func (a *Assistant) Location() *time.Location {
	return a.loc
}

func (a *Assistant) Scheduler() *scheduler.Scheduler {
	return a.sched
}

func (a *Assistant) Dispatcher() *Dispatcher {
	return a.dispatch
}

// Register binds a command handler. See Dispatcher.Register.
func (a *Assistant) Register(names []string, h Handler) error {
	return a.dispatch.Register(names, h)
}

func (a *Assistant) Dispatch(msg *Message) error {
	return a.dispatch.Dispatch(msg)
}

// SetCalendar publishes the calendar shared by all plugins.
func (a *Assistant) SetCalendar(c *calendar.Calendar) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calendar = c
}

// Calendar returns nil until a plugin has published one.
func (a *Assistant) Calendar() *calendar.Calendar {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.calendar
}

// AddChannel registers an outgoing channel to the boss.
func (a *Assistant) AddChannel(send func(text string) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels = append(a.channels, send)
}

// TellBoss sends text through every registered channel.
func (a *Assistant) TellBoss(text string) error {
	a.mu.RLock()
	channels := make([]func(string) error, len(a.channels))
	copy(channels, a.channels)
	a.mu.RUnlock()

	if len(channels) == 0 {
		logging.Warn("assistant", "no channel to the boss, dropping: %s", logging.Truncate(text, 80))
		return nil
	}
	var errs []error
	for _, send := range channels {
		if err := send(text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup creates and registers every configured plugin, in configuration
// order.
func (a *Assistant) Setup(reg *Registry, plugins []config.Plugin) error {
	for _, pc := range plugins {
		factory, ok := reg.Get(pc.Name)
		if !ok {
			return config.Errorf("plugins."+pc.Name, "configured plugin '%s' is not registered", pc.Name)
		}
		p, err := factory(a, pc)
		if err != nil {
			return fmt.Errorf("create plugin %s: %w", pc.Name, err)
		}
		if err := p.Register(); err != nil {
			return fmt.Errorf("register plugin %s: %w", pc.Name, err)
		}
		a.mu.Lock()
		a.plugins = append(a.plugins, namedPlugin{name: pc.Name, plugin: p})
		a.mu.Unlock()
		logging.Info("assistant", "plugin %s instantiated", pc.Name)
	}
	return nil
}

// Initialize runs Initialize of all set up plugins concurrently.
func (a *Assistant) Initialize(ctx context.Context) error {
	a.mu.RLock()
	plugins := make([]namedPlugin, len(a.plugins))
	copy(plugins, a.plugins)
	a.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, np := range plugins {
		g.Go(func() error {
			if err := np.plugin.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize plugin %s: %w", np.name, err)
			}
			logging.Debug("assistant", "plugin %s initialized", np.name)
			return nil
		})
	}
	return g.Wait()
}

// Plugins returns the names of the set up plugins.
func (a *Assistant) Plugins() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.plugins))
	for i, np := range a.plugins {
		names[i] = np.name
	}
	return names
}

func (a *Assistant) help(msg *Message) Context {
	msg.Respond("I understand: " + strings.Join(a.dispatch.Commands(), ", ") +
		". Send \".\" to leave a conversation.")
	return nil
}
