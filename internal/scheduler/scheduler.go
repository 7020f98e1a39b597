package scheduler

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tazhate/orgassist/internal/logging"
)

// CrashNotice is sent to the boss before a panicking job takes the process
// down.
const CrashNotice = "Something just broke - help me!"

var ErrInvalidTime = errors.New("invalid time of day")

type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location

	mu       sync.Mutex
	announce func(text string)
	oneShots map[cron.EntryID]struct{}
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		loc:      loc,
		oneShots: make(map[cron.EntryID]struct{}),
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cron.PrintfLogger(log.Default())),
		cron.WithChain(s.announcePanics),
	)
	return s
}

// SetAnnouncer sets where CrashNotice goes.
func (s *Scheduler) SetAnnouncer(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announce = fn
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Every runs job each d. A run still in progress makes the next one skip.
func (s *Scheduler) Every(d time.Duration, job func()) cron.EntryID {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))).
		Then(cron.FuncJob(job))
	return s.cron.Schedule(cron.Every(d), wrapped)
}

// DailyAt runs job every day at the given "H:MM" wall-clock time.
func (s *Scheduler) DailyAt(at string, job func()) (cron.EntryID, error) {
	spec, err := DailySpec(at)
	if err != nil {
		return 0, err
	}
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("add daily job at %s: %w", at, err)
	}
	return id, nil
}

// DailySpec converts "H:MM" into a standard five-field cron spec.
func DailySpec(at string) (string, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(at), ":")
	if !ok || len(m) != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, at)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, at)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, at)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// After runs job once, d from now. The entry removes itself after the run.
func (s *Scheduler) After(d time.Duration, job func()) cron.EntryID {
	o := &once{at: time.Now().In(s.loc).Add(d)}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Holding mu until o.id is set keeps finish from seeing a zero id.
	o.id = s.cron.Schedule(o, cron.FuncJob(func() {
		defer s.finish(o)
		job()
	}))
	s.oneShots[o.id] = struct{}{}
	return o.id
}

func (s *Scheduler) finish(o *once) {
	s.mu.Lock()
	id := o.id
	delete(s.oneShots, id)
	s.mu.Unlock()
	s.cron.Remove(id)
}

// Cancel removes a pending job. Unknown ids are ignored.
func (s *Scheduler) Cancel(id cron.EntryID) {
	s.mu.Lock()
	delete(s.oneShots, id)
	s.mu.Unlock()
	s.cron.Remove(id)
}

// Pending is the number of one-shot jobs that have not run yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.oneShots)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logging.Info("scheduler", "started (TZ: %s)", s.loc)
}

// Stop waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logging.Info("scheduler", "stopped")
}

func (s *Scheduler) announcePanics(j cron.Job) cron.Job {
	return cron.FuncJob(func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logging.Error("scheduler", "job panicked: %v\n%s", r, debug.Stack())
			s.mu.Lock()
			announce := s.announce
			s.mu.Unlock()
			if announce != nil {
				announce(CrashNotice)
			}
			panic(r)
		}()
		j.Run()
	})
}

// once is a cron.Schedule that fires a single time. A moment already in the
// past fires immediately.
type once struct {
	id    cron.EntryID
	at    time.Time
	fired bool
}

func (o *once) Next(t time.Time) time.Time {
	if o.fired {
		return time.Time{}
	}
	o.fired = true
	if t.After(o.at) {
		return t
	}
	return o.at
}
