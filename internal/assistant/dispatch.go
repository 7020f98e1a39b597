package assistant

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/orgassist/internal/logging"
)

// Handler answers a top-level command. Returning a non-nil Context makes it
// receive all following messages.
type Handler interface {
	Handle(msg *Message) Context
}

type HandlerFunc func(msg *Message) Context

func (f HandlerFunc) Handle(msg *Message) Context {
	return f(msg)
}

const historySize = 3

// Dispatcher routes messages to registered commands or to the active
// context. Dispatch calls are serialized.
type Dispatcher struct {
	now func() time.Time

	cmdMu    sync.RWMutex
	commands map[string]Handler

	mu      sync.Mutex
	active  Context
	history []Context
}

func NewDispatcher(now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		now:      now,
		commands: make(map[string]Handler),
	}
}

// Register binds h to each of names. Names are trimmed and lower-cased.
// Nothing is registered when any of the names is invalid or taken.
func (d *Dispatcher) Register(names []string, h Handler) error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	clean := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || strings.ContainsFunc(name, isSpace) {
			return &PluginError{Name: fmt.Sprintf("command %q", raw), Err: ErrInvalidCommand}
		}
		if _, ok := d.commands[name]; ok || seen[name] {
			return &PluginError{Name: fmt.Sprintf("command %q", name), Err: ErrDuplicateCommand}
		}
		seen[name] = true
		clean = append(clean, name)
	}
	for _, name := range clean {
		d.commands[name] = h
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// Commands returns the registered command words in lexical order.
func (d *Dispatcher) Commands() []string {
	d.cmdMu.RLock()
	defer d.cmdMu.RUnlock()
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) lookup(word string) Handler {
	d.cmdMu.RLock()
	defer d.cmdMu.RUnlock()
	return d.commands[strings.ToLower(word)]
}

// Dispatch handles one message from the boss. The returned error is the
// first failure to deliver a reply.
func (d *Dispatcher) Dispatch(msg *Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	text := strings.TrimSpace(msg.Text)

	if text == "." {
		if d.active == nil {
			msg.Respond(PhraseNoContext)
			return msg.Err()
		}
		desc := d.active.Describe()
		d.leave()
		msg.Respond(fmt.Sprintf(PhraseQuitContext, desc))
		return msg.Err()
	}

	if d.active != nil {
		if d.active.Valid(now) {
			d.active.Refresh(now)
			if d.active.Handle(msg) {
				d.leave()
			}
			return msg.Err()
		}
		logging.Debug("dispatch", "context %q expired", d.active.Describe())
		d.leave()
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		msg.Respond(DontUnderstand())
		return msg.Err()
	}
	word := fields[0]
	h := d.lookup(word)
	if h == nil {
		logging.Debug("dispatch", "unknown command %q", logging.Truncate(word, 40))
		msg.Respond(DontUnderstand())
		return msg.Err()
	}

	msg.StripCommand(word)
	if ctx := h.Handle(msg); ctx != nil {
		ctx.Refresh(now)
		d.active = ctx
		logging.Debug("dispatch", "entered context %q", ctx.Describe())
	}
	return msg.Err()
}

func (d *Dispatcher) leave() {
	d.history = append(d.history, d.active)
	if len(d.history) > historySize {
		d.history = d.history[len(d.history)-historySize:]
	}
	d.active = nil
}

// Active returns the current context or nil.
func (d *Dispatcher) Active() Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// History returns recently left contexts, oldest first.
func (d *Dispatcher) History() []Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Context, len(d.history))
	copy(out, d.history)
	return out
}
