package assistant

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)}
}

type transcript struct {
	lines []string
}

func (tr *transcript) send(text string) error {
	tr.lines = append(tr.lines, text)
	return nil
}

func (tr *transcript) last() string {
	if len(tr.lines) == 0 {
		return ""
	}
	return tr.lines[len(tr.lines)-1]
}

func (tr *transcript) msg(text string) *Message {
	return NewMessage(text, "boss", tr.send)
}

// echoContext repeats messages until it hears "bye".
type echoContext struct {
	BaseContext
	name string
	seen []string
}

func (c *echoContext) Handle(msg *Message) bool {
	c.seen = append(c.seen, msg.Text)
	if msg.Text == "bye" {
		return true
	}
	msg.Respond("echo " + msg.Text)
	return false
}

func (c *echoContext) Describe() string { return "echo " + c.name }

func enterEcho(ttl time.Duration) (HandlerFunc, *[]*echoContext) {
	var made []*echoContext
	return func(msg *Message) Context {
		ctx := &echoContext{BaseContext: BaseContext{TTL: ttl}, name: msg.Text}
		made = append(made, ctx)
		return ctx
	}, &made
}

func TestDotWithoutContext(t *testing.T) {
	d := NewDispatcher(newClock().Now)
	tr := &transcript{}

	if err := d.Dispatch(tr.msg(".")); err != nil {
		t.Fatal(err)
	}
	if tr.last() != PhraseNoContext {
		t.Errorf("reply = %q", tr.last())
	}
	if d.Active() != nil || len(d.History()) != 0 {
		t.Error("state changed on '.' without context")
	}
}

func TestEnterAndLeaveContext(t *testing.T) {
	d := NewDispatcher(newClock().Now)
	echo, _ := enterEcho(0)
	if err := d.Register([]string{"echo"}, echo); err != nil {
		t.Fatal(err)
	}
	tr := &transcript{}

	d.Dispatch(tr.msg("ECHO one"))
	if d.Active() == nil {
		t.Fatal("context not entered")
	}

	d.Dispatch(tr.msg("agenda"))
	if tr.last() != "echo agenda" {
		t.Errorf("message not forwarded to context: %q", tr.last())
	}

	d.Dispatch(tr.msg(" . "))
	if d.Active() != nil {
		t.Error("still in context after '.'")
	}
	if tr.last() != "Out of context: echo one" {
		t.Errorf("exit notice = %q", tr.last())
	}
	if h := d.History(); len(h) != 1 || h[0].Describe() != "echo one" {
		t.Errorf("history = %v", h)
	}
}

func TestHandlerExitIsSilent(t *testing.T) {
	d := NewDispatcher(newClock().Now)
	echo, _ := enterEcho(0)
	d.Register([]string{"echo"}, echo)
	tr := &transcript{}

	d.Dispatch(tr.msg("echo x"))
	n := len(tr.lines)
	d.Dispatch(tr.msg("bye"))

	if d.Active() != nil {
		t.Error("context not left")
	}
	if len(tr.lines) != n {
		t.Errorf("unexpected replies %v", tr.lines[n:])
	}
	if len(d.History()) != 1 {
		t.Errorf("history len = %d", len(d.History()))
	}
}

func TestHistoryIsCapped(t *testing.T) {
	d := NewDispatcher(newClock().Now)
	echo, _ := enterEcho(0)
	d.Register([]string{"echo"}, echo)
	tr := &transcript{}

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		d.Dispatch(tr.msg("echo " + name))
		d.Dispatch(tr.msg("."))
	}

	var got []string
	for _, c := range d.History() {
		got = append(got, c.Describe())
	}
	if strings.Join(got, ",") != "echo c,echo d,echo e" {
		t.Errorf("history = %v", got)
	}
}

func TestExpiredContextFallsBackToCommands(t *testing.T) {
	clock := newClock()
	d := NewDispatcher(clock.Now)
	echo, made := enterEcho(time.Second)
	d.Register([]string{"echo"}, echo)

	var agendaCalls int
	d.Register([]string{"agenda"}, HandlerFunc(func(msg *Message) Context {
		agendaCalls++
		msg.Respond("your agenda")
		return nil
	}))
	tr := &transcript{}

	d.Dispatch(tr.msg("echo first"))
	clock.Advance(2 * time.Second)
	d.Dispatch(tr.msg("agenda"))

	if agendaCalls != 1 || tr.last() != "your agenda" {
		t.Errorf("agenda not run as a top-level command, replies %v", tr.lines)
	}
	if len((*made)[0].seen) != 0 {
		t.Errorf("expired context received %v", (*made)[0].seen)
	}
	if d.Active() != nil {
		t.Error("expired context still active")
	}
	if len(d.History()) != 1 {
		t.Errorf("expired context not in history")
	}
}

func TestContextRefreshedOnUse(t *testing.T) {
	clock := newClock()
	d := NewDispatcher(clock.Now)
	echo, made := enterEcho(10 * time.Second)
	d.Register([]string{"echo"}, echo)
	tr := &transcript{}

	d.Dispatch(tr.msg("echo x"))
	for i := 0; i < 3; i++ {
		clock.Advance(8 * time.Second)
		d.Dispatch(tr.msg("ping"))
	}
	if got := len((*made)[0].seen); got != 3 {
		t.Errorf("context saw %d messages, want 3", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	d := NewDispatcher(newClock().Now)
	tr := &transcript{}

	for _, text := range []string{"frobnicate now", "", "   "} {
		d.Dispatch(tr.msg(text))
		if !slices.Contains(DontUnderstandPhrases(), tr.last()) {
			t.Errorf("reply to %q = %q", text, tr.last())
		}
	}
}

func TestCommandWordIsStripped(t *testing.T) {
	d := NewDispatcher(newClock().Now)
	var got string
	d.Register([]string{"Search", "s"}, HandlerFunc(func(msg *Message) Context {
		got = msg.Text
		return nil
	}))

	d.Dispatch((&transcript{}).msg("SEARCH  dentist  appointment "))
	if got != "dentist  appointment" {
		t.Errorf("handler got %q", got)
	}
	d.Dispatch((&transcript{}).msg("s"))
	if got != "" {
		t.Errorf("handler got %q", got)
	}
}

func TestRegisterErrors(t *testing.T) {
	d := NewDispatcher(nil)
	noop := HandlerFunc(func(*Message) Context { return nil })

	if err := d.Register([]string{"agenda"}, noop); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		names []string
		want  error
	}{
		{[]string{"agenda"}, ErrDuplicateCommand},
		{[]string{" AGENDA "}, ErrDuplicateCommand},
		{[]string{"x", "x"}, ErrDuplicateCommand},
		{[]string{"two words"}, ErrInvalidCommand},
		{[]string{"tab\there"}, ErrInvalidCommand},
		{[]string{"  "}, ErrInvalidCommand},
	}
	for _, tt := range tests {
		err := d.Register(tt.names, noop)
		var pe *PluginError
		if !errors.As(err, &pe) || !errors.Is(err, tt.want) {
			t.Errorf("Register(%q) = %v, want %v", tt.names, err, tt.want)
		}
	}

	if got := d.Commands(); len(got) != 1 || got[0] != "agenda" {
		t.Errorf("failed registrations leaked: %v", got)
	}
}

func TestRespondErrorPropagates(t *testing.T) {
	d := NewDispatcher(nil)
	boom := errors.New("network down")
	msg := NewMessage("nonsense", "boss", func(string) error { return boom })

	if err := d.Dispatch(msg); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestBaseContextDescribe(t *testing.T) {
	b := &BaseContext{}
	if b.Describe() != "unknown with ttl=600" {
		t.Errorf("Describe = %q", b.Describe())
	}
	now := time.Now()
	b.Refresh(now)
	if !b.Valid(now.Add(599*time.Second)) || b.Valid(now.Add(600*time.Second)) {
		t.Error("TTL boundary is wrong")
	}
}
