package assistant

import (
	"errors"
	"strings"
)

var ErrNoTransport = errors.New("message has no way to respond")

// Message is a single line of text from the boss, independent of the bot
// that delivered it.
type Message struct {
	Text   string
	Sender string

	respond func(text string) error
	err     error
}

func NewMessage(text, sender string, respond func(text string) error) *Message {
	return &Message{Text: text, Sender: sender, respond: respond}
}

// Respond sends text back to the sender. The first delivery error is kept
// and returned from Dispatch.
func (m *Message) Respond(text string) error {
	if m.respond == nil {
		return m.fail(ErrNoTransport)
	}
	if err := m.respond(text); err != nil {
		return m.fail(err)
	}
	return nil
}

func (m *Message) fail(err error) error {
	if m.err == nil {
		m.err = err
	}
	return err
}

// Err returns the first error seen by Respond.
func (m *Message) Err() error {
	return m.err
}

// StripCommand removes the leading command word from the text.
func (m *Message) StripCommand(word string) {
	text := strings.TrimSpace(m.Text)
	m.Text = strings.TrimSpace(strings.TrimPrefix(text, word))
}
