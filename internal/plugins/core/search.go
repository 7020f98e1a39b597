package core

import (
	"fmt"
	"strings"

	"github.com/tazhate/orgassist/internal/assistant"
	"github.com/tazhate/orgassist/internal/domain"
)

const (
	searchShown   = 10
	searchBodyMax = 200
)

// SearchContext narrows a copy of the calendar with every message until
// nothing matches.
type SearchContext struct {
	assistant.BaseContext

	events  []*domain.Event
	kept    int
	queries []string
}

func NewSearchContext(events []*domain.Event) *SearchContext {
	return &SearchContext{
		events: events,
		kept:   len(events),
	}
}

func (s *SearchContext) narrow(query string) (dropped int) {
	query = strings.ToLower(query)
	matching := s.events[:0:0]
	for _, e := range s.events {
		text := strings.ToLower(e.Headline + " " + e.Body)
		if strings.Contains(text, query) {
			matching = append(matching, e)
		} else {
			dropped++
		}
	}
	s.events = matching
	s.kept -= dropped
	return dropped
}

func (s *SearchContext) Handle(msg *assistant.Message) bool {
	first := len(s.queries) == 0
	query := strings.TrimSpace(msg.Text)
	s.queries = append(s.queries, query)
	dropped := s.narrow(query)
	full := strings.Join(s.queries, " ")

	if s.kept == 0 {
		msg.Respond(fmt.Sprintf("'%s' not found - closing search.", full))
		return true
	}

	var b strings.Builder
	if first {
		fmt.Fprintf(&b, "%d matches for '%s':", s.kept, full)
	} else {
		fmt.Fprintf(&b, "%d dropped, %d matches for '%s':", dropped, s.kept, full)
	}
	for i, e := range s.events {
		if i == searchShown {
			break
		}
		state := ""
		if e.State != nil {
			state = e.State.Name + " "
		}
		fmt.Fprintf(&b, "\n%2d. %s%s", i+1, state, e.Headline)
		if body := strings.TrimSpace(e.Body); body != "" {
			if r := []rune(body); len(r) > searchBodyMax {
				body = string(r[:searchBodyMax]) + "..."
			}
			b.WriteString("\n   " + body)
		}
	}
	msg.Respond(b.String())
	return false
}

func (s *SearchContext) Describe() string {
	return "Search for: " + strings.Join(s.queries, " ")
}
