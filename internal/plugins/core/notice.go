package core

import (
	"fmt"
	"time"

	"github.com/tazhate/orgassist/internal/domain"
	"github.com/tazhate/orgassist/internal/templates"
)

// FormatDelta renders time left until an event with minute precision.
// Anything above zero shows as at least one minute.
func FormatDelta(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	minutes := int((d + 30*time.Second) / time.Minute)
	if minutes == 0 {
		minutes = 1
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// RenderNotice renders the reminder text about e.
func RenderNotice(src templates.Source, e *domain.Event, now time.Time) (string, error) {
	data := map[string]any{
		"event":         e,
		"headline":      e.Headline,
		"relevant_date": e.RelevantDate(),
		"delta_str":     "",
		"now":           now,
	}
	if rd := e.RelevantDate(); rd != nil {
		data["delta_str"] = FormatDelta(rd.SortDate().Sub(now))
	}
	return templates.Render(src, data)
}
