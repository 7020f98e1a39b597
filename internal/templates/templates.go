// Package templates renders agenda and notice texts. Template files are read
// just in time so they can be edited while the assistant runs.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/tazhate/orgassist/internal/domain"
)

//go:embed defaults/*.tmpl
var defaults embed.FS

const (
	Agenda = "agenda.txt.tmpl"
	Notice = "notice.txt.tmpl"
)

// RenderError wraps any failure while loading or executing a template.
type RenderError struct {
	Name string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Name, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Source describes where a template comes from. Content wins over Path,
// Path wins over the embedded Default.
type Source struct {
	Name    string
	Path    string
	Content string
	Default string
}

// Load returns the template text of the source.
func (s Source) Load() (string, error) {
	if s.Content != "" {
		return s.Content, nil
	}
	if s.Path != "" {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return "", &RenderError{Name: s.name(), Err: err}
		}
		return string(data), nil
	}
	if s.Default != "" {
		data, err := defaults.ReadFile("defaults/" + s.Default)
		if err != nil {
			return "", &RenderError{Name: s.name(), Err: err}
		}
		return string(data), nil
	}
	return "", &RenderError{Name: s.name(), Err: fmt.Errorf("no template configured")}
}

// Check verifies that the template can be read and parsed. Used at startup
// so a broken path is reported as a configuration problem.
func (s Source) Check() error {
	text, err := s.Load()
	if err != nil {
		return err
	}
	if _, err := parse(s.name(), text); err != nil {
		return &RenderError{Name: s.name(), Err: err}
	}
	return nil
}

func (s Source) name() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Path != "":
		return s.Path
	case s.Default != "":
		return s.Default
	default:
		return "inline"
	}
}

// Render loads the template and executes it with data.
func Render(src Source, data map[string]any) (string, error) {
	text, err := src.Load()
	if err != nil {
		return "", err
	}
	tmpl, err := parse(src.name(), text)
	if err != nil {
		return "", &RenderError{Name: src.name(), Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &RenderError{Name: src.name(), Err: err}
	}
	return strings.TrimSpace(buf.String()), nil
}

func parse(name, text string) (*template.Template, error) {
	return template.New(name).Option("missingkey=zero").Funcs(funcs).Parse(text)
}

var funcs = template.FuncMap{
	"date":     formatWith("2006-01-02", "2006-01-02"),
	"datetime": formatWith("2006-01-02 15:04", "2006-01-02"),
	"time":     formatWith("15:04", "--:--"),
	"upper":    strings.ToUpper,
	"state": func(e *domain.Event) string {
		if e == nil || e.State == nil {
			return ""
		}
		return e.State.Name + " "
	},
}

// formatWith formats an event date with one layout for appointments and
// another one for whole days.
func formatWith(appointment, day string) func(any) string {
	return func(v any) string {
		var d domain.EventDate
		switch x := v.(type) {
		case domain.EventDate:
			d = x
		case *domain.EventDate:
			if x == nil {
				return ""
			}
			d = *x
		default:
			return fmt.Sprint(v)
		}
		if d.IsAppointment() {
			return d.Date().Format(appointment)
		}
		return d.Date().Format(day)
	}
}
