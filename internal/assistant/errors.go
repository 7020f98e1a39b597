package assistant

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateCommand = errors.New("command was already registered")
	ErrInvalidCommand   = errors.New("command name must be a single word")
	ErrDuplicatePlugin  = errors.New("plugin already registered")
)

// PluginError is a programming error made by a plugin, such as registering
// the same command twice. It is reported at registration time.
type PluginError struct {
	Name string
	Err  error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}
