package logging

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var minLevel atomic.Int32

func init() {
	minLevel.Store(int32(LevelInfo))
}

// ParseLevel accepts DEBUG, INFO, WARN, WARNING and ERROR.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func SetLevel(l Level) {
	minLevel.Store(int32(l))
}

func enabled(l Level) bool {
	return int32(l) >= minLevel.Load()
}

func output(l Level, tag, subsystem, format string, args []any) {
	if !enabled(l) {
		return
	}
	// calldepth 3 points Lshortfile at the caller of Info/Debug/...
	_ = log.Output(3, fmt.Sprintf("%s[%s] "+format, append([]any{tag, subsystem}, args...)...))
}

// Debug logs only when the level is DEBUG.
func Debug(subsystem, format string, args ...any) {
	output(LevelDebug, "DEBUG ", subsystem, format, args)
}

func Info(subsystem, format string, args ...any) {
	output(LevelInfo, "", subsystem, format, args)
}

func Warn(subsystem, format string, args ...any) {
	output(LevelWarn, "WARN ", subsystem, format, args)
}

func Error(subsystem, format string, args ...any) {
	output(LevelError, "ERROR ", subsystem, format, args)
}

// Truncate shortens s for one-line logs.
func Truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
