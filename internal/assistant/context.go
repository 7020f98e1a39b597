package assistant

import (
	"fmt"
	"time"
)

const DefaultContextTTL = 600 * time.Second

// Context takes over every message until the handler reports it is done,
// the boss sends "." or the TTL runs out.
type Context interface {
	// Handle returns true when the context should be left.
	Handle(msg *Message) bool
	Describe() string
	Valid(now time.Time) bool
	Refresh(now time.Time)
}

// BaseContext implements the TTL bookkeeping of a Context. A zero TTL means
// DefaultContextTTL.
type BaseContext struct {
	TTL   time.Duration
	stamp time.Time
}

func (b *BaseContext) ttl() time.Duration {
	if b.TTL <= 0 {
		return DefaultContextTTL
	}
	return b.TTL
}

func (b *BaseContext) Refresh(now time.Time) {
	b.stamp = now
}

func (b *BaseContext) Valid(now time.Time) bool {
	return b.stamp.Add(b.ttl()).After(now)
}

func (b *BaseContext) Describe() string {
	return fmt.Sprintf("unknown with ttl=%d", int(b.ttl()/time.Second))
}
