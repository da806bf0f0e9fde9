// Package safeguard recovers panics at agent-execution boundaries and
// turns them into ordinary errors, so a bug in one agent cannot crash the
// supervisor or take down a sibling session. It is a direct call wrapper
// rather than a goroutine launcher, since every agent already runs on a
// context-bound call path, not a fire-and-forget goroutine.
package safeguard

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// PanicError records a recovered panic's value, timestamp, and stack
// trace.
type PanicError struct {
	Time  time.Time
	Info  any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered at %s: %v\n%s", e.Time.Format(time.RFC3339Nano), e.Info, e.Stack)
}

// Call runs fn and converts any panic into a *PanicError, returning it
// alongside whatever error fn itself returned (joined, if both occurred).
func Call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := &PanicError{Time: time.Now(), Info: r, Stack: debug.Stack()}
			err = errors.Join(err, perr)
		}
	}()
	return fn()
}
