// Package session defines the connection between the bot and a chat service.
//
// A Session yields a lazy, non-restartable sequence of events from the joined
// channels and exposes a shared rate-limited writer and a cloneable quit
// handle. Once Next returns a terminal event, the session is finished.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/chimebot/chime/message"
)

// Session is a connection to a chat service for one bot identity.
type Session interface {
	// Join joins a channel. A failure to join one channel does not make the
	// session unusable.
	Join(ctx context.Context, channel string) error
	// Next waits for the next event. Once Next returns an event for which
	// Terminal reports true, all later calls return terminal events as well.
	// A non-nil error indicates that the session failed.
	Next(ctx context.Context) (Event, error)
	// Writer returns the session's outbound writer.
	Writer() Writer
	// Quit returns a handle which ends the session at its next poll.
	Quit() Quit
}

// Writer sends messages to the chat service.
type Writer interface {
	// Send sends a message, waiting for the rate limit if necessary.
	Send(ctx context.Context, msg message.Sent) error
}

// Kind is the kind of an event.
type Kind int

const (
	// Other is a protocol event the dispatcher has no interest in.
	Other Kind = iota
	// Msg is a chat message.
	Msg
	// Quitting means the quit handle was signaled.
	Quitting
	// EOF means the event stream ended.
	EOF
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other"
	case Msg:
		return "message"
	case Quitting:
		return "quit"
	case EOF:
		return "eof"
	default:
		return "unknown"
	}
}

// Event is a single event from a session.
type Event struct {
	// Kind is the kind of the event.
	Kind Kind
	// Message is the received message when Kind is Msg.
	Message *message.Received
	// Command is the underlying protocol command when Kind is Other, for
	// logging.
	Command string
}

// Terminal returns whether the event ends the session.
func (e Event) Terminal() bool {
	return e.Kind == Quitting || e.Kind == EOF
}

// Quit is a cooperative cancellation handle. Copies of a Quit share state, so
// Clone is only a convenience to make sharing explicit.
// The zero value is a handle that can never be signaled.
type Quit struct {
	q *quitter
}

type quitter struct {
	once sync.Once
	done chan struct{}
}

// NewQuit creates a new quit handle.
func NewQuit() Quit {
	return Quit{q: &quitter{done: make(chan struct{})}}
}

// Clone returns a handle sharing the same signal.
func (q Quit) Clone() Quit {
	return q
}

// Signal requests that the session end. It is safe to call any number of
// times from any goroutine. The session observes the request at its current
// or next poll; code after Signal continues to run.
func (q Quit) Signal() {
	if q.q == nil {
		return
	}
	q.q.once.Do(func() { close(q.q.done) })
}

// Done returns a channel closed once the handle is signaled.
// It is nil for the zero handle.
func (q Quit) Done() <-chan struct{} {
	if q.q == nil {
		return nil
	}
	return q.q.done
}

// Signaled returns whether the handle has been signaled.
func (q Quit) Signaled() bool {
	select {
	case <-q.Done():
		return true
	default:
		return false
	}
}

// ErrClosed is returned by session operations after the session has ended.
var ErrClosed = errors.New("session closed")
