// Package sessiontest provides a scripted session for testing dispatchers.
package sessiontest

import (
	"context"
	"sync"

	"github.com/chimebot/chime/message"
	"github.com/chimebot/chime/session"
)

// Channel is the channel to which scripted messages are sent.
const Channel = "#kessoku"

// Session is a scripted [session.Session]. It yields its events in order,
// then EOF. Once its quit handle is signaled, Next yields quit events.
type Session struct {
	mu sync.Mutex

	events []session.Event
	polls  int
	quit   session.Quit

	// JoinErr maps channel names to errors to return from Join.
	JoinErr map[string]error
	// SendErr is the error to return from the writer.
	SendErr error
	// NextErr, if not nil, is returned by Next once the script is exhausted
	// instead of EOF.
	NextErr error

	joined []string
	sent   []message.Sent
}

var _ session.Session = (*Session)(nil)

// New creates a scripted session.
func New(events ...session.Event) *Session {
	return &Session{events: events, quit: session.NewQuit()}
}

// Message creates a message event in [Channel].
func Message(sender, text string) session.Event {
	return session.Event{
		Kind: session.Msg,
		Message: &message.Received{
			ID:     sender + ":" + text,
			To:     Channel,
			Sender: sender,
			Name:   sender,
			Text:   text,
		},
	}
}

// Join records a join.
func (s *Session) Join(ctx context.Context, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.JoinErr[channel]; err != nil {
		return err
	}
	s.joined = append(s.joined, channel)
	return nil
}

// Next yields the next scripted event.
func (s *Session) Next(ctx context.Context) (session.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.quit.Signaled() {
		return session.Event{Kind: session.Quitting}, nil
	}
	if len(s.events) == 0 {
		if s.NextErr != nil {
			return session.Event{}, s.NextErr
		}
		return session.Event{Kind: session.EOF}, nil
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

// Writer returns a writer which records sent messages.
func (s *Session) Writer() session.Writer {
	return writer{s}
}

// Quit returns the session's quit handle.
func (s *Session) Quit() session.Quit {
	return s.quit.Clone()
}

// Polls returns the number of calls to Next.
func (s *Session) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Remaining returns the number of scripted events not yet yielded.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Joined returns the channels joined.
func (s *Session) Joined() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.joined...)
}

// Sent returns the messages sent through the writer.
func (s *Session) Sent() []message.Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Sent(nil), s.sent...)
}

type writer struct {
	s *Session
}

func (w writer) Send(ctx context.Context, msg message.Sent) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.s.SendErr != nil {
		return w.s.SendErr
	}
	w.s.sent = append(w.s.sent, msg)
	return nil
}
