package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/time/rate"

	"github.com/chimebot/chime/message"
)

// TMI is a session over Twitch chat. It reads from and writes to channels
// serviced by [tmi.Connect].
//
// Next and Join must be called from a single goroutine. The writer may be
// used from any goroutine.
type TMI struct {
	send  chan<- *tmi.Message
	recv  <-chan *tmi.Message
	w     *tmiWriter
	joins *rate.Limiter
	quit  Quit

	// ready is whether the server has finished the connection handshake.
	ready bool
	// pending is messages received while waiting to become ready.
	pending []*tmi.Message
	// channels is the list of channels we have joined, for rejoining after
	// the connection is reestablished.
	channels []string
	// end is the terminal event once one has been returned.
	end *Event
}

// NewTMI creates a session from the channels given to [tmi.Connect].
// lim is the global rate limit for sent chat messages.
func NewTMI(send chan<- *tmi.Message, recv <-chan *tmi.Message, lim *rate.Limiter) *TMI {
	return &TMI{
		send: send,
		recv: recv,
		w:    &tmiWriter{send: send, rate: lim},
		// Per https://dev.twitch.tv/docs/irc/#rate-limits we get 20 join
		// attempts per ten seconds. Use a slightly longer period to ensure
		// we don't get globaled by clock drift.
		joins: rate.NewLimiter(rate.Every(11*time.Second/20), 20),
		quit:  NewQuit(),
	}
}

// Writer returns the session's rate-limited writer.
func (s *TMI) Writer() Writer {
	return s.w
}

// Quit returns the session's quit handle.
func (s *TMI) Quit() Quit {
	return s.quit.Clone()
}

// Join joins a channel once the connection is ready.
func (s *TMI) Join(ctx context.Context, channel string) error {
	if len(channel) < 2 || channel[0] != '#' || strings.ContainsAny(channel, " ,") {
		return fmt.Errorf("invalid channel name %q", channel)
	}
	if err := s.awaitReady(ctx); err != nil {
		return fmt.Errorf("couldn't join %s: %w", channel, err)
	}
	if err := s.join(ctx, channel); err != nil {
		return fmt.Errorf("couldn't join %s: %w", channel, err)
	}
	if !slices.Contains(s.channels, channel) {
		s.channels = append(s.channels, channel)
	}
	return nil
}

func (s *TMI) join(ctx context.Context, channel string) error {
	if err := s.joins.Wait(ctx); err != nil {
		return err
	}
	msg := tmi.Message{
		Command: "JOIN",
		Params:  []string{channel},
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit.Done():
		return ErrClosed
	case s.send <- &msg:
		return nil
	}
}

// awaitReady consumes messages until the end of the MOTD, which marks the
// point at which the server accepts joins.
func (s *TMI) awaitReady(ctx context.Context) error {
	for !s.ready {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit.Done():
			return ErrClosed
		case m, ok := <-s.recv:
			if !ok {
				return ErrClosed
			}
			if m.Command == "PRIVMSG" {
				s.pending = append(s.pending, m)
				continue
			}
			s.protocol(ctx, m)
		}
	}
	return nil
}

// Next waits for the next event. Cancellation of ctx is treated as a quit.
func (s *TMI) Next(ctx context.Context) (Event, error) {
	for {
		if s.end != nil {
			return *s.end, nil
		}
		if s.quit.Signaled() {
			return s.finish(Quitting), nil
		}
		if len(s.pending) > 0 {
			m := s.pending[0]
			s.pending = s.pending[1:]
			return Event{Kind: Msg, Message: message.FromTMI(m)}, nil
		}
		select {
		case <-ctx.Done():
			return s.finish(Quitting), nil
		case <-s.quit.Done():
			return s.finish(Quitting), nil
		case m, ok := <-s.recv:
			if !ok {
				return s.finish(EOF), nil
			}
			if m.Command == "PRIVMSG" {
				return Event{Kind: Msg, Message: message.FromTMI(m)}, nil
			}
			s.protocol(ctx, m)
			return Event{Kind: Other, Command: m.Command}, nil
		}
	}
}

func (s *TMI) finish(k Kind) Event {
	s.end = &Event{Kind: k}
	return *s.end
}

// protocol handles a non-PRIVMSG message.
func (s *TMI) protocol(ctx context.Context, m *tmi.Message) {
	switch m.Command {
	case "GLOBALUSERSTATE":
		slog.InfoContext(ctx, "connected to TMI", slog.String("GLOBALUSERSTATE", m.Tags))
	case "376": // End MOTD
		if s.ready && len(s.channels) > 0 {
			// The connection was reestablished, so we need to join again.
			slog.InfoContext(ctx, "rejoining channels", slog.Any("channels", s.channels))
			go s.rejoin(ctx, slices.Clone(s.channels))
		}
		s.ready = true
	case "366": // End NAMES
		if len(m.Params) > 1 {
			slog.InfoContext(ctx, "joined channel", slog.String("channel", m.Params[1]))
		}
	case "NOTICE":
		id, _ := m.Tag("msg-id")
		if joinFailure(id) {
			slog.ErrorContext(ctx, "error while joining",
				slog.String("channel", m.To()),
				slog.String("msg-id", id),
				slog.String("text", m.Trailing),
			)
			// Don't retry a rejected channel on reconnect.
			s.channels = slices.DeleteFunc(s.channels, func(ch string) bool { return ch == m.To() })
			return
		}
		slog.WarnContext(ctx, "notice",
			slog.String("channel", m.To()),
			slog.String("msg-id", id),
			slog.String("text", m.Trailing),
		)
	default:
		slog.DebugContext(ctx, "ignored", slog.String("command", m.Command))
	}
}

func (s *TMI) rejoin(ctx context.Context, channels []string) {
	for _, ch := range channels {
		if err := s.join(ctx, ch); err != nil {
			slog.ErrorContext(ctx, "error while rejoining", slog.String("channel", ch), slog.Any("err", err))
			return
		}
	}
}

// joinFailure returns whether a NOTICE msg-id indicates that a JOIN failed.
func joinFailure(id string) bool {
	switch id {
	case "msg_channel_suspended", "msg_channel_blocked", "tos_ban", "msg_banned", "msg_room_not_found":
		return true
	default:
		return false
	}
}

type tmiWriter struct {
	send chan<- *tmi.Message
	rate *rate.Limiter
}

// Send sends a message to TMI after waiting for the global rate limit.
func (w *tmiWriter) Send(ctx context.Context, msg message.Sent) error {
	if err := w.rate.Wait(ctx); err != nil {
		return fmt.Errorf("couldn't wait for rate limit: %w", err)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("couldn't send to %s: %w", msg.To, ctx.Err())
	case w.send <- message.ToTMI(msg):
		return nil
	}
}
