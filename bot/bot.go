// Package bot implements the command dispatch loop.
//
// A [Bot] pulls events from a session one at a time. Messages from permitted
// senders whose first word names a registered command invoke that command
// synchronously; every sender is then checked against the set of chatters
// already seen, and first-time chatters are welcomed exactly once. The loop
// ends at the first quit or end-of-stream event.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chimebot/chime/command"
	"github.com/chimebot/chime/member"
	"github.com/chimebot/chime/message"
	"github.com/chimebot/chime/metrics"
	"github.com/chimebot/chime/session"
)

// Welcomer greets new chatters.
type Welcomer interface {
	Welcome(ctx context.Context, chatter string) int
}

// Recorder records command invocations.
type Recorder interface {
	Record(ctx context.Context, call *command.Invocation) error
}

// Bot is the dispatcher state. A Bot runs at most once, and its fields must
// not be modified while it runs.
type Bot struct {
	// Commands is the command registry.
	Commands *command.Registry
	// Members is the permission and new chatter tracker. It is used only
	// from the goroutine calling Run.
	Members *member.Tracker
	// Welcome greets new chatters. It may be nil.
	Welcome Welcomer
	// Audit records dispatched commands. It may be nil.
	Audit Recorder
	// Metrics is the observers for dispatch. Any of them may be nil.
	Metrics metrics.Metrics

	state atomic.Int32
	seen  atomic.Int64
}

// State is the state of the dispatcher.
type State int32

const (
	Connecting State = iota
	Joined
	Running
	Terminating
	Stopped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// State returns the current state of the dispatcher.
// It is safe to call concurrently with Run.
func (b *Bot) State() State {
	return State(b.state.Load())
}

// Seen returns the number of chatters seen as of the last message, including
// those seeded as seen. It is safe to call concurrently with Run.
func (b *Bot) Seen() int {
	return int(b.seen.Load())
}

func (b *Bot) setState(ctx context.Context, s State) {
	old := State(b.state.Swap(int32(s)))
	if old != s {
		slog.DebugContext(ctx, "dispatcher state", slog.String("from", old.String()), slog.String("to", s.String()))
	}
}

// Run joins the given channels and dispatches messages until the session
// yields a quit or end-of-stream event, in which case the result is nil.
// Failing to join a channel does not stop the run. An error from the session
// ends the run and is returned.
func (b *Bot) Run(ctx context.Context, sess session.Session, channels []string) error {
	b.setState(ctx, Connecting)
	for _, ch := range channels {
		slog.InfoContext(ctx, "joining", slog.String("channel", ch))
		if err := sess.Join(ctx, ch); err != nil {
			slog.ErrorContext(ctx, "error while joining", slog.String("channel", ch), slog.Any("err", err))
			continue
		}
		b.setState(ctx, Joined)
	}

	w := reportingWriter{w: sess.Writer(), failures: b.Metrics.SendFailures}
	quit := sess.Quit()
	b.seen.Store(int64(b.Members.Seen()))
	b.setState(ctx, Running)
	slog.InfoContext(ctx, "starting main loop", slog.Any("commands", b.Commands.Names()))
	for {
		ev, err := sess.Next(ctx)
		if err != nil {
			b.setState(ctx, Stopped)
			return fmt.Errorf("session failed: %w", err)
		}
		switch ev.Kind {
		case session.Msg:
			b.dispatch(ctx, w, quit, ev.Message)
		case session.Quitting, session.EOF:
			b.setState(ctx, Terminating)
			slog.InfoContext(ctx, "end of main loop", slog.String("reason", ev.Kind.String()), slog.Int("seen", b.Members.Seen()))
			b.setState(ctx, Stopped)
			return nil
		default:
			// Other protocol events are the session's business.
		}
	}
}

// dispatch handles one chat message.
func (b *Bot) dispatch(ctx context.Context, w session.Writer, quit session.Quit, msg *message.Received) {
	metrics.Observe(b.Metrics.MessagesCount, 1)
	slog.DebugContext(ctx, "message",
		slog.String("in", msg.To),
		slog.String("sender", msg.Sender),
		slog.String("text", msg.Text),
	)
	if b.Members.Permitted(msg.Sender) {
		b.invoke(ctx, w, quit, msg)
	}
	if !b.Members.NoteSeen(msg.Sender) {
		return
	}
	b.seen.Store(int64(b.Members.Seen()))
	if b.Welcome != nil {
		b.Welcome.Welcome(ctx, msg.Sender)
	}
}

// invoke runs the command named by the message, if there is one.
// The caller must have checked that the sender is permitted.
func (b *Bot) invoke(ctx context.Context, w session.Writer, quit session.Quit, msg *message.Received) {
	name, args := command.Split(msg.Text)
	h, ok := b.Commands.Lookup(name)
	if !ok {
		return
	}
	call := command.Invocation{
		Name:    name,
		Message: msg,
		Args:    args,
		Writer:  w,
		Quit:    quit.Clone(),
	}
	slog.InfoContext(ctx, "dispatching",
		slog.String("command", name),
		slog.String("sender", msg.Sender),
		slog.Any("args", args),
	)
	start := time.Now()
	h.Invoke(ctx, &call)
	metrics.Observe(b.Metrics.CommandsCount, 1, name)
	metrics.Observe(b.Metrics.CommandLatency, time.Since(start).Seconds(), name)
	if b.Audit != nil {
		if err := b.Audit.Record(ctx, &call); err != nil {
			slog.ErrorContext(ctx, "couldn't record command", slog.String("command", name), slog.Any("err", err))
		}
	}
}

// reportingWriter logs and counts send failures so that commands can ignore
// them.
type reportingWriter struct {
	w        session.Writer
	failures metrics.Observer
}

func (r reportingWriter) Send(ctx context.Context, msg message.Sent) error {
	err := r.w.Send(ctx, msg)
	if err != nil {
		slog.ErrorContext(ctx, "couldn't send message",
			slog.String("to", msg.To),
			slog.String("text", msg.Text),
			slog.Any("err", err),
		)
		metrics.Observe(r.failures, 1)
	}
	return err
}
