package command

import (
	"context"
	"log/slog"
	"time"
)

// Uptime creates a command which replies with the time elapsed since start.
func Uptime(start time.Time) Handler {
	return Func(func(ctx context.Context, call *Invocation) {
		d := time.Since(start).Round(10 * time.Millisecond)
		// Send failures are reported by the writer.
		call.Say(ctx, "its been running for "+d.String())
	})
}

// Quit creates a command which replies with the time elapsed since start,
// then ends the session. The session ends whether or not the reply is sent.
func Quit(start time.Time) Handler {
	return Func(func(ctx context.Context, call *Invocation) {
		d := time.Since(start).Round(time.Second)
		call.Say(ctx, "its been at least "+d.String()+", time to rest!")
		slog.InfoContext(ctx, "quit requested", slog.String("sender", call.Message.Sender))
		call.Quit.Signal()
	})
}
