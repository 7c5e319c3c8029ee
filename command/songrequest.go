package command

import (
	"context"
	"log/slog"
)

// Queue is an append-only list of requests.
type Queue interface {
	Append(ctx context.Context, entries ...string) error
}

// SongRequest creates a command which appends each of its arguments to a
// queue as a separate entry.
func SongRequest(q Queue) Handler {
	return Func(func(ctx context.Context, call *Invocation) {
		if len(call.Args) == 0 {
			slog.DebugContext(ctx, "empty song request", slog.String("sender", call.Message.Sender))
			return
		}
		if err := q.Append(ctx, call.Args...); err != nil {
			slog.ErrorContext(ctx, "couldn't queue song request",
				slog.String("sender", call.Message.Sender),
				slog.Any("args", call.Args),
				slog.Any("err", err),
			)
			return
		}
		slog.InfoContext(ctx, "queued song request", slog.String("sender", call.Message.Sender), slog.Any("entries", call.Args))
	})
}
