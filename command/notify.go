package command

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/chimebot/chime/notify"
)

// Player plays a sound file without waiting for it to finish.
type Player interface {
	Play(ctx context.Context, file string) error
}

// Notify creates a command which plays one of the given sounds.
// Arguments are ignored.
func Notify(p Player, sounds *notify.Sounds) Handler {
	return Func(func(ctx context.Context, call *Invocation) {
		f := sounds.Pick(rand.Uint32())
		if f == "" {
			slog.WarnContext(ctx, "no sound for notification", slog.String("command", call.Name))
			return
		}
		// The player logs its own failures.
		p.Play(ctx, f)
	})
}
