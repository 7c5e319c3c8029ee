// Package welcome greets first-time chatters with one of several sounds.
package welcome

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/chimebot/chime/metrics"
)

// Variants is the number of welcome variants.
const Variants = 5

// Variant selects the welcome variant for a uniform draw in [0, 1).
//
// The draw is truncated to a whole percentage and matched against the
// inclusive ranges 0-20, 21-40, 41-60, 61-80, and 81-99. The first variant
// therefore covers 21 percentage points and the last covers 19.
func Variant(draw float64) int {
	p := int(draw * 100)
	switch {
	case p <= 20:
		return 0
	case p <= 40:
		return 1
	case p <= 60:
		return 2
	case p <= 80:
		return 3
	default:
		return 4
	}
}

// Player plays a sound file without waiting for it to finish.
type Player interface {
	Play(ctx context.Context, file string) error
}

// Welcomer plays a welcome sound for new chatters.
type Welcomer struct {
	// Sounds is the sound file for each variant. An empty file means the
	// variant is silent.
	Sounds [Variants]string
	// Player plays the selected sound.
	Player Player
	// Rand returns a uniform draw in [0, 1). If nil, math/rand/v2 is used.
	Rand func() float64
	// Count counts welcomes by variant. It may be nil.
	Count metrics.Observer
}

// Welcome selects and plays a welcome variant for a new chatter and returns
// the selected variant.
func (w *Welcomer) Welcome(ctx context.Context, chatter string) int {
	draw := w.Rand
	if draw == nil {
		draw = rand.Float64
	}
	v := Variant(draw())
	slog.InfoContext(ctx, "welcome", slog.String("chatter", chatter), slog.Int("variant", v))
	metrics.Observe(w.Count, 1, strconv.Itoa(v))
	if f := w.Sounds[v]; f != "" && w.Player != nil {
		// Failures are logged by the player.
		w.Player.Play(ctx, f)
	}
	return v
}
