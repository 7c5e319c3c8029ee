// Package notify plays stream notifications by spawning external programs.
//
// Every process started here is fire-and-forget: the caller never waits for
// it, and its exit status is only logged.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"

	"gitlab.com/zephyrtronium/pick"

	"github.com/chimebot/chime/metrics"
)

// Spawn starts a process from argv and returns without waiting for it.
// The returned error only reports whether the process could be started.
func Spawn(ctx context.Context, argv []string) error {
	if len(argv) == 0 || argv[0] == "" {
		return errors.New("empty command")
	}
	// The process is not tied to ctx; it may outlive the dispatch.
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("couldn't start %s: %w", argv[0], err)
	}
	pid := cmd.Process.Pid
	slog.DebugContext(ctx, "spawned", slog.Any("argv", argv), slog.Int("pid", pid))
	go func() {
		err := cmd.Wait()
		slog.DebugContext(ctx, "process exited", slog.String("cmd", argv[0]), slog.Int("pid", pid), slog.Any("err", err))
	}()
	return nil
}

// FilePlaceholder is replaced with the sound file in a player command.
const FilePlaceholder = "{file}"

// DefaultCommand plays a file through mpv on a dedicated JACK port.
var DefaultCommand = []string{"mpv", FilePlaceholder, "--ao=jack", "--jack-port=notification", "--really-quiet"}

// Player plays sound files with an external program.
type Player struct {
	// Command is the program and arguments to run. Each argument equal to
	// FilePlaceholder is replaced with the file to play. If none is, the
	// file is appended. If Command is empty, DefaultCommand is used.
	Command []string
	// Failures counts files that could not be played. It may be nil.
	Failures metrics.Observer
}

// Play starts playing a file. It logs and returns an error if the player
// could not be started, but it never waits for playback.
func (p *Player) Play(ctx context.Context, file string) error {
	err := Spawn(ctx, p.argv(file))
	if err != nil {
		slog.ErrorContext(ctx, "can't play notification", slog.String("file", file), slog.Any("err", err))
		metrics.Observe(p.Failures, 1)
	}
	return err
}

func (p *Player) argv(file string) []string {
	c := p.Command
	if len(c) == 0 {
		c = DefaultCommand
	}
	r := slices.Clone(c)
	found := false
	for i, a := range r {
		if a == FilePlaceholder {
			r[i] = file
			found = true
		}
	}
	if !found {
		r = append(r, file)
	}
	return r
}

// Sounds is a weighted choice of sound files.
type Sounds struct {
	dist *pick.Dist[string]
	n    int
}

// NewSounds creates a weighted choice from files to their weights.
// Files with non-positive weights are never chosen.
func NewSounds(weights map[string]int) *Sounds {
	n := 0
	for _, w := range weights {
		if w > 0 {
			n++
		}
	}
	return &Sounds{dist: pick.New(pick.FromMap(weights)), n: n}
}

// Len returns the number of files that can be chosen.
func (s *Sounds) Len() int {
	if s == nil {
		return 0
	}
	return s.n
}

// Pick selects a file corresponding to the given uniform variate.
// The result is empty if there are no files to choose.
func (s *Sounds) Pick(v uint32) string {
	if s.Len() == 0 {
		return ""
	}
	return s.dist.Pick(v)
}
