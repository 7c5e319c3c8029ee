package notify

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chimebot/chime/metrics"
)

func TestPlayerArgv(t *testing.T) {
	cases := []struct {
		name string
		cmd  []string
		file string
		want []string
	}{
		{
			name: "default",
			file: "/audio/raid.ogg",
			want: []string{"mpv", "/audio/raid.ogg", "--ao=jack", "--jack-port=notification", "--really-quiet"},
		},
		{
			name: "append",
			cmd:  []string{"paplay", "--volume=40000"},
			file: "/audio/follow.ogg",
			want: []string{"paplay", "--volume=40000", "/audio/follow.ogg"},
		},
		{
			name: "twice",
			cmd:  []string{"sh", "-c", "echo $0 >> played; play $0", "{file}"},
			file: "host.ogg",
			want: []string{"sh", "-c", "echo $0 >> played; play $0", "host.ogg"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := Player{Command: c.cmd}
			got := p.argv(c.file)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("wrong argv (-want +got):\n%s", diff)
			}
		})
	}
	// The template must not be modified.
	if DefaultCommand[1] != FilePlaceholder {
		t.Errorf("default command modified: %q", DefaultCommand)
	}
}

func TestPlayFailure(t *testing.T) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "spawn_failures"})
	p := Player{
		Command:  []string{filepath.Join(t.TempDir(), "no-such-player")},
		Failures: metrics.NewPromCounter(c),
	}
	if err := p.Play(context.Background(), "welcome0.ogg"); err == nil {
		t.Error("no error playing with missing player")
	}
	if got := testutil.ToFloat64(c); got != 1 {
		t.Errorf("wrong failure count: want 1, got %v", got)
	}
}

func TestSpawn(t *testing.T) {
	if err := Spawn(context.Background(), nil); err == nil {
		t.Error("no error spawning empty command")
	}
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no true binary")
	}
	if err := Spawn(context.Background(), []string{bin}); err != nil {
		t.Errorf("couldn't spawn %s: %v", bin, err)
	}
}

func TestSounds(t *testing.T) {
	s := NewSounds(map[string]int{"raid.ogg": 1, "never.ogg": 0})
	if s.Len() != 1 {
		t.Errorf("wrong number of sounds: want 1, got %d", s.Len())
	}
	for _, v := range []uint32{0, 1 << 31, ^uint32(0)} {
		if got := s.Pick(v); got != "raid.ogg" {
			t.Errorf("wrong pick for %d: want raid.ogg, got %q", v, got)
		}
	}
	var empty *Sounds
	if got := empty.Pick(0); got != "" {
		t.Errorf("nil sounds picked %q", got)
	}
	if got := NewSounds(nil).Pick(0); got != "" {
		t.Errorf("empty sounds picked %q", got)
	}
}
