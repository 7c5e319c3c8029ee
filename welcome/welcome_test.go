package welcome_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chimebot/chime/welcome"
)

func TestVariant(t *testing.T) {
	cases := []struct {
		draw float64
		want int
	}{
		{0, 0},
		{0.1, 0},
		{0.205, 0},
		{0.2099, 0},
		{0.21, 1},
		{0.3, 1},
		{0.405, 1},
		{0.5, 2},
		{0.605, 2},
		{0.7, 3},
		{0.805, 3},
		{0.85, 4},
		{0.99, 4},
		{0.999999, 4},
	}
	for _, c := range cases {
		t.Run(fmt.Sprint(c.draw), func(t *testing.T) {
			if got := welcome.Variant(c.draw); got != c.want {
				t.Errorf("wrong variant for %v: want %d, got %d", c.draw, c.want, got)
			}
		})
	}
}

func TestVariantWidths(t *testing.T) {
	// Walk every whole percentage to check the bucket widths.
	var n [welcome.Variants]int
	for p := range 100 {
		n[welcome.Variant(float64(p)/100+0.001)]++
	}
	want := [welcome.Variants]int{21, 20, 20, 20, 19}
	if n != want {
		t.Errorf("wrong bucket widths: want %v, got %v", want, n)
	}
}

type recorder struct {
	played []string
}

func (r *recorder) Play(ctx context.Context, file string) error {
	r.played = append(r.played, file)
	return nil
}

func TestWelcome(t *testing.T) {
	draws := []float64{0.0, 0.21, 0.5, 0.75, 0.99}
	var rec recorder
	w := welcome.Welcomer{
		Sounds: [welcome.Variants]string{"welcome0.ogg", "welcome1.ogg", "welcome2.ogg", "", "welcome4.ogg"},
		Player: &rec,
		Rand: func() float64 {
			d := draws[0]
			draws = draws[1:]
			return d
		},
	}
	var got []int
	for range 5 {
		got = append(got, w.Welcome(context.Background(), "alice"))
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, got); diff != "" {
		t.Errorf("wrong variants (-want +got):\n%s", diff)
	}
	// Variant 3 is silent.
	want := []string{"welcome0.ogg", "welcome1.ogg", "welcome2.ogg", "welcome4.ogg"}
	if diff := cmp.Diff(want, rec.played); diff != "" {
		t.Errorf("wrong sounds played (-want +got):\n%s", diff)
	}
}
