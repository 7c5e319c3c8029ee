package session_test

import (
	"sync"
	"testing"

	"github.com/chimebot/chime/session"
)

func TestQuit(t *testing.T) {
	q := session.NewQuit()
	c := q.Clone()
	if q.Signaled() || c.Signaled() {
		t.Fatal("new handle is signaled")
	}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Signal()
		}()
	}
	wg.Wait()
	if !q.Signaled() {
		t.Error("original not signaled after clone signaled")
	}
	select {
	case <-q.Done():
	default:
		t.Error("done channel not closed")
	}
}

func TestQuitZero(t *testing.T) {
	var q session.Quit
	q.Signal()
	if q.Signaled() {
		t.Error("zero handle reports signaled")
	}
}

func TestEventTerminal(t *testing.T) {
	cases := []struct {
		kind session.Kind
		want bool
	}{
		{session.Other, false},
		{session.Msg, false},
		{session.Quitting, true},
		{session.EOF, true},
	}
	for _, c := range cases {
		t.Run(c.kind.String(), func(t *testing.T) {
			if got := (session.Event{Kind: c.kind}).Terminal(); got != c.want {
				t.Errorf("wrong terminality: want %t, got %t", c.want, got)
			}
		})
	}
}
