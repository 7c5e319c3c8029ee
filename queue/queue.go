// Package queue implements the song request queue file.
//
// The queue is plain UTF-8 text with one entry per line. The bot only ever
// appends to it; another program consumes it.
package queue

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/chimebot/chime/metrics"
)

// File is an append-only queue file.
type File struct {
	// Path is the location of the queue file. It is created if absent.
	Path string
	// Appended counts entries written. It may be nil.
	Appended metrics.Observer

	mu sync.Mutex
}

// Append writes each entry as its own line, in order. Entries containing
// line breaks are rejected. A failure to write one entry does not prevent
// writing the others.
func (f *File) Append(ctx context.Context, entries ...string) error {
	if len(entries) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("couldn't open queue: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if strings.ContainsAny(e, "\r\n") {
			errs = append(errs, fmt.Errorf("queue entry %q contains a line break", e))
			continue
		}
		// One write per entry so that a concurrent reader never sees a
		// partial line from us.
		if _, err := w.WriteString(e + "\n"); err != nil {
			slog.ErrorContext(ctx, "couldn't write to queue", slog.String("path", f.Path), slog.String("entry", e), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("couldn't write %q: %w", e, err))
			continue
		}
		metrics.Observe(f.Appended, 1)
	}
	if err := w.Close(); err != nil {
		errs = append(errs, fmt.Errorf("couldn't close queue: %w", err))
	}
	return errors.Join(errs...)
}

// Entries reads the entries currently in the queue. A missing queue file is
// an empty queue.
func (f *File) Entries() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("couldn't open queue: %w", err)
	}
	defer r.Close()
	var s []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s = append(s, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return s, fmt.Errorf("couldn't read queue: %w", err)
	}
	return s, nil
}
