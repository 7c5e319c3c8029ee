package audit_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chimebot/chime/audit"
	"github.com/chimebot/chime/command"
	"github.com/chimebot/chime/message"
)

var dbCount atomic.Int64

func testDB(ctx context.Context) *sqlitex.Pool {
	k := dbCount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:test-audit-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	if err != nil {
		panic(err)
	}
	if err := audit.Init(ctx, pool); err != nil {
		panic(err)
	}
	return pool
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	e := audit.Entry{
		Channel: "#kessoku",
		Sender:  "bocchi",
		Command: "!sr",
		Args:    []string{"https://example.com/a", "b"},
		Time:    time.Unix(1, 0),
	}
	if err := audit.Record(ctx, db, e); err != nil {
		t.Fatalf("couldn't record: %v", err)
	}
	conn, err := db.Take(ctx)
	if err != nil {
		t.Fatalf("couldn't get conn: %v", err)
	}
	defer db.Put(conn)
	var rows int
	opts := sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rows++
			if got := stmt.ColumnText(0); got != "#kessoku" {
				t.Errorf("wrong channel recorded: want %q, got %q", "#kessoku", got)
			}
			if got := stmt.ColumnText(1); got != "bocchi" {
				t.Errorf("wrong sender recorded: want %q, got %q", "bocchi", got)
			}
			if got := stmt.ColumnText(2); got != "!sr" {
				t.Errorf("wrong command recorded: want %q, got %q", "!sr", got)
			}
			if got, want := stmt.ColumnText(3), `["https://example.com/a","b"]`; got != want {
				t.Errorf("wrong args recorded: want %q, got %q", want, got)
			}
			if got, want := time.Unix(0, stmt.ColumnInt64(4)), time.Unix(1, 0); !got.Equal(want) {
				t.Errorf("wrong time: want %v, got %v", want, got)
			}
			return nil
		},
	}
	err = sqlitex.ExecuteTransient(conn, `SELECT channel, sender, command, args, time FROM audit`, &opts)
	if err != nil {
		t.Errorf("failed to scan: %v", err)
	}
	if rows != 1 {
		t.Errorf("wrong number of rows: want 1, got %d", rows)
	}
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	for i, s := range []string{"!raid", "!host", "!uptime"} {
		e := audit.Entry{
			Channel: "#kessoku",
			Sender:  "ryo",
			Command: s,
			Time:    time.Unix(int64(i), 0),
		}
		if err := audit.Record(ctx, db, e); err != nil {
			t.Fatalf("couldn't record %s: %v", s, err)
		}
	}
	cases := []struct {
		name string
		n    int
		want []string
	}{
		{"none", 0, nil},
		{"negative", -1, nil},
		{"one", 1, []string{"!uptime"}},
		{"some", 2, []string{"!uptime", "!host"}},
		{"all", 10, []string{"!uptime", "!host", "!raid"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, err := audit.Recent(ctx, db, c.n)
			if err != nil {
				t.Fatalf("couldn't read: %v", err)
			}
			var got []string
			for _, e := range r {
				got = append(got, e.Command)
				if len(e.Args) != 0 {
					t.Errorf("unexpected args for %s: %q", e.Command, e.Args)
				}
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("wrong commands (+got/-want):\n%s", diff)
			}
		})
	}
}

func TestLog(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	l := audit.Log{DB: db, Now: func() time.Time { return time.Unix(5, 0) }}
	call := command.Invocation{
		Name: "!follow",
		Message: &message.Received{
			To:     "#kessoku",
			Sender: "nijika",
			Text:   "!follow",
		},
	}
	if err := l.Record(ctx, &call); err != nil {
		t.Fatalf("couldn't record: %v", err)
	}
	got, err := audit.Recent(ctx, db, 1)
	if err != nil {
		t.Fatalf("couldn't read: %v", err)
	}
	want := []audit.Entry{
		{
			Channel: "#kessoku",
			Sender:  "nijika",
			Command: "!follow",
			Time:    time.Unix(5, 0),
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(audit.Entry{}, "ID"), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("wrong entries (+got/-want):\n%s", diff)
	}
}

func TestLogMessageDetails(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	l := audit.Log{DB: db, Now: func() time.Time { return time.Unix(5, 0) }}
	call := command.Invocation{
		Name: "!sr",
		Args: []string{"https://example.com/a"},
		Message: &message.Received{
			To:          "#kessoku",
			Sender:      "kita",
			Text:        "!sr https://example.com/a",
			Timestamp:   9000,
			IsModerator: true,
			IsElevated:  true,
		},
	}
	if err := l.Record(ctx, &call); err != nil {
		t.Fatalf("couldn't record: %v", err)
	}
	got, err := audit.Recent(ctx, db, 1)
	if err != nil {
		t.Fatalf("couldn't read: %v", err)
	}
	want := []audit.Entry{
		{
			Channel:   "#kessoku",
			Sender:    "kita",
			Command:   "!sr",
			Args:      []string{"https://example.com/a"},
			Moderator: true,
			Elevated:  true,
			Time:      time.UnixMilli(9000),
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(audit.Entry{}, "ID")); diff != "" {
		t.Errorf("wrong entries (+got/-want):\n%s", diff)
	}
}
