// Package audit records dispatched commands in SQLite.
package audit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chimebot/chime/command"
)

// Entry is a single recorded command invocation.
type Entry struct {
	// ID is the entry's row ID. It is ignored by Record.
	ID int64 `json:"id"`
	// Channel is the channel in which the command was invoked.
	Channel string `json:"channel"`
	// Sender is the login of the invoking user.
	Sender string `json:"sender"`
	// Command is the command token.
	Command string `json:"command"`
	// Args is the arguments following the command token.
	Args []string `json:"args"`
	// Moderator is whether the sender could moderate the channel.
	Moderator bool `json:"moderator"`
	// Elevated is whether the sender was a subscriber or VIP.
	Elevated bool `json:"elevated"`
	// Time is the time of the invocation.
	Time time.Time `json:"time"`
}

// take gets a connection from db. The returned function releases it.
func take[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) (*sqlite.Conn, func(), error) {
	switch db := any(db).(type) {
	case *sqlite.Conn:
		return db, func() {}, nil
	case *sqlitex.Pool:
		conn, err := db.Take(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { db.Put(conn) }, nil
	default:
		panic("unreachable")
	}
}

// Record records a command invocation.
func Record[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, e Entry) error {
	conn, put, err := take(ctx, db)
	if err != nil {
		return fmt.Errorf("couldn't get conn to record command: %w", err)
	}
	defer put()
	const insert = `INSERT INTO audit (channel, sender, command, args, moderator, elevated, time) VALUES (:channel, :sender, :command, :args, :moderator, :elevated, :time)`
	st, err := conn.Prepare(insert)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to record command: %w", err)
	}
	args := e.Args
	if args == nil {
		args = []string{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		// Should be impossible. Explode loudly.
		go panic(fmt.Errorf("audit: couldn't marshal args %#v: %w", args, err))
	}
	st.SetText(":channel", e.Channel)
	st.SetText(":sender", e.Sender)
	st.SetText(":command", e.Command)
	st.SetText(":args", string(b))
	st.SetInt64(":moderator", flag(e.Moderator))
	st.SetInt64(":elevated", flag(e.Elevated))
	st.SetInt64(":time", e.Time.UnixNano())
	if _, err := st.Step(); err != nil {
		return fmt.Errorf("couldn't insert command: %w", err)
	}
	return nil
}

func flag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Recent returns up to n of the most recently recorded entries, newest
// first.
func Recent[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	conn, put, err := take(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("couldn't get conn to read commands: %w", err)
	}
	defer put()
	const sel = `SELECT id, channel, sender, command, args, moderator, elevated, time FROM audit ORDER BY time DESC, id DESC LIMIT :n`
	st, err := conn.Prepare(sel)
	if err != nil {
		return nil, fmt.Errorf("couldn't prepare statement to read commands: %w", err)
	}
	defer st.Reset()
	st.SetInt64(":n", int64(n))
	var r []Entry
	for {
		ok, err := st.Step()
		if err != nil {
			return nil, fmt.Errorf("couldn't read commands: %w", err)
		}
		if !ok {
			break
		}
		e := Entry{
			ID:        st.ColumnInt64(0),
			Channel:   st.ColumnText(1),
			Sender:    st.ColumnText(2),
			Command:   st.ColumnText(3),
			Moderator: st.ColumnInt64(5) != 0,
			Elevated:  st.ColumnInt64(6) != 0,
			Time:      time.Unix(0, st.ColumnInt64(7)),
		}
		if err := json.Unmarshal([]byte(st.ColumnText(4)), &e.Args); err != nil {
			return nil, fmt.Errorf("couldn't decode args of entry %d: %w", e.ID, err)
		}
		r = append(r, e)
	}
	return r, nil
}

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record commands.
func Init[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) error {
	conn, put, err := take(ctx, db)
	if err != nil {
		return fmt.Errorf("couldn't get conn to initialize audit log: %w", err)
	}
	defer put()
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize audit schema: %w", err)
	}
	return nil
}

// Log records invocations into a pool.
type Log struct {
	DB *sqlitex.Pool
	// Now returns the current time for messages without a server timestamp.
	// If nil, time.Now is used.
	Now func() time.Time
}

// Record records a command invocation.
func (l *Log) Record(ctx context.Context, call *command.Invocation) error {
	e := Entry{
		Channel:   call.Message.To,
		Sender:    call.Message.Sender,
		Command:   call.Name,
		Args:      call.Args,
		Moderator: call.Message.IsModerator,
		Elevated:  call.Message.IsElevated,
	}
	switch {
	case call.Message.Timestamp != 0:
		e.Time = call.Message.Time()
	case l.Now != nil:
		e.Time = l.Now()
	default:
		e.Time = time.Now()
	}
	return Record(ctx, l.DB, e)
}
