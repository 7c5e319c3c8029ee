// Package command implements chat commands and the registry that binds them
// to command tokens.
package command

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/chimebot/chime/message"
	"github.com/chimebot/chime/session"
)

// Invocation is a command invocation. An Invocation and its fields must not
// be modified or retained by any command.
type Invocation struct {
	// Name is the command token that selected the command.
	Name string
	// Message is the message which triggered the invocation. It is always
	// non-nil.
	Message *message.Received
	// Args is the whitespace-delimited words of the message after the command
	// token.
	Args []string
	// Writer sends messages to the chat service.
	Writer session.Writer
	// Quit is a handle to end the session. Signaling it ends the dispatcher
	// at its next poll, not immediately.
	Quit session.Quit
}

// Say sends a plain message to the channel in which the command was invoked.
func (call *Invocation) Say(ctx context.Context, text string) error {
	return call.Writer.Send(ctx, message.Format("", call.Message.To, "%s", text))
}

// Handler executes a command. Handlers run synchronously on the dispatch
// loop, so they must delegate any long-running work.
type Handler interface {
	Invoke(ctx context.Context, call *Invocation)
}

// Func adapts a function to a [Handler].
type Func func(ctx context.Context, call *Invocation)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, call *Invocation) {
	f(ctx, call)
}

// Registry maps command tokens to handlers.
// It is built before dispatch starts and must not be modified afterward.
type Registry struct {
	cmds map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]Handler)}
}

// With binds name to h, replacing any existing binding, and returns r.
func (r *Registry) With(name string, h Handler) *Registry {
	r.cmds[name] = h
	return r
}

// Lookup finds the handler bound to exactly the given token.
func (r *Registry) Lookup(token string) (Handler, bool) {
	h, ok := r.cmds[token]
	return h, ok
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	s := make([]string, 0, len(r.cmds))
	for k := range r.cmds {
		s = append(s, k)
	}
	slices.Sort(s)
	return s
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.cmds)
}

// Split splits message text into its command token and the remaining
// whitespace-delimited words. The token is the text up to the first
// whitespace, so text with leading whitespace has an empty token. If there
// are no further words, args is nil.
func Split(text string) (token string, args []string) {
	k := strings.IndexFunc(text, unicode.IsSpace)
	if k < 0 {
		return text, nil
	}
	args = strings.Fields(text[k:])
	if len(args) == 0 {
		args = nil
	}
	return text[:k], args
}
