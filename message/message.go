// Package message defines the chat messages the bot receives and sends.
package message

import (
	"fmt"
	"strings"
	"time"
)

// Received is a chat message received from a channel.
type Received struct {
	// ID is the unique ID of the message.
	ID string
	// To is the channel to which the message was sent.
	To string
	// Sender is the login name of the message sender. It is the identity used
	// for permissions and new chatter detection, so it is compared exactly.
	Sender string
	// UserID is the platform's stable user ID of the sender, if known.
	UserID string
	// Name is the display name of the message sender.
	Name string
	// Text is the text of the message.
	Text string
	// Timestamp is the timestamp of the message as milliseconds since the
	// Unix epoch.
	Timestamp int64
	// IsModerator indicates whether the sender can moderate the channel.
	IsModerator bool
	// IsElevated indicates whether the sender is a subscriber or VIP on the
	// platform. It does not grant permission to use commands.
	IsElevated bool
}

// Time returns the message timestamp.
func (m *Received) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Sent is a message to be sent to a channel.
type Sent struct {
	// Reply is a message ID to reply to. If empty, the message is not a reply.
	Reply string
	// To is the channel to which the message is sent.
	To string
	// Text is the message text.
	Text string
}

// formatString is a type to prevent misuse of format strings passed to [Format].
type formatString string

// Format constructs a message to send from a format string literal and
// formatting arguments.
func Format(reply, to string, f formatString, args ...any) Sent {
	return Sent{
		Reply: reply,
		To:    to,
		Text:  strings.TrimSpace(fmt.Sprintf(string(f), args...)),
	}
}
