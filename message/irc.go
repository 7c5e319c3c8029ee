package message

import (
	"strconv"

	"gitlab.com/zephyrtronium/tmi"
)

// FromTMI adapts a TMI PRIVMSG.
func FromTMI(m *tmi.Message) *Received {
	id, _ := m.Tag("id")
	uid, _ := m.Tag("user-id")
	ts, _ := m.Tag("tmi-sent-ts")
	u, _ := strconv.ParseInt(ts, 10, 64)
	r := Received{
		ID:          id,
		To:          m.To(),
		Sender:      m.Nick,
		UserID:      uid,
		Name:        m.DisplayName(),
		Text:        m.Trailing,
		Timestamp:   u,
		IsModerator: moderator(m),
		IsElevated:  elevated(m),
	}
	return &r
}

func moderator(m *tmi.Message) bool {
	t, _ := m.Tag("mod")
	if t == "1" {
		return true
	}
	// The broadcaster gets mod=0, but their nick is equal to the channel name.
	if to := m.To(); len(to) > 1 && to[0] == '#' && to[1:] == m.Nick {
		return true
	}
	return false
}

func elevated(m *tmi.Message) bool {
	sub, _ := m.Tag("subscriber")
	if sub == "1" {
		return true
	}
	vip, _ := m.Tag("vip")
	return vip == "1"
}

// ToTMI creates a PRIVMSG to send to TMI. If msg.Reply is not empty, then the
// result is a reply to the message with that ID.
func ToTMI(msg Sent) *tmi.Message {
	r := tmi.Privmsg(msg.To, msg.Text)
	if msg.Reply != "" {
		r.Tags = "reply-parent-msg-id=" + msg.Reply
	}
	return r
}
