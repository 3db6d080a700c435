package model

import "time"

const (
	// MaxChatMessages bounds a lobby's retained chat history.
	MaxChatMessages = 50
	// MaxChatAge bounds how old a retained chat message may be.
	MaxChatAge = 5 * 24 * time.Hour
)

// ChatMessage is one lobby chat line. To is set for private messages
// only, together with the opaque Special tag the client sent.
type ChatMessage struct {
	From    *Profile
	To      *Profile
	Special []byte
	Text    string
	When    time.Time
}

// VisibleTo reports whether the message should be replayed to the
// given profile. Broadcast messages are visible to everyone, private
// ones only to the two parties.
func (m *ChatMessage) VisibleTo(profileID int32) bool {
	if m.To == nil {
		return true
	}
	return m.From.ID == profileID || m.To.ID == profileID
}
