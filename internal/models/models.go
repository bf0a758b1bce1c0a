package models

import (
	"time"

	"github.com/google/uuid"
)

// TombstoneContent replaces the body of a message deleted for everyone.
const TombstoneContent = "This message was deleted"

// User is the denormalized participant reference carried on conversations
// and messages.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
}

// ReplyRef is a non-owning back-reference to another message. The snippet is
// denormalized at send time; deleting the target does not clear it.
type ReplyRef struct {
	MessageID uuid.UUID `json:"messageId"`
	Sender    string    `json:"sender"`
	Snippet   string    `json:"snippet"`
}

// Attachment is a file reference carried on a message. Upload itself happens
// elsewhere; the messenger only moves the reference around.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Message is a single direct message. A locally sent message carries only
// LocalID until the server acknowledges it and assigns ID and the
// authoritative CreatedAt.
type Message struct {
	ID             uuid.UUID    `json:"id"`
	LocalID        string       `json:"localId,omitempty"`
	ConversationID uuid.UUID    `json:"conversationId"`
	Sender         User         `json:"sender"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"createdAt"`
	EditedAt       *time.Time   `json:"editedAt,omitempty"`
	Deleted        bool         `json:"deletedForEveryone"`
	ReadBy         []uuid.UUID  `json:"readBy,omitempty"`
	ReplyTo        *ReplyRef    `json:"replyTo,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`

	// Failed marks a provisional send whose request errored. Local only,
	// never set on server-delivered messages.
	Failed bool `json:"-"`
}

// Provisional reports whether the message is still waiting for its
// server-assigned identity.
func (m *Message) Provisional() bool {
	return m.ID == uuid.Nil
}

// ReadByUser reports whether userID is in the message's read set.
func (m *Message) ReadByUser(userID uuid.UUID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkReadBy adds userID to the read set if absent.
func (m *Message) MarkReadBy(userID uuid.UUID) {
	if !m.ReadByUser(userID) {
		m.ReadBy = append(m.ReadBy, userID)
	}
}

// Conversation is one thread between the current user and one other alumnus.
// LastMessage and UnreadCount are denormalized server-side and maintained
// locally between refreshes.
type Conversation struct {
	ID               uuid.UUID `json:"id"`
	OtherParticipant User      `json:"otherParticipant"`
	LastMessage      *Message  `json:"lastMessage,omitempty"`
	UnreadCount      int       `json:"unreadCount"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
