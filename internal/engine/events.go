package engine

import (
	"time"

	"github.com/google/uuid"

	"alumni-messenger/internal/models"
)

// The sync reducer's closed event set. Every message-related fact, whether
// it came from a local user action, a REST acknowledgement, or a push frame,
// is expressed as one of these types and flows through the same Receive
// switch. The push transport decodes wire frames into these exactly once at
// the boundary.

// Commands issued by the local user
type (
	// ProvisionalSendMsg records an optimistic local send. The reducer
	// assigns a local id and responds with the provisional message; the
	// caller performs the network send and reports back with
	// MessageReceivedMsg (ack) or SendFailedMsg.
	ProvisionalSendMsg struct {
		ConversationID uuid.UUID // Nil when the thread does not exist yet
		Content        string
		ReplyTo        *models.ReplyRef
		Attachments    []models.Attachment
	}

	// SendFailedMsg flags the provisional entry after a failed send request.
	// The log itself is otherwise left untouched; retrying is the caller's
	// business.
	SendFailedMsg struct {
		ConversationID uuid.UUID
		LocalID        string
	}

	// DeleteForMeMsg strips a message from this client's view only.
	DeleteForMeMsg struct {
		ConversationID uuid.UUID
		MessageID      uuid.UUID
	}

	// SetActiveConversationMsg marks the conversation the user is currently
	// viewing (Nil for none). New messages in the active conversation do not
	// increment its unread counter.
	SetActiveConversationMsg struct {
		ConversationID uuid.UUID
	}
)

// Facts confirmed by the server, delivered via REST response or push frame
type (
	// MessageReceivedMsg carries a canonical message. LocalID is set when
	// this is the acknowledgement of a local send and empty for remote
	// pushes.
	MessageReceivedMsg struct {
		ConversationID uuid.UUID
		Message        *models.Message
		LocalID        string
	}

	// MessageEditedMsg patches content and edit stamp on an existing id.
	MessageEditedMsg struct {
		ConversationID uuid.UUID
		MessageID      uuid.UUID
		NewContent     string
		EditedAt       time.Time
	}

	// MessageDeletedMsg tombstones a message for everyone.
	MessageDeletedMsg struct {
		ConversationID uuid.UUID
		MessageID      uuid.UUID
	}

	// ConversationReadMsg is a conversation-wide caught-up signal. When
	// ReadBy is the current user it resets the unread counter; either way it
	// stamps the read set of the other side's messages.
	ConversationReadMsg struct {
		ConversationID uuid.UUID
		ReadBy         uuid.UUID
		ReadAt         time.Time
	}

	// ConversationListMsg replaces the conversation store wholesale from a
	// server refresh.
	ConversationListMsg struct {
		Conversations []*models.Conversation
	}

	// HistoryPageMsg merges a fetched history page into the message log.
	HistoryPageMsg struct {
		ConversationID uuid.UUID
		Messages       []*models.Message
		HasMore        bool
		Page           int
	}
)

// Queries answered over RequestFuture
type (
	GetConversationsMsg      struct{}
	GetMessagesMsg           struct{ ConversationID uuid.UUID }
	GetUnreadTotalMsg        struct{}
	GetActiveConversationMsg struct{}
)

// ReceiveResult is the reducer's answer to MessageReceivedMsg.
type ReceiveResult struct {
	// Inserted is false when the event was a duplicate absorbed by the
	// idempotent upsert.
	Inserted bool

	// NeedsMarkRead is true when a remote message landed in the active
	// conversation; the caller should issue a mark-as-read command.
	NeedsMarkRead bool
}
