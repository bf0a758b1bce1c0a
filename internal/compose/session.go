package compose

import (
	"strings"

	"github.com/google/uuid"

	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

// snippetLimit caps the denormalized reply preview.
const snippetLimit = 80

// SendCommand asks for a new message to be sent.
type SendCommand struct {
	ConversationID uuid.UUID // Nil for a thread that does not exist yet
	RecipientID    uuid.UUID
	Content        string
	ReplyTo        *models.ReplyRef
}

// EditCommand asks for a content change on an existing message.
type EditCommand struct {
	MessageID uuid.UUID
	Content   string
}

// Session is the transient compose state for one conversation: the draft
// text plus at most one of a reply target or an edit target. It never
// touches the stores; Submit produces a command for the caller to execute.
// Nothing here survives a reload.
type Session struct {
	conversationID uuid.UUID
	recipientID    uuid.UUID

	draft   string
	replyTo *models.Message
	editing *models.Message
}

func NewSession(conversationID, recipientID uuid.UUID) *Session {
	return &Session{
		conversationID: conversationID,
		recipientID:    recipientID,
	}
}

func (s *Session) Draft() string {
	return s.draft
}

func (s *Session) SetDraft(text string) {
	s.draft = text
}

// ReplyTarget returns the message being replied to, if any.
func (s *Session) ReplyTarget() *models.Message {
	return s.replyTo
}

// EditTarget returns the message being edited, if any.
func (s *Session) EditTarget() *models.Message {
	return s.editing
}

// StartReply marks a message as the reply target. Replying and editing are
// mutually exclusive; starting one clears the other.
func (s *Session) StartReply(msg *models.Message) {
	s.replyTo = msg
	s.editing = nil
}

// StartEdit marks one of the user's own messages for editing and seeds the
// draft with its current content. Tombstoned messages cannot be edited.
func (s *Session) StartEdit(msg *models.Message) error {
	if msg.Deleted {
		return utils.NewAppError(utils.ErrMessageTombstoned, "cannot edit a deleted message", nil)
	}
	if msg.Provisional() {
		return utils.NewAppError(utils.ErrInvalidInput, "cannot edit a message that is still sending", nil)
	}
	s.editing = msg
	s.replyTo = nil
	s.draft = msg.Content
	return nil
}

// Cancel drops the draft and any reply/edit target.
func (s *Session) Cancel() {
	s.draft = ""
	s.replyTo = nil
	s.editing = nil
}

// Submit turns the session into a SendCommand or an EditCommand and clears
// the session. The returned value is one of the two command types.
func (s *Session) Submit() (interface{}, error) {
	content := strings.TrimSpace(s.draft)
	if content == "" {
		return nil, utils.NewAppError(utils.ErrEmptyMessage, "nothing to send", nil)
	}

	var command interface{}
	if s.editing != nil {
		command = &EditCommand{
			MessageID: s.editing.ID,
			Content:   content,
		}
	} else {
		send := &SendCommand{
			ConversationID: s.conversationID,
			RecipientID:    s.recipientID,
			Content:        content,
		}
		if s.replyTo != nil {
			send.ReplyTo = replyRef(s.replyTo)
		}
		command = send
	}

	s.Cancel()
	return command, nil
}

// replyRef denormalizes the target into a non-owning back-reference. The
// snippet is frozen now; deleting the target later shows a tombstone
// instead of clearing the reference.
func replyRef(target *models.Message) *models.ReplyRef {
	snippet := target.Content
	if runes := []rune(snippet); len(runes) > snippetLimit {
		snippet = string(runes[:snippetLimit])
	}
	return &models.ReplyRef{
		MessageID: target.ID,
		Sender:    target.Sender.Username,
		Snippet:   snippet,
	}
}
