package compose

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

func TestSubmitProducesSendCommand(t *testing.T) {
	convID := uuid.New()
	recipient := uuid.New()
	session := NewSession(convID, recipient)

	session.SetDraft("  hello there  ")
	command, err := session.Submit()
	assert.NoError(t, err)

	send, ok := command.(*SendCommand)
	if !ok {
		t.Fatalf("expected SendCommand, got %T", command)
	}
	assert.Equal(t, convID, send.ConversationID)
	assert.Equal(t, recipient, send.RecipientID)
	assert.Equal(t, "hello there", send.Content)
	assert.Nil(t, send.ReplyTo)

	// Submit clears the session.
	assert.Empty(t, session.Draft())
}

func TestSubmitEmptyDraftFails(t *testing.T) {
	session := NewSession(uuid.New(), uuid.New())
	session.SetDraft("   ")

	_, err := session.Submit()
	assert.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrEmptyMessage))
}

func TestReplyCarriesDenormalizedSnippet(t *testing.T) {
	session := NewSession(uuid.New(), uuid.New())
	target := &models.Message{
		ID:      uuid.New(),
		Sender:  models.User{ID: uuid.New(), Username: "priya"},
		Content: "original message",
	}

	session.StartReply(target)
	session.SetDraft("replying")

	command, err := session.Submit()
	assert.NoError(t, err)

	send := command.(*SendCommand)
	assert.NotNil(t, send.ReplyTo)
	assert.Equal(t, target.ID, send.ReplyTo.MessageID)
	assert.Equal(t, "priya", send.ReplyTo.Sender)
	assert.Equal(t, "original message", send.ReplyTo.Snippet)
}

func TestReplyAndEditAreMutuallyExclusive(t *testing.T) {
	session := NewSession(uuid.New(), uuid.New())
	replyTarget := &models.Message{ID: uuid.New(), Content: "reply to me"}
	editTarget := &models.Message{ID: uuid.New(), Content: "edit me"}

	session.StartReply(replyTarget)
	assert.NoError(t, session.StartEdit(editTarget))
	assert.Nil(t, session.ReplyTarget())
	assert.Equal(t, editTarget, session.EditTarget())

	session.StartReply(replyTarget)
	assert.Nil(t, session.EditTarget())
	assert.Equal(t, replyTarget, session.ReplyTarget())
}

func TestStartEditSeedsDraftAndSubmitEdits(t *testing.T) {
	session := NewSession(uuid.New(), uuid.New())
	target := &models.Message{ID: uuid.New(), Content: "tpyo"}

	assert.NoError(t, session.StartEdit(target))
	assert.Equal(t, "tpyo", session.Draft())

	session.SetDraft("typo fixed")
	command, err := session.Submit()
	assert.NoError(t, err)

	edit, ok := command.(*EditCommand)
	if !ok {
		t.Fatalf("expected EditCommand, got %T", command)
	}
	assert.Equal(t, target.ID, edit.MessageID)
	assert.Equal(t, "typo fixed", edit.Content)
	assert.Nil(t, session.EditTarget())
}

func TestStartEditRejectsTombstonedMessage(t *testing.T) {
	session := NewSession(uuid.New(), uuid.New())
	target := &models.Message{
		ID:      uuid.New(),
		Content: models.TombstoneContent,
		Deleted: true,
	}

	err := session.StartEdit(target)
	assert.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrMessageTombstoned))
}

func TestStartEditRejectsProvisionalMessage(t *testing.T) {
	session := NewSession(uuid.New(), uuid.New())
	target := &models.Message{LocalID: "loc-1", Content: "still sending"}

	err := session.StartEdit(target)
	assert.Error(t, err)
}

func TestCancelClearsEverything(t *testing.T) {
	session := NewSession(uuid.New(), uuid.New())
	session.StartReply(&models.Message{ID: uuid.New()})
	session.SetDraft("draft")

	session.Cancel()

	assert.Empty(t, session.Draft())
	assert.Nil(t, session.ReplyTarget())
	assert.Nil(t, session.EditTarget())
}
