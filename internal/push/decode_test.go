package push

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"alumni-messenger/internal/engine"
	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

func TestDecodeNewMessageFrame(t *testing.T) {
	convID := uuid.New()
	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		Sender:         models.User{ID: uuid.New(), Username: "priya"},
		Content:        "hello",
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	raw, err := EncodeNewMessage(convID, msg)
	assert.NoError(t, err)

	decoded, err := DecodeFrame(raw)
	assert.NoError(t, err)

	event, ok := decoded.(*engine.MessageReceivedMsg)
	if !ok {
		t.Fatalf("expected MessageReceivedMsg, got %T", decoded)
	}
	assert.Equal(t, convID, event.ConversationID)
	assert.Equal(t, msg.ID, event.Message.ID)
	assert.Equal(t, "hello", event.Message.Content)
	assert.Empty(t, event.LocalID, "push frames never carry a local id")
}

func TestDecodeMessageEditedFrame(t *testing.T) {
	convID := uuid.New()
	msgID := uuid.New()
	editedAt := time.Now().UTC().Truncate(time.Millisecond)

	raw, err := EncodeMessageEdited(convID, msgID, "new text", editedAt)
	assert.NoError(t, err)

	decoded, err := DecodeFrame(raw)
	assert.NoError(t, err)

	event, ok := decoded.(*engine.MessageEditedMsg)
	if !ok {
		t.Fatalf("expected MessageEditedMsg, got %T", decoded)
	}
	assert.Equal(t, msgID, event.MessageID)
	assert.Equal(t, "new text", event.NewContent)
	assert.True(t, editedAt.Equal(event.EditedAt))
}

func TestDecodeMessageDeletedFrame(t *testing.T) {
	convID := uuid.New()
	msgID := uuid.New()

	raw, err := EncodeMessageDeleted(convID, msgID)
	assert.NoError(t, err)

	decoded, err := DecodeFrame(raw)
	assert.NoError(t, err)

	event, ok := decoded.(*engine.MessageDeletedMsg)
	if !ok {
		t.Fatalf("expected MessageDeletedMsg, got %T", decoded)
	}
	assert.Equal(t, convID, event.ConversationID)
	assert.Equal(t, msgID, event.MessageID)
}

func TestDecodeMessagesReadFrame(t *testing.T) {
	convID := uuid.New()
	reader := uuid.New()
	readAt := time.Now().UTC().Truncate(time.Millisecond)

	raw, err := EncodeMessagesRead(convID, reader, readAt)
	assert.NoError(t, err)

	decoded, err := DecodeFrame(raw)
	assert.NoError(t, err)

	event, ok := decoded.(*engine.ConversationReadMsg)
	if !ok {
		t.Fatalf("expected ConversationReadMsg, got %T", decoded)
	}
	assert.Equal(t, reader, event.ReadBy)
	assert.True(t, readAt.Equal(event.ReadAt))
}

func TestDecodeRejectsUnknownEvent(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"event":"typing_indicator","data":{}}`))
	assert.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestDecodeRejectsMalformedFrame(t *testing.T) {
	_, err := DecodeFrame([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"event":"new_message","data":{"message":null}}`))
	assert.Error(t, err)
}
