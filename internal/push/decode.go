package push

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alumni-messenger/internal/engine"
	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

// Wire event names. They exist only in this package: frames are decoded into
// the engine's typed event set exactly once, at the channel boundary, so the
// reducer never dispatches on strings.
const (
	eventNewMessage     = "new_message"
	eventMessageEdited  = "message_edited"
	eventMessageDeleted = "message_deleted"
	eventMessagesRead   = "messages_read"
)

// Frame is the envelope every push event travels in.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type newMessagePayload struct {
	ConversationID uuid.UUID       `json:"conversationId"`
	Message        *models.Message `json:"message"`
}

type messageEditedPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	NewContent     string    `json:"newContent"`
	EditedAt       time.Time `json:"editedAt"`
}

type messageDeletedPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
}

type messagesReadPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ReadBy         uuid.UUID `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

// DecodeFrame turns a raw frame into one of the engine's event types.
func DecodeFrame(raw []byte) (interface{}, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "malformed push frame", err)
	}

	switch frame.Event {
	case eventNewMessage:
		var payload newMessagePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "malformed new_message payload", err)
		}
		if payload.Message == nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "new_message frame without message", nil)
		}
		return &engine.MessageReceivedMsg{
			ConversationID: payload.ConversationID,
			Message:        payload.Message,
		}, nil

	case eventMessageEdited:
		var payload messageEditedPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "malformed message_edited payload", err)
		}
		return &engine.MessageEditedMsg{
			ConversationID: payload.ConversationID,
			MessageID:      payload.MessageID,
			NewContent:     payload.NewContent,
			EditedAt:       payload.EditedAt,
		}, nil

	case eventMessageDeleted:
		var payload messageDeletedPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "malformed message_deleted payload", err)
		}
		return &engine.MessageDeletedMsg{
			ConversationID: payload.ConversationID,
			MessageID:      payload.MessageID,
		}, nil

	case eventMessagesRead:
		var payload messagesReadPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "malformed messages_read payload", err)
		}
		return &engine.ConversationReadMsg{
			ConversationID: payload.ConversationID,
			ReadBy:         payload.ReadBy,
			ReadAt:         payload.ReadAt,
		}, nil

	default:
		return nil, utils.NewAppError(utils.ErrInvalidInput,
			fmt.Sprintf("unknown push event %q", frame.Event), nil)
	}
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// EncodeNewMessage builds a new_message frame. Used by the dev server so the
// wire format lives in one place.
func EncodeNewMessage(conversationID uuid.UUID, msg *models.Message) ([]byte, error) {
	return encodeFrame(eventNewMessage, newMessagePayload{
		ConversationID: conversationID,
		Message:        msg,
	})
}

// EncodeMessageEdited builds a message_edited frame.
func EncodeMessageEdited(conversationID, messageID uuid.UUID, newContent string, editedAt time.Time) ([]byte, error) {
	return encodeFrame(eventMessageEdited, messageEditedPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		NewContent:     newContent,
		EditedAt:       editedAt,
	})
}

// EncodeMessageDeleted builds a message_deleted frame.
func EncodeMessageDeleted(conversationID, messageID uuid.UUID) ([]byte, error) {
	return encodeFrame(eventMessageDeleted, messageDeletedPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
}

// EncodeMessagesRead builds a messages_read frame.
func EncodeMessagesRead(conversationID, readBy uuid.UUID, readAt time.Time) ([]byte, error) {
	return encodeFrame(eventMessagesRead, messagesReadPayload{
		ConversationID: conversationID,
		ReadBy:         readBy,
		ReadAt:         readAt,
	})
}
