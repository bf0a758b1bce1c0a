package store

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"alumni-messenger/internal/models"
)

// ConversationStore maintains the conversation list ordered by recency of
// activity together with each conversation's unread counter. Like the
// MessageLog it is owned by the sync reducer actor and is not safe for
// concurrent mutation.
type ConversationStore struct {
	selfID uuid.UUID
	byID   map[uuid.UUID]*models.Conversation
}

func NewConversationStore(selfID uuid.UUID) *ConversationStore {
	return &ConversationStore{
		selfID: selfID,
		byID:   make(map[uuid.UUID]*models.Conversation),
	}
}

// ReplaceAll rebuilds the store from a full server refresh. Local-only state
// for conversations absent from the response is discarded.
func (s *ConversationStore) ReplaceAll(conversations []*models.Conversation) {
	s.byID = make(map[uuid.UUID]*models.Conversation, len(conversations))
	for _, conv := range conversations {
		s.byID[conv.ID] = conv
	}
}

// Get returns the conversation with the given id, if present.
func (s *ConversationStore) Get(conversationID uuid.UUID) (*models.Conversation, bool) {
	conv, exists := s.byID[conversationID]
	return conv, exists
}

// List returns the conversations ordered by most recent activity first.
func (s *ConversationStore) List() []*models.Conversation {
	list := make([]*models.Conversation, 0, len(s.byID))
	for _, conv := range s.byID {
		list = append(list, conv)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list
}

// TouchOnNewMessage moves the conversation to the front of the list and
// updates its denormalized last message. The unread counter increments only
// for messages from the other participant while the conversation is not the
// active one; the caller is expected to follow up with a mark-as-read when
// it is active.
//
// Unknown conversations are created implicitly: a thread exists as soon as
// its first message does.
func (s *ConversationStore) TouchOnNewMessage(conversationID uuid.UUID, msg *models.Message, isActiveConversation bool) *models.Conversation {
	conv, exists := s.byID[conversationID]
	if !exists {
		conv = &models.Conversation{ID: conversationID}
		if msg.Sender.ID != s.selfID {
			conv.OtherParticipant = msg.Sender
		}
		s.byID[conversationID] = conv
	}

	conv.LastMessage = msg
	conv.UpdatedAt = msg.CreatedAt
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = time.Now()
	}

	if msg.Sender.ID != s.selfID && !isActiveConversation {
		conv.UnreadCount++
	}
	return conv
}

// ClearUnread resets the unread counter. The counter is only ever reset,
// never decremented piecewise: receipts are conversation-wide caught-up
// signals, not per-message acks.
func (s *ConversationStore) ClearUnread(conversationID uuid.UUID) {
	if conv, exists := s.byID[conversationID]; exists {
		conv.UnreadCount = 0
	}
}

// ApplyReadReceipt is the external confirmation path for the current user's
// own read action. Idempotent with ClearUnread.
func (s *ConversationStore) ApplyReadReceipt(conversationID uuid.UUID) {
	s.ClearUnread(conversationID)
}

// UnreadTotal sums the unread counters across all conversations.
func (s *ConversationStore) UnreadTotal() int {
	total := 0
	for _, conv := range s.byID {
		total += conv.UnreadCount
	}
	return total
}

// Clear drops all conversations. Called on sign-out.
func (s *ConversationStore) Clear() {
	s.byID = make(map[uuid.UUID]*models.Conversation)
}
