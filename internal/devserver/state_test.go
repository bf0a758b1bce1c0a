package devserver

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

func seededState(t *testing.T) (*State, models.User, models.User) {
	t.Helper()
	state := NewState()
	priya, err := state.SeedAccount("priya", "priya@alumni.edu", "pw-one", "")
	assert.NoError(t, err)
	marcus, err := state.SeedAccount("marcus", "marcus@alumni.edu", "pw-two", "")
	assert.NoError(t, err)
	return state, priya, marcus
}

func TestAuthenticate(t *testing.T) {
	state, priya, _ := seededState(t)

	user, err := state.Authenticate("priya@alumni.edu", "pw-one")
	assert.NoError(t, err)
	assert.Equal(t, priya.ID, user.ID)

	// Email lookup is case-insensitive, password is not.
	_, err = state.Authenticate("PRIYA@alumni.edu", "pw-one")
	assert.NoError(t, err)

	_, err = state.Authenticate("priya@alumni.edu", "wrong")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidCredentials))

	_, err = state.Authenticate("nobody@alumni.edu", "pw-one")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidCredentials))
}

func TestSendCreatesConversationOncePerPair(t *testing.T) {
	state, priya, marcus := seededState(t)

	first, _, err := state.Send(priya.ID, marcus.ID, "hello", nil, nil)
	assert.NoError(t, err)
	// The reply lands in the same conversation regardless of direction.
	second, _, err := state.Send(marcus.ID, priya.ID, "hi back", nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	conversations := state.ConversationsFor(priya.ID)
	assert.Len(t, conversations, 1)
	assert.Equal(t, marcus.ID, conversations[0].OtherParticipant.ID)
	assert.Equal(t, "hi back", conversations[0].LastMessage.Content)
	assert.Equal(t, 1, conversations[0].UnreadCount)
}

func TestSendRejectsSelfAndUnknownRecipient(t *testing.T) {
	state, priya, _ := seededState(t)

	_, _, err := state.Send(priya.ID, priya.ID, "note to self", nil, nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	_, _, err = state.Send(priya.ID, uuid.New(), "hello?", nil, nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUserNotFound))
}

func TestHistoryPaginatesFromNewest(t *testing.T) {
	state, priya, marcus := seededState(t)

	var conversationID uuid.UUID
	for i := 1; i <= 7; i++ {
		msg, _, err := state.Send(priya.ID, marcus.ID, fmt.Sprintf("msg %d", i), nil, nil)
		assert.NoError(t, err)
		conversationID = msg.ConversationID
	}

	// Page 1 holds the newest messages, ascending within the page.
	page1, hasMore, err := state.History(marcus.ID, conversationID, 1, 3)
	assert.NoError(t, err)
	assert.True(t, hasMore)
	assert.Equal(t, "msg 5", page1[0].Content)
	assert.Equal(t, "msg 7", page1[2].Content)

	page2, hasMore, err := state.History(marcus.ID, conversationID, 2, 3)
	assert.NoError(t, err)
	assert.True(t, hasMore)
	assert.Equal(t, "msg 2", page2[0].Content)

	page3, hasMore, err := state.History(marcus.ID, conversationID, 3, 3)
	assert.NoError(t, err)
	assert.False(t, hasMore)
	assert.Len(t, page3, 1)
	assert.Equal(t, "msg 1", page3[0].Content)

	// Past the end is an empty page, not an error.
	page4, hasMore, err := state.History(marcus.ID, conversationID, 4, 3)
	assert.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, page4)
}

func TestHistoryRejectsNonParticipants(t *testing.T) {
	state, priya, marcus := seededState(t)
	outsider, err := state.SeedAccount("elena", "elena@alumni.edu", "pw-three", "")
	assert.NoError(t, err)

	msg, _, err := state.Send(priya.ID, marcus.ID, "private", nil, nil)
	assert.NoError(t, err)

	_, _, err = state.History(outsider.ID, msg.ConversationID, 1, 10)
	assert.True(t, utils.IsErrorCode(err, utils.ErrConversationNotFound))
}

func TestEditAuthorization(t *testing.T) {
	state, priya, marcus := seededState(t)
	msg, _, err := state.Send(priya.ID, marcus.ID, "tpyo", nil, nil)
	assert.NoError(t, err)

	_, err = state.Edit(marcus.ID, msg.ID, "hijacked")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotMessageAuthor))

	edited, err := state.Edit(priya.ID, msg.ID, "typo fixed")
	assert.NoError(t, err)
	assert.Equal(t, "typo fixed", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	_, err = state.DeleteForEveryone(priya.ID, msg.ID)
	assert.NoError(t, err)

	_, err = state.Edit(priya.ID, msg.ID, "too late")
	assert.True(t, utils.IsErrorCode(err, utils.ErrMessageTombstoned))
}

func TestDeleteForMeFiltersHistoryPerUser(t *testing.T) {
	state, priya, marcus := seededState(t)
	first, _, err := state.Send(priya.ID, marcus.ID, "first", nil, nil)
	assert.NoError(t, err)
	_, _, err = state.Send(priya.ID, marcus.ID, "second", nil, nil)
	assert.NoError(t, err)

	assert.NoError(t, state.DeleteForMe(marcus.ID, first.ID))

	marcusView, _, err := state.History(marcus.ID, first.ConversationID, 1, 10)
	assert.NoError(t, err)
	assert.Len(t, marcusView, 1)
	assert.Equal(t, "second", marcusView[0].Content)

	priyaView, _, err := state.History(priya.ID, first.ConversationID, 1, 10)
	assert.NoError(t, err)
	assert.Len(t, priyaView, 2)
}

func TestMarkReadStampsOtherSidesMessages(t *testing.T) {
	state, priya, marcus := seededState(t)
	msg, _, err := state.Send(priya.ID, marcus.ID, "read me", nil, nil)
	assert.NoError(t, err)

	_, otherID, err := state.MarkRead(marcus.ID, msg.ConversationID)
	assert.NoError(t, err)
	assert.Equal(t, priya.ID, otherID)

	conversations := state.ConversationsFor(marcus.ID)
	assert.Zero(t, conversations[0].UnreadCount)

	history, _, err := state.History(priya.ID, msg.ConversationID, 1, 10)
	assert.NoError(t, err)
	assert.True(t, history[0].ReadByUser(marcus.ID))
}

func TestDeleteForEveryoneTombstonesInPlace(t *testing.T) {
	state, priya, marcus := seededState(t)
	msg, _, err := state.Send(priya.ID, marcus.ID, "regrettable", nil, nil)
	assert.NoError(t, err)

	_, err = state.DeleteForEveryone(marcus.ID, msg.ID)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotMessageAuthor))

	conversationID, err := state.DeleteForEveryone(priya.ID, msg.ID)
	assert.NoError(t, err)

	history, _, err := state.History(marcus.ID, conversationID, 1, 10)
	assert.NoError(t, err)
	assert.Len(t, history, 1)
	assert.True(t, history[0].Deleted)
	assert.Equal(t, models.TombstoneContent, history[0].Content)
}
