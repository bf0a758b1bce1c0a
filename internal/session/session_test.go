package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"alumni-messenger/internal/compose"
	"alumni-messenger/internal/config"
	"alumni-messenger/internal/devserver"
	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

const (
	testPassword = "roll-tide-2024"

	waitFor = 3 * time.Second
	tick    = 25 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startDevServer(t *testing.T) (*httptest.Server, models.User, models.User) {
	t.Helper()
	state := devserver.NewState()

	priya, err := state.SeedAccount("priya", "priya@alumni.edu", testPassword, "")
	assert.NoError(t, err)
	marcus, err := state.SeedAccount("marcus", "marcus@alumni.edu", testPassword, "")
	assert.NoError(t, err)

	server := devserver.NewServer(state, "test-secret", testLogger())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, priya, marcus
}

func openTestSession(t *testing.T, serverURL, email string) *Session {
	t.Helper()
	cfg := config.ClientConfig{
		ServerURL:      serverURL,
		PageSize:       30,
		RequestTimeout: 5 * time.Second,
		ReducerTimeout: 5 * time.Second,
	}
	s, err := Open(context.Background(), cfg, email, testPassword, testLogger())
	if err != nil {
		t.Fatalf("opening session for %s: %v", email, err)
	}
	t.Cleanup(s.Close)
	return s
}

func sendText(t *testing.T, s *Session, conversationID, recipientID uuid.UUID, text string) {
	t.Helper()
	composer := compose.NewSession(conversationID, recipientID)
	composer.SetDraft(text)
	command, err := composer.Submit()
	assert.NoError(t, err)
	assert.NoError(t, s.Submit(context.Background(), command))
}

func TestOpenRejectsBadCredentials(t *testing.T) {
	ts, _, _ := startDevServer(t)

	cfg := config.ClientConfig{
		ServerURL:      ts.URL,
		PageSize:       30,
		RequestTimeout: 5 * time.Second,
		ReducerTimeout: 5 * time.Second,
	}
	_, err := Open(context.Background(), cfg, "priya@alumni.edu", "wrong", testLogger())
	assert.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidCredentials))
}

func TestSendDeliversOverPushAndReadReceiptFlowsBack(t *testing.T) {
	ts, priyaUser, marcusUser := startDevServer(t)
	ctx := context.Background()

	priya := openTestSession(t, ts.URL, "priya@alumni.edu")
	marcus := openTestSession(t, ts.URL, "marcus@alumni.edu")

	// First message into a thread that does not exist yet.
	sendText(t, priya, uuid.Nil, marcusUser.ID, "hey marcus, long time")

	assert.Eventually(t, func() bool {
		total, err := marcus.UnreadTotal()
		return err == nil && total == 1
	}, waitFor, tick, "recipient never saw the unread message")

	conversations, err := marcus.Conversations()
	assert.NoError(t, err)
	assert.Len(t, conversations, 1)
	conv := conversations[0]
	assert.Equal(t, priyaUser.ID, conv.OtherParticipant.ID)
	assert.NotNil(t, conv.LastMessage)
	assert.Equal(t, "hey marcus, long time", conv.LastMessage.Content)

	// The sender's own copy is confirmed with a server identity.
	assert.Eventually(t, func() bool {
		messages, err := priya.Messages(conv.ID)
		return err == nil && len(messages) == 1 && !messages[0].Provisional()
	}, waitFor, tick, "sender's provisional entry was never confirmed")

	// Opening the conversation clears the badge and sends the receipt.
	assert.NoError(t, marcus.OpenConversation(ctx, conv.ID))

	total, err := marcus.UnreadTotal()
	assert.NoError(t, err)
	assert.Zero(t, total)

	messages, err := marcus.Messages(conv.ID)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)

	assert.Eventually(t, func() bool {
		messages, err := priya.Messages(conv.ID)
		return err == nil && len(messages) == 1 && messages[0].ReadByUser(marcusUser.ID)
	}, waitFor, tick, "read receipt never reached the sender")
}

func TestEditAndDeletePropagateToTheOtherSide(t *testing.T) {
	ts, _, marcusUser := startDevServer(t)
	ctx := context.Background()

	priya := openTestSession(t, ts.URL, "priya@alumni.edu")
	marcus := openTestSession(t, ts.URL, "marcus@alumni.edu")

	sendText(t, priya, uuid.Nil, marcusUser.ID, "meet at 5pm")

	var conv *models.Conversation
	assert.Eventually(t, func() bool {
		conversations, err := marcus.Conversations()
		if err != nil || len(conversations) != 1 {
			return false
		}
		conv = conversations[0]
		return true
	}, waitFor, tick)
	assert.NoError(t, marcus.OpenConversation(ctx, conv.ID))

	var messageID uuid.UUID
	assert.Eventually(t, func() bool {
		messages, err := priya.Messages(conv.ID)
		if err != nil || len(messages) != 1 || messages[0].Provisional() {
			return false
		}
		messageID = messages[0].ID
		return true
	}, waitFor, tick)

	assert.NoError(t, priya.Edit(ctx, &compose.EditCommand{MessageID: messageID, Content: "meet at 6pm"}))

	assert.Eventually(t, func() bool {
		messages, err := marcus.Messages(conv.ID)
		return err == nil && len(messages) == 1 &&
			messages[0].Content == "meet at 6pm" && messages[0].EditedAt != nil
	}, waitFor, tick, "edit never reached the other side")

	assert.NoError(t, priya.DeleteForEveryone(ctx, conv.ID, messageID))

	assert.Eventually(t, func() bool {
		messages, err := marcus.Messages(conv.ID)
		return err == nil && len(messages) == 1 &&
			messages[0].Deleted && messages[0].Content == models.TombstoneContent
	}, waitFor, tick, "tombstone never reached the other side")
}

func TestCloseWhilePushesLandInActiveConversation(t *testing.T) {
	// Signing out must cancel the auto mark-read work spawned by incoming
	// pushes instead of racing it over the client's credential.
	ts, _, marcusUser := startDevServer(t)
	ctx := context.Background()

	priya := openTestSession(t, ts.URL, "priya@alumni.edu")
	marcus := openTestSession(t, ts.URL, "marcus@alumni.edu")

	sendText(t, priya, uuid.Nil, marcusUser.ID, "opening move")

	var conv *models.Conversation
	assert.Eventually(t, func() bool {
		conversations, err := marcus.Conversations()
		if err != nil || len(conversations) != 1 {
			return false
		}
		conv = conversations[0]
		return true
	}, waitFor, tick)
	assert.NoError(t, marcus.OpenConversation(ctx, conv.ID))

	// Remote messages into the active conversation trigger mark-read
	// round trips on the push goroutine; tear down while they stream in.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			command := &compose.SendCommand{
				ConversationID: conv.ID,
				RecipientID:    marcusUser.ID,
				Content:        fmt.Sprintf("burst %d", i),
			}
			if err := priya.Send(context.Background(), command); err != nil {
				return
			}
		}
	}()

	marcus.Close()
	<-done

	// Closing again is a no-op.
	marcus.Close()
}

func TestDeleteForMeOnlyAffectsTheCaller(t *testing.T) {
	ts, _, marcusUser := startDevServer(t)
	ctx := context.Background()

	priya := openTestSession(t, ts.URL, "priya@alumni.edu")
	marcus := openTestSession(t, ts.URL, "marcus@alumni.edu")

	sendText(t, priya, uuid.Nil, marcusUser.ID, "first")

	var conv *models.Conversation
	assert.Eventually(t, func() bool {
		conversations, err := marcus.Conversations()
		if err != nil || len(conversations) != 1 {
			return false
		}
		conv = conversations[0]
		return true
	}, waitFor, tick)

	sendText(t, priya, conv.ID, marcusUser.ID, "second")
	assert.NoError(t, marcus.OpenConversation(ctx, conv.ID))

	var firstID uuid.UUID
	assert.Eventually(t, func() bool {
		messages, err := marcus.Messages(conv.ID)
		if err != nil || len(messages) != 2 {
			return false
		}
		firstID = messages[0].ID
		return true
	}, waitFor, tick)

	assert.NoError(t, marcus.DeleteForMe(ctx, conv.ID, firstID))

	messages, err := marcus.Messages(conv.ID)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, "second", messages[0].Content)

	// A history refetch must not resurrect the hidden message.
	assert.NoError(t, marcus.OpenConversation(ctx, conv.ID))
	messages, err = marcus.Messages(conv.ID)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)

	// The other side keeps both messages.
	assert.Eventually(t, func() bool {
		messages, err := priya.Messages(conv.ID)
		return err == nil && len(messages) == 2
	}, waitFor, tick)
}
