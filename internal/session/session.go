package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"

	"alumni-messenger/internal/api"
	"alumni-messenger/internal/compose"
	"alumni-messenger/internal/config"
	"alumni-messenger/internal/engine"
	"alumni-messenger/internal/models"
	"alumni-messenger/internal/push"
	"alumni-messenger/internal/utils"
)

// Session is one signed-in messenger instance: the REST client, the sync
// reducer, and the push channel, built up in that order and torn down in
// reverse. All state lives behind the reducer's mailbox; Session methods
// translate user intent into events and forward server facts.
type Session struct {
	cfg     config.ClientConfig
	logger  *slog.Logger
	metrics *utils.MetricsCollector

	self    models.User
	api     *api.Client
	system  *actor.ActorSystem
	engine  *engine.Engine
	channel *push.Channel

	// pushCtx scopes everything the push channel spawns, so Close can
	// cancel work that is still in flight.
	pushCtx    context.Context
	cancelPush context.CancelFunc
	closeOnce  sync.Once
}

// Open signs in and brings the full stack up: authenticate, spawn the
// reducer, connect the push channel, then hydrate the conversation list.
// A failure at any step tears down what was already built.
func Open(ctx context.Context, cfg config.ClientConfig, email, password string, logger *slog.Logger) (*Session, error) {
	client := api.NewClient(cfg.ServerURL, cfg.RequestTimeout)
	user, err := client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger.With("user", user.Username),
		metrics: utils.NewMetricsCollector(),
		self:    *user,
		api:     client,
		system:  actor.NewActorSystem(),
	}
	s.engine = engine.NewEngine(s.system, s.self, s.metrics, s.logger, cfg.ReducerTimeout)

	channel, err := push.NewChannel(cfg.ServerURL, client.Token(), s.deliverPush, s.logger)
	if err != nil {
		s.engine.Stop()
		client.ClearToken()
		return nil, err
	}
	s.channel = channel

	pushCtx, cancel := context.WithCancel(context.Background())
	s.pushCtx = pushCtx
	s.cancelPush = cancel
	go channel.Run(pushCtx)

	if err := s.RefreshConversations(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close tears the session down in reverse construction order. Safe to call
// more than once and after a partial failure in Open.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancelPush != nil {
			s.cancelPush()
		}
		if s.channel != nil {
			s.channel.Close()
		}
		s.engine.Stop()
		s.api.ClearToken()
	})
}

// Self returns the signed-in user.
func (s *Session) Self() models.User {
	return s.self
}

// Metrics returns a snapshot of the session's sync counters.
func (s *Session) Metrics() utils.MetricsSnapshot {
	return s.metrics.Snapshot()
}

// deliverPush is the push channel's sink. It runs on the channel's read
// goroutine; the RequestFuture hop serializes the event through the reducer's
// mailbox with everything else.
func (s *Session) deliverPush(event interface{}) {
	result, err := s.engine.Apply(event)
	if err != nil {
		s.logger.Warn("applying push event failed", "error", err)
		return
	}

	// A remote message landing in the conversation the user is looking at is
	// read immediately; tell the server so the sender gets their receipt.
	if received, ok := result.(*engine.ReceiveResult); ok && received.NeedsMarkRead {
		if msg, ok := event.(*engine.MessageReceivedMsg); ok {
			conversationID := msg.ConversationID
			go func() {
				// Scoped to pushCtx so teardown cancels the request
				// instead of letting it race sign-out.
				ctx, cancel := context.WithTimeout(s.pushCtx, s.cfg.RequestTimeout)
				defer cancel()
				if err := s.MarkRead(ctx, conversationID); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Warn("auto mark-read failed", "error", err)
				}
			}()
		}
	}
}

// RefreshConversations refetches the conversation list and replaces local
// state with the server's view.
func (s *Session) RefreshConversations(ctx context.Context) error {
	conversations, err := s.api.FetchConversations(ctx)
	if err != nil {
		return err
	}
	_, err = s.engine.Apply(&engine.ConversationListMsg{Conversations: conversations})
	return err
}

// Conversations returns the conversation list ordered by recency.
func (s *Session) Conversations() ([]*models.Conversation, error) {
	return s.engine.Conversations()
}

// Messages returns the current snapshot of one conversation's messages.
func (s *Session) Messages(conversationID uuid.UUID) ([]*models.Message, error) {
	return s.engine.Messages(conversationID)
}

// UnreadTotal returns the sum of unread counters across conversations.
func (s *Session) UnreadTotal() (int, error) {
	return s.engine.UnreadTotal()
}

// OpenConversation marks a conversation active, loads its first history page,
// and acknowledges it as read.
func (s *Session) OpenConversation(ctx context.Context, conversationID uuid.UUID) error {
	if _, err := s.engine.Apply(&engine.SetActiveConversationMsg{ConversationID: conversationID}); err != nil {
		return err
	}
	if _, err := s.loadHistoryPage(ctx, conversationID, 1); err != nil {
		return err
	}
	return s.MarkRead(ctx, conversationID)
}

// CloseConversation clears the active conversation.
func (s *Session) CloseConversation() error {
	_, err := s.engine.Apply(&engine.SetActiveConversationMsg{ConversationID: uuid.Nil})
	return err
}

// LoadOlderHistory fetches one backfill page. Returns whether still older
// pages exist.
func (s *Session) LoadOlderHistory(ctx context.Context, conversationID uuid.UUID, page int) (bool, error) {
	if page < 2 {
		return false, utils.NewAppError(utils.ErrInvalidInput, "backfill starts at page 2", nil)
	}
	return s.loadHistoryPage(ctx, conversationID, page)
}

func (s *Session) loadHistoryPage(ctx context.Context, conversationID uuid.UUID, page int) (bool, error) {
	historyPage, err := s.api.FetchHistory(ctx, conversationID, page, s.cfg.PageSize)
	if err != nil {
		return false, err
	}
	_, err = s.engine.Apply(&engine.HistoryPageMsg{
		ConversationID: conversationID,
		Messages:       historyPage.Messages,
		HasMore:        historyPage.HasMore,
		Page:           page,
	})
	return historyPage.HasMore, err
}

// Submit executes a command produced by a compose session.
func (s *Session) Submit(ctx context.Context, command interface{}) error {
	switch cmd := command.(type) {
	case *compose.SendCommand:
		return s.Send(ctx, cmd)
	case *compose.EditCommand:
		return s.Edit(ctx, cmd)
	default:
		return utils.NewAppError(utils.ErrInvalidInput, "unknown compose command", nil)
	}
}

// Send performs the optimistic send round trip: record a provisional entry,
// deliver over REST, then confirm or flag the entry with the outcome.
func (s *Session) Send(ctx context.Context, cmd *compose.SendCommand) error {
	result, err := s.engine.Apply(&engine.ProvisionalSendMsg{
		ConversationID: cmd.ConversationID,
		Content:        cmd.Content,
		ReplyTo:        cmd.ReplyTo,
	})
	if err != nil {
		return err
	}
	provisional := result.(*models.Message)

	resp, err := s.api.Send(ctx, api.SendRequest{
		RecipientID: cmd.RecipientID,
		Content:     cmd.Content,
		ReplyTo:     cmd.ReplyTo,
	})
	if err != nil {
		if _, applyErr := s.engine.Apply(&engine.SendFailedMsg{
			ConversationID: cmd.ConversationID,
			LocalID:        provisional.LocalID,
		}); applyErr != nil {
			s.logger.Warn("flagging failed send failed", "error", applyErr)
		}
		return err
	}

	_, err = s.engine.Apply(&engine.MessageReceivedMsg{
		ConversationID: resp.ConversationID,
		Message:        resp.Message,
		LocalID:        provisional.LocalID,
	})
	return err
}

// Edit sends a content change and applies the confirmed result.
func (s *Session) Edit(ctx context.Context, cmd *compose.EditCommand) error {
	msg, err := s.api.Edit(ctx, cmd.MessageID, cmd.Content)
	if err != nil {
		return err
	}

	editedAt := time.Now().UTC()
	if msg.EditedAt != nil {
		editedAt = *msg.EditedAt
	}
	_, err = s.engine.Apply(&engine.MessageEditedMsg{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		NewContent:     msg.Content,
		EditedAt:       editedAt,
	})
	return err
}

// DeleteForMe removes a message from this user's view everywhere the user is
// signed in. The other participant is unaffected.
func (s *Session) DeleteForMe(ctx context.Context, conversationID, messageID uuid.UUID) error {
	if err := s.api.DeleteForMe(ctx, messageID); err != nil {
		return err
	}
	_, err := s.engine.Apply(&engine.DeleteForMeMsg{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	return err
}

// DeleteForEveryone tombstones one of the user's own messages for both sides.
func (s *Session) DeleteForEveryone(ctx context.Context, conversationID, messageID uuid.UUID) error {
	if err := s.api.DeleteForEveryone(ctx, messageID); err != nil {
		return err
	}
	_, err := s.engine.Apply(&engine.MessageDeletedMsg{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	return err
}

// MarkRead acknowledges a conversation as read. The local receipt is applied
// immediately; the server's push echo arrives later as an idempotent
// duplicate.
func (s *Session) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.api.MarkRead(ctx, conversationID); err != nil {
		return err
	}
	_, err := s.engine.Apply(&engine.ConversationReadMsg{
		ConversationID: conversationID,
		ReadBy:         s.self.ID,
		ReadAt:         time.Now().UTC(),
	})
	return err
}
