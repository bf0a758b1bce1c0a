package engine

import (
	"log/slog"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"

	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

// Engine owns the sync reducer actor and gives the rest of the client a
// typed request surface over its mailbox.
type Engine struct {
	system     *actor.ActorSystem
	reducerPID *actor.PID
	timeout    time.Duration
}

func NewEngine(
	system *actor.ActorSystem,
	self models.User,
	metrics *utils.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
) *Engine {
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSyncReducer(self, metrics, logger)
	})
	return &Engine{
		system:     system,
		reducerPID: system.Root.Spawn(props),
		timeout:    timeout,
	}
}

// ReducerPID exposes the reducer's address for event sources that forward
// into the mailbox directly.
func (e *Engine) ReducerPID() *actor.PID {
	return e.reducerPID
}

// Apply sends an event to the reducer and waits for its answer.
func (e *Engine) Apply(event interface{}) (interface{}, error) {
	future := e.system.Root.RequestFuture(e.reducerPID, event, e.timeout)
	result, err := future.Result()
	if err != nil {
		return nil, utils.NewReducerTimeoutError(err.Error())
	}
	return result, nil
}

// Conversations returns the conversation list ordered by recency.
func (e *Engine) Conversations() ([]*models.Conversation, error) {
	result, err := e.Apply(&GetConversationsMsg{})
	if err != nil {
		return nil, err
	}
	return result.([]*models.Conversation), nil
}

// Messages returns a snapshot of one conversation's bucket.
func (e *Engine) Messages(conversationID uuid.UUID) ([]*models.Message, error) {
	result, err := e.Apply(&GetMessagesMsg{ConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	messages, _ := result.([]*models.Message)
	return messages, nil
}

// UnreadTotal returns the sum of unread counters across conversations.
func (e *Engine) UnreadTotal() (int, error) {
	result, err := e.Apply(&GetUnreadTotalMsg{})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// Stop poisons the reducer and waits for its mailbox to drain.
func (e *Engine) Stop() {
	if err := e.system.Root.PoisonFuture(e.reducerPID).Wait(); err != nil {
		// Shutdown is best effort; the actor system dies with the session.
		_ = err
	}
}
