package engine

import (
	"log/slog"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"alumni-messenger/internal/models"
	"alumni-messenger/internal/store"
	"alumni-messenger/internal/utils"
)

// maxOrphanIDs bounds the buffer of edit/delete events that arrived before
// their create event. Oldest ids are evicted first.
const maxOrphanIDs = 256

// orphanPatch is an edit or delete waiting for its create event.
type orphanPatch struct {
	edited  *MessageEditedMsg
	deleted *MessageDeletedMsg
}

// SyncReducer is the single authority over the MessageLog and the
// ConversationStore. The actor mailbox serializes every mutation, so the
// stores themselves carry no locks; everything outside this actor only reads
// snapshots or sends it messages.
//
// Every handler is idempotent: replaying an event never changes state beyond
// its first application, which is what makes the unordered push channel and
// push/REST races safe.
type SyncReducer struct {
	self   models.User
	log    *store.MessageLog
	convs  *store.ConversationStore
	active uuid.UUID

	// pendingSends maps a provisional local id to the conversation its
	// optimistic entry lives in, until the server acknowledges the send.
	pendingSends map[string]uuid.UUID

	orphans     map[uuid.UUID][]orphanPatch
	orphanOrder []uuid.UUID

	metrics *utils.MetricsCollector
	logger  *slog.Logger
}

func NewSyncReducer(self models.User, metrics *utils.MetricsCollector, logger *slog.Logger) *SyncReducer {
	return &SyncReducer{
		self:         self,
		log:          store.NewMessageLog(),
		convs:        store.NewConversationStore(self.ID),
		pendingSends: make(map[string]uuid.UUID),
		orphans:      make(map[uuid.UUID][]orphanPatch),
		metrics:      metrics,
		logger:       logger,
	}
}

func (r *SyncReducer) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *ProvisionalSendMsg:
		r.handleProvisionalSend(context, msg)
	case *SendFailedMsg:
		r.handleSendFailed(context, msg)
	case *MessageReceivedMsg:
		r.handleMessageReceived(context, msg)
	case *MessageEditedMsg:
		r.handleMessageEdited(context, msg)
	case *MessageDeletedMsg:
		r.handleMessageDeleted(context, msg)
	case *DeleteForMeMsg:
		r.handleDeleteForMe(context, msg)
	case *ConversationReadMsg:
		r.handleConversationRead(context, msg)
	case *ConversationListMsg:
		r.handleConversationList(context, msg)
	case *HistoryPageMsg:
		r.handleHistoryPage(context, msg)
	case *SetActiveConversationMsg:
		r.active = msg.ConversationID
		context.Respond(true)
	case *GetConversationsMsg:
		context.Respond(r.convs.List())
	case *GetMessagesMsg:
		context.Respond(r.log.Messages(msg.ConversationID))
	case *GetUnreadTotalMsg:
		context.Respond(r.convs.UnreadTotal())
	case *GetActiveConversationMsg:
		context.Respond(r.active)
	}
}

func (r *SyncReducer) handleProvisionalSend(context actor.Context, msg *ProvisionalSendMsg) {
	startTime := time.Now()

	provisional := &models.Message{
		LocalID:        shortuuid.New(),
		ConversationID: msg.ConversationID,
		Sender:         r.self,
		Content:        msg.Content,
		CreatedAt:      time.Now(),
		ReplyTo:        msg.ReplyTo,
		Attachments:    msg.Attachments,
	}

	// A send into a thread that does not exist yet has no bucket to show
	// in; the entry appears when the ack names the new conversation.
	if msg.ConversationID != uuid.Nil {
		r.log.AddProvisional(msg.ConversationID, provisional)
	}
	r.pendingSends[provisional.LocalID] = msg.ConversationID

	r.metrics.AddOperationLatency("provisional_send", time.Since(startTime))
	context.Respond(provisional)
}

func (r *SyncReducer) handleSendFailed(context actor.Context, msg *SendFailedMsg) {
	flagged := false
	if msg.ConversationID != uuid.Nil {
		flagged = r.log.MarkSendFailed(msg.ConversationID, msg.LocalID)
	}
	delete(r.pendingSends, msg.LocalID)
	context.Respond(flagged)
}

func (r *SyncReducer) handleMessageReceived(context actor.Context, msg *MessageReceivedMsg) {
	startTime := time.Now()
	conversationID := msg.ConversationID

	inserted := false
	if msg.LocalID != "" {
		if pendingConv, pending := r.pendingSends[msg.LocalID]; pending {
			delete(r.pendingSends, msg.LocalID)
			if pendingConv != uuid.Nil {
				inserted = r.log.ConfirmProvisional(pendingConv, msg.LocalID, msg.Message)
			} else {
				inserted = r.log.UpsertMessage(conversationID, msg.Message)
			}
		} else {
			// Replayed ack; the idempotent upsert absorbs it.
			inserted = r.log.UpsertMessage(conversationID, msg.Message)
		}
	} else {
		inserted = r.log.UpsertMessage(conversationID, msg.Message)
	}

	active := r.active == conversationID
	if inserted {
		r.convs.TouchOnNewMessage(conversationID, msg.Message, active)
		r.applyOrphans(conversationID, msg.Message.ID)
		r.metrics.IncrementApplied()
	} else {
		r.metrics.IncrementDuplicates()
	}

	fromOther := msg.Message.Sender.ID != r.self.ID
	r.metrics.AddOperationLatency("message_received", time.Since(startTime))
	context.Respond(&ReceiveResult{
		Inserted:      inserted,
		NeedsMarkRead: inserted && active && fromOther,
	})
}

func (r *SyncReducer) handleMessageEdited(context actor.Context, msg *MessageEditedMsg) {
	if !r.log.HasMessage(msg.ConversationID, msg.MessageID) {
		r.bufferOrphan(msg.MessageID, orphanPatch{edited: msg})
		context.Respond(false)
		return
	}
	r.applyEdit(msg)
	r.metrics.IncrementApplied()
	context.Respond(true)
}

func (r *SyncReducer) handleMessageDeleted(context actor.Context, msg *MessageDeletedMsg) {
	if !r.log.HasMessage(msg.ConversationID, msg.MessageID) {
		r.bufferOrphan(msg.MessageID, orphanPatch{deleted: msg})
		context.Respond(false)
		return
	}
	r.applyDelete(msg)
	r.metrics.IncrementApplied()
	context.Respond(true)
}

func (r *SyncReducer) handleDeleteForMe(context actor.Context, msg *DeleteForMeMsg) {
	// Local-view removal only. If the removed message was the denormalized
	// last message, it stays stale until the next server sync.
	removed := r.log.RemoveLocal(msg.ConversationID, msg.MessageID)
	context.Respond(removed)
}

func (r *SyncReducer) handleConversationRead(context actor.Context, msg *ConversationReadMsg) {
	r.log.MarkRead(msg.ConversationID, msg.ReadBy)
	if msg.ReadBy == r.self.ID {
		r.convs.ApplyReadReceipt(msg.ConversationID)
	}
	r.metrics.IncrementApplied()
	context.Respond(true)
}

func (r *SyncReducer) handleConversationList(context actor.Context, msg *ConversationListMsg) {
	r.convs.ReplaceAll(msg.Conversations)
	for _, conv := range msg.Conversations {
		r.log.EnsureBucket(conv.ID)
	}
	context.Respond(true)
}

func (r *SyncReducer) handleHistoryPage(context actor.Context, msg *HistoryPageMsg) {
	startTime := time.Now()
	r.log.MergeHistoryPage(msg.ConversationID, msg.Messages, msg.HasMore, msg.Page)
	for _, fetched := range msg.Messages {
		r.applyOrphans(msg.ConversationID, fetched.ID)
	}
	r.metrics.AddOperationLatency("history_merge", time.Since(startTime))
	context.Respond(true)
}

func (r *SyncReducer) applyEdit(msg *MessageEditedMsg) {
	editedAt := msg.EditedAt
	patch := &models.Message{
		ID:       msg.MessageID,
		Content:  msg.NewContent,
		EditedAt: &editedAt,
	}
	r.log.UpsertMessage(msg.ConversationID, patch)
	r.refreshLastMessage(msg.ConversationID, msg.MessageID)
}

func (r *SyncReducer) applyDelete(msg *MessageDeletedMsg) {
	r.log.MarkDeletedEverywhere(msg.ConversationID, msg.MessageID)
	r.refreshLastMessage(msg.ConversationID, msg.MessageID)
}

// refreshLastMessage keeps the denormalized conversation preview in step
// when the message it points at was mutated. The store and the log may hold
// distinct copies after a list refresh, so the preview is re-pointed at the
// log's entry.
func (r *SyncReducer) refreshLastMessage(conversationID, messageID uuid.UUID) {
	conv, exists := r.convs.Get(conversationID)
	if !exists || conv.LastMessage == nil || conv.LastMessage.ID != messageID {
		return
	}
	for _, msg := range r.log.Messages(conversationID) {
		if msg.ID == messageID {
			conv.LastMessage = msg
			return
		}
	}
}

// bufferOrphan holds an edit/delete whose create event has not arrived yet.
// Dropping it silently would under-apply the patch if the create is merely
// delayed; applying on arrival keeps convergence without trusting event
// order.
func (r *SyncReducer) bufferOrphan(messageID uuid.UUID, patch orphanPatch) {
	if _, exists := r.orphans[messageID]; !exists {
		if len(r.orphanOrder) >= maxOrphanIDs {
			evicted := r.orphanOrder[0]
			r.orphanOrder = r.orphanOrder[1:]
			delete(r.orphans, evicted)
			r.metrics.IncrementDropped()
			r.logger.Debug("evicted orphan patches", "messageId", evicted)
		}
		r.orphanOrder = append(r.orphanOrder, messageID)
	}
	r.orphans[messageID] = append(r.orphans[messageID], patch)
	r.metrics.IncrementBuffered()
	r.logger.Debug("buffered orphan patch", "messageId", messageID)
}

func (r *SyncReducer) applyOrphans(conversationID, messageID uuid.UUID) {
	patches, exists := r.orphans[messageID]
	if !exists {
		return
	}
	delete(r.orphans, messageID)
	for i, id := range r.orphanOrder {
		if id == messageID {
			r.orphanOrder = append(r.orphanOrder[:i], r.orphanOrder[i+1:]...)
			break
		}
	}
	for _, patch := range patches {
		switch {
		case patch.edited != nil:
			r.applyEdit(patch.edited)
		case patch.deleted != nil:
			r.applyDelete(patch.deleted)
		}
	}
	r.logger.Debug("applied buffered patches", "messageId", messageID, "count", len(patches))
}
