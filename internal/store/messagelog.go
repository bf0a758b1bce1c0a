package store

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"alumni-messenger/internal/models"
)

// Bucket holds one conversation's message history in chronological order.
type Bucket struct {
	Messages []*models.Message
	HasMore  bool
	Page     int

	// hidden remembers ids removed with "delete for me" so a later
	// history refetch cannot resurrect them. Session scoped.
	hidden map[uuid.UUID]struct{}
}

// MessageLog maintains the per-conversation message buckets. It is owned by
// the sync reducer actor and must only be mutated from inside its mailbox;
// that single-writer discipline is why there is no lock here.
type MessageLog struct {
	buckets map[uuid.UUID]*Bucket
}

func NewMessageLog() *MessageLog {
	return &MessageLog{
		buckets: make(map[uuid.UUID]*Bucket),
	}
}

// EnsureBucket idempotently creates an empty bucket for the conversation.
func (l *MessageLog) EnsureBucket(conversationID uuid.UUID) *Bucket {
	bucket, exists := l.buckets[conversationID]
	if !exists {
		bucket = &Bucket{
			Messages: make([]*models.Message, 0),
			HasMore:  true,
			Page:     0,
			hidden:   make(map[uuid.UUID]struct{}),
		}
		l.buckets[conversationID] = bucket
	}
	return bucket
}

// Bucket returns the bucket for a conversation, if one exists.
func (l *MessageLog) Bucket(conversationID uuid.UUID) (*Bucket, bool) {
	bucket, exists := l.buckets[conversationID]
	return bucket, exists
}

// Messages returns a snapshot of the conversation's messages. Entries are
// value copies: later in-place patches (edits, tombstones, read stamps) do
// not show through, so a caller may hold a snapshot across reducer turns.
func (l *MessageLog) Messages(conversationID uuid.UUID) []*models.Message {
	bucket, exists := l.buckets[conversationID]
	if !exists {
		return nil
	}
	snapshot := make([]*models.Message, len(bucket.Messages))
	for i, msg := range bucket.Messages {
		copied := *msg
		if len(msg.ReadBy) > 0 {
			copied.ReadBy = append([]uuid.UUID(nil), msg.ReadBy...)
		}
		snapshot[i] = &copied
	}
	return snapshot
}

// HasMessage reports whether the conversation's bucket holds the id.
func (l *MessageLog) HasMessage(conversationID, messageID uuid.UUID) bool {
	bucket, exists := l.buckets[conversationID]
	if !exists {
		return false
	}
	return bucket.findByID(messageID) != nil
}

// MergeHistoryPage reconciles a fetched history page into the bucket.
//
// Page 1 is a refresh of the visible window: the fetched page is unioned with
// whatever is already present locally (optimistic sends and push-delivered
// messages the fetch may not have seen yet), deduplicated by id and sorted by
// CreatedAt. Pages above 1 are strictly older backfill and are prepended.
func (l *MessageLog) MergeHistoryPage(conversationID uuid.UUID, fetched []*models.Message, hasMore bool, page int) {
	bucket := l.EnsureBucket(conversationID)

	kept := make([]*models.Message, 0, len(fetched))
	for _, msg := range fetched {
		if _, removed := bucket.hidden[msg.ID]; removed {
			continue
		}
		kept = append(kept, msg)
	}

	if page <= 1 {
		byID := make(map[uuid.UUID]*models.Message, len(bucket.Messages))
		for _, msg := range bucket.Messages {
			if msg.ID != uuid.Nil {
				byID[msg.ID] = msg
			}
		}
		for _, msg := range kept {
			if existing, seen := byID[msg.ID]; seen {
				patchMessage(existing, msg)
				continue
			}
			bucket.Messages = append(bucket.Messages, msg)
			byID[msg.ID] = msg
		}
		sortBucket(bucket)
	} else {
		existing := make(map[uuid.UUID]struct{}, len(bucket.Messages))
		for _, msg := range bucket.Messages {
			if msg.ID != uuid.Nil {
				existing[msg.ID] = struct{}{}
			}
		}
		older := make([]*models.Message, 0, len(kept))
		for _, msg := range kept {
			if _, seen := existing[msg.ID]; seen {
				continue
			}
			older = append(older, msg)
		}
		sort.SliceStable(older, func(i, j int) bool {
			return older[i].CreatedAt.Before(older[j].CreatedAt)
		})
		bucket.Messages = append(older, bucket.Messages...)
	}

	bucket.HasMore = hasMore
	bucket.Page = page
}

// UpsertMessage inserts a message at its chronological position, or patches
// the mutable fields of an existing entry with the same id. Position is
// fixed by the original CreatedAt and never changes on edit. Returns true if
// a new entry was inserted.
func (l *MessageLog) UpsertMessage(conversationID uuid.UUID, msg *models.Message) bool {
	bucket := l.EnsureBucket(conversationID)

	if _, removed := bucket.hidden[msg.ID]; removed {
		return false
	}

	if msg.ID != uuid.Nil {
		if existing := bucket.findByID(msg.ID); existing != nil {
			patchMessage(existing, msg)
			return false
		}
	}

	bucket.insertSorted(msg)
	return true
}

// AddProvisional appends a locally created message that has no server id
// yet. A local send is always the newest entry in this client's view.
func (l *MessageLog) AddProvisional(conversationID uuid.UUID, msg *models.Message) {
	bucket := l.EnsureBucket(conversationID)
	bucket.Messages = append(bucket.Messages, msg)
}

// ConfirmProvisional replaces the provisional entry identified by localID
// with the server's confirmed copy. If the confirmed id already arrived via
// push, the provisional entry is dropped instead of duplicated. Returns
// false if there was nothing to confirm and the message was inserted fresh.
func (l *MessageLog) ConfirmProvisional(conversationID uuid.UUID, localID string, confirmed *models.Message) bool {
	bucket := l.EnsureBucket(conversationID)

	provisionalIdx := bucket.indexOfLocal(localID)

	if existing := bucket.findByID(confirmed.ID); existing != nil {
		// Push event won the race; the provisional entry is redundant.
		patchMessage(existing, confirmed)
		if provisionalIdx >= 0 && bucket.Messages[provisionalIdx] != existing {
			bucket.removeAt(provisionalIdx)
		}
		return true
	}

	if provisionalIdx < 0 {
		l.UpsertMessage(conversationID, confirmed)
		return false
	}

	// Server CreatedAt is authoritative; reposition under it.
	bucket.removeAt(provisionalIdx)
	bucket.insertSorted(confirmed)
	return true
}

// MarkSendFailed flags a provisional entry whose send request errored.
func (l *MessageLog) MarkSendFailed(conversationID uuid.UUID, localID string) bool {
	bucket, exists := l.buckets[conversationID]
	if !exists {
		return false
	}
	idx := bucket.indexOfLocal(localID)
	if idx < 0 {
		return false
	}
	bucket.Messages[idx].Failed = true
	return true
}

// RemoveLocal strips a message from this client's view only. The id is
// remembered so history refetches do not bring it back.
func (l *MessageLog) RemoveLocal(conversationID, messageID uuid.UUID) bool {
	bucket, exists := l.buckets[conversationID]
	if !exists {
		return false
	}
	bucket.hidden[messageID] = struct{}{}
	for i, msg := range bucket.Messages {
		if msg.ID == messageID {
			bucket.removeAt(i)
			return true
		}
	}
	return false
}

// MarkDeletedEverywhere tombstones a message in place: the content is
// replaced by the tombstone marker, position and timestamps are preserved,
// and no later patch can change the content again.
func (l *MessageLog) MarkDeletedEverywhere(conversationID, messageID uuid.UUID) bool {
	bucket, exists := l.buckets[conversationID]
	if !exists {
		return false
	}
	msg := bucket.findByID(messageID)
	if msg == nil {
		return false
	}
	tombstone(msg)
	return true
}

// MarkRead records readerID in the read set of every message of the
// conversation not authored by them.
func (l *MessageLog) MarkRead(conversationID, readerID uuid.UUID) {
	bucket, exists := l.buckets[conversationID]
	if !exists {
		return
	}
	for _, msg := range bucket.Messages {
		if msg.Sender.ID != readerID {
			msg.MarkReadBy(readerID)
		}
	}
}

// Clear drops all buckets. Called on sign-out.
func (l *MessageLog) Clear() {
	l.buckets = make(map[uuid.UUID]*Bucket)
}

func (b *Bucket) findByID(id uuid.UUID) *models.Message {
	for _, msg := range b.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func (b *Bucket) indexOfLocal(localID string) int {
	for i, msg := range b.Messages {
		if msg.LocalID == localID {
			return i
		}
	}
	return -1
}

func (b *Bucket) removeAt(i int) {
	b.Messages = append(b.Messages[:i], b.Messages[i+1:]...)
}

// insertSorted places msg after every entry with an equal or earlier
// CreatedAt, so equal timestamps keep insertion order.
func (b *Bucket) insertSorted(msg *models.Message) {
	i := len(b.Messages)
	for i > 0 && b.Messages[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	b.Messages = append(b.Messages, nil)
	copy(b.Messages[i+1:], b.Messages[i:])
	b.Messages[i] = msg
}

func sortBucket(b *Bucket) {
	sort.SliceStable(b.Messages, func(i, j int) bool {
		return b.Messages[i].CreatedAt.Before(b.Messages[j].CreatedAt)
	})
}

// patchMessage applies the mutable fields of src onto dst. A tombstoned
// message never gets its content back; edits apply last-write-wins by
// EditedAt.
func patchMessage(dst, src *models.Message) {
	if src.Deleted && !dst.Deleted {
		tombstone(dst)
	}

	if !dst.Deleted {
		if newerEdit(dst.EditedAt, src.EditedAt) {
			dst.Content = src.Content
			dst.EditedAt = src.EditedAt
		} else if dst.EditedAt == nil && src.EditedAt == nil {
			dst.Content = src.Content
		}
	}

	for _, reader := range src.ReadBy {
		dst.MarkReadBy(reader)
	}
}

// newerEdit reports whether candidate is a strictly newer edit stamp than
// current.
func newerEdit(current, candidate *time.Time) bool {
	if candidate == nil {
		return false
	}
	return current == nil || candidate.After(*current)
}

func tombstone(msg *models.Message) {
	msg.Deleted = true
	msg.Content = models.TombstoneContent
}
