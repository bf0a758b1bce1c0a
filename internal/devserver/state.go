package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

// account is one registered alumnus with login credentials.
type account struct {
	user         models.User
	email        string
	passwordHash []byte
}

// conversationState is the authoritative record of one thread. Messages are
// kept in ascending CreatedAt order; hiddenFor tracks delete-for-me per user.
type conversationState struct {
	id           uuid.UUID
	participants [2]uuid.UUID
	messages     []*models.Message
	unread       map[uuid.UUID]int
	updatedAt    time.Time
	hiddenFor    map[uuid.UUID]map[uuid.UUID]struct{}
}

func (cs *conversationState) hasParticipant(userID uuid.UUID) bool {
	return cs.participants[0] == userID || cs.participants[1] == userID
}

func (cs *conversationState) otherParticipant(userID uuid.UUID) uuid.UUID {
	if cs.participants[0] == userID {
		return cs.participants[1]
	}
	return cs.participants[0]
}

func (cs *conversationState) hiddenSet(userID uuid.UUID) map[uuid.UUID]struct{} {
	set, ok := cs.hiddenFor[userID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		cs.hiddenFor[userID] = set
	}
	return set
}

// State holds all dev server data in memory. Everything is lost on restart,
// which is the point: each run starts from the seeded fixture.
type State struct {
	mu            sync.RWMutex
	accounts      map[uuid.UUID]*account
	byEmail       map[string]*account
	conversations map[uuid.UUID]*conversationState
	pairIndex     map[[2]uuid.UUID]uuid.UUID
	byMessage     map[uuid.UUID]uuid.UUID
}

func NewState() *State {
	return &State{
		accounts:      make(map[uuid.UUID]*account),
		byEmail:       make(map[string]*account),
		conversations: make(map[uuid.UUID]*conversationState),
		pairIndex:     make(map[[2]uuid.UUID]uuid.UUID),
		byMessage:     make(map[uuid.UUID]uuid.UUID),
	}
}

// SeedAccount registers a login. Used at startup and by tests.
func (s *State) SeedAccount(username, email, password, avatarURL string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	if _, exists := s.byEmail[email]; exists {
		return models.User{}, utils.NewAppError(utils.ErrDuplicate, "email already registered: "+email, nil)
	}

	acct := &account{
		user: models.User{
			ID:        uuid.New(),
			Username:  username,
			AvatarURL: avatarURL,
		},
		email:        email,
		passwordHash: hash,
	}
	s.accounts[acct.user.ID] = acct
	s.byEmail[email] = acct
	return acct.user, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *State) Authenticate(email, password string) (models.User, error) {
	s.mu.RLock()
	acct, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()

	if !ok {
		return models.User{}, utils.NewAppError(utils.ErrInvalidCredentials, "invalid email or password", nil)
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return models.User{}, utils.NewAppError(utils.ErrInvalidCredentials, "invalid email or password", nil)
	}
	return acct.user, nil
}

// User looks up a registered user by id.
func (s *State) User(userID uuid.UUID) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return models.User{}, utils.NewAppError(utils.ErrUserNotFound, "user not found: "+userID.String(), nil)
	}
	return acct.user, nil
}

// ConversationsFor builds the conversation list for one user, newest first,
// with the denormalized last message and unread counter.
func (s *State) ConversationsFor(userID uuid.UUID) []*models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Conversation
	for _, cs := range s.conversations {
		if !cs.hasParticipant(userID) {
			continue
		}
		otherID := cs.otherParticipant(userID)
		other := models.User{ID: otherID}
		if acct, ok := s.accounts[otherID]; ok {
			other = acct.user
		}

		conv := &models.Conversation{
			ID:               cs.id,
			OtherParticipant: other,
			UnreadCount:      cs.unread[userID],
			UpdatedAt:        cs.updatedAt,
		}
		hidden := cs.hiddenFor[userID]
		for i := len(cs.messages) - 1; i >= 0; i-- {
			if _, isHidden := hidden[cs.messages[i].ID]; !isHidden {
				copied := *cs.messages[i]
				conv.LastMessage = &copied
				break
			}
		}
		result = append(result, conv)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result
}

// History returns page N of a conversation counted from the newest message,
// ascending within the page, with the caller's hidden messages filtered out.
func (s *State) History(userID, conversationID uuid.UUID, page, limit int) ([]*models.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.conversations[conversationID]
	if !ok || !cs.hasParticipant(userID) {
		return nil, false, utils.NewConversationNotFoundError(conversationID.String())
	}

	hidden := cs.hiddenFor[userID]
	visible := make([]*models.Message, 0, len(cs.messages))
	for _, msg := range cs.messages {
		if _, isHidden := hidden[msg.ID]; !isHidden {
			visible = append(visible, msg)
		}
	}

	end := len(visible) - (page-1)*limit
	if end <= 0 {
		return []*models.Message{}, false, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	pageMessages := make([]*models.Message, 0, end-start)
	for _, msg := range visible[start:end] {
		copied := *msg
		pageMessages = append(pageMessages, &copied)
	}
	return pageMessages, start > 0, nil
}

// Send appends a new message, creating the conversation between the pair if
// it does not exist yet. Returns the stored message and the recipient id.
func (s *State) Send(senderID, recipientID uuid.UUID, content string, replyTo *models.ReplyRef, attachments []models.Attachment) (*models.Message, uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.accounts[senderID]
	if !ok {
		return nil, uuid.Nil, utils.NewAppError(utils.ErrUserNotFound, "sender not found", nil)
	}
	if _, ok := s.accounts[recipientID]; !ok {
		return nil, uuid.Nil, utils.NewAppError(utils.ErrUserNotFound, "recipient not found: "+recipientID.String(), nil)
	}
	if senderID == recipientID {
		return nil, uuid.Nil, utils.NewAppError(utils.ErrInvalidInput, "cannot message yourself", nil)
	}

	cs := s.conversationForPairLocked(senderID, recipientID)
	now := time.Now().UTC()
	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: cs.id,
		Sender:         sender.user,
		Content:        content,
		CreatedAt:      now,
		ReplyTo:        replyTo,
		Attachments:    attachments,
	}
	cs.messages = append(cs.messages, msg)
	cs.updatedAt = now
	cs.unread[recipientID]++
	s.byMessage[msg.ID] = cs.id

	copied := *msg
	return &copied, recipientID, nil
}

// Edit replaces a message's content. Rejected for non-authors and tombstones.
func (s *State) Edit(actorID, messageID uuid.UUID, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, cs, err := s.findMessageLocked(messageID)
	if err != nil {
		return nil, err
	}
	if msg.Sender.ID != actorID {
		return nil, utils.NewAppError(utils.ErrNotMessageAuthor, "only the author can edit a message", nil)
	}
	if msg.Deleted {
		return nil, utils.NewAppError(utils.ErrMessageTombstoned, "cannot edit a deleted message", nil)
	}

	now := time.Now().UTC()
	msg.Content = content
	msg.EditedAt = &now
	cs.updatedAt = now

	copied := *msg
	return &copied, nil
}

// DeleteForEveryone tombstones a message in place for both participants.
func (s *State) DeleteForEveryone(actorID, messageID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, cs, err := s.findMessageLocked(messageID)
	if err != nil {
		return uuid.Nil, err
	}
	if msg.Sender.ID != actorID {
		return uuid.Nil, utils.NewAppError(utils.ErrNotMessageAuthor, "only the author can delete for everyone", nil)
	}

	msg.Deleted = true
	msg.Content = models.TombstoneContent
	msg.EditedAt = nil
	msg.Attachments = nil
	return cs.id, nil
}

// DeleteForMe hides a message from the caller's view only. The other
// participant's copy is untouched and no push is emitted.
func (s *State) DeleteForMe(actorID, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, cs, err := s.findMessageLocked(messageID)
	if err != nil {
		return err
	}
	if !cs.hasParticipant(actorID) {
		return utils.NewMessageNotFoundError(messageID.String())
	}
	cs.hiddenSet(actorID)[msg.ID] = struct{}{}
	return nil
}

// MarkRead zeroes the caller's unread counter and stamps the caller onto the
// read set of every message the other party sent.
func (s *State) MarkRead(actorID, conversationID uuid.UUID) (time.Time, uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.conversations[conversationID]
	if !ok || !cs.hasParticipant(actorID) {
		return time.Time{}, uuid.Nil, utils.NewConversationNotFoundError(conversationID.String())
	}

	now := time.Now().UTC()
	cs.unread[actorID] = 0
	for _, msg := range cs.messages {
		if msg.Sender.ID != actorID {
			msg.MarkReadBy(actorID)
		}
	}
	return now, cs.otherParticipant(actorID), nil
}

// Participants returns both sides of a conversation for push fan-out.
func (s *State) Participants(conversationID uuid.UUID) ([2]uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.conversations[conversationID]
	if !ok {
		return [2]uuid.UUID{}, false
	}
	return cs.participants, true
}

func (s *State) conversationForPairLocked(a, b uuid.UUID) *conversationState {
	key := pairKey(a, b)
	if id, ok := s.pairIndex[key]; ok {
		return s.conversations[id]
	}
	cs := &conversationState{
		id:           uuid.New(),
		participants: key,
		unread:       make(map[uuid.UUID]int),
		hiddenFor:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		updatedAt:    time.Now().UTC(),
	}
	s.conversations[cs.id] = cs
	s.pairIndex[key] = cs.id
	return cs
}

func (s *State) findMessageLocked(messageID uuid.UUID) (*models.Message, *conversationState, error) {
	conversationID, ok := s.byMessage[messageID]
	if !ok {
		return nil, nil, utils.NewMessageNotFoundError(messageID.String())
	}
	cs := s.conversations[conversationID]
	for _, msg := range cs.messages {
		if msg.ID == messageID {
			return msg, cs, nil
		}
	}
	return nil, nil, utils.NewMessageNotFoundError(messageID.String())
}

// pairKey normalizes the participant pair so both directions index the same
// conversation.
func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if strings.Compare(a.String(), b.String()) > 0 {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}
