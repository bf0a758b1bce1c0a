package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"alumni-messenger/internal/models"
	"alumni-messenger/internal/push"
	"alumni-messenger/internal/utils"
)

const defaultHistoryLimit = 30

// Server is the in-memory development backend: the REST surface plus the
// websocket push fan-out, backed entirely by a seeded State. It exists so the
// client stack can be exercised end to end without the production platform.
type Server struct {
	state    *State
	hub      *Hub
	auth     *Authenticator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(state *State, jwtSecret string, logger *slog.Logger) *Server {
	s := &Server{
		state:  state,
		hub:    NewHub(logger),
		auth:   NewAuthenticator(jwtSecret),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	go s.hub.Run()
	return s
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/conversations", s.requireAuth(s.handleConversations))
	mux.HandleFunc("/conversations/read", s.requireAuth(s.handleMarkRead))
	mux.HandleFunc("/messages", s.requireAuth(s.handleMessages))
	mux.HandleFunc("/messages/edit", s.requireAuth(s.handleEdit))
	mux.HandleFunc("/messages/delete", s.requireAuth(s.handleDelete))
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token,omitempty"`
	Error   string      `json:"error,omitempty"`
	User    models.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "method not allowed", nil))
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
		return
	}

	user, err := s.state.Authenticate(req.Email, req.Password)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, loginResponse{Success: false, Error: "invalid email or password"})
		return
	}

	token, err := s.auth.GenerateToken(user.ID)
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		s.writeError(w, utils.NewAppError(utils.ErrUnauthorized, "could not issue token", err))
		return
	}

	s.writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: token, User: user})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "method not allowed", nil))
		return
	}
	userID, _ := userIDFromContext(r.Context())

	conversations := s.state.ConversationsFor(userID)
	if conversations == nil {
		conversations = []*models.Conversation{}
	}
	s.writeJSON(w, http.StatusOK, conversations)
}

type historyResponse struct {
	Messages []*models.Message `json:"messages"`
	HasMore  bool              `json:"hasMore"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleHistory(w, r)
	case http.MethodPost:
		s.handleSend(w, r)
	default:
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "method not allowed", nil))
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	conversationID, err := uuid.Parse(r.URL.Query().Get("conversationId"))
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid conversationId", err))
		return
	}
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if page <= 0 || limit <= 0 {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "page and limit must be positive", nil))
		return
	}

	messages, hasMore, err := s.state.History(userID, conversationID, page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, historyResponse{Messages: messages, HasMore: hasMore})
}

type sendRequest struct {
	RecipientID uuid.UUID           `json:"recipientId"`
	Content     string              `json:"content"`
	ReplyTo     *models.ReplyRef    `json:"replyTo,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type sendResponse struct {
	Message        *models.Message `json:"message"`
	ConversationID uuid.UUID       `json:"conversationId"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
		return
	}

	hasContent := strings.TrimSpace(req.Content) != ""
	if hasContent == (len(req.Attachments) > 0) {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput,
			"exactly one of content and attachments must be provided", nil))
		return
	}

	msg, recipientID, err := s.state.Send(userID, req.RecipientID, req.Content, req.ReplyTo, req.Attachments)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.pushNewMessage(msg.ConversationID, msg, userID, recipientID)
	s.writeJSON(w, http.StatusOK, sendResponse{Message: msg, ConversationID: msg.ConversationID})
}

type editRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	Content   string    `json:"content"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "method not allowed", nil))
		return
	}
	userID, _ := userIDFromContext(r.Context())

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.writeError(w, utils.NewAppError(utils.ErrEmptyMessage, "edit content must not be empty", nil))
		return
	}

	msg, err := s.state.Edit(userID, req.MessageID, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if raw, encErr := push.EncodeMessageEdited(msg.ConversationID, msg.ID, msg.Content, *msg.EditedAt); encErr == nil {
		s.fanOut(msg.ConversationID, raw)
	}
	s.writeJSON(w, http.StatusOK, map[string]*models.Message{"message": msg})
}

type deleteRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	Scope     string    `json:"scope"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "method not allowed", nil))
		return
	}
	userID, _ := userIDFromContext(r.Context())

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
		return
	}

	switch req.Scope {
	case "me":
		if err := s.state.DeleteForMe(userID, req.MessageID); err != nil {
			s.writeError(w, err)
			return
		}
		// Local removal only, no push.

	case "everyone":
		conversationID, err := s.state.DeleteForEveryone(userID, req.MessageID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if raw, encErr := push.EncodeMessageDeleted(conversationID, req.MessageID); encErr == nil {
			s.fanOut(conversationID, raw)
		}

	default:
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "scope must be 'me' or 'everyone'", nil))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type markReadRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "method not allowed", nil))
		return
	}
	userID, _ := userIDFromContext(r.Context())

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
		return
	}

	readAt, _, err := s.state.MarkRead(userID, req.ConversationID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Both sides see the receipt: the reader's other sessions clear their
	// unread badge, the author gets read ticks.
	if raw, encErr := push.EncodeMessagesRead(req.ConversationID, userID, readAt); encErr == nil {
		s.fanOut(req.ConversationID, raw)
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleWebSocket authenticates via the token query parameter and hands the
// connection to the hub. Browsers cannot set headers on websocket dials.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.writeError(w, utils.NewUnauthorizedError("token query parameter required"))
		return
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidToken, "invalid token", err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:    s.hub,
		userID: claims.UserID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: s.logger,
	}
	s.hub.register <- c

	go c.writePump()
	go c.readPump()
}

func (s *Server) pushNewMessage(conversationID uuid.UUID, msg *models.Message, senderID, recipientID uuid.UUID) {
	raw, err := push.EncodeNewMessage(conversationID, msg)
	if err != nil {
		s.logger.Error("encoding push frame failed", "error", err)
		return
	}
	// The sender's own sessions receive the push too; the client reducer
	// dedupes it against the REST acknowledgement.
	s.hub.SendToUser(senderID, raw)
	s.hub.SendToUser(recipientID, raw)
}

func (s *Server) fanOut(conversationID uuid.UUID, payload []byte) {
	participants, ok := s.state.Participants(conversationID)
	if !ok {
		return
	}
	s.hub.SendToUser(participants[0], payload)
	s.hub.SendToUser(participants[1], payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*utils.AppError)
	if !ok {
		appErr = utils.NewAppError(utils.ErrNetwork, err.Error(), err)
	}
	s.writeJSON(w, utils.AppErrorToHTTPStatus(appErr.Code), errorBody{Code: appErr.Code, Error: appErr.Message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
