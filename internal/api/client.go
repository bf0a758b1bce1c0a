package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alumni-messenger/internal/models"
	"alumni-messenger/internal/utils"
)

// Client is the REST boundary of the messenger. Requests that fail leave
// core state untouched; the caller decides whether to retry. The token is
// guarded because sign-out may race an in-flight request on the push
// delivery goroutine.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Token returns the bearer token obtained at login.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken drops the credential on sign-out.
func (c *Client) ClearToken() {
	c.setToken("")
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token,omitempty"`
	Error   string      `json:"error,omitempty"`
	User    models.User `json:"user"`
}

// Login authenticates against the identity endpoint and stores the bearer
// token for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	var resp LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/login", LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, utils.NewAppError(utils.ErrInvalidCredentials, resp.Error, nil)
	}
	c.setToken(resp.Token)
	user := resp.User
	return &user, nil
}

// FetchConversations retrieves the full conversation list with denormalized
// last messages and unread counters.
func (c *Client) FetchConversations(ctx context.Context) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// HistoryPage is one page of a conversation's message history.
type HistoryPage struct {
	Messages []*models.Message `json:"messages"`
	HasMore  bool              `json:"hasMore"`
}

// FetchHistory loads one history page. Page 1 is the refresh window; higher
// pages are strictly older backfill.
func (c *Client) FetchHistory(ctx context.Context, conversationID uuid.UUID, page, limit int) (*HistoryPage, error) {
	if page <= 0 || limit <= 0 {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "page and limit must be positive", nil)
	}
	query := url.Values{}
	query.Set("conversationId", conversationID.String())
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var historyPage HistoryPage
	if err := c.doJSON(ctx, http.MethodGet, "/messages?"+query.Encode(), nil, &historyPage); err != nil {
		return nil, err
	}
	return &historyPage, nil
}

type SendRequest struct {
	RecipientID uuid.UUID           `json:"recipientId"`
	Content     string              `json:"content,omitempty"`
	ReplyTo     *models.ReplyRef    `json:"replyTo,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type SendResponse struct {
	Message        *models.Message `json:"message"`
	ConversationID uuid.UUID       `json:"conversationId"`
}

// Send delivers a new message to a recipient. Exactly one of content and
// attachments must be non-empty.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	hasContent := strings.TrimSpace(req.Content) != ""
	hasAttachments := len(req.Attachments) > 0
	if hasContent == hasAttachments {
		return nil, utils.NewAppError(utils.ErrInvalidInput,
			"exactly one of content and attachments must be provided", nil)
	}

	var resp SendResponse
	if err := c.doJSON(ctx, http.MethodPost, "/messages", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type EditRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	Content   string    `json:"content"`
}

type EditResponse struct {
	Message *models.Message `json:"message"`
}

// Edit replaces a message's content. The server rejects edits on tombstoned
// messages and messages authored by someone else.
func (c *Client) Edit(ctx context.Context, messageID uuid.UUID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, utils.NewAppError(utils.ErrEmptyMessage, "edit content must not be empty", nil)
	}
	var resp EditResponse
	if err := c.doJSON(ctx, http.MethodPost, "/messages/edit", EditRequest{MessageID: messageID, Content: content}, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

type deleteRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	Scope     string    `json:"scope"`
}

type ackResponse struct {
	Success bool `json:"success"`
}

// DeleteForMe removes the message from the caller's server-side view only.
func (c *Client) DeleteForMe(ctx context.Context, messageID uuid.UUID) error {
	var resp ackResponse
	return c.doJSON(ctx, http.MethodPost, "/messages/delete", deleteRequest{MessageID: messageID, Scope: "me"}, &resp)
}

// DeleteForEveryone tombstones the message for all participants. Only
// permitted for the author.
func (c *Client) DeleteForEveryone(ctx context.Context, messageID uuid.UUID) error {
	var resp ackResponse
	return c.doJSON(ctx, http.MethodPost, "/messages/delete", deleteRequest{MessageID: messageID, Scope: "everyone"}, &resp)
}

type markReadRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

// MarkRead acknowledges the whole conversation as read. The server echoes a
// read-receipt push to the caller's sessions.
func (c *Client) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	var resp ackResponse
	return c.doJSON(ctx, http.MethodPost, "/conversations/read", markReadRequest{ConversationID: conversationID}, &resp)
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.NewNetworkError(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var remote errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&remote); decodeErr == nil && remote.Code != "" {
			return utils.NewAppError(remote.Code, remote.Error, nil)
		}
		return utils.NewAppError(utils.ErrNetwork,
			fmt.Sprintf("%s %s: unexpected status %d", method, path, resp.StatusCode), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "malformed server response", err)
	}
	return nil
}
