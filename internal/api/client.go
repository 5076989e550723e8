package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

const (
	opAuthenticate  = "authenticate"
	opCreateAccount = "create_account"
	opCurrentUser   = "current_user"
	opListChats     = "list_chats"
	opCreateChat    = "create_chat"
	opListMessages  = "list_messages"
	opSendMessage   = "send_message"
	opListInvites   = "list_invites"
	opSendInvite    = "send_invite"
	opAcceptInvite  = "accept_invite"
	opDeclineInvite = "decline_invite"
)

const maxErrorBody = 64 << 10

// Client calls the remote chat REST API. It never retries or caches.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client for baseURL. A nil httpClient gets a default
// one with a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Authenticate exchanges credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, username, password string) (models.Token, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}
	var tok models.Token
	err := c.do(ctx, request{
		op:          opAuthenticate,
		method:      http.MethodPost,
		path:        "/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &tok)
	if err != nil {
		return models.Token{}, err
	}
	if tok.AccessToken == "" {
		return models.Token{}, &Error{Op: opAuthenticate, Status: http.StatusOK, Message: "no access token in response"}
	}
	return tok, nil
}

// CreateAccount registers a new account and returns the server confirmation.
func (c *Client) CreateAccount(ctx context.Context, req models.SignUp) (bool, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, opCreateAccount, http.MethodPost, "/sign_up", "", req, &raw); err != nil {
		return false, err
	}
	var confirmed bool
	if err := json.Unmarshal(raw, &confirmed); err != nil {
		// Any other 2xx body still confirms the account.
		return true, nil
	}
	return confirmed, nil
}

// FetchCurrentUser returns the identity behind token.
func (c *Client) FetchCurrentUser(ctx context.Context, token string) (models.Identity, error) {
	var id models.Identity
	err := c.do(ctx, request{op: opCurrentUser, method: http.MethodGet, path: "/users/me/", token: token}, &id)
	return id, err
}

// ListChats returns the caller's chats in server order.
func (c *Client) ListChats(ctx context.Context, token string) ([]models.Chat, error) {
	chats := []models.Chat{}
	err := c.do(ctx, request{op: opListChats, method: http.MethodGet, path: "/gc", token: token}, &chats)
	return chats, err
}

// CreateChat creates a chat owned by the caller.
func (c *Client) CreateChat(ctx context.Context, token, name string) (models.Chat, error) {
	var chat models.Chat
	err := c.doJSON(ctx, opCreateChat, http.MethodPost, "/gc", token, map[string]string{"name": name}, &chat)
	return chat, err
}

// ListMessages returns at most limit of the latest messages of chatID.
func (c *Client) ListMessages(ctx context.Context, token string, chatID, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := c.do(ctx, request{
		op:     opListMessages,
		method: http.MethodGet,
		path:   fmt.Sprintf("/gc/%d/messages", chatID),
		query:  limitQuery(limit),
		token:  token,
	}, &msgs)
	for i := range msgs {
		if msgs[i].ChatID == 0 {
			msgs[i].ChatID = chatID
		}
	}
	return msgs, err
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, token string, chatID int, text string) (models.Message, error) {
	var msg models.Message
	err := c.doJSON(ctx, opSendMessage, http.MethodPost, fmt.Sprintf("/gc/%d/messages", chatID), token, map[string]string{"text": text}, &msg)
	if err == nil && msg.ChatID == 0 {
		msg.ChatID = chatID
	}
	return msg, err
}

// ListInvites returns at most limit invites visible to the caller.
func (c *Client) ListInvites(ctx context.Context, token string, limit int) ([]models.Invite, error) {
	invites := []models.Invite{}
	err := c.do(ctx, request{
		op:     opListInvites,
		method: http.MethodGet,
		path:   "/invites",
		query:  limitQuery(limit),
		token:  token,
	}, &invites)
	return invites, err
}

// SendInvite invites receiverID into chatID.
func (c *Client) SendInvite(ctx context.Context, token string, receiverID, chatID int, text string) (models.Invite, error) {
	payload := struct {
		ReceiverID int    `json:"receiver_id"`
		ChatID     int    `json:"chat_id"`
		Text       string `json:"text"`
	}{ReceiverID: receiverID, ChatID: chatID, Text: text}

	var inv models.Invite
	err := c.doJSON(ctx, opSendInvite, http.MethodPost, "/gc/invites", token, payload, &inv)
	return inv, err
}

// AcceptInvite accepts a pending invite.
func (c *Client) AcceptInvite(ctx context.Context, token string, inviteID int) (models.Invite, error) {
	var inv models.Invite
	err := c.do(ctx, request{
		op:     opAcceptInvite,
		method: http.MethodPost,
		path:   fmt.Sprintf("/invites/%d/accept", inviteID),
		token:  token,
	}, &inv)
	return inv, err
}

// DeclineInvite declines a pending invite.
func (c *Client) DeclineInvite(ctx context.Context, token string, inviteID int) (models.Invite, error) {
	var inv models.Invite
	err := c.do(ctx, request{
		op:     opDeclineInvite,
		method: http.MethodPost,
		path:   fmt.Sprintf("/invites/%d/decline", inviteID),
		token:  token,
	}, &inv)
	return inv, err
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	token       string
	body        io.Reader
	contentType string
}

func (c *Client) doJSON(ctx context.Context, op, method, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	return c.do(ctx, request{
		op:          op,
		method:      method,
		path:        path,
		token:       token,
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}, out)
}

func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	ctx, span := otel.Tracer("chat-client/api").Start(ctx, "api."+r.op)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, r.body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.ObserveAPICall(r.op, 0, time.Since(start))
		return &NetworkError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	observability.ObserveAPICall(r.op, resp.StatusCode, time.Since(start))
	span.SetAttributes(
		attribute.String("http.method", r.method),
		attribute.String("http.route", r.path),
		attribute.Int("http.status_code", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Op: r.op, Status: resp.StatusCode, Message: extractMessage(r.op, body)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%s: decode response: %w", r.op, err)
	}
	return nil
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}
