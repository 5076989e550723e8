package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-client/internal/api"
	"chat-client/internal/feed"
	"chat-client/internal/models"
	"chat-client/internal/session"
	"chat-client/internal/telemetry"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNoActiveChat     = errors.New("no active chat")
	ErrInviteNotPending = errors.New("invite is no longer pending")
)

// APIClient is the transport client as seen by the screens.
type APIClient interface {
	session.Authenticator
	feed.Fetcher
	CreateAccount(ctx context.Context, req models.SignUp) (bool, error)
	ListChats(ctx context.Context, token string) ([]models.Chat, error)
	CreateChat(ctx context.Context, token, name string) (models.Chat, error)
	SendMessage(ctx context.Context, token string, chatID int, text string) (models.Message, error)
	ListInvites(ctx context.Context, token string, limit int) ([]models.Invite, error)
	SendInvite(ctx context.Context, token string, receiverID, chatID int, text string) (models.Invite, error)
	AcceptInvite(ctx context.Context, token string, inviteID int) (models.Invite, error)
	DeclineInvite(ctx context.Context, token string, inviteID int) (models.Invite, error)
}

// Notifier pushes events to whatever renders the state.
type Notifier interface {
	Broadcast(event models.Event)
}

// Options tunes the controller.
type Options struct {
	PollInterval    time.Duration
	MessageLimit    int
	InviteLimit     int
	ErrorClearDelay time.Duration
}

// Controller backs the auth and chat screens.
type Controller struct {
	api      APIClient
	store    *session.Store
	poller   *feed.Poller
	notifier Notifier
	audit    *telemetry.AuditEmitter
	opts     Options

	// mu serialises changes of the active chat so that the poller always
	// runs with the store's current generation.
	mu sync.Mutex

	errMu    sync.Mutex
	errText  string
	errSeq   uint64
	errTimer *time.Timer
}

// New wires a Controller. audit may be nil.
func New(client APIClient, store *session.Store, notifier Notifier, audit *telemetry.AuditEmitter, opts Options) *Controller {
	c := &Controller{
		api:      client,
		store:    store,
		notifier: notifier,
		audit:    audit,
		opts:     opts,
	}
	c.poller = feed.NewPoller(client, feedSink{c}, opts.PollInterval, opts.MessageLimit)
	return c
}

// State returns the current snapshot including the banner error.
func (c *Controller) State() models.Snapshot {
	snap := c.store.Snapshot()
	snap.Error = c.currentError()
	return snap
}

// Login validates the form, establishes the session and loads the chat
// screen. Loading failures after a successful login are reported but do
// not fail the login.
func (c *Controller) Login(ctx context.Context, form LoginForm) error {
	form.Username = strings.TrimSpace(form.Username)
	if err := validateForm(form); err != nil {
		return err
	}

	c.mu.Lock()
	c.poller.Stop()
	sess, err := c.store.Login(ctx, form.Username, form.Password)
	c.mu.Unlock()
	if err != nil {
		c.reportError(err)
		c.publishState()
		return err
	}

	log.Printf("controller: logged in user_id=%d username=%s", sess.UserID, sess.Username)
	c.audit.Emit(ctx, "INFO", telemetry.ActionLogin, "user logged in", sess.UserID)
	c.loadChatScreen(ctx)
	return nil
}

// Restore adopts a persisted session at startup.
func (c *Controller) Restore(ctx context.Context) error {
	sess, err := c.store.Restore(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return err
	}
	if err != nil {
		c.reportError(err)
		c.publishState()
		return err
	}

	log.Printf("controller: restored session user_id=%d", sess.UserID)
	c.loadChatScreen(ctx)
	return nil
}

// SignUp validates the form and creates an account. It does not log in.
func (c *Controller) SignUp(ctx context.Context, form SignUpForm) error {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)
	if err := validateForm(form); err != nil {
		return err
	}

	if _, err := c.api.CreateAccount(ctx, models.SignUp{Username: form.Username, Email: form.Email, Password: form.Password}); err != nil {
		c.reportError(err)
		return err
	}
	c.audit.Emit(ctx, "INFO", telemetry.ActionSignUp, "account created: "+form.Username, 0)
	return nil
}

// Logout ends the session. It is safe to call at any time.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.poller.Stop()
	userID := c.store.Session().UserID
	err := c.store.Logout(ctx)
	c.mu.Unlock()

	c.clearError()
	if userID != 0 {
		c.audit.Emit(ctx, "INFO", telemetry.ActionLogout, "user logged out", userID)
	}
	c.publishState()
	return err
}

// RefreshChats reloads the chat list.
func (c *Controller) RefreshChats(ctx context.Context) ([]models.Chat, error) {
	lease, err := c.store.Lease()
	if err != nil {
		return nil, err
	}
	return c.refreshChats(ctx, lease)
}

func (c *Controller) refreshChats(ctx context.Context, lease session.Lease) ([]models.Chat, error) {
	chats, err := c.api.ListChats(ctx, lease.Token)
	if err != nil {
		c.reportErrorFor(lease, err)
		return nil, err
	}
	if !c.store.SetChats(lease, chats) {
		return nil, session.ErrSessionChanged
	}
	c.publishState()
	return chats, nil
}

// CreateChat creates a chat, puts it first and makes it active.
func (c *Controller) CreateChat(ctx context.Context, form ChatForm) (models.Chat, error) {
	form.Name = strings.TrimSpace(form.Name)
	if err := validateForm(form); err != nil {
		return models.Chat{}, err
	}
	lease, err := c.store.Lease()
	if err != nil {
		return models.Chat{}, err
	}
	userID := c.store.Session().UserID

	chat, err := c.api.CreateChat(ctx, lease.Token, form.Name)
	if err != nil {
		c.reportErrorFor(lease, err)
		return models.Chat{}, err
	}
	c.audit.Emit(ctx, "INFO", telemetry.ActionChatCreated, fmt.Sprintf("chat %d created", chat.ID), userID)
	if !c.store.PrependChat(lease, chat) {
		return chat, session.ErrSessionChanged
	}

	if err := c.selectChat(lease, chat.ID); err != nil {
		return chat, err
	}
	return chat, nil
}

// SelectChat makes chatID the active chat and starts polling it. Results
// still in flight for the previous chat are discarded.
func (c *Controller) SelectChat(chatID int) error {
	lease, err := c.store.Lease()
	if err != nil {
		return err
	}
	return c.selectChat(lease, chatID)
}

// selectChat switches chats only while lease is still the live session.
func (c *Controller) selectChat(lease session.Lease, chatID int) error {
	c.mu.Lock()
	gen, err := c.store.SelectChat(lease, chatID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.poller.Start(lease.Token, chatID, gen)
	c.mu.Unlock()

	c.publishState()
	return nil
}

// SendMessage posts text to the active chat. The message is shown right
// away as pending; it is replaced by the server copy on success and
// removed again on failure.
func (c *Controller) SendMessage(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	chatID, ok := c.store.ActiveChat()
	if !ok {
		return models.Message{}, ErrNoActiveChat
	}
	lease, err := c.store.Lease()
	if err != nil {
		return models.Message{}, err
	}

	sess := c.store.Session()
	local := models.Message{
		ID:             models.MessageID("local-" + uuid.NewString()),
		ChatID:         chatID,
		AuthorID:       sess.UserID,
		AuthorUsername: sess.Username,
		Text:           text,
		CreatedAt:      models.Timestamp{Time: time.Now().UTC()},
	}
	if c.store.AppendPending(local) {
		c.publishMessages(chatID)
	}

	msg, err := c.api.SendMessage(ctx, lease.Token, chatID, text)
	if err != nil {
		if c.store.DropPending(local.ID) {
			c.publishMessages(chatID)
		}
		c.reportErrorFor(lease, err)
		return models.Message{}, err
	}

	if c.store.ResolvePending(local.ID, msg) {
		c.publishMessages(chatID)
	}
	return msg, nil
}

// RefreshInvites reloads invites addressed to the current user.
func (c *Controller) RefreshInvites(ctx context.Context) ([]models.Invite, error) {
	lease, err := c.store.Lease()
	if err != nil {
		return nil, err
	}
	return c.refreshInvites(ctx, lease)
}

func (c *Controller) refreshInvites(ctx context.Context, lease session.Lease) ([]models.Invite, error) {
	userID := c.store.Session().UserID
	all, err := c.api.ListInvites(ctx, lease.Token, c.opts.InviteLimit)
	if err != nil {
		c.reportErrorFor(lease, err)
		return nil, err
	}

	invites := FilterInvites(all, userID)
	if !c.store.SetInvites(lease, invites) {
		return nil, session.ErrSessionChanged
	}
	c.publishState()
	return invites, nil
}

// FilterInvites keeps the invites addressed to receiverID. This is a
// display filter; the API already scopes invites to the caller.
func FilterInvites(invites []models.Invite, receiverID int) []models.Invite {
	out := make([]models.Invite, 0, len(invites))
	for _, inv := range invites {
		if inv.ReceiverID == receiverID {
			out = append(out, inv)
		}
	}
	return out
}

// SendInvite invites another account into a chat.
func (c *Controller) SendInvite(ctx context.Context, form InviteForm) (models.Invite, error) {
	form.Text = strings.TrimSpace(form.Text)
	if err := validateForm(form); err != nil {
		return models.Invite{}, err
	}
	lease, err := c.store.Lease()
	if err != nil {
		return models.Invite{}, err
	}
	userID := c.store.Session().UserID

	inv, err := c.api.SendInvite(ctx, lease.Token, form.ReceiverID, form.ChatID, form.Text)
	if err != nil {
		c.reportErrorFor(lease, err)
		return models.Invite{}, err
	}
	c.audit.Emit(ctx, "INFO", telemetry.ActionInviteSent, fmt.Sprintf("invite %d to user %d for chat %d", inv.ID, form.ReceiverID, form.ChatID), userID)
	return inv, nil
}

// AcceptInvite accepts a pending invite, refreshes the chat list and
// switches to the invite's chat.
func (c *Controller) AcceptInvite(ctx context.Context, inviteID int) (models.Invite, error) {
	lease, known, err := c.inviteGuard(inviteID)
	if err != nil {
		return models.Invite{}, err
	}
	userID := c.store.Session().UserID

	inv, err := c.api.AcceptInvite(ctx, lease.Token, inviteID)
	if err != nil {
		c.reportErrorFor(lease, err)
		return models.Invite{}, err
	}
	if inv.ChatID == 0 {
		inv.ChatID = known.ChatID
	}
	c.audit.Emit(ctx, "INFO", telemetry.ActionInviteAccepted, fmt.Sprintf("invite %d accepted", inviteID), userID)
	if !c.store.UpsertInvite(lease, inv) {
		return inv, session.ErrSessionChanged
	}

	if _, err := c.refreshChats(ctx, lease); err != nil {
		log.Printf("controller: refresh chats after accept failed: %v", err)
	}
	if err := c.selectChat(lease, inv.ChatID); err != nil {
		return inv, err
	}
	return inv, nil
}

// DeclineInvite declines a pending invite. The active chat is unchanged.
func (c *Controller) DeclineInvite(ctx context.Context, inviteID int) (models.Invite, error) {
	lease, _, err := c.inviteGuard(inviteID)
	if err != nil {
		return models.Invite{}, err
	}
	userID := c.store.Session().UserID

	inv, err := c.api.DeclineInvite(ctx, lease.Token, inviteID)
	if err != nil {
		c.reportErrorFor(lease, err)
		return models.Invite{}, err
	}
	c.audit.Emit(ctx, "INFO", telemetry.ActionInviteDeclined, fmt.Sprintf("invite %d declined", inviteID), userID)
	if !c.store.UpsertInvite(lease, inv) {
		return inv, session.ErrSessionChanged
	}
	c.publishState()
	return inv, nil
}

// inviteGuard rejects invites already known to be accepted or declined.
func (c *Controller) inviteGuard(inviteID int) (session.Lease, models.Invite, error) {
	lease, err := c.store.Lease()
	if err != nil {
		return session.Lease{}, models.Invite{}, err
	}
	known, ok := c.store.Invite(inviteID)
	if ok && !known.IsPending() {
		return session.Lease{}, known, ErrInviteNotPending
	}
	return lease, known, nil
}

// Close stops polling for good and waits for the poll goroutine to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.poller.Close()
	c.mu.Unlock()
	c.poller.Wait()

	c.errMu.Lock()
	if c.errTimer != nil {
		c.errTimer.Stop()
	}
	c.errMu.Unlock()
}

// Polling reports whether a feed cycle is running.
func (c *Controller) Polling() bool {
	return c.poller.Active()
}

func (c *Controller) loadChatScreen(ctx context.Context) {
	lease, err := c.store.Lease()
	if err != nil {
		return
	}
	chats, err := c.refreshChats(ctx, lease)
	if err != nil {
		log.Printf("controller: load chats failed: %v", err)
	}
	if _, err := c.refreshInvites(ctx, lease); err != nil {
		log.Printf("controller: load invites failed: %v", err)
	}
	if _, active := c.store.ActiveChat(); !active && len(chats) > 0 {
		if err := c.selectChat(lease, chats[0].ID); err != nil {
			log.Printf("controller: select first chat failed: %v", err)
		}
	}
	c.publishState()
}

// reportErrorFor drops errors of calls whose session has already ended.
func (c *Controller) reportErrorFor(lease session.Lease, err error) {
	if !c.store.Current(lease) {
		log.Printf("controller: dropped error from ended session: %v", err)
		return
	}
	c.reportError(err)
}

func (c *Controller) reportError(err error) {
	msg := api.UserMessage(err)

	c.errMu.Lock()
	c.errText = msg
	c.errSeq++
	seq := c.errSeq
	if c.errTimer != nil {
		c.errTimer.Stop()
	}
	c.errTimer = time.AfterFunc(c.opts.ErrorClearDelay, func() { c.expireError(seq) })
	c.errMu.Unlock()

	c.broadcast(models.Event{Type: models.EventError, Error: msg})
}

func (c *Controller) expireError(seq uint64) {
	c.errMu.Lock()
	if seq != c.errSeq {
		c.errMu.Unlock()
		return
	}
	c.errText = ""
	c.errMu.Unlock()
	c.publishState()
}

func (c *Controller) clearError() {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.errText = ""
	c.errSeq++
	if c.errTimer != nil {
		c.errTimer.Stop()
		c.errTimer = nil
	}
}

func (c *Controller) currentError() string {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.errText
}

func (c *Controller) publishState() {
	snap := c.State()
	c.broadcast(models.Event{Type: models.EventState, State: &snap})
}

func (c *Controller) publishMessages(chatID int) {
	c.broadcast(models.Event{Type: models.EventMessages, ChatID: chatID, Messages: c.store.Messages()})
}

func (c *Controller) broadcast(event models.Event) {
	if c.notifier != nil {
		c.notifier.Broadcast(event)
	}
}

// feedSink applies poll results through the store's generation check.
type feedSink struct {
	c *Controller
}

func (s feedSink) Messages(gen uint64, chatID int, msgs []models.Message) {
	if s.c.store.ApplyMessages(gen, chatID, msgs) {
		s.c.publishMessages(chatID)
	}
}

func (s feedSink) Failed(gen uint64, chatID int, err error) {
	if gen != s.c.store.Generation() {
		return
	}
	s.c.reportError(err)
}
