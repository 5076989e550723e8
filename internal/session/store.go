package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"chat-client/internal/models"
	"chat-client/internal/repositories"
)

var (
	// ErrNoSession is returned when an operation needs a token and none is held.
	ErrNoSession = errors.New("not logged in")
	// ErrSessionChanged is returned when the session a call started under
	// has ended in the meantime.
	ErrSessionChanged = errors.New("session changed")
)

// Lease pins an operation to the session it started under. Writes made
// with a lease are dropped once that session has ended.
type Lease struct {
	Token string
	Epoch uint64
}

// Authenticator is the part of the transport client the store needs.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (models.Token, error)
	FetchCurrentUser(ctx context.Context, token string) (models.Identity, error)
}

// Store is the client session: token, identity and every collection that
// depends on them. Logout empties all of it at once.
//
// gen increments whenever the active chat changes or the session ends.
// Feed results carry the generation they were started with and are only
// applied while it is still current. epoch increments only when a session
// starts or ends; results of other calls are checked against it.
type Store struct {
	auth   Authenticator
	tokens repositories.StateRepository

	mu       sync.RWMutex
	sess     models.Session
	chats    []models.Chat
	activeID int
	messages []models.Message
	pending  []models.Message
	invites  []models.Invite
	gen      uint64
	epoch    uint64
}

// NewStore builds an empty store.
func NewStore(auth Authenticator, tokens repositories.StateRepository) *Store {
	return &Store{auth: auth, tokens: tokens}
}

// Login authenticates, resolves the identity and persists the token.
func (s *Store) Login(ctx context.Context, username, password string) (models.Session, error) {
	tok, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		return models.Session{}, err
	}

	id, err := s.auth.FetchCurrentUser(ctx, tok.AccessToken)
	if err != nil {
		return models.Session{}, fmt.Errorf("load current user: %w", err)
	}

	sess := models.Session{Token: tok.AccessToken, UserID: id.UserID, Username: id.Username}
	s.adopt(sess)

	if err := s.tokens.Put(ctx, repositories.SessionTokenKey, tok.AccessToken); err != nil {
		log.Printf("session: persist token failed: %v", err)
	}
	return sess, nil
}

// Restore adopts a persisted token after revalidating it. When there is no
// token ErrNoSession is returned; when revalidation fails the store stays
// empty and the error is returned. The persisted token is left in place.
func (s *Store) Restore(ctx context.Context) (models.Session, error) {
	token, err := s.tokens.Get(ctx, repositories.SessionTokenKey)
	if errors.Is(err, repositories.ErrStateNotFound) || (err == nil && token == "") {
		return models.Session{}, ErrNoSession
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("read persisted token: %w", err)
	}

	id, err := s.auth.FetchCurrentUser(ctx, token)
	if err != nil {
		s.clear()
		return models.Session{}, fmt.Errorf("revalidate session: %w", err)
	}

	sess := models.Session{Token: token, UserID: id.UserID, Username: id.Username}
	s.adopt(sess)
	return sess, nil
}

// Logout clears everything and forgets the persisted token. Calling it
// without a session is fine.
func (s *Store) Logout(ctx context.Context) error {
	s.clear()
	if err := s.tokens.Delete(ctx, repositories.SessionTokenKey); err != nil {
		return fmt.Errorf("forget persisted token: %w", err)
	}
	return nil
}

func (s *Store) adopt(sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.sess = sess
}

func (s *Store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.sess = models.Session{}
	s.chats = nil
	s.activeID = 0
	s.messages = nil
	s.pending = nil
	s.invites = nil
	s.gen++
	s.epoch++
}

// Session returns the current session.
func (s *Store) Session() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

// Token returns the bearer token or ErrNoSession.
func (s *Store) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess.Token == "" {
		return "", ErrNoSession
	}
	return s.sess.Token, nil
}

// Lease returns the token together with the current session epoch.
func (s *Store) Lease() (Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess.Token == "" {
		return Lease{}, ErrNoSession
	}
	return Lease{Token: s.sess.Token, Epoch: s.epoch}, nil
}

// Current reports whether lease still belongs to the live session.
func (s *Store) Current(lease Lease) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentLocked(lease)
}

func (s *Store) currentLocked(lease Lease) bool {
	return s.sess.Token != "" && lease.Epoch == s.epoch
}

// Generation returns the current feed generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// SetChats replaces the chat list. It returns false when lease is stale.
func (s *Store) SetChats(lease Lease, chats []models.Chat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(lease) {
		return false
	}
	s.chats = append([]models.Chat(nil), chats...)
	return true
}

// PrependChat puts chat first, dropping an older entry with the same id.
func (s *Store) PrependChat(lease Lease, chat models.Chat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(lease) {
		return false
	}
	chats := make([]models.Chat, 0, len(s.chats)+1)
	chats = append(chats, chat)
	for _, c := range s.chats {
		if c.ID != chat.ID {
			chats = append(chats, c)
		}
	}
	s.chats = chats
	return true
}

// ActiveChat returns the active chat id.
func (s *Store) ActiveChat() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID, s.activeID != 0
}

// SelectChat makes chatID active, empties the message list and returns the
// new generation. It fails without a session or when lease is stale.
func (s *Store) SelectChat(lease Lease, chatID int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess.Token == "" {
		return 0, ErrNoSession
	}
	if lease.Epoch != s.epoch {
		return 0, ErrSessionChanged
	}
	s.activeID = chatID
	s.messages = nil
	s.pending = nil
	s.gen++
	return s.gen, nil
}

// ApplyMessages replaces the message list with a feed result. Results from
// a stale generation or for another chat are discarded and false is
// returned.
func (s *Store) ApplyMessages(gen uint64, chatID int, msgs []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || chatID != s.activeID || s.sess.Token == "" {
		return false
	}
	s.messages = append([]models.Message(nil), msgs...)
	return true
}

// AppendPending shows a locally synthesized message in the active chat.
func (s *Store) AppendPending(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess.Token == "" || msg.ChatID != s.activeID {
		return false
	}
	msg.Pending = true
	s.pending = append(s.pending, msg)
	return true
}

// ResolvePending swaps the local message for the confirmed one. If the feed
// already delivered the confirmed message it is not added twice.
func (s *Store) ResolvePending(localID models.MessageID, confirmed models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dropPendingLocked(localID) || confirmed.ChatID != s.activeID {
		return false
	}
	for _, m := range s.messages {
		if m.ID == confirmed.ID {
			return true
		}
	}
	confirmed.Pending = false
	s.messages = append(s.messages, confirmed)
	return true
}

// DropPending removes a local message whose send failed.
func (s *Store) DropPending(localID models.MessageID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropPendingLocked(localID)
}

func (s *Store) dropPendingLocked(localID models.MessageID) bool {
	for i, m := range s.pending {
		if m.ID == localID {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Messages returns the active chat's messages followed by pending ones.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesLocked()
}

func (s *Store) messagesLocked() []models.Message {
	out := make([]models.Message, 0, len(s.messages)+len(s.pending))
	out = append(out, s.messages...)
	return append(out, s.pending...)
}

// SetInvites replaces the invite list. It returns false when lease is stale.
func (s *Store) SetInvites(lease Lease, invites []models.Invite) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(lease) {
		return false
	}
	s.invites = append([]models.Invite(nil), invites...)
	return true
}

// UpsertInvite replaces the invite with the same id or prepends it.
func (s *Store) UpsertInvite(lease Lease, inv models.Invite) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(lease) {
		return false
	}
	for i := range s.invites {
		if s.invites[i].ID == inv.ID {
			s.invites[i] = inv
			return true
		}
	}
	s.invites = append([]models.Invite{inv}, s.invites...)
	return true
}

// Invite looks up an invite by id.
func (s *Store) Invite(id int) (models.Invite, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invites {
		if inv.ID == id {
			return inv, true
		}
	}
	return models.Invite{}, false
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{
		Session:  s.sess,
		LoggedIn: s.sess.Token != "",
		Chats:    append([]models.Chat{}, s.chats...),
		Messages: s.messagesLocked(),
		Invites:  append([]models.Invite{}, s.invites...),
	}
	if s.activeID != 0 {
		id := s.activeID
		snap.ActiveChatID = &id
	}
	return snap
}
