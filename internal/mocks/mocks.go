package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/models"
	"chat-client/internal/repositories"
)

// APIClientMock stands in for *api.Client.
type APIClientMock struct {
	mock.Mock
}

func (m *APIClientMock) Authenticate(ctx context.Context, username, password string) (models.Token, error) {
	args := m.Called(ctx, username, password)
	var tok models.Token
	if val := args.Get(0); val != nil {
		tok = val.(models.Token)
	}
	return tok, args.Error(1)
}

func (m *APIClientMock) CreateAccount(ctx context.Context, req models.SignUp) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

func (m *APIClientMock) FetchCurrentUser(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var id models.Identity
	if val := args.Get(0); val != nil {
		id = val.(models.Identity)
	}
	return id, args.Error(1)
}

func (m *APIClientMock) ListChats(ctx context.Context, token string) ([]models.Chat, error) {
	args := m.Called(ctx, token)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *APIClientMock) CreateChat(ctx context.Context, token, name string) (models.Chat, error) {
	args := m.Called(ctx, token, name)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *APIClientMock) ListMessages(ctx context.Context, token string, chatID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, token, chatID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *APIClientMock) SendMessage(ctx context.Context, token string, chatID int, text string) (models.Message, error) {
	args := m.Called(ctx, token, chatID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *APIClientMock) ListInvites(ctx context.Context, token string, limit int) ([]models.Invite, error) {
	args := m.Called(ctx, token, limit)
	var invites []models.Invite
	if val := args.Get(0); val != nil {
		invites = val.([]models.Invite)
	}
	return invites, args.Error(1)
}

func (m *APIClientMock) SendInvite(ctx context.Context, token string, receiverID, chatID int, text string) (models.Invite, error) {
	args := m.Called(ctx, token, receiverID, chatID, text)
	var inv models.Invite
	if val := args.Get(0); val != nil {
		inv = val.(models.Invite)
	}
	return inv, args.Error(1)
}

func (m *APIClientMock) AcceptInvite(ctx context.Context, token string, inviteID int) (models.Invite, error) {
	args := m.Called(ctx, token, inviteID)
	var inv models.Invite
	if val := args.Get(0); val != nil {
		inv = val.(models.Invite)
	}
	return inv, args.Error(1)
}

func (m *APIClientMock) DeclineInvite(ctx context.Context, token string, inviteID int) (models.Invite, error) {
	args := m.Called(ctx, token, inviteID)
	var inv models.Invite
	if val := args.Get(0); val != nil {
		inv = val.(models.Invite)
	}
	return inv, args.Error(1)
}

// StateRepositoryMock stands in for repositories.StateRepository.
type StateRepositoryMock struct {
	mock.Mock
}

func (m *StateRepositoryMock) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *StateRepositoryMock) Put(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *StateRepositoryMock) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// NotifierMock records events instead of broadcasting them.
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Broadcast(event models.Event) {
	m.Called(event)
}

var _ repositories.StateRepository = (*StateRepositoryMock)(nil)
