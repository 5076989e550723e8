package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/mocks"
	"chat-client/internal/models"
	"chat-client/internal/repositories"
)

func loggedInStore(t *testing.T) (*Store, *mocks.APIClientMock, *mocks.StateRepositoryMock) {
	t.Helper()
	apiClient := new(mocks.APIClientMock)
	tokens := new(mocks.StateRepositoryMock)
	store := NewStore(apiClient, tokens)

	apiClient.On("Authenticate", mock.Anything, "alice", "pw123").Return(models.Token{AccessToken: "tok"}, nil).Once()
	apiClient.On("FetchCurrentUser", mock.Anything, "tok").Return(models.Identity{UserID: 3, Username: "alice"}, nil).Once()
	tokens.On("Put", mock.Anything, repositories.SessionTokenKey, "tok").Return(nil).Once()

	_, err := store.Login(context.Background(), "alice", "pw123")
	require.NoError(t, err)
	return store, apiClient, tokens
}

func lease(t *testing.T, store *Store) Lease {
	t.Helper()
	l, err := store.Lease()
	require.NoError(t, err)
	return l
}

func TestLoginStoresAndPersistsToken(t *testing.T) {
	store, apiClient, tokens := loggedInStore(t)

	sess := store.Session()
	assert.Equal(t, models.Session{Token: "tok", UserID: 3, Username: "alice"}, sess)
	token, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	apiClient.AssertExpectations(t)
	tokens.AssertExpectations(t)
}

func TestLoginFailureLeavesNoSession(t *testing.T) {
	apiClient := new(mocks.APIClientMock)
	tokens := new(mocks.StateRepositoryMock)
	store := NewStore(apiClient, tokens)

	apiClient.On("Authenticate", mock.Anything, "alice", "bad").Return(nil, assert.AnError).Once()

	_, err := store.Login(context.Background(), "alice", "bad")
	require.ErrorIs(t, err, assert.AnError)

	_, err = store.Token()
	assert.ErrorIs(t, err, ErrNoSession)
	tokens.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginSurvivesPersistFailure(t *testing.T) {
	apiClient := new(mocks.APIClientMock)
	tokens := new(mocks.StateRepositoryMock)
	store := NewStore(apiClient, tokens)

	apiClient.On("Authenticate", mock.Anything, "alice", "pw").Return(models.Token{AccessToken: "tok"}, nil).Once()
	apiClient.On("FetchCurrentUser", mock.Anything, "tok").Return(models.Identity{UserID: 3, Username: "alice"}, nil).Once()
	tokens.On("Put", mock.Anything, repositories.SessionTokenKey, "tok").Return(assert.AnError).Once()

	sess, err := store.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.True(t, sess.Active())
}

func TestRestoreRevalidatesPersistedToken(t *testing.T) {
	apiClient := new(mocks.APIClientMock)
	tokens := new(mocks.StateRepositoryMock)
	store := NewStore(apiClient, tokens)

	tokens.On("Get", mock.Anything, repositories.SessionTokenKey).Return("tok", nil).Once()
	apiClient.On("FetchCurrentUser", mock.Anything, "tok").Return(models.Identity{UserID: 3, Username: "alice"}, nil).Once()

	sess, err := store.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)
	assert.True(t, store.Snapshot().LoggedIn)
	apiClient.AssertExpectations(t)
}

func TestRestoreWithoutTokenIsNoSession(t *testing.T) {
	apiClient := new(mocks.APIClientMock)
	tokens := new(mocks.StateRepositoryMock)
	store := NewStore(apiClient, tokens)

	tokens.On("Get", mock.Anything, repositories.SessionTokenKey).Return("", repositories.ErrStateNotFound).Once()

	_, err := store.Restore(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	apiClient.AssertNotCalled(t, "FetchCurrentUser", mock.Anything, mock.Anything)
}

func TestRestoreRevalidationFailureMeansNoSession(t *testing.T) {
	apiClient := new(mocks.APIClientMock)
	tokens := new(mocks.StateRepositoryMock)
	store := NewStore(apiClient, tokens)

	tokens.On("Get", mock.Anything, repositories.SessionTokenKey).Return("stale", nil).Once()
	apiClient.On("FetchCurrentUser", mock.Anything, "stale").Return(nil, assert.AnError).Once()

	_, err := store.Restore(context.Background())
	require.ErrorIs(t, err, assert.AnError)

	assert.False(t, store.Snapshot().LoggedIn)
	tokens.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestLogoutIsTotalAndIdempotent(t *testing.T) {
	store, _, tokens := loggedInStore(t)
	tokens.On("Delete", mock.Anything, repositories.SessionTokenKey).Return(nil).Twice()

	store.SetChats(lease(t, store), []models.Chat{{ID: 7, Name: "general"}})
	gen, err := store.SelectChat(lease(t, store), 7)
	require.NoError(t, err)
	store.ApplyMessages(gen, 7, []models.Message{{ID: "1", ChatID: 7, Text: "hi"}})
	store.SetInvites(lease(t, store), []models.Invite{{ID: 1, ChatID: 9, Status: models.InviteStatusPending}})

	require.NoError(t, store.Logout(context.Background()))
	require.NoError(t, store.Logout(context.Background()))

	snap := store.Snapshot()
	assert.False(t, snap.LoggedIn)
	assert.Empty(t, snap.Session.Token)
	assert.Zero(t, snap.Session.UserID)
	assert.Empty(t, snap.Chats)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Invites)
	assert.Nil(t, snap.ActiveChatID)
	tokens.AssertExpectations(t)
}

func TestStaleGenerationIsDiscarded(t *testing.T) {
	store, _, _ := loggedInStore(t)

	first, err := store.SelectChat(lease(t, store), 7)
	require.NoError(t, err)
	second, err := store.SelectChat(lease(t, store), 9)
	require.NoError(t, err)

	assert.False(t, store.ApplyMessages(first, 7, []models.Message{{ID: "1", ChatID: 7, Text: "old"}}))
	assert.True(t, store.ApplyMessages(second, 9, []models.Message{{ID: "2", ChatID: 9, Text: "new"}}))

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 9, msgs[0].ChatID)
}

func TestSelectChatRequiresSession(t *testing.T) {
	store := NewStore(new(mocks.APIClientMock), new(mocks.StateRepositoryMock))

	_, err := store.SelectChat(Lease{}, 7)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestPendingMessagesSurviveRefreshUntilResolved(t *testing.T) {
	store, _, _ := loggedInStore(t)
	gen, err := store.SelectChat(lease(t, store), 7)
	require.NoError(t, err)

	require.True(t, store.AppendPending(models.Message{ID: "local-1", ChatID: 7, Text: "hey"}))
	store.ApplyMessages(gen, 7, []models.Message{{ID: "1", ChatID: 7, Text: "hi"}})

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Pending)

	require.True(t, store.ResolvePending("local-1", models.Message{ID: "2", ChatID: 7, Text: "hey"}))
	msgs = store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MessageID("2"), msgs[1].ID)
	assert.False(t, msgs[1].Pending)
}

func TestResolvePendingSkipsAlreadyPolledMessage(t *testing.T) {
	store, _, _ := loggedInStore(t)
	gen, err := store.SelectChat(lease(t, store), 7)
	require.NoError(t, err)

	store.AppendPending(models.Message{ID: "local-1", ChatID: 7, Text: "hey"})
	store.ApplyMessages(gen, 7, []models.Message{{ID: "2", ChatID: 7, Text: "hey"}})

	store.ResolvePending("local-1", models.Message{ID: "2", ChatID: 7, Text: "hey"})
	assert.Len(t, store.Messages(), 1)
}

func TestDropPendingRollsBack(t *testing.T) {
	store, _, _ := loggedInStore(t)
	_, err := store.SelectChat(lease(t, store), 7)
	require.NoError(t, err)

	store.AppendPending(models.Message{ID: "local-1", ChatID: 7, Text: "hey"})
	assert.True(t, store.DropPending("local-1"))
	assert.False(t, store.DropPending("local-1"))
	assert.Empty(t, store.Messages())
}

func TestPrependChatDeduplicates(t *testing.T) {
	store, _, _ := loggedInStore(t)
	store.SetChats(lease(t, store), []models.Chat{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})

	store.PrependChat(lease(t, store), models.Chat{ID: 2, Name: "b"})
	store.PrependChat(lease(t, store), models.Chat{ID: 3, Name: "c"})

	snap := store.Snapshot()
	ids := []int{}
	for _, c := range snap.Chats {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int{3, 2, 1}, ids)
}

func TestUpsertInvite(t *testing.T) {
	store, _, _ := loggedInStore(t)
	store.SetInvites(lease(t, store), []models.Invite{{ID: 1, Status: models.InviteStatusPending}})

	store.UpsertInvite(lease(t, store), models.Invite{ID: 1, Status: models.InviteStatusAccepted})
	store.UpsertInvite(lease(t, store), models.Invite{ID: 2, Status: models.InviteStatusPending})

	inv, ok := store.Invite(1)
	require.True(t, ok)
	assert.Equal(t, models.InviteStatusAccepted, inv.Status)
	assert.Len(t, store.Snapshot().Invites, 2)
}

func TestWritesFromEndedSessionAreDropped(t *testing.T) {
	store, apiClient, tokens := loggedInStore(t)
	old := lease(t, store)

	tokens.On("Delete", mock.Anything, repositories.SessionTokenKey).Return(nil).Once()
	require.NoError(t, store.Logout(context.Background()))
	assert.False(t, store.Current(old))

	apiClient.On("Authenticate", mock.Anything, "bob", "pw456").Return(models.Token{AccessToken: "tokB"}, nil).Once()
	apiClient.On("FetchCurrentUser", mock.Anything, "tokB").Return(models.Identity{UserID: 4, Username: "bob"}, nil).Once()
	tokens.On("Put", mock.Anything, repositories.SessionTokenKey, "tokB").Return(nil).Once()
	_, err := store.Login(context.Background(), "bob", "pw456")
	require.NoError(t, err)

	assert.False(t, store.SetChats(old, []models.Chat{{ID: 666, Name: "alice-secret"}}))
	assert.False(t, store.PrependChat(old, models.Chat{ID: 667}))
	assert.False(t, store.SetInvites(old, []models.Invite{{ID: 1, ReceiverID: 3}}))
	assert.False(t, store.UpsertInvite(old, models.Invite{ID: 2, ReceiverID: 3}))
	_, err = store.SelectChat(old, 666)
	assert.ErrorIs(t, err, ErrSessionChanged)

	snap := store.Snapshot()
	assert.Equal(t, "bob", snap.Session.Username)
	assert.Empty(t, snap.Chats)
	assert.Empty(t, snap.Invites)
	assert.Nil(t, snap.ActiveChatID)
	assert.True(t, store.Current(lease(t, store)))
}
