package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// SessionTokenKey is the fixed key the bearer token is persisted under.
const SessionTokenKey = "session_token"

var ErrStateNotFound = errors.New("state not found")

// StateRepository persists small key/value client state.
type StateRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StateRepo is a sqlx-backed repository.
type StateRepo struct {
	db *sqlx.DB
}

// NewStateRepo constructs StateRepo.
func NewStateRepo(db *sqlx.DB) *StateRepo {
	return &StateRepo{db: db}
}

// Get returns the value stored under key.
func (r *StateRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, r.db.Rebind(`SELECT value FROM client_state WHERE key=?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrStateNotFound
	}
	return value, err
}

// Put stores value under key, replacing any previous value.
func (r *StateRepo) Put(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`), key, value)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (r *StateRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM client_state WHERE key=?`), key)
	return err
}
