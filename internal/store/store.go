package store

import (
	"context"
	"errors"
)

// ErrNotInitialized is returned by store operations called before Initialize.
var ErrNotInitialized = errors.New("credential store: not initialized")

// Store is the persistence contract used by the callback listener.
type Store interface {
	// Initialize prepares the backing medium. It is called once, before the listener starts.
	Initialize(ctx context.Context) error
	// AddAccount appends a record. Existing records for the same email are left untouched.
	AddAccount(ctx context.Context, record *Record) error
	// ListAccounts returns every stored record ordered by creation time.
	ListAccounts(ctx context.Context) ([]*Record, error)
}
