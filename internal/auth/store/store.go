package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/tokengate/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by the sqlite and
// postgres drivers. Repositories hang off it so a Tx can hand out the same
// repositories bound to the transaction, and so nested transactions can't be
// started by accident.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during sign-in.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user. A taken username or email is ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser writes name and username and bumps updated_at.
	UpdateUser(ctx context.Context, u domain.User) error

	// ListUsers returns one page of users whose username or name contains
	// query (case-insensitive), oldest first, plus the total match count.
	ListUsers(ctx context.Context, query string, limit, offset int) ([]domain.User, int, error)

	IsEmpty(ctx context.Context) (bool, error)
}
