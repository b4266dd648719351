// Package account implements account creation and the authentication
// check every `buy`/`sell`/`cancel`/`account show` request performs
// before it ever reaches the engine, backed by internal/persistence.Store
// and internal/xerrors' sentinel error taxonomy.
package account

import (
	"context"
	"crypto/subtle"

	"github.com/oakmarket/exchange/internal/common"
	"github.com/oakmarket/exchange/internal/persistence"
	"github.com/oakmarket/exchange/internal/xerrors"
)

// Service wraps a persistence.Store with the account operations exposed
// at the protocol boundary.
type Service struct {
	store persistence.Store
}

// New creates an account Service backed by store.
func New(store persistence.Store) *Service {
	return &Service{store: store}
}

// Create registers a new account. Username uniqueness is enforced by the
// durable store's UNIQUE constraint; the store translates a conflict
// into ErrUsernameTaken.
func (s *Service) Create(ctx context.Context, username, password string) (common.Account, error) {
	acc, err := s.store.CreateAccount(ctx, username, password)
	if err != nil {
		return common.Account{}, err
	}
	return acc, nil
}

// Authenticate verifies username/password and returns the account on
// success. The password credential is opaque to the core: it is
// compared, never hashed or derived, using a constant-time compare so
// the core does not leak timing information about a correct prefix.
func (s *Service) Authenticate(ctx context.Context, username, password string) (common.Account, error) {
	acc, ok, err := s.store.GetAccount(ctx, username)
	if err != nil {
		return common.Account{}, err
	}
	if !ok {
		return common.Account{}, xerrors.ErrAuth
	}
	if subtle.ConstantTimeCompare([]byte(acc.Password), []byte(password)) != 1 {
		return common.Account{}, xerrors.ErrAuth
	}
	return acc, nil
}

// Orders returns every order the account has ever placed, for
// `account show`.
func (s *Service) Orders(ctx context.Context, userID uint64) ([]common.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}
