// Package identity models accounts known to the external identity
// provider and the narrow view of that provider Roster depends on.
package identity

import (
	"context"
	"errors"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/types"
)

// ErrUnknownEmail is returned by providers when an email address does
// not resolve to any account.
var ErrUnknownEmail = errors.New("identity: unknown email")

// Account is a user known to the identity provider. Roster mirrors the
// fields it needs for membership bookkeeping; the provider remains the
// authority on credentials and profile.
type Account struct {
	types.Entity
	ID    id.AccountID `json:"id"`
	Email string       `json:"email"`
	Name  string       `json:"name,omitempty"`
}

// Provider is the identity-provider surface Roster calls out to.
// Implementations wrap whatever directory the deployment uses.
type Provider interface {
	// LookupByEmail resolves an email to an account, or ErrUnknownEmail
	// when the address is unknown to the provider.
	LookupByEmail(ctx context.Context, email string) (*Account, error)
}

// ProviderFunc adapts a lookup function to the Provider interface.
type ProviderFunc func(ctx context.Context, email string) (*Account, error)

func (f ProviderFunc) LookupByEmail(ctx context.Context, email string) (*Account, error) {
	return f(ctx, email)
}

// Store persists the mirrored accounts.
type Store interface {
	// Upsert inserts the account or refreshes its email and name.
	Upsert(ctx context.Context, a *Account) error
	Get(ctx context.Context, accountID id.AccountID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
}
