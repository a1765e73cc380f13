package account

import (
	"context"

	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

// Repository defines the interface for linked account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Create persists a linked account, reviving an unlinked row for the same
	// provider account. An active duplicate returns ErrAlreadyLinked.
	Create(ctx context.Context, params CreateParams) (*LinkedAccount, error)

	// GetByID retrieves a linked account by its ID
	GetByID(ctx context.Context, id string) (*LinkedAccount, error)

	// ListByUserID retrieves all active linked accounts for a user
	ListByUserID(ctx context.Context, userID int64) ([]*LinkedAccount, error)

	// ListByUserAndProvider retrieves active linked accounts of a user at one provider
	ListByUserAndProvider(ctx context.Context, userID int64, providerID provider.ID) ([]*LinkedAccount, error)

	// ListUserIDs returns every user that has at least one active linked account
	ListUserIDs(ctx context.Context) ([]int64, error)

	// Rename changes the display name
	Rename(ctx context.Context, id, displayName string) error

	// Deactivate hides a linked account without deleting it
	Deactivate(ctx context.Context, id string) error

	// Delete removes a linked account
	Delete(ctx context.Context, id string) error
}
