package account

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

// Service contains the business logic for linked account operations
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Link persists a provider account for the user. Linking the same provider
// account twice is rejected.
func (s *Service) Link(ctx context.Context, params CreateParams) (*LinkedAccount, error) {
	params.DisplayName = strings.TrimSpace(params.DisplayName)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByUserAndProvider(ctx, params.UserID, params.ProviderID)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if a.ProviderAccountID == params.ProviderAccountID {
			return nil, ErrAlreadyLinked
		}
	}

	return s.repo.Create(ctx, params)
}

// Get retrieves a linked account by ID and verifies user ownership.
// Inactive accounts and accounts of other users are reported as not found.
func (s *Service) Get(ctx context.Context, id string, userID int64) (*LinkedAccount, error) {
	acc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if acc.UserID != userID || !acc.IsActive {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// FindByProviderAccount returns the user's active link for a provider account.
func (s *Service) FindByProviderAccount(ctx context.Context, userID int64, providerID provider.ID, providerAccountID string) (*LinkedAccount, error) {
	accounts, err := s.repo.ListByUserAndProvider(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.ProviderAccountID == providerAccountID && a.IsActive {
			return a, nil
		}
	}
	return nil, ErrAccountNotFound
}

// List retrieves the user's active linked accounts, optionally restricted to
// some providers. A nil filter means all providers.
func (s *Service) List(ctx context.Context, userID int64, providers []provider.ID) ([]*LinkedAccount, error) {
	if userID <= 0 {
		return nil, errors.Join(ErrInvalidInput, errors.New("valid user ID is required"))
	}

	if len(providers) == 1 {
		return s.repo.ListByUserAndProvider(ctx, userID, providers[0])
	}

	all, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if providers == nil {
		return all, nil
	}
	out := make([]*LinkedAccount, 0, len(all))
	for _, a := range all {
		if slices.Contains(providers, a.ProviderID) {
			out = append(out, a)
		}
	}
	return out, nil
}

// UserIDs lists users with at least one active linked account.
func (s *Service) UserIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListUserIDs(ctx)
}

// Rename changes the display name after verifying ownership
func (s *Service) Rename(ctx context.Context, id string, userID int64, displayName string) (*LinkedAccount, error) {
	displayName = strings.TrimSpace(displayName)
	if err := ValidateDisplayName(displayName); err != nil {
		return nil, err
	}
	acc, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Rename(ctx, id, displayName); err != nil {
		return nil, err
	}
	acc.DisplayName = displayName
	return acc, nil
}

// Unlink deactivates a linked account after verifying ownership
func (s *Service) Unlink(ctx context.Context, id string, userID int64) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.Deactivate(ctx, id)
}

// Delete removes a linked account after verifying ownership
func (s *Service) Delete(ctx context.Context, id string, userID int64) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
