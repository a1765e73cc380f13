package account

import (
	"errors"
	"strings"
	"time"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

const maxDisplayNameLength = 100

// Domain errors
var (
	// ErrAccountNotFound aliases the banking sentinel so callers can match either.
	ErrAccountNotFound = banking.ErrAccountNotFound
	ErrForbidden       = errors.New("access forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyLinked   = errors.New("provider account already linked")
)

// LinkedAccount records that a user's account at one provider is part of
// their aggregated view. It is the only durable entity of the service.
type LinkedAccount struct {
	ID                string      `json:"id"`
	UserID            int64       `json:"userId"`
	ProviderID        provider.ID `json:"clientId"`
	ProviderAccountID string      `json:"accountId"`
	DisplayName       string      `json:"accountName"`
	ConsentID         string      `json:"consentId,omitempty"`
	IsActive          bool        `json:"isActive"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// CreateParams contains parameters for linking a provider account
type CreateParams struct {
	UserID            int64
	ProviderID        provider.ID
	ProviderAccountID string
	DisplayName       string
	ConsentID         string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("valid user ID is required"))
	}
	if !p.ProviderID.Valid() {
		return errors.Join(ErrInvalidInput, provider.ErrUnknownProvider)
	}
	if strings.TrimSpace(p.ProviderAccountID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("provider account ID is required"))
	}
	return ValidateDisplayName(p.DisplayName)
}

// ValidateDisplayName checks a user-chosen account label.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.Join(ErrInvalidInput, errors.New("account name is required"))
	}
	if len([]rune(name)) > maxDisplayNameLength {
		return errors.Join(ErrInvalidInput, errors.New("account name is too long"))
	}
	return nil
}
