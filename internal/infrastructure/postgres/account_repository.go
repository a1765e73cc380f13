package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

const uniqueViolation = "23505"

const linkedAccountColumns = `id, user_id, provider_id, provider_account_id, display_name, consent_id, is_active, created_at, updated_at`

// LinkedAccountRepository implements the account.Repository interface for PostgreSQL
type LinkedAccountRepository struct {
	db *DB
}

// NewLinkedAccountRepository creates a new PostgreSQL linked account repository
func NewLinkedAccountRepository(db *DB) *LinkedAccountRepository {
	return &LinkedAccountRepository{db: db}
}

var _ account.Repository = (*LinkedAccountRepository)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanLinkedAccount(row scanner) (*account.LinkedAccount, error) {
	var acc account.LinkedAccount
	var providerID int
	var consentID sql.NullString

	err := row.Scan(
		&acc.ID, &acc.UserID, &providerID, &acc.ProviderAccountID, &acc.DisplayName,
		&consentID, &acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	acc.ProviderID = provider.ID(providerID)
	if consentID.Valid {
		acc.ConsentID = consentID.String
	}
	return &acc, nil
}

// Create inserts a new linked account with a fresh UUID
func (r *LinkedAccountRepository) Create(ctx context.Context, params account.CreateParams) (*account.LinkedAccount, error) {
	// An unlinked row is revived in place and keeps its ID. An active row
	// yields no result and is reported as already linked.
	query := `
		INSERT INTO linked_accounts (id, user_id, provider_id, provider_account_id, display_name, consent_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider_id, provider_account_id) DO UPDATE
		SET is_active = TRUE,
		    display_name = EXCLUDED.display_name,
		    consent_id = EXCLUDED.consent_id,
		    updated_at = NOW()
		WHERE NOT linked_accounts.is_active
		RETURNING ` + linkedAccountColumns

	acc, err := scanLinkedAccount(r.db.QueryRowContext(
		ctx, query,
		uuid.NewString(), params.UserID, int(params.ProviderID), params.ProviderAccountID, params.DisplayName, nullString(params.ConsentID),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrAlreadyLinked
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, account.ErrAlreadyLinked
		}
		return nil, fmt.Errorf("failed to create linked account: %w", err)
	}
	return acc, nil
}

// GetByID retrieves a linked account by its ID
func (r *LinkedAccountRepository) GetByID(ctx context.Context, id string) (*account.LinkedAccount, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, account.ErrAccountNotFound
	}

	query := `SELECT ` + linkedAccountColumns + ` FROM linked_accounts WHERE id = $1`

	acc, err := scanLinkedAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}
	return acc, nil
}

// ListByUserID retrieves all active linked accounts for a user
func (r *LinkedAccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*account.LinkedAccount, error) {
	query := `
		SELECT ` + linkedAccountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND is_active
		ORDER BY provider_id, created_at
	`
	return r.list(ctx, query, userID)
}

// ListByUserAndProvider retrieves active linked accounts of a user at one provider
func (r *LinkedAccountRepository) ListByUserAndProvider(ctx context.Context, userID int64, providerID provider.ID) ([]*account.LinkedAccount, error) {
	query := `
		SELECT ` + linkedAccountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND provider_id = $2 AND is_active
		ORDER BY created_at
	`
	return r.list(ctx, query, userID, int(providerID))
}

func (r *LinkedAccountRepository) list(ctx context.Context, query string, args ...any) ([]*account.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	var out []*account.LinkedAccount
	for rows.Next() {
		acc, err := scanLinkedAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating linked accounts: %w", err)
	}
	return out, nil
}

// ListUserIDs returns every user with at least one active linked account
func (r *LinkedAccountRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM linked_accounts WHERE is_active ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Rename changes the display name
func (r *LinkedAccountRepository) Rename(ctx context.Context, id, displayName string) error {
	return r.execOne(ctx, "rename", `UPDATE linked_accounts SET display_name = $2, updated_at = NOW() WHERE id = $1`, id, displayName)
}

// Deactivate marks a linked account inactive
func (r *LinkedAccountRepository) Deactivate(ctx context.Context, id string) error {
	return r.execOne(ctx, "deactivate", `UPDATE linked_accounts SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
}

// Delete removes a linked account
func (r *LinkedAccountRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete", `DELETE FROM linked_accounts WHERE id = $1`, id)
}

func (r *LinkedAccountRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s linked account: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s linked account: %w", op, err)
	}
	if n == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
