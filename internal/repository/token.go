package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/tokenledger/tokenledger/internal/model"
)

// ErrTokenNotFound is returned when no API token matches.
var ErrTokenNotFound = errors.New("API token not found")

// CreateAPIToken inserts a new API token.
func (r *Repository) CreateAPIToken(ctx context.Context, token *model.APIToken) error {
	query := `
		INSERT INTO api_tokens (id, user_id, token_hash, prefix, scopes, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.Prefix,
		pq.Array(token.Scopes),
		token.Name,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API token: %w", err)
	}

	return nil
}

// GetAPITokensByPrefix retrieves active tokens matching a lookup prefix.
// Several tokens can share a prefix; the caller verifies the hash of
// each candidate.
func (r *Repository) GetAPITokensByPrefix(ctx context.Context, prefix string) ([]*model.APIToken, error) {
	query := `
		SELECT id, user_id, token_hash, prefix, scopes, name, revoked_at, created_at
		FROM api_tokens
		WHERE prefix = $1 AND revoked_at IS NULL
	`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query API tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*model.APIToken, 0, 1)
	for rows.Next() {
		token, err := scanAPIToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate API tokens: %w", err)
	}

	return tokens, nil
}

// RevokeAPIToken marks a token as revoked.
func (r *Repository) RevokeAPIToken(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE api_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke API token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func scanAPIToken(row pgx.Row) (*model.APIToken, error) {
	var token model.APIToken
	var scopes []string

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.Prefix,
		pq.Array(&scopes),
		&token.Name,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to scan API token: %w", err)
	}

	token.Scopes = scopes
	return &token, nil
}
