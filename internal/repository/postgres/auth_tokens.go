package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

var authTokenColumns = []string{
	"id",
	"user_id",
	"token_type",
	"token_hash",
	"client_ip",
	"user_agent",
	"created_at",
	"expires_at",
	"revoked_at",
}

// AuthTokenRepository persists hashed login, access and refresh tokens.
type AuthTokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuthTokenRepository constructs a new token repository.
func NewAuthTokenRepository(exec pgExecutor) *AuthTokenRepository {
	return &AuthTokenRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *AuthTokenRepository) WithTx(tx pgx.Tx) *AuthTokenRepository {
	if tx == nil {
		return r
	}
	return &AuthTokenRepository{exec: tx, builder: r.builder}
}

// Create stores a token record.
func (r *AuthTokenRepository) Create(ctx context.Context, token domain.AuthToken) error {
	stmt, args, err := r.builder.Insert(table("user_tokens")).
		Columns(authTokenColumns...).
		Values(
			token.ID,
			token.UserID,
			string(token.Type),
			token.TokenHash,
			optionalString(token.ClientIP),
			optionalString(token.UserAgent),
			token.CreatedAt.UTC(),
			token.ExpiresAt.UTC(),
			optionalTime(token.RevokedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByHash loads a token by its hash.
func (r *AuthTokenRepository) GetByHash(ctx context.Context, tokenType domain.TokenType, hash string) (*domain.AuthToken, error) {
	stmt, args, err := r.builder.Select(authTokenColumns...).
		From(table("user_tokens")).
		Where(squirrel.Eq{"token_type": string(tokenType), "token_hash": hash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	var (
		token     domain.AuthToken
		typ       string
		clientIP  sql.NullString
		userAgent sql.NullString
		revokedAt sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.UserID,
		&typ,
		&token.TokenHash,
		&clientIP,
		&userAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&revokedAt,
	); err != nil {
		if mapped := mapError(err); mapped == repository.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	token.Type = domain.TokenType(typ)
	token.ClientIP = clientIP.String
	token.UserAgent = userAgent.String
	token.RevokedAt = nullableTimePtr(revokedAt)
	return &token, nil
}

// Revoke marks a single token revoked.
func (r *AuthTokenRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update(table("user_tokens")).
		Set("revoked_at", at.UTC()).
		Where(squirrel.Eq{"id": id, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every unrevoked token of the user regardless of type.
func (r *AuthTokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	stmt, args, err := r.builder.Update(table("user_tokens")).
		Set("revoked_at", at.UTC()).
		Where(squirrel.Eq{"user_id": userID, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ port.AuthTokenRepository = (*AuthTokenRepository)(nil)
