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

type codeTable struct {
	name   string
	target string
}

var codeTables = map[domain.Channel]codeTable{
	domain.ChannelSMS:   {name: table("sms_verification_codes"), target: "phone"},
	domain.ChannelEmail: {name: table("email_verification_codes"), target: "email"},
}

// VerificationCodeRepository stores SMS and email codes in per-channel tables.
type VerificationCodeRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewVerificationCodeRepository constructs the repository.
func NewVerificationCodeRepository(exec pgExecutor) *VerificationCodeRepository {
	return &VerificationCodeRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *VerificationCodeRepository) WithTx(tx pgx.Tx) *VerificationCodeRepository {
	if tx == nil {
		return r
	}
	return &VerificationCodeRepository{exec: tx, builder: r.builder}
}

func tableFor(channel domain.Channel) (codeTable, error) {
	t, ok := codeTables[channel]
	if !ok {
		return codeTable{}, fmt.Errorf("unsupported channel %q", channel)
	}
	return t, nil
}

func (t codeTable) columns() []string {
	return []string{
		"id",
		t.target,
		"code_hash",
		"purpose",
		"template_id",
		"status",
		"client_ip",
		"user_id",
		"verify_count",
		"last_verify_at",
		"created_at",
		"expires_at",
	}
}

// Create inserts a freshly issued code.
func (r *VerificationCodeRepository) Create(ctx context.Context, code domain.VerificationCode) error {
	t, err := tableFor(code.Channel)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert(t.name).
		Columns(t.columns()...).
		Values(
			code.ID,
			code.Target,
			code.CodeHash,
			string(code.Purpose),
			optionalString(code.TemplateID),
			int(code.Status),
			optionalString(code.ClientIP),
			optionalStringPtr(code.UserID),
			code.VerifyCount,
			optionalTime(code.LastVerifyAt),
			code.IssuedAt.UTC(),
			code.ExpiresAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert code sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert %s code: %w", code.Channel, err)
	}
	return nil
}

// GetByID loads a code row.
func (r *VerificationCodeRepository) GetByID(ctx context.Context, channel domain.Channel, id string) (*domain.VerificationCode, error) {
	t, err := tableFor(channel)
	if err != nil {
		return nil, err
	}

	stmt, args, err := r.builder.Select(t.columns()...).
		From(t.name).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select code sql: %w", err)
	}

	return scanCode(channel, r.exec.QueryRow(ctx, stmt, args...))
}

// Latest returns the newest row in status for target and purpose.
func (r *VerificationCodeRepository) Latest(ctx context.Context, channel domain.Channel, target string, purpose domain.Purpose, status domain.CodeStatus) (*domain.VerificationCode, error) {
	t, err := tableFor(channel)
	if err != nil {
		return nil, err
	}

	stmt, args, err := r.builder.Select(t.columns()...).
		From(t.name).
		Where(squirrel.Eq{t.target: target, "purpose": string(purpose), "status": int(status)}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest code sql: %w", err)
	}

	return scanCode(channel, r.exec.QueryRow(ctx, stmt, args...))
}

// RecordAttempt bumps verify_count and stamps last_verify_at.
func (r *VerificationCodeRepository) RecordAttempt(ctx context.Context, channel domain.Channel, id string, at time.Time) (int, error) {
	t, err := tableFor(channel)
	if err != nil {
		return 0, err
	}

	stmt, args, err := r.builder.Update(t.name).
		Set("verify_count", squirrel.Expr("verify_count + 1")).
		Set("last_verify_at", at.UTC()).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING verify_count").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build record attempt sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		if mapped := mapError(err); mapped == repository.ErrNotFound {
			return 0, mapped
		}
		return 0, fmt.Errorf("record code attempt: %w", err)
	}
	return count, nil
}

// Transition performs a guarded status change. Zero affected rows means the
// row was not in one of the from states.
func (r *VerificationCodeRepository) Transition(ctx context.Context, channel domain.Channel, id string, from []domain.CodeStatus, to domain.CodeStatus) error {
	t, err := tableFor(channel)
	if err != nil {
		return err
	}
	if len(from) == 0 {
		return fmt.Errorf("transition requires at least one source status")
	}

	fromValues := make([]int, 0, len(from))
	for _, s := range from {
		fromValues = append(fromValues, int(s))
	}

	stmt, args, err := r.builder.Update(t.name).
		Set("status", int(to)).
		Where(squirrel.Eq{"id": id, "status": fromValues}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build transition sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("transition code status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

func scanCode(channel domain.Channel, row pgx.Row) (*domain.VerificationCode, error) {
	var (
		code         domain.VerificationCode
		purpose      string
		status       int
		templateID   sql.NullString
		clientIP     sql.NullString
		userID       sql.NullString
		lastVerifyAt sql.NullTime
	)

	if err := row.Scan(
		&code.ID,
		&code.Target,
		&code.CodeHash,
		&purpose,
		&templateID,
		&status,
		&clientIP,
		&userID,
		&code.VerifyCount,
		&lastVerifyAt,
		&code.IssuedAt,
		&code.ExpiresAt,
	); err != nil {
		if mapped := mapError(err); mapped == repository.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("scan %s code: %w", channel, err)
	}

	code.Channel = channel
	code.Purpose = domain.Purpose(purpose)
	code.Status = domain.CodeStatus(status)
	code.TemplateID = templateID.String
	code.ClientIP = clientIP.String
	code.UserID = nullableStringPtr(userID)
	code.LastVerifyAt = nullableTimePtr(lastVerifyAt)

	return &code, nil
}

var _ port.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
