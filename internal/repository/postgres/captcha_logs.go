package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

var captchaLogColumns = []string{
	"id",
	"config_id",
	"scene",
	"provider",
	"lot_number",
	"challenge",
	"pass_token",
	"gen_time",
	"success",
	"result",
	"error_message",
	"client_ip",
	"user_agent",
	"phone",
	"email",
	"reference_log_id",
	"created_at",
	"expires_at",
}

// CaptchaLogRepository appends verification logs. Rows are never updated.
type CaptchaLogRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCaptchaLogRepository constructs the repository.
func NewCaptchaLogRepository(exec pgExecutor) *CaptchaLogRepository {
	return &CaptchaLogRepository{exec: exec, builder: newBuilder()}
}

// Create inserts a log row.
func (r *CaptchaLogRepository) Create(ctx context.Context, log domain.CaptchaVerifyLog) error {
	stmt, args, err := r.builder.Insert(table("captcha_verify_logs")).
		Columns(captchaLogColumns...).
		Values(
			log.ID,
			optionalStringPtr(log.ConfigID),
			log.Scene,
			string(log.Provider),
			optionalStringPtr(log.LotNumber),
			optionalStringPtr(log.Challenge),
			optionalStringPtr(log.PassToken),
			optionalStringPtr(log.GenTime),
			log.Success,
			optionalString(log.Result),
			optionalStringPtr(log.ErrorMessage),
			optionalString(log.ClientIP),
			optionalString(log.UserAgent),
			optionalStringPtr(log.Phone),
			optionalStringPtr(log.Email),
			optionalStringPtr(log.ReferenceLogID),
			log.CreatedAt.UTC(),
			log.ExpiresAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert captcha log sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert captcha log: %w", err)
	}
	return nil
}

// FindRedeemable looks up the newest original success for the token and
// identifier. The scene column is deliberately not part of the filter.
func (r *CaptchaLogRepository) FindRedeemable(ctx context.Context, query domain.ProofQuery, now time.Time) (*domain.CaptchaVerifyLog, error) {
	if query.Token == "" {
		return nil, repository.ErrNotFound
	}

	where := squirrel.And{
		squirrel.Or{
			squirrel.Eq{"lot_number": query.Token},
			squirrel.Eq{"challenge": query.Token},
		},
		squirrel.Eq{"provider": string(query.Provider), "success": true},
		squirrel.Gt{"expires_at": now.UTC()},
		squirrel.Eq{"reference_log_id": nil},
	}
	switch {
	case query.Phone != "":
		where = append(where, squirrel.Eq{"phone": query.Phone})
	case query.Email != "":
		where = append(where, squirrel.Eq{"email": query.Email})
	default:
		return nil, errors.New("proof query requires phone or email")
	}

	stmt, args, err := r.builder.Select(captchaLogColumns...).
		From(table("captcha_verify_logs")).
		Where(where).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find proof sql: %w", err)
	}

	return scanCaptchaLog(r.exec.QueryRow(ctx, stmt, args...))
}

func scanCaptchaLog(row pgx.Row) (*domain.CaptchaVerifyLog, error) {
	var (
		log          domain.CaptchaVerifyLog
		provider     string
		configID     sql.NullString
		lotNumber    sql.NullString
		challenge    sql.NullString
		passToken    sql.NullString
		genTime      sql.NullString
		result       sql.NullString
		errorMessage sql.NullString
		clientIP     sql.NullString
		userAgent    sql.NullString
		phone        sql.NullString
		email        sql.NullString
		referenceID  sql.NullString
	)

	if err := row.Scan(
		&log.ID,
		&configID,
		&log.Scene,
		&provider,
		&lotNumber,
		&challenge,
		&passToken,
		&genTime,
		&log.Success,
		&result,
		&errorMessage,
		&clientIP,
		&userAgent,
		&phone,
		&email,
		&referenceID,
		&log.CreatedAt,
		&log.ExpiresAt,
	); err != nil {
		if mapped := mapError(err); mapped == repository.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("scan captcha log: %w", err)
	}

	log.Provider = domain.CaptchaProvider(provider)
	log.ConfigID = nullableStringPtr(configID)
	log.LotNumber = nullableStringPtr(lotNumber)
	log.Challenge = nullableStringPtr(challenge)
	log.PassToken = nullableStringPtr(passToken)
	log.GenTime = nullableStringPtr(genTime)
	log.Result = result.String
	log.ErrorMessage = nullableStringPtr(errorMessage)
	log.ClientIP = clientIP.String
	log.UserAgent = userAgent.String
	log.Phone = nullableStringPtr(phone)
	log.Email = nullableStringPtr(email)
	log.ReferenceLogID = nullableStringPtr(referenceID)

	return &log, nil
}

var _ port.CaptchaLogRepository = (*CaptchaLogRepository)(nil)
