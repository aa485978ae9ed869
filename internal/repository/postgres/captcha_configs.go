package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

var captchaConfigColumns = []string{
	"id",
	"name",
	"provider",
	"app_id",
	"app_secret",
	"site_key",
	"secret_key",
	"endpoint",
	"min_score",
	"scenes",
	"enabled",
	"priority",
	"status",
	"created_at",
	"updated_at",
}

// CaptchaConfigRepository implements port.CaptchaConfigRepository.
type CaptchaConfigRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCaptchaConfigRepository constructs the repository.
func NewCaptchaConfigRepository(exec pgExecutor) *CaptchaConfigRepository {
	return &CaptchaConfigRepository{exec: exec, builder: newBuilder()}
}

// FindForScene returns the highest priority enabled, active config listing scene.
func (r *CaptchaConfigRepository) FindForScene(ctx context.Context, scene string) (*domain.CaptchaConfig, error) {
	stmt, args, err := r.builder.Select(captchaConfigColumns...).
		From(table("captcha_configs")).
		Where(squirrel.Eq{"enabled": true, "status": int(domain.CaptchaStatusActive)}).
		Where("? = ANY(scenes)", scene).
		OrderBy("priority DESC", "created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find captcha config sql: %w", err)
	}
	return scanCaptchaConfig(r.exec.QueryRow(ctx, stmt, args...))
}

// List returns every config for administration.
func (r *CaptchaConfigRepository) List(ctx context.Context) ([]domain.CaptchaConfig, error) {
	stmt, args, err := r.builder.Select(captchaConfigColumns...).
		From(table("captcha_configs")).
		OrderBy("priority DESC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list captcha configs sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query captcha configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.CaptchaConfig
	for rows.Next() {
		cfg, err := scanCaptchaConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captcha configs: %w", err)
	}
	return configs, nil
}

// GetByID loads a config.
func (r *CaptchaConfigRepository) GetByID(ctx context.Context, id string) (*domain.CaptchaConfig, error) {
	stmt, args, err := r.builder.Select(captchaConfigColumns...).
		From(table("captcha_configs")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select captcha config sql: %w", err)
	}
	return scanCaptchaConfig(r.exec.QueryRow(ctx, stmt, args...))
}

// Create inserts a config.
func (r *CaptchaConfigRepository) Create(ctx context.Context, cfg domain.CaptchaConfig) error {
	scenes := cfg.Scenes
	if scenes == nil {
		scenes = []string{}
	}

	stmt, args, err := r.builder.Insert(table("captcha_configs")).
		Columns(captchaConfigColumns...).
		Values(
			cfg.ID,
			cfg.Name,
			string(cfg.Provider),
			optionalString(cfg.AppID),
			optionalString(cfg.AppSecret),
			optionalString(cfg.SiteKey),
			optionalString(cfg.SecretKey),
			optionalString(cfg.Endpoint),
			cfg.MinScore,
			scenes,
			cfg.Enabled,
			cfg.Priority,
			int(cfg.Status),
			cfg.CreatedAt.UTC(),
			cfg.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert captcha config sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert captcha config: %w", mapError(err))
	}
	return nil
}

// Update overwrites the mutable fields of a config.
func (r *CaptchaConfigRepository) Update(ctx context.Context, cfg domain.CaptchaConfig) error {
	scenes := cfg.Scenes
	if scenes == nil {
		scenes = []string{}
	}

	stmt, args, err := r.builder.Update(table("captcha_configs")).
		Set("name", cfg.Name).
		Set("provider", string(cfg.Provider)).
		Set("app_id", optionalString(cfg.AppID)).
		Set("app_secret", optionalString(cfg.AppSecret)).
		Set("site_key", optionalString(cfg.SiteKey)).
		Set("secret_key", optionalString(cfg.SecretKey)).
		Set("endpoint", optionalString(cfg.Endpoint)).
		Set("min_score", cfg.MinScore).
		Set("scenes", scenes).
		Set("enabled", cfg.Enabled).
		Set("priority", cfg.Priority).
		Set("status", int(cfg.Status)).
		Set("updated_at", cfg.UpdatedAt.UTC()).
		Where(squirrel.Eq{"id": cfg.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update captcha config sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update captcha config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetEnabled toggles a config.
func (r *CaptchaConfigRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	stmt, args, err := r.builder.Update(table("captcha_configs")).
		Set("enabled", enabled).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build toggle captcha config sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("toggle captcha config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanCaptchaConfig(row pgx.Row) (*domain.CaptchaConfig, error) {
	var (
		cfg       domain.CaptchaConfig
		provider  string
		status    int
		appID     sql.NullString
		appSecret sql.NullString
		siteKey   sql.NullString
		secretKey sql.NullString
		endpoint  sql.NullString
	)

	if err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&provider,
		&appID,
		&appSecret,
		&siteKey,
		&secretKey,
		&endpoint,
		&cfg.MinScore,
		&cfg.Scenes,
		&cfg.Enabled,
		&cfg.Priority,
		&status,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		if mapped := mapError(err); mapped == repository.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("scan captcha config: %w", err)
	}

	cfg.Provider = domain.CaptchaProvider(provider)
	cfg.Status = domain.CaptchaConfigStatus(status)
	cfg.AppID = appID.String
	cfg.AppSecret = appSecret.String
	cfg.SiteKey = siteKey.String
	cfg.SecretKey = secretKey.String
	cfg.Endpoint = endpoint.String

	return &cfg, nil
}

var _ port.CaptchaConfigRepository = (*CaptchaConfigRepository)(nil)
