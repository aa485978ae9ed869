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

var rateLimitRuleColumns = []string{
	"id",
	"name",
	"purpose",
	"template_id",
	"limit_type",
	"window_seconds",
	"max_count",
	"enabled",
	"priority",
	"created_at",
	"updated_at",
}

// RateLimitRuleRepository implements port.RateLimitRuleRepository.
type RateLimitRuleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRateLimitRuleRepository constructs the repository.
func NewRateLimitRuleRepository(exec pgExecutor) *RateLimitRuleRepository {
	return &RateLimitRuleRepository{exec: exec, builder: newBuilder()}
}

// ListEnabled returns enabled rules, highest priority first.
func (r *RateLimitRuleRepository) ListEnabled(ctx context.Context) ([]domain.RateLimitRule, error) {
	return r.list(ctx, squirrel.Eq{"enabled": true})
}

// List returns every rule for administration.
func (r *RateLimitRuleRepository) List(ctx context.Context) ([]domain.RateLimitRule, error) {
	return r.list(ctx, nil)
}

func (r *RateLimitRuleRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]domain.RateLimitRule, error) {
	query := r.builder.Select(rateLimitRuleColumns...).
		From(table("rate_limit_rules")).
		OrderBy("priority DESC", "created_at ASC")
	if where != nil {
		query = query.Where(where)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list rules sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query rate limit rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.RateLimitRule
	for rows.Next() {
		rule, err := scanRateLimitRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate limit rules: %w", err)
	}
	return rules, nil
}

// GetByID loads a rule.
func (r *RateLimitRuleRepository) GetByID(ctx context.Context, id string) (*domain.RateLimitRule, error) {
	stmt, args, err := r.builder.Select(rateLimitRuleColumns...).
		From(table("rate_limit_rules")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select rule sql: %w", err)
	}
	return scanRateLimitRule(r.exec.QueryRow(ctx, stmt, args...))
}

// Create inserts a rule.
func (r *RateLimitRuleRepository) Create(ctx context.Context, rule domain.RateLimitRule) error {
	stmt, args, err := r.builder.Insert(table("rate_limit_rules")).
		Columns(rateLimitRuleColumns...).
		Values(
			rule.ID,
			rule.Name,
			optionalString(string(rule.Purpose)),
			optionalString(rule.TemplateID),
			string(rule.LimitType),
			int(rule.Window/time.Second),
			rule.MaxCount,
			rule.Enabled,
			rule.Priority,
			rule.CreatedAt.UTC(),
			rule.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert rule sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert rate limit rule: %w", mapError(err))
	}
	return nil
}

// Update overwrites the mutable fields of a rule.
func (r *RateLimitRuleRepository) Update(ctx context.Context, rule domain.RateLimitRule) error {
	stmt, args, err := r.builder.Update(table("rate_limit_rules")).
		Set("name", rule.Name).
		Set("purpose", optionalString(string(rule.Purpose))).
		Set("template_id", optionalString(rule.TemplateID)).
		Set("limit_type", string(rule.LimitType)).
		Set("window_seconds", int(rule.Window/time.Second)).
		Set("max_count", rule.MaxCount).
		Set("enabled", rule.Enabled).
		Set("priority", rule.Priority).
		Set("updated_at", rule.UpdatedAt.UTC()).
		Where(squirrel.Eq{"id": rule.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update rule sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update rate limit rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetEnabled toggles a rule.
func (r *RateLimitRuleRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	stmt, args, err := r.builder.Update(table("rate_limit_rules")).
		Set("enabled", enabled).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build toggle rule sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("toggle rate limit rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanRateLimitRule(row pgx.Row) (*domain.RateLimitRule, error) {
	var (
		rule          domain.RateLimitRule
		purpose       sql.NullString
		templateID    sql.NullString
		limitType     string
		windowSeconds int
	)

	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&purpose,
		&templateID,
		&limitType,
		&windowSeconds,
		&rule.MaxCount,
		&rule.Enabled,
		&rule.Priority,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		if mapped := mapError(err); mapped == repository.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("scan rate limit rule: %w", err)
	}

	rule.Purpose = domain.Purpose(purpose.String)
	rule.TemplateID = templateID.String
	rule.LimitType = domain.LimitType(limitType)
	rule.Window = time.Duration(windowSeconds) * time.Second

	return &rule, nil
}

var _ port.RateLimitRuleRepository = (*RateLimitRuleRepository)(nil)
