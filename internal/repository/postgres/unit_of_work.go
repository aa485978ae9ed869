package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
)

// UnitOfWork runs callbacks inside a pgx transaction with tx-bound repositories.
type UnitOfWork struct {
	db     txBeginner
	users  *UserRepository
	tokens *AuthTokenRepository
	codes  *VerificationCodeRepository
}

// NewUnitOfWork constructs a transaction runner over db.
func NewUnitOfWork(db txBeginner) *UnitOfWork {
	return &UnitOfWork{
		db:     db,
		users:  NewUserRepository(db),
		tokens: NewAuthTokenRepository(db),
		codes:  NewVerificationCodeRepository(db),
	}
}

// WithinTx begins a transaction, runs fn and commits when fn succeeds.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) (err error) {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
			}
		}
	}()

	repos := port.TxRepositories{
		Users:  u.users.WithTx(tx),
		Tokens: u.tokens.WithTx(tx),
		Codes:  u.codes.WithTx(tx),
	}
	if err = fn(ctx, repos); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ port.UnitOfWork = (*UnitOfWork)(nil)
