package port

import "context"

// TxRepositories exposes the repositories bound to one database transaction.
type TxRepositories struct {
	Users  UserRepository
	Tokens AuthTokenRepository
	Codes  VerificationCodeRepository
}

// UnitOfWork runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}
