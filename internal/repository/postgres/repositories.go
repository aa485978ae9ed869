package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users          *UserRepository
	Tokens         *AuthTokenRepository
	Codes          *VerificationCodeRepository
	RateLimitRules *RateLimitRuleRepository
	CaptchaConfigs *CaptchaConfigRepository
	CaptchaLogs    *CaptchaLogRepository
	UnitOfWork     *UnitOfWork
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:          NewUserRepository(pool),
		Tokens:         NewAuthTokenRepository(pool),
		Codes:          NewVerificationCodeRepository(pool),
		RateLimitRules: NewRateLimitRuleRepository(pool),
		CaptchaConfigs: NewCaptchaConfigRepository(pool),
		CaptchaLogs:    NewCaptchaLogRepository(pool),
		UnitOfWork:     NewUnitOfWork(pool),
	}
}
