package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/security"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

const strongPassword = "C0mplex!Passphrase#2025"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	loc := time.FixedZone("CST", 8*3600)
	return &testClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, loc)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// codes

type memoryCodeRepository struct {
	mu    sync.Mutex
	rows  map[string]domain.VerificationCode
	order []string
}

func newMemoryCodeRepository() *memoryCodeRepository {
	return &memoryCodeRepository{rows: make(map[string]domain.VerificationCode)}
}

func (r *memoryCodeRepository) Create(_ context.Context, code domain.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[code.ID] = code
	r.order = append(r.order, code.ID)
	return nil
}

func (r *memoryCodeRepository) GetByID(_ context.Context, channel domain.Channel, id string) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.rows[id]
	if !ok || code.Channel != channel {
		return nil, repository.ErrNotFound
	}
	return &code, nil
}

func (r *memoryCodeRepository) Latest(_ context.Context, channel domain.Channel, target string, purpose domain.Purpose, status domain.CodeStatus) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		code := r.rows[r.order[i]]
		if code.Channel == channel && code.Target == target && code.Purpose == purpose && code.Status == status {
			return &code, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryCodeRepository) RecordAttempt(_ context.Context, channel domain.Channel, id string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.rows[id]
	if !ok || code.Channel != channel {
		return 0, repository.ErrNotFound
	}
	code.VerifyCount++
	code.LastVerifyAt = &at
	r.rows[id] = code
	return code.VerifyCount, nil
}

func (r *memoryCodeRepository) Transition(_ context.Context, channel domain.Channel, id string, from []domain.CodeStatus, to domain.CodeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.rows[id]
	if !ok || code.Channel != channel {
		return repository.ErrConflict
	}
	for _, status := range from {
		if code.Status == status {
			code.Status = to
			r.rows[id] = code
			return nil
		}
	}
	return repository.ErrConflict
}

func (r *memoryCodeRepository) snapshot() func() {
	r.mu.Lock()
	rows := make(map[string]domain.VerificationCode, len(r.rows))
	for k, v := range r.rows {
		rows[k] = v
	}
	order := append([]string(nil), r.order...)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.rows, r.order = rows, order
		r.mu.Unlock()
	}
}

func (r *memoryCodeRepository) get(id string) domain.VerificationCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

// rules and ledger

type memoryRuleRepository struct {
	rules []domain.RateLimitRule
	err   error
}

func (r *memoryRuleRepository) ListEnabled(context.Context) ([]domain.RateLimitRule, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]domain.RateLimitRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (r *memoryRuleRepository) List(context.Context) ([]domain.RateLimitRule, error) {
	return append([]domain.RateLimitRule(nil), r.rules...), nil
}

func (r *memoryRuleRepository) GetByID(_ context.Context, id string) (*domain.RateLimitRule, error) {
	for _, rule := range r.rules {
		if rule.ID == id {
			rule := rule
			return &rule, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryRuleRepository) Create(_ context.Context, rule domain.RateLimitRule) error {
	r.rules = append(r.rules, rule)
	return nil
}

func (r *memoryRuleRepository) Update(_ context.Context, rule domain.RateLimitRule) error {
	for i := range r.rules {
		if r.rules[i].ID == rule.ID {
			r.rules[i] = rule
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memoryRuleRepository) SetEnabled(_ context.Context, id string, enabled bool) error {
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].Enabled = enabled
			return nil
		}
	}
	return repository.ErrNotFound
}

type ledgerEntry struct {
	member string
	at     time.Time
}

type memoryLedger struct {
	mu      sync.Mutex
	entries map[string][]ledgerEntry
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{entries: make(map[string][]ledgerEntry)}
}

func (l *memoryLedger) live(key string, window time.Duration, now time.Time) []ledgerEntry {
	var out []ledgerEntry
	for _, e := range l.entries[key] {
		if e.at.After(now.Add(-window)) {
			out = append(out, e)
		}
	}
	return out
}

func (l *memoryLedger) Count(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	live := l.live(key, window, now)
	if len(live) == 0 {
		return 0, time.Time{}, nil
	}
	return len(live), live[0].at, nil
}

func (l *memoryLedger) Reserve(_ context.Context, slots []port.LedgerSlot, member string, now time.Time) (port.LedgerVerdict, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, slot := range slots {
		live := l.live(slot.Key, slot.Window, now)
		if len(live) >= slot.MaxCount {
			return port.LedgerVerdict{Allowed: false, Blocked: i, Oldest: live[0].at}, nil
		}
	}
	for _, slot := range slots {
		l.entries[slot.Key] = append(l.entries[slot.Key], ledgerEntry{member: member, at: now})
	}
	return port.LedgerVerdict{Allowed: true, Blocked: -1}, nil
}

func (l *memoryLedger) Record(_ context.Context, slots []port.LedgerSlot, member string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, slot := range slots {
		l.entries[slot.Key] = append(l.entries[slot.Key], ledgerEntry{member: member, at: now})
	}
	return nil
}

func (l *memoryLedger) Release(_ context.Context, keys []string, member string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		kept := l.entries[key][:0]
		for _, e := range l.entries[key] {
			if e.member != member {
				kept = append(kept, e)
			}
		}
		l.entries[key] = kept
	}
	return nil
}

func (l *memoryLedger) size(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[key])
}

// captcha

type memoryCaptchaConfigs struct {
	configs []domain.CaptchaConfig
}

func (r *memoryCaptchaConfigs) FindForScene(_ context.Context, scene string) (*domain.CaptchaConfig, error) {
	var best *domain.CaptchaConfig
	for i := range r.configs {
		cfg := r.configs[i]
		if !cfg.Active() || !cfg.ServesScene(scene) {
			continue
		}
		if best == nil || cfg.Priority > best.Priority {
			best = &cfg
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (r *memoryCaptchaConfigs) List(context.Context) ([]domain.CaptchaConfig, error) {
	return append([]domain.CaptchaConfig(nil), r.configs...), nil
}

func (r *memoryCaptchaConfigs) GetByID(_ context.Context, id string) (*domain.CaptchaConfig, error) {
	for _, cfg := range r.configs {
		if cfg.ID == id {
			cfg := cfg
			return &cfg, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryCaptchaConfigs) Create(_ context.Context, cfg domain.CaptchaConfig) error {
	r.configs = append(r.configs, cfg)
	return nil
}

func (r *memoryCaptchaConfigs) Update(_ context.Context, cfg domain.CaptchaConfig) error {
	for i := range r.configs {
		if r.configs[i].ID == cfg.ID {
			r.configs[i] = cfg
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memoryCaptchaConfigs) SetEnabled(_ context.Context, id string, enabled bool) error {
	for i := range r.configs {
		if r.configs[i].ID == id {
			r.configs[i].Enabled = enabled
			return nil
		}
	}
	return repository.ErrNotFound
}

type memoryCaptchaLogs struct {
	mu   sync.Mutex
	rows []domain.CaptchaVerifyLog
}

func (r *memoryCaptchaLogs) Create(_ context.Context, log domain.CaptchaVerifyLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, log)
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (r *memoryCaptchaLogs) FindRedeemable(_ context.Context, q domain.ProofQuery, now time.Time) (*domain.CaptchaVerifyLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q.Token == "" || (q.Phone == "" && q.Email == "") {
		return nil, repository.ErrNotFound
	}
	for i := len(r.rows) - 1; i >= 0; i-- {
		row := r.rows[i]
		if deref(row.LotNumber) != q.Token && deref(row.Challenge) != q.Token {
			continue
		}
		if row.Provider != q.Provider || !row.Success || !row.ExpiresAt.After(now) || row.ReferenceLogID != nil {
			continue
		}
		if q.Phone != "" && deref(row.Phone) != q.Phone {
			continue
		}
		if q.Email != "" && deref(row.Email) != q.Email {
			continue
		}
		return &row, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memoryCaptchaLogs) all() []domain.CaptchaVerifyLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CaptchaVerifyLog(nil), r.rows...)
}

type memoryClaims struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (c *memoryClaims) Claim(_ context.Context, id string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed == nil {
		c.claimed = make(map[string]bool)
	}
	if c.claimed[id] {
		return false, nil
	}
	c.claimed[id] = true
	return true, nil
}

type staticVerifier struct {
	provider domain.CaptchaProvider
	result   domain.CaptchaResult
	calls    int
}

func (v *staticVerifier) Provider() domain.CaptchaProvider { return v.provider }

func (v *staticVerifier) Verify(context.Context, domain.CaptchaConfig, domain.CaptchaPayload, string) domain.CaptchaResult {
	v.calls++
	return v.result
}

// sessions, users, tokens

type memorySessions struct {
	mu   sync.Mutex
	rows map[string]domain.VerificationSession
}

func newMemorySessions() *memorySessions {
	return &memorySessions{rows: make(map[string]domain.VerificationSession)}
}

func (s *memorySessions) Save(_ context.Context, session domain.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[session.ID] = session
	return nil
}

func (s *memorySessions) Get(_ context.Context, id string) (*domain.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (s *memorySessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

type memoryUsers struct {
	mu   sync.Mutex
	rows map[string]domain.User
}

func newMemoryUsers(users ...domain.User) *memoryUsers {
	r := &memoryUsers{rows: make(map[string]domain.User)}
	for _, u := range users {
		r.rows[u.ID] = u
	}
	return r
}

func (r *memoryUsers) find(match func(domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryUsers) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Username == user.Username ||
			(user.Phone != nil && deref(u.Phone) == *user.Phone) ||
			(user.Email != nil && deref(u.Email) == *user.Email) {
			return repository.ErrDuplicate
		}
	}
	r.rows[user.ID] = user
	return nil
}

func (r *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r *memoryUsers) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return deref(u.Phone) == phone })
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return strings.EqualFold(deref(u.Email), email) && email != "" })
}

func (r *memoryUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r *memoryUsers) UpdatePassword(_ context.Context, id, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	u.LastPasswordChange = &at
	r.rows[id] = u
	return nil
}

func (r *memoryUsers) UpdateContact(_ context.Context, id string, channel domain.Channel, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	for otherID, other := range r.rows {
		if otherID != id && other.Contact(channel) == value {
			return repository.ErrDuplicate
		}
	}
	v := value
	if channel == domain.ChannelEmail {
		u.Email = &v
	} else {
		u.Phone = &v
	}
	r.rows[id] = u
	return nil
}

func (r *memoryUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLogin = &at
	r.rows[id] = u
	return nil
}

func (r *memoryUsers) snapshot() func() {
	r.mu.Lock()
	rows := make(map[string]domain.User, len(r.rows))
	for k, v := range r.rows {
		rows[k] = v
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.rows = rows
		r.mu.Unlock()
	}
}

type memoryTokens struct {
	mu   sync.Mutex
	rows map[string]domain.AuthToken
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{rows: make(map[string]domain.AuthToken)}
}

func (r *memoryTokens) Create(_ context.Context, token domain.AuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[token.ID] = token
	return nil
}

func (r *memoryTokens) GetByHash(_ context.Context, tokenType domain.TokenType, hash string) (*domain.AuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.rows {
		if t.Type == tokenType && t.TokenHash == hash {
			t := t
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryTokens) Revoke(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	if !ok || t.RevokedAt != nil {
		return repository.ErrNotFound
	}
	t.RevokedAt = &at
	r.rows[id] = t
	return nil
}

func (r *memoryTokens) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &at
			r.rows[id] = t
			n++
		}
	}
	return n, nil
}

func (r *memoryTokens) active(userID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.rows {
		if t.UserID == userID && t.IsActive(now) {
			n++
		}
	}
	return n
}

// memoryUnitOfWork restores the user, token and code maps when fn fails.
type memoryUnitOfWork struct {
	users  *memoryUsers
	tokens *memoryTokens
	codes  *memoryCodeRepository
}

func (u *memoryUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	restoreUsers := u.users.snapshot()
	restoreCodes := u.codes.snapshot()

	u.tokens.mu.Lock()
	tokens := make(map[string]domain.AuthToken, len(u.tokens.rows))
	for k, v := range u.tokens.rows {
		tokens[k] = v
	}
	u.tokens.mu.Unlock()

	err := fn(ctx, port.TxRepositories{Users: u.users, Tokens: u.tokens, Codes: u.codes})
	if err != nil {
		restoreUsers()
		restoreCodes()
		u.tokens.mu.Lock()
		u.tokens.rows = tokens
		u.tokens.mu.Unlock()
	}
	return err
}

// delivery and events

type recordingSender struct {
	mu       sync.Mutex
	messages []domain.CodeMessage
	err      error
}

func (s *recordingSender) Send(_ context.Context, msg domain.CodeMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) last(t *testing.T) domain.CodeMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatal("expected a dispatched message")
	}
	return s.messages[len(s.messages)-1]
}

type recordingEvents struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (e *recordingEvents) record(eventType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return errors.New("broker unavailable")
	}
	e.events = append(e.events, eventType)
	return nil
}

func (e *recordingEvents) PublishCodeIssued(context.Context, domain.CodeIssuedEvent) error {
	return e.record(domain.EventCodeIssued)
}

func (e *recordingEvents) PublishCodeVerified(context.Context, domain.CodeVerifiedEvent) error {
	return e.record(domain.EventCodeVerified)
}

func (e *recordingEvents) PublishCaptchaVerified(context.Context, domain.CaptchaVerifiedEvent) error {
	return e.record(domain.EventCaptchaVerified)
}

func (e *recordingEvents) PublishPasswordReset(context.Context, domain.PasswordResetEvent) error {
	return e.record(domain.EventPasswordReset)
}

func (e *recordingEvents) PublishContactChanged(context.Context, domain.ContactChangedEvent) error {
	return e.record(domain.EventContactChanged)
}

func (e *recordingEvents) PublishUserRegistered(context.Context, domain.UserRegisteredEvent) error {
	return e.record(domain.EventUserRegistered)
}

func (e *recordingEvents) count(eventType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == eventType {
			n++
		}
	}
	return n
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "hashed:"+password, nil
}

// harness wires every service against in-memory collaborators.
type harness struct {
	t        *testing.T
	clock    *testClock
	codes    *memoryCodeRepository
	rules    *memoryRuleRepository
	ledger   *memoryLedger
	configs  *memoryCaptchaConfigs
	logs     *memoryCaptchaLogs
	claims   *memoryClaims
	sessions *memorySessions
	users    *memoryUsers
	tokens   *memoryTokens
	sender   *recordingSender
	events   *recordingEvents
	verifier *staticVerifier

	limiter  *RateLimitService
	captcha  *CaptchaService
	verify   *VerificationCodeService
	reset    *PasswordResetService
	contacts *ContactChangeService
	auth     *AuthService
}

type harnessOption func(*harnessSettings)

type harnessSettings struct {
	captcha  config.CaptchaSettings
	defaults config.DefaultRuleSettings
}

func withCaptchaSettings(cfg config.CaptchaSettings) harnessOption {
	return func(s *harnessSettings) { s.captcha = cfg }
}

func withDefaultRule(rule config.DefaultRuleSettings) harnessOption {
	return func(s *harnessSettings) { s.defaults = rule }
}

func newHarness(t *testing.T, users []domain.User, opts ...harnessOption) *harness {
	t.Helper()

	settings := harnessSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	log := zaptest.NewLogger(t)
	h := &harness{
		t:        t,
		clock:    newTestClock(),
		codes:    newMemoryCodeRepository(),
		rules:    &memoryRuleRepository{},
		ledger:   newMemoryLedger(),
		configs:  &memoryCaptchaConfigs{},
		logs:     &memoryCaptchaLogs{},
		claims:   &memoryClaims{},
		sessions: newMemorySessions(),
		users:    newMemoryUsers(users...),
		tokens:   newMemoryTokens(),
		sender:   &recordingSender{},
		events:   &recordingEvents{},
		verifier: &staticVerifier{
			provider: domain.ProviderTurnstile,
			result:   domain.CaptchaResult{Success: true, LotNumber: "turnstile_lot-1"},
		},
	}

	signer, err := security.NewSessionTokenSigner("unit-test-session-secret", "portal-test")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	signer.WithClock(h.clock.Now)

	uow := &memoryUnitOfWork{users: h.users, tokens: h.tokens, codes: h.codes}
	verification := config.VerificationSettings{
		CodeLength:        6,
		CodeTTL:           10 * time.Minute,
		MaxVerifyAttempts: 5,
		SessionTTL:        10 * time.Minute,
		TemplateIDs:       map[string]string{"register": "SMS_REGISTER", "password_reset": "SMS_RESET"},
	}

	h.limiter = NewRateLimitService(h.rules, h.ledger, settings.defaults, nil, log)
	h.limiter.WithClock(h.clock.Now)

	h.captcha = NewCaptchaService(settings.captcha, h.configs, h.logs, h.claims, h.events, nil, log, h.verifier)
	h.captcha.WithClock(h.clock.Now)

	h.verify = NewVerificationCodeService(verification, h.codes, h.limiter, h.captcha, h.sender, h.events, nil, log)
	h.verify.WithClock(h.clock.Now)

	h.reset = NewPasswordResetService(verification, PasswordResetDeps{
		Users:    h.users,
		Codes:    h.verify,
		Sessions: h.sessions,
		Signer:   signer,
		UoW:      uow,
		Hasher:   plainHasher{},
		Policy:   security.NewPasswordPolicy(),
		Events:   h.events,
	}, log)
	h.reset.WithClock(h.clock.Now)

	h.contacts = NewContactChangeService(verification, h.users, h.verify, h.sessions, signer, uow, h.events, log)
	h.contacts.WithClock(h.clock.Now)

	h.auth = NewAuthService(config.AuthSettings{}, AuthDeps{
		Users:   h.users,
		Tokens:  h.tokens,
		Codes:   h.verify,
		Captcha: h.captcha,
		UoW:     uow,
		Hasher:  plainHasher{},
		Policy:  security.NewPasswordPolicy(),
		Events:  h.events,
	}, log)
	h.auth.WithClock(h.clock.Now)

	return h
}

// sendAndCapture issues a code and returns the id and plaintext that was dispatched.
func (h *harness) sendAndCapture(identifier string, purpose domain.Purpose) (string, string) {
	h.t.Helper()
	res, err := h.verify.SendCode(context.Background(), SendCodeInput{
		Identifier: identifier,
		Purpose:    purpose,
		ClientIP:   "203.0.113.7",
	})
	if err != nil {
		h.t.Fatalf("send code: %v", err)
	}
	return res.CodeID, h.sender.last(h.t).Code
}

func activeUser(id, phone, email string) domain.User {
	u := domain.User{
		ID:           id,
		Username:     "user-" + id,
		PasswordHash: "hashed:" + strongPassword,
		Status:       domain.UserStatusActive,
	}
	if phone != "" {
		u.Phone = &phone
	}
	if email != "" {
		u.Email = &email
	}
	return u
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
