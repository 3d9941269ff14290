package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Emjay-16/aqi-project/cmd/security/token"
)

// MemoryStore is an in-process Store used by tests and by deployments
// without AQI_DATABASE_URL. It enforces the same uniqueness rules as the
// Postgres schema. InTx serializes units of work and restores a snapshot
// when fn fails.
type MemoryStore struct {
	mu sync.Mutex

	digest token.Digester

	nextUserID int64
	users      map[int64]User
	tokens     map[string]VerificationToken // by id
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTokenDigester sets how verification tokens are hashed before storage.
func WithMemoryTokenDigester(d token.Digester) MemoryOption {
	return func(s *MemoryStore) { s.digest = d }
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		users:  make(map[int64]User),
		tokens: make(map[string]VerificationToken),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type memSnapshot struct {
	nextUserID int64
	users      map[int64]User
	tokens     map[string]VerificationToken
}

func (s *MemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		nextUserID: s.nextUserID,
		users:      make(map[int64]User, len(s.users)),
		tokens:     make(map[string]VerificationToken, len(s.tokens)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.tokens {
		snap.tokens[k] = cloneToken(v)
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.nextUserID = snap.nextUserID
	s.users = snap.users
	s.tokens = snap.tokens
}

// memRepo runs Repository operations with s.mu already held.
type memRepo struct{ s *MemoryStore }

// InTx runs fn while holding the store lock; a failing fn leaves no trace.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Repository) error) error {
	const op = "identity.InTx"

	if s == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fn == nil {
		return pgInvalid(op, "nil func")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(memRepo{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) FindByUsernameOrEmail(ctx context.Context, v string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memRepo{s: s}.FindByUsernameOrEmail(ctx, v)
}

func (s *MemoryStore) ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memRepo{s: s}.ExistsUsernameOrEmail(ctx, username, email)
}

func (s *MemoryStore) Create(ctx context.Context, in CreateUserInput) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memRepo{s: s}.Create(ctx, in)
}

func (s *MemoryStore) SetVerified(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memRepo{s: s}.SetVerified(ctx, userID)
}

func (s *MemoryStore) Issue(ctx context.Context, userID int64, ttl time.Duration, now time.Time) (string, VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memRepo{s: s}.Issue(ctx, userID, ttl, now)
}

func (s *MemoryStore) FindByToken(ctx context.Context, plain string) (VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memRepo{s: s}.FindByToken(ctx, plain)
}

func (s *MemoryStore) Invalidate(ctx context.Context, rec VerificationToken, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memRepo{s: s}.Invalidate(ctx, rec, now)
}

// User returns a copy of the stored user by id.
func (s *MemoryStore) User(id int64) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// Tokens returns copies of every verification record for userID, oldest first.
func (s *MemoryStore) Tokens(userID int64) []VerificationToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []VerificationToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, cloneToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UserCount returns the number of stored users.
func (s *MemoryStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// ---- repository operations (lock held) ----

func (r memRepo) FindByUsernameOrEmail(ctx context.Context, v string) (User, error) {
	const op = "identity.FindByUsernameOrEmail"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	v = NormalizeLogin(v)
	if v == "" {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	var (
		found User
		ok    bool
	)
	for _, u := range r.s.users {
		if u.Username != v && u.Email != v {
			continue
		}
		if !ok || u.ID < found.ID {
			found, ok = u, true
		}
	}
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return found, nil
}

func (r memRepo) ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	username = NormalizeUsername(username)
	email = NormalizeEmail(email)

	for _, u := range r.s.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r memRepo) Create(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	u := User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Username:     NormalizeUsername(in.Username),
		Email:        NormalizeEmail(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: in.PasswordHash,
		CreatedAt:    in.Now,
	}
	if u.Username == "" {
		return User{}, pgInvalid(op, "username is required")
	}
	if u.Email == "" {
		return User{}, pgInvalid(op, "email is required")
	}
	if u.PasswordHash == "" {
		return User{}, pgInvalid(op, "password hash is required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	for _, existing := range r.s.users {
		if existing.Username == u.Username {
			return User{}, ConflictError{Op: op, Field: "username"}
		}
		if existing.Email == u.Email {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
	}

	r.s.nextUserID++
	u.ID = r.s.nextUserID
	r.s.users[u.ID] = u
	return u, nil
}

func (r memRepo) SetVerified(ctx context.Context, userID int64) error {
	const op = "identity.SetVerified"

	if err := ctx.Err(); err != nil {
		return err
	}
	u, ok := r.s.users[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	u.Verified = true
	r.s.users[userID] = u
	return nil
}

func (r memRepo) Issue(ctx context.Context, userID int64, ttl time.Duration, now time.Time) (string, VerificationToken, error) {
	const op = "identity.Issue"

	if err := ctx.Err(); err != nil {
		return "", VerificationToken{}, err
	}
	if _, ok := r.s.users[userID]; !ok {
		return "", VerificationToken{}, NotFoundError{Op: op, Resource: "user"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, err := NewOpaqueToken(verificationTokenBytes)
	if err != nil {
		return "", VerificationToken{}, unexpected(op, err)
	}
	id, err := NewULID(now)
	if err != nil {
		return "", VerificationToken{}, unexpected(op, err)
	}

	hash := r.s.digest.Digest(plain)
	for _, t := range r.s.tokens {
		if t.TokenHash != nil && *t.TokenHash == hash {
			return "", VerificationToken{}, ConflictError{Op: op, Field: "verification_token"}
		}
	}
	expiresAt := now.Add(effectiveTTL(ttl))

	rec := VerificationToken{
		ID:        id,
		UserID:    userID,
		TokenHash: &hash,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
	}
	r.s.tokens[id] = cloneToken(rec)
	return plain, rec, nil
}

func (r memRepo) FindByToken(ctx context.Context, plain string) (VerificationToken, error) {
	const op = "identity.FindByToken"

	if err := ctx.Err(); err != nil {
		return VerificationToken{}, err
	}
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return VerificationToken{}, NotFoundError{Op: op, Resource: "verification_token"}
	}

	hash := r.s.digest.Digest(plain)
	for _, t := range r.s.tokens {
		if t.TokenHash != nil && token.Equal(*t.TokenHash, hash) {
			return cloneToken(t), nil
		}
	}
	return VerificationToken{}, NotFoundError{Op: op, Resource: "verification_token"}
}

func (r memRepo) Invalidate(ctx context.Context, rec VerificationToken, now time.Time) error {
	const op = "identity.Invalidate"

	if err := ctx.Err(); err != nil {
		return err
	}
	cur, ok := r.s.tokens[rec.ID]
	if !ok {
		return NotFoundError{Op: op, Resource: "verification_token"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	cur.TokenHash = nil
	cur.ExpiresAt = nil
	cur.Verified = rec.Verified
	if cur.InvalidatedAt == nil {
		at := now
		cur.InvalidatedAt = &at
	}
	r.s.tokens[rec.ID] = cur
	return nil
}

func cloneToken(t VerificationToken) VerificationToken {
	if t.TokenHash != nil {
		h := *t.TokenHash
		t.TokenHash = &h
	}
	if t.ExpiresAt != nil {
		e := *t.ExpiresAt
		t.ExpiresAt = &e
	}
	if t.InvalidatedAt != nil {
		i := *t.InvalidatedAt
		t.InvalidatedAt = &i
	}
	return t
}
