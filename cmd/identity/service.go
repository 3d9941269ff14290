package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
)

// Notifier receives verification intents after a registration commits.
// Implementations must not block; delivery happens elsewhere.
type Notifier interface {
	Enqueue(ctx context.Context, n VerificationNotice) error
}

// VerificationNotice is the intent to email a verification link.
// Token is the plain token; it must never be logged.
type VerificationNotice struct {
	UserID   int64
	Username string
	Email    string
	Token    string
}

// EventRecorder counts identity outcomes (e.g. Prometheus counters).
type EventRecorder interface {
	IdentityEvent(op, result string)
}

// RegisterInput is a registration request.
type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Phone     string
	Password  string
}

// RegisterResult is returned by a successful registration.
type RegisterResult struct {
	UserID   int64
	Username string
	Email    string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	UserID   int64
	Username string
	Email    string
	Verified bool
}

// Service runs register, login and verify-email over a Store.
type Service struct {
	store    Store
	hasher   Hasher
	notifier Notifier
	events   EventRecorder
	log      *slog.Logger

	now             func() time.Time
	ttl             time.Duration
	requireVerified bool

	dummyOnce   sync.Once
	dummyDigest string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHasher overrides the default bcrypt hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithNotifier sets where verification intents are enqueued.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithEventRecorder sets the outcome counter sink.
func WithEventRecorder(r EventRecorder) ServiceOption {
	return func(s *Service) { s.events = r }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenTTL sets the verification token lifetime (<=0 keeps the default).
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRequireVerified makes Login reject users who have not verified their email.
func WithRequireVerified(v bool) ServiceOption {
	return func(s *Service) { s.requireVerified = v }
}

// NewService wires a Service. store is required.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	s := &Service{
		store:  store,
		hasher: DefaultHasher(),
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		ttl:    DefaultVerificationTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Register creates an unverified user and its verification token atomically,
// then enqueues a verification notice. Notifier failures never fail the call.
func (s *Service) Register(ctx context.Context, in RegisterInput) (res RegisterResult, err error) {
	const op = "identity.Register"
	defer func() { s.record("register", err) }()

	if err := ctx.Err(); err != nil {
		return RegisterResult{}, err
	}

	in.Username = NormalizeUsername(in.Username)
	in.Email = NormalizeEmail(in.Email)
	if err := validateRegister(op, in); err != nil {
		return RegisterResult{}, err
	}

	exists, err := s.store.ExistsUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return RegisterResult{}, unexpected(op, err)
	}
	if exists {
		return RegisterResult{}, ConflictError{Op: op, Field: "username_or_email"}
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, classifyHashError(op, err)
	}

	now := s.now()
	var (
		user  User
		plain string
	)
	err = s.store.InTx(ctx, func(r Repository) error {
		u, err := r.Create(ctx, CreateUserInput{
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Username:     in.Username,
			Email:        in.Email,
			Phone:        in.Phone,
			PasswordHash: digest,
			Now:          now,
		})
		if err != nil {
			return err
		}

		tok, _, err := r.Issue(ctx, u.ID, s.ttl, now)
		if err != nil {
			return err
		}

		user, plain = u, tok
		return nil
	})
	if err != nil {
		return RegisterResult{}, unexpected(op, err)
	}

	s.notify(ctx, VerificationNotice{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Token:    plain,
	})

	return RegisterResult{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}, nil
}

// Login checks a username-or-email and password. Verification is only
// required when the service was built WithRequireVerified(true).
func (s *Service) Login(ctx context.Context, usernameOrEmail, plain string) (res LoginResult, err error) {
	const op = "identity.Login"
	defer func() { s.record("login", err) }()

	if err := ctx.Err(); err != nil {
		return LoginResult{}, err
	}

	u, err := s.store.FindByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if IsNotFound(err) {
			// Equalize timing with the found-user path.
			_ = s.hasher.Verify(plain, s.dummy())
			return LoginResult{}, NotFoundError{Op: op, Resource: "user"}
		}
		return LoginResult{}, unexpected(op, err)
	}

	if !s.hasher.Verify(plain, u.PasswordHash) {
		return LoginResult{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}
	if s.requireVerified && !u.Verified {
		return LoginResult{}, OpError{Op: op, Kind: ErrEmailNotVerified}
	}

	return LoginResult{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Verified: u.Verified,
	}, nil
}

// VerifyEmail consumes a verification token.
// - unknown or already consumed -> ErrInvalidToken
// - expired -> the token is invalidated (committed) and ErrExpiredToken is returned
// - otherwise the user is marked verified and the token invalidated, atomically
func (s *Service) VerifyEmail(ctx context.Context, plain string) (err error) {
	const op = "identity.VerifyEmail"
	defer func() { s.record("verify_email", err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return OpError{Op: op, Kind: ErrInvalidToken, Msg: "missing token"}
	}

	now := s.now()
	expired := false

	err = s.store.InTx(ctx, func(r Repository) error {
		rec, err := r.FindByToken(ctx, plain)
		if err != nil {
			if IsNotFound(err) {
				return OpError{Op: op, Kind: ErrInvalidToken}
			}
			return err
		}

		if IsExpired(rec, now) {
			// Commit the invalidation; the error is reported after the tx.
			expired = true
			return r.Invalidate(ctx, rec, now)
		}

		if err := r.SetVerified(ctx, rec.UserID); err != nil {
			return err
		}
		rec.Verified = true
		return r.Invalidate(ctx, rec, now)
	})
	if err != nil {
		return unexpected(op, err)
	}
	if expired {
		return OpError{Op: op, Kind: ErrExpiredToken}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, n VerificationNotice) {
	if s.notifier == nil {
		return
	}
	// The request context may end right after the response; the enqueue
	// itself is non-blocking so a detached context is enough.
	if err := s.notifier.Enqueue(context.WithoutCancel(ctx), n); err != nil {
		s.log.Warn("identity.register.notify.fail",
			"user_id", n.UserID,
			"err", err,
		)
	}
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		d, err := s.hasher.Hash(dummyPassword)
		if err == nil {
			s.dummyDigest = d
		}
	})
	return s.dummyDigest
}

func (s *Service) record(op string, err error) {
	if s.events == nil {
		return
	}
	s.events.IdentityEvent(op, eventResult(err))
}

func eventResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsConflict(err):
		return "conflict"
	case IsNotFound(err):
		return "not_found"
	case IsInvalidCredentials(err):
		return "invalid_credentials"
	case IsInvalidToken(err):
		return "invalid_token"
	case IsExpiredToken(err):
		return "expired_token"
	case IsEmailNotVerified(err):
		return "not_verified"
	case IsInvalidInput(err):
		return "invalid_input"
	default:
		return "error"
	}
}

func validateRegister(op string, in RegisterInput) error {
	switch {
	case in.Username == "":
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "username is required"}
	case in.Email == "":
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is required"}
	case in.Password == "":
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid email address"}
	}
	return nil
}
