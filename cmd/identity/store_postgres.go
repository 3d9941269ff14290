package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Emjay-16/aqi-project/cmd/security/token"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Username/email uniqueness is enforced by uq_users_username / uq_users_email.
// - FindByToken locks the verification row (SELECT ... FOR UPDATE) inside InTx.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	digest token.Digester
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "aqi").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !PgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithTokenDigester sets how verification tokens are hashed before storage.
func WithTokenDigester(d token.Digester) PostgresOption {
	return func(s *PostgresStore) error {
		s.digest = d
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// DefaultSchema is the schema created by the embedded migrations.
const DefaultSchema = "aqi"

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgRepo runs Repository operations against a pool or an open transaction.
type pgRepo struct {
	q      pgQuerier
	schema string
	digest token.Digester
	inTx   bool
}

func (s *PostgresStore) repo() *pgRepo {
	return &pgRepo{q: s.pool, schema: s.schema, digest: s.digest}
}

func (s *PostgresStore) check(op string) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	return nil
}

// InTx runs fn inside a ReadCommitted read-write transaction.
// fn's error (or a commit failure) rolls back every write made through the Repository.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Repository) error) error {
	const op = "identity.InTx"

	if err := s.check(op); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fn == nil {
		return pgInvalid(op, "nil func")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return unexpected(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgRepo{q: tx, schema: s.schema, digest: s.digest, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return unexpected(op, err)
	}
	return nil
}

func (s *PostgresStore) FindByUsernameOrEmail(ctx context.Context, v string) (User, error) {
	if err := s.check("identity.FindByUsernameOrEmail"); err != nil {
		return User{}, err
	}
	return s.repo().FindByUsernameOrEmail(ctx, v)
}

func (s *PostgresStore) ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if err := s.check("identity.ExistsUsernameOrEmail"); err != nil {
		return false, err
	}
	return s.repo().ExistsUsernameOrEmail(ctx, username, email)
}

func (s *PostgresStore) Create(ctx context.Context, in CreateUserInput) (User, error) {
	if err := s.check("identity.Create"); err != nil {
		return User{}, err
	}
	return s.repo().Create(ctx, in)
}

func (s *PostgresStore) SetVerified(ctx context.Context, userID int64) error {
	if err := s.check("identity.SetVerified"); err != nil {
		return err
	}
	return s.repo().SetVerified(ctx, userID)
}

func (s *PostgresStore) Issue(ctx context.Context, userID int64, ttl time.Duration, now time.Time) (string, VerificationToken, error) {
	if err := s.check("identity.Issue"); err != nil {
		return "", VerificationToken{}, err
	}
	return s.repo().Issue(ctx, userID, ttl, now)
}

func (s *PostgresStore) FindByToken(ctx context.Context, plain string) (VerificationToken, error) {
	if err := s.check("identity.FindByToken"); err != nil {
		return VerificationToken{}, err
	}
	return s.repo().FindByToken(ctx, plain)
}

func (s *PostgresStore) Invalidate(ctx context.Context, rec VerificationToken, now time.Time) error {
	if err := s.check("identity.Invalidate"); err != nil {
		return err
	}
	return s.repo().Invalidate(ctx, rec, now)
}

// ---- repository operations ----

const pgUserColumns = `user_id, first_name, last_name, username, email, phone, password_hash, is_verified, created_at`

func pgScanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Username,
		&u.Email,
		&u.Phone,
		&u.PasswordHash,
		&u.Verified,
		&u.CreatedAt,
	)
	return u, err
}

func (r *pgRepo) FindByUsernameOrEmail(ctx context.Context, v string) (User, error) {
	const op = "identity.FindByUsernameOrEmail"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	v = NormalizeLogin(v)
	if v == "" {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	users := pgIdent(r.schema, "users")
	u, err := pgScanUser(r.q.QueryRow(ctx,
		`SELECT `+pgUserColumns+`
		   FROM `+users+`
		  WHERE username = $1 OR email = $1
		  ORDER BY user_id
		  LIMIT 1`,
		v,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, unexpected(op, err)
	}
	return u, nil
}

func (r *pgRepo) ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	const op = "identity.ExistsUsernameOrEmail"

	if err := ctx.Err(); err != nil {
		return false, err
	}

	users := pgIdent(r.schema, "users")
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM `+users+`
		      WHERE username = $1 OR email = $2
		 )`,
		NormalizeUsername(username),
		NormalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, unexpected(op, err)
	}
	return exists, nil
}

func (r *pgRepo) Create(ctx context.Context, in CreateUserInput) (User, error) {
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

	users := pgIdent(r.schema, "users")
	err := r.q.QueryRow(ctx,
		`INSERT INTO `+users+` (
		     first_name, last_name, username, email, phone, password_hash, is_verified, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		 RETURNING user_id`,
		u.FirstName,
		u.LastName,
		u.Username,
		u.Email,
		u.Phone,
		u.PasswordHash,
		u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, unexpected(op, err)
	}
	return u, nil
}

func (r *pgRepo) SetVerified(ctx context.Context, userID int64) error {
	const op = "identity.SetVerified"

	if err := ctx.Err(); err != nil {
		return err
	}
	if userID <= 0 {
		return pgInvalid(op, "invalid user_id")
	}

	users := pgIdent(r.schema, "users")
	tag, err := r.q.Exec(ctx,
		`UPDATE `+users+` SET is_verified = TRUE WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return unexpected(op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (r *pgRepo) Issue(ctx context.Context, userID int64, ttl time.Duration, now time.Time) (string, VerificationToken, error) {
	const op = "identity.Issue"

	if err := ctx.Err(); err != nil {
		return "", VerificationToken{}, err
	}
	if userID <= 0 {
		return "", VerificationToken{}, pgInvalid(op, "invalid user_id")
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

	hash := r.digest.Digest(plain)
	expiresAt := now.Add(effectiveTTL(ttl))

	verifications := pgIdent(r.schema, "email_verifications")
	_, err = r.q.Exec(ctx,
		`INSERT INTO `+verifications+` (id, user_id, token_hash, expires_at, is_verified, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5)`,
		id, userID, hash, expiresAt, now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return "", VerificationToken{}, NotFoundError{Op: op, Resource: "user"}
		}
		return "", VerificationToken{}, unexpected(op, err)
	}

	return plain, VerificationToken{
		ID:        id,
		UserID:    userID,
		TokenHash: &hash,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
	}, nil
}

func (r *pgRepo) FindByToken(ctx context.Context, plain string) (VerificationToken, error) {
	const op = "identity.FindByToken"

	if err := ctx.Err(); err != nil {
		return VerificationToken{}, err
	}
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return VerificationToken{}, NotFoundError{Op: op, Resource: "verification_token"}
	}

	hash := r.digest.Digest(plain)
	verifications := pgIdent(r.schema, "email_verifications")

	q := `SELECT id, user_id, token_hash, expires_at, is_verified, created_at, invalidated_at
	        FROM ` + verifications + `
	       WHERE token_hash = $1`
	if r.inTx {
		q += ` FOR UPDATE`
	}

	var out VerificationToken
	err := r.q.QueryRow(ctx, q, hash).Scan(
		&out.ID,
		&out.UserID,
		&out.TokenHash,
		&out.ExpiresAt,
		&out.Verified,
		&out.CreatedAt,
		&out.InvalidatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerificationToken{}, NotFoundError{Op: op, Resource: "verification_token"}
		}
		return VerificationToken{}, unexpected(op, err)
	}
	if out.TokenHash == nil || !token.Equal(*out.TokenHash, hash) {
		return VerificationToken{}, NotFoundError{Op: op, Resource: "verification_token"}
	}
	return out, nil
}

func (r *pgRepo) Invalidate(ctx context.Context, rec VerificationToken, now time.Time) error {
	const op = "identity.Invalidate"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return pgInvalid(op, "missing verification id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	verifications := pgIdent(r.schema, "email_verifications")
	tag, err := r.q.Exec(ctx,
		`UPDATE `+verifications+`
		    SET token_hash = NULL,
		        expires_at = NULL,
		        is_verified = $2,
		        invalidated_at = COALESCE(invalidated_at, $3)
		  WHERE id = $1`,
		rec.ID, rec.Verified, now,
	)
	if err != nil {
		return unexpected(op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "verification_token"}
	}
	return nil
}

// ---- helpers ----

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// PgIdentIsValid checks if a string is a safe Postgres identifier.
func PgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

// PgClassifyUniqueViolation maps a unique_violation to a logical field name.
// Exported for sibling stores (nodes) sharing the schema.
func PgClassifyUniqueViolation(err error) (field string, ok bool) {
	return pgClassifyUniqueViolation(err)
}

// PgIsForeignKeyViolation reports whether err is a foreign_key_violation.
func PgIsForeignKeyViolation(err error) bool { return pgIsForeignKeyViolation(err) }

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_username":
		return "username", true
	case "uq_users_email":
		return "email", true
	case "uq_email_verifications_token_hash":
		return "verification_token", true
	case "nodes_pkey":
		return "node_id", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "node"):
			return "node_id", true
		default:
			return "unique", true
		}
	}
}
