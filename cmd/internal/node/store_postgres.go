package node

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Emjay-16/aqi-project/cmd/identity"
)

// PostgresStore stores nodes in <schema>.nodes. The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore returns a node store over pool using schema (default "aqi").
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("node: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.PgIdentIsValid(schema) {
		return nil, fmt.Errorf("node: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

func (s *PostgresStore) Add(ctx context.Context, n Node) (Node, error) {
	if s == nil || s.pool == nil {
		return Node{}, identity.OpError{Op: opAdd, Kind: identity.ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Node{}, err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	nodes := pgx.Identifier{s.schema, "nodes"}.Sanitize()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+nodes+` (node_id, user_id, node_name, location, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.NodeID, n.UserID, n.Name, n.Location, n.Description, n.CreatedAt,
	)
	if err != nil {
		if _, ok := identity.PgClassifyUniqueViolation(err); ok {
			return Node{}, identity.ConflictError{Op: opAdd, Field: conflictNodeID}
		}
		if identity.PgIsForeignKeyViolation(err) {
			return Node{}, identity.NotFoundError{Op: opAdd, Resource: resourceUser}
		}
		return Node{}, identity.UnexpectedError{Op: opAdd, Err: err}
	}
	return n, nil
}
