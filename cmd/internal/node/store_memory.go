package node

import (
	"context"
	"sync"
	"time"

	"github.com/Emjay-16/aqi-project/cmd/identity"
)

// UserLookup reports whether a user id exists. identity.MemoryStore satisfies it.
type UserLookup interface {
	User(id int64) (identity.User, bool)
}

// MemoryStore keeps nodes in process. Owners are checked against users.
type MemoryStore struct {
	users UserLookup

	mu    sync.Mutex
	nodes map[string]Node
}

// NewMemoryStore returns an empty store backed by users for owner checks.
func NewMemoryStore(users UserLookup) *MemoryStore {
	return &MemoryStore{users: users, nodes: make(map[string]Node)}
}

func (s *MemoryStore) Add(ctx context.Context, n Node) (Node, error) {
	if err := ctx.Err(); err != nil {
		return Node{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[n.NodeID]; ok {
		return Node{}, identity.ConflictError{Op: opAdd, Field: conflictNodeID}
	}
	if s.users != nil {
		if _, ok := s.users.User(n.UserID); !ok {
			return Node{}, identity.NotFoundError{Op: opAdd, Resource: resourceUser}
		}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.nodes[n.NodeID] = n
	return n, nil
}

// Get returns a stored node by id.
func (s *MemoryStore) Get(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	return n, ok
}
