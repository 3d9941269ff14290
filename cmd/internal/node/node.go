// Package node registers sensor nodes against their owning user.
package node

import (
	"context"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Emjay-16/aqi-project/cmd/identity"
)

const (
	maxNodeIDLen   = 128
	maxTextLen     = 512
	maxDescLen     = 4096
	opAdd          = "node.Add"
	resourceUser   = "user"
	conflictNodeID = "node_id"
)

// Node is a registered sensor device.
type Node struct {
	NodeID      string
	UserID      int64
	Name        string
	Location    string
	Description string
	CreatedAt   time.Time
}

// Store persists nodes.
// Add returns identity.ConflictError{Field:"node_id"} for a duplicate id and
// identity.NotFoundError{Resource:"user"} when the owner does not exist.
type Store interface {
	Add(ctx context.Context, n Node) (Node, error)
}

// Sanitizer strips markup from free-text node fields.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer returns a Sanitizer using bluemonday's strict (no HTML) policy.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text removes all tags and returns plain text.
func (s *Sanitizer) Text(v string) string {
	out := s.policy.Sanitize(strings.TrimSpace(v))
	// StrictPolicy entity-encodes what it keeps; the stored value is plain text.
	return strings.TrimSpace(html.UnescapeString(out))
}

// Prepare sanitizes and validates n before it reaches a Store.
func (s *Sanitizer) Prepare(n Node) (Node, error) {
	n.NodeID = strings.TrimSpace(n.NodeID)
	switch {
	case n.NodeID == "":
		return Node{}, invalid("node_id is required")
	case utf8.RuneCountInString(n.NodeID) > maxNodeIDLen:
		return Node{}, invalid("node_id is too long")
	case s.Text(n.NodeID) != n.NodeID:
		return Node{}, invalid("node_id contains markup")
	case n.UserID <= 0:
		return Node{}, invalid("user_id is required")
	}

	n.Name = s.Text(n.Name)
	n.Location = s.Text(n.Location)
	n.Description = s.Text(n.Description)

	if utf8.RuneCountInString(n.Name) > maxTextLen || utf8.RuneCountInString(n.Location) > maxTextLen {
		return Node{}, invalid("node_name or location is too long")
	}
	if utf8.RuneCountInString(n.Description) > maxDescLen {
		return Node{}, invalid("description is too long")
	}
	return n, nil
}

func invalid(msg string) error {
	return identity.OpError{Op: opAdd, Kind: identity.ErrInvalidInput, Msg: msg}
}
