package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection reset")

	cases := []struct {
		name   string
		err    error
		kind   error
		domain bool
	}{
		{name: "conflict", err: ConflictError{Op: "op", Field: "email"}, kind: ErrConflict, domain: true},
		{name: "not found", err: NotFoundError{Op: "op", Resource: "user"}, kind: ErrNotFound, domain: true},
		{name: "invalid input", err: OpError{Op: "op", Kind: ErrInvalidInput}, kind: ErrInvalidInput, domain: true},
		{name: "credentials", err: OpError{Op: "op", Kind: ErrInvalidCredentials}, kind: ErrInvalidCredentials, domain: true},
		{name: "invalid token", err: OpError{Op: "op", Kind: ErrInvalidToken}, kind: ErrInvalidToken, domain: true},
		{name: "expired token", err: OpError{Op: "op", Kind: ErrExpiredToken}, kind: ErrExpiredToken, domain: true},
		{name: "not verified", err: OpError{Op: "op", Kind: ErrEmailNotVerified}, kind: ErrEmailNotVerified, domain: true},
		{name: "unexpected", err: UnexpectedError{Op: "op", Err: cause}, kind: ErrUnexpected, domain: false},
		{name: "wrapped conflict", err: fmt.Errorf("outer: %w", ConflictError{Op: "op"}), kind: ErrConflict, domain: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.kind) {
				t.Fatalf("errors.Is(%v, %v)=false", tc.err, tc.kind)
			}
			if got := IsDomain(tc.err); got != tc.domain {
				t.Fatalf("IsDomain=%v want %v", got, tc.domain)
			}
		})
	}
}

func TestUnexpectedError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := UnexpectedError{Op: "identity.Create", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "identity.Create: connection reset" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestUnexpected_LeavesDomainAndContextErrorsAlone(t *testing.T) {
	conflict := ConflictError{Op: "op", Field: "username"}
	if got := unexpected("x", conflict); !IsConflict(got) || IsUnexpected(got) {
		t.Fatalf("domain error must pass through, got %v", got)
	}
	if got := unexpected("x", context.Canceled); IsUnexpected(got) {
		t.Fatalf("context errors must pass through, got %v", got)
	}
	if got := unexpected("x", errors.New("boom")); !IsUnexpected(got) {
		t.Fatalf("expected wrapping, got %v", got)
	}
	if unexpected("x", nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestErrorMessages(t *testing.T) {
	if got := (ConflictError{Op: "identity.Create", Field: "email"}).Error(); got != "identity.Create: conflict: email" {
		t.Fatalf("conflict message: %q", got)
	}
	if got := (NotFoundError{Op: "identity.Login"}).Error(); got != "identity.Login: not_found" {
		t.Fatalf("not found message: %q", got)
	}
	if got := (OpError{Op: "identity.Register", Kind: ErrInvalidInput, Msg: "email is required"}).Error(); got != "identity.Register: invalid_input: email is required" {
		t.Fatalf("op error message: %q", got)
	}
}
