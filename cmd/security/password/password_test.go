package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Cost = bcrypt.MinCost
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !cfg.Verify("pw1", h) {
		t.Fatalf("expected match")
	}
}

func TestHash_NonDeterministic(t *testing.T) {
	cfg := testConfig()

	h1, err := cfg.Hash("same password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	h2, err := cfg.Hash("same password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected different digests for the same input")
	}
	if !cfg.Verify("same password", h1) || !cfg.Verify("same password", h2) {
		t.Fatalf("both digests must verify")
	}
}

func TestVerify_Mismatch(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	cases := []struct {
		name string
		in   string
	}{
		{name: "wrong", in: "wrong password"},
		{name: "empty", in: ""},
		{name: "digest as password", in: h},
		{name: "case changed", in: "Correct horse"},
	}
	for _, tc := range cases {
		if cfg.Verify(tc.in, h) {
			t.Fatalf("%s: expected mismatch", tc.name)
		}
	}
}

func TestVerify_MalformedDigest(t *testing.T) {
	cfg := testConfig()

	for _, digest := range []string{"", "not-a-hash", "$2a$10$short", strings.Repeat("x", 60)} {
		if cfg.Verify("whatever", digest) {
			t.Fatalf("expected false for digest %q", digest)
		}
		if err := cfg.CheckDigest(digest); err != ErrInvalidHash {
			t.Fatalf("CheckDigest(%q)=%v want ErrInvalidHash", digest, err)
		}
	}
}

func TestVerify_RefusesExcessiveCost(t *testing.T) {
	cfg := testConfig()

	// A cost-31 digest prefix; Verify must bail out before doing the work.
	digest := "$2a$31$" + strings.Repeat("a", 53)
	if cfg.Verify("pw", digest) {
		t.Fatalf("expected false for excessive cost")
	}
}

func TestHash_TooLongForBcrypt(t *testing.T) {
	cfg := testConfig()

	if _, err := cfg.Hash(strings.Repeat("a", 73)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	// 25 three-byte runes: within the rune bound, over the byte bound.
	if _, err := cfg.Hash(strings.Repeat("ก", 25)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong for multi-byte input, got %v", err)
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.MinLength = 8
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := cfg.Validate(""); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort for empty, got %v", err)
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 8

	if err := cfg.Validate("password"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := cfg.Validate("11111111"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestIsPolicy(t *testing.T) {
	if !IsPolicy(ErrPasswordTooShort) || !IsPolicy(ErrWeakPassword) {
		t.Fatalf("expected policy errors to be recognized")
	}
	if IsPolicy(ErrInvalidHash) {
		t.Fatalf("ErrInvalidHash is not a policy error")
	}
}
