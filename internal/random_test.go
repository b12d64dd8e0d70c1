package internal

import (
	"strings"
	"testing"
)

func TestNewOpaqueTokenIsUniqueAndValid(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken failed: %v", err)
		}
		if !ValidOpaqueToken(tok) {
			t.Fatalf("token %q does not validate", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestValidOpaqueTokenRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", strings.Repeat("!", 43), strings.Repeat("A", 44)} {
		if ValidOpaqueToken(in) {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestHashTokenDeterministicHex(t *testing.T) {
	a := HashToken("secret")
	if a != HashToken("secret") {
		t.Fatal("hash must be deterministic")
	}
	if a == HashToken("secret2") {
		t.Fatal("different inputs must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestNewInviteCode(t *testing.T) {
	code, err := NewInviteCode()
	if err != nil {
		t.Fatalf("NewInviteCode failed: %v", err)
	}
	if len(code) != inviteCodeSize {
		t.Fatalf("unexpected length %d", len(code))
	}
	for _, c := range code {
		if !strings.ContainsRune(inviteAlphabet, c) {
			t.Fatalf("unexpected character %q in %q", c, code)
		}
	}
}

func TestDeriveDeviceID(t *testing.T) {
	a, err := DeriveDeviceID("Mozilla/5.0 (iPhone)")
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	b, _ := DeriveDeviceID("  Mozilla/5.0 (iPhone) ")
	if a != b {
		t.Fatal("surrounding whitespace must not change the device id")
	}
	c, _ := DeriveDeviceID("curl/8.0")
	if a == c {
		t.Fatal("different agents must map to different devices")
	}
	if !strings.HasPrefix(a, derivedDevicePrefix) {
		t.Fatalf("missing prefix: %q", a)
	}
	if _, err := DeriveDeviceID(" "); err == nil {
		t.Fatal("expected error for empty user agent")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected %q", got)
	}
}
