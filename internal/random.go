package internal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	opaqueTokenSize = 32
	inviteCodeSize  = 8
)

// inviteAlphabet drops look-alike characters so codes can be read aloud.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOpaqueToken returns 32 random bytes, base64url without padding. Used
// for refresh tokens and CSRF tokens.
func NewOpaqueToken() (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken is the storage form of a bearer secret: BLAKE3, hex encoded.
func HashToken(token string) string {
	hasher := blake3.New()
	_, _ = hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}

// NewInviteCode returns an upper-case code drawn from inviteAlphabet.
func NewInviteCode() (string, error) {
	var raw [inviteCodeSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}

	var b strings.Builder
	b.Grow(inviteCodeSize)
	for _, c := range raw {
		// 256 is a multiple of 32, no modulo bias.
		b.WriteByte(inviteAlphabet[int(c)%len(inviteAlphabet)])
	}
	return b.String(), nil
}

// ValidOpaqueToken reports whether s decodes to exactly 32 bytes.
func ValidOpaqueToken(s string) bool {
	if len(s) != base64.RawURLEncoding.EncodedLen(opaqueTokenSize) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(raw) == opaqueTokenSize
}
