package core

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SyncCodeAlphabet omits glyphs that are easy to confuse (0/o, 1/l/i).
const SyncCodeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// SyncCodeLength is the number of characters in a sync code.
const SyncCodeLength = 6

var ErrInvalidSyncCode = errors.New("invalid sync code")

// NewSyncCode draws a sync code from r, or from crypto/rand when r is nil.
func NewSyncCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n := len(SyncCodeAlphabet)
	// Reject bytes above the largest multiple of n to avoid modulo bias.
	limit := 256 - 256%n
	var sb strings.Builder
	buf := make([]byte, 1)
	for sb.Len() < SyncCodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		if int(buf[0]) >= limit {
			continue
		}
		sb.WriteByte(SyncCodeAlphabet[int(buf[0])%n])
	}
	return sb.String(), nil
}

// NormalizeSyncCode lowercases and trims a user-typed code and checks it.
func NormalizeSyncCode(s string) (string, error) {
	code := strings.ToLower(strings.TrimSpace(s))
	if len(code) != SyncCodeLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidSyncCode, s)
	}
	for _, r := range code {
		if !strings.ContainsRune(SyncCodeAlphabet, r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidSyncCode, s)
		}
	}
	return code, nil
}

// ValidSyncCode reports whether s is a well-formed, already normalized code.
func ValidSyncCode(s string) bool {
	code, err := NormalizeSyncCode(s)
	return err == nil && code == s
}
