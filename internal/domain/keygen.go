package domain

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

// keyAlphabet is the 31-symbol set used for key segments. 0, O, 1, I and L
// are excluded so keys survive being read aloud or retyped from invoices.
const keyAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	keySegments   = 4
	keySegmentLen = 4

	// DefaultKeyPrefix applies when the product licensing policy does not
	// configure its own prefix.
	DefaultKeyPrefix = "LIC"

	// MaxKeyGenerationAttempts bounds the collision retry loop at issuance.
	MaxKeyGenerationAttempts = 10
)

var keyPattern = regexp.MustCompile(`^[A-Z]{2,8}-[A-Z2-9]{4}-[A-Z2-9]{4}-[A-Z2-9]{4}-[A-Z2-9]{4}$`)

var prefixPattern = regexp.MustCompile(`^[A-Z]{2,8}$`)

// GenerateKey produces a random license key of the form
// PREFIX-XXXX-XXXX-XXXX-XXXX using a crypto-secure source.
func GenerateKey(prefix string) (string, error) {
	prefix = NormalizeKeyPrefix(prefix)

	var b strings.Builder
	b.Grow(len(prefix) + keySegments*(keySegmentLen+1))
	b.WriteString(prefix)
	for seg := 0; seg < keySegments; seg++ {
		b.WriteByte('-')
		for i := 0; i < keySegmentLen; i++ {
			idx, err := randomIndex(len(keyAlphabet))
			if err != nil {
				return "", fmt.Errorf("generate key symbol: %w", err)
			}
			b.WriteByte(keyAlphabet[idx])
		}
	}
	return b.String(), nil
}

// NormalizeKeyPrefix uppercases and validates a configured prefix,
// falling back to the default when the input is unusable.
func NormalizeKeyPrefix(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if !prefixPattern.MatchString(prefix) {
		return DefaultKeyPrefix
	}
	return prefix
}

// IsValidKeyFormat is a shape-only check used to reject garbage before any
// store lookup. It does not prove the key was ever issued.
func IsValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// randomIndex draws a uniform index below n via rejection sampling, so no
// alphabet symbol is favored by modulo bias.
func randomIndex(n int) (int, error) {
	limit := 256 - (256 % n)
	var buf [1]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		if int(buf[0]) < limit {
			return int(buf[0]) % n, nil
		}
	}
}
