package outreach

import (
	"crypto/rand"
	"fmt"
)

// Claim codes let an un-onboarded organization claim its seat without a magic
// link tied to a specific email address. The alphabet drops visually
// ambiguous symbols (0/O, 1/I/L), leaving 31; codes are opaque bearer
// identifiers, so the source must be unpredictable.
const (
	claimCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	claimCodeLength   = 8
)

// NewClaimCode generates an 8-character claim code, uniform over the
// alphabet. It does not check uniqueness; the storage layer inserts under a
// unique constraint and the caller retries on conflict.
func NewClaimCode() (string, error) {
	code := make([]byte, claimCodeLength)
	for i := 0; i < claimCodeLength; {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		// Rejection sampling: 31 does not divide 256, so discard the biased
		// tail instead of taking a modulo.
		if int(b[0]) >= len(claimCodeAlphabet)*(256/len(claimCodeAlphabet)) {
			continue
		}
		code[i] = claimCodeAlphabet[int(b[0])%len(claimCodeAlphabet)]
		i++
	}
	return string(code), nil
}
