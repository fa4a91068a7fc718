package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	// intHexWidth is the digest prefix used for integer derivation:
	// 8 hex chars = 32 bits, reduced modulo max.
	intHexWidth = 8

	// floatHexWidth is the digest prefix used for float derivation:
	// 13 hex chars = 52 bits, the full mantissa width of a float64,
	// so 1/x transforms downstream do not quantize near x=1.
	floatHexWidth = 13
)

// floatDenominator is 16^13. A 13-hex-char prefix is always strictly
// below it, giving DeriveFloat the half-open range [0, 1).
const floatDenominator = float64(uint64(1) << (4 * floatHexWidth))

// NewServerSeed returns a fresh 256-bit server seed as lowercase hex.
// The raw value stays secret until the outcome is settled; only its
// SHA-256 commitment may be shown to the player beforehand.
func NewServerSeed() string {
	return randomHex(32)
}

// NewClientSeed returns a fresh 128-bit client seed as lowercase hex.
// Players may supply their own instead; this is only the default.
func NewClientSeed() string {
	return randomHex(16)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; refusing to
		// continue beats handing out a predictable seed.
		panic(fmt.Sprintf("engine: crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

// FairnessHash returns the hex SHA-256 digest of "serverSeed:clientSeed:nonce".
// Every derivation below reads a prefix of this digest, so a player holding
// the revealed server seed can recompute any historical outcome from it.
func FairnessHash(serverSeed, clientSeed string, nonce uint64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%d", serverSeed, clientSeed, nonce))
	return hex.EncodeToString(sum[:])
}

// HashSeed returns the SHA-256 commitment for a server seed, safe to
// publish before the seed itself is revealed.
func HashSeed(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

func hexPrefix(h string, width int) uint64 {
	n, err := strconv.ParseUint(h[:width], 16, 64)
	if err != nil {
		// The input is our own hex digest; this cannot fail.
		panic(fmt.Sprintf("engine: bad digest prefix %q: %v", h[:width], err))
	}
	return n
}

// DeriveInt derives a deterministic integer in [1, max] from the seed triple.
func DeriveInt(serverSeed, clientSeed string, nonce uint64, max int) int {
	if max < 1 {
		panic(fmt.Sprintf("engine: DeriveInt max must be >= 1, got %d", max))
	}
	h := FairnessHash(serverSeed, clientSeed, nonce)
	return int(hexPrefix(h, intHexWidth)%uint64(max)) + 1
}

// DeriveFloat derives a deterministic float in [0, 1) from the seed triple.
func DeriveFloat(serverSeed, clientSeed string, nonce uint64) float64 {
	h := FairnessHash(serverSeed, clientSeed, nonce)
	return float64(hexPrefix(h, floatHexWidth)) / floatDenominator
}

// distinctSetAttemptFactor bounds the rejection-sampling loop in
// DeriveDistinctSet. Even drawing count == max values the expected number
// of attempts is max*H(max) (coupon collector), so this multiple can only
// trip on a broken digest.
const distinctSetAttemptFactor = 64

// DeriveDistinctSet derives count distinct integers in [1, max], in draw
// order. Each attempt consumes one nonce starting at nonce, so callers
// deriving several independent sets from one seed pair must space their
// base nonces by at least MaxNonceSpan(count, max).
func DeriveDistinctSet(serverSeed, clientSeed string, nonce uint64, count, max int) ([]int, error) {
	if count < 0 || count > max {
		return nil, fmt.Errorf("engine: cannot draw %d distinct values from [1,%d]", count, max)
	}

	seen := make(map[int]bool, count)
	out := make([]int, 0, count)
	maxAttempts := MaxNonceSpan(count, max)

	for attempt := 0; len(out) < count; attempt++ {
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("engine: distinct set not filled after %d attempts (count=%d max=%d)", maxAttempts, count, max)
		}
		v := DeriveInt(serverSeed, clientSeed, nonce+uint64(attempt), max)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

// MaxNonceSpan reports the largest number of nonces DeriveDistinctSet may
// consume for the given parameters.
func MaxNonceSpan(count, max int) int {
	span := count * distinctSetAttemptFactor
	if span < max {
		span = max
	}
	return span
}
