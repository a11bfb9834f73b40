package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/blake2b"
)

// rawTokenBytes gives 256 bits of entropy, double the floor the issuance
// contract requires.
const rawTokenBytes = 32

// NewTokenValue returns a fresh opaque credential value: URL-safe,
// fixed-length, carrying no decodable tenant or identity information.
// Used for both magic link tokens and refresh credentials.
func NewTokenValue() (string, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token value")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashTokenValue digests a raw value for at-rest storage. Values are high
// entropy random strings, so an unkeyed fast hash is the right tool; a
// work-factor hash would only add latency.
func HashTokenValue(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
