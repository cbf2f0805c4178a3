package cryptox

import (
	"crypto/sha256"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultIterations is the PBKDF2 iteration count used when none is given.
const DefaultIterations = 100000

// DeriveFromPassword derives a key with PBKDF2-HMAC-SHA256. The result is
// deterministic for the same password, salt and iteration count. A
// non-positive iterations value selects DefaultIterations.
func DeriveFromPassword(password, salt []byte, iterations int) (*Key, error) {
	if len(password) == 0 {
		return nil, common.NewValidationError("password", "must not be empty")
	}
	if len(salt) == 0 {
		return nil, common.NewValidationError("salt", "must not be empty")
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return keyOwning(pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)), nil
}

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}
