package common

import "crypto/rand"

// GenerateRandByteArray returns size bytes read from crypto/rand. It panics
// if the system random source fails, which leaves nothing safe to do.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic("common: crypto/rand failed: " + err.Error())
	}
	return b
}

// WipeByteArray overwrites the contents of b with zeros. Nil is allowed.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
