package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	tokenLength = 48
	codeLength  = 6
)

// String returns n random characters from the alphanumeric alphabet,
// drawn from crypto/rand.
func String(n int) (string, error) {
	const op = "random.String"

	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))

	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		buf[i] = alphabet[idx.Int64()]
	}

	return string(buf), nil
}

// Token returns a plaintext bearer token.
func Token() (string, error) {
	return String(tokenLength)
}

// Code returns a 6-character email verification code.
func Code() (string, error) {
	return String(codeLength)
}
