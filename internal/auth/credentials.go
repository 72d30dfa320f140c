package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const oneTimeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// OneTimeCredential is a freshly issued password in both forms.
type OneTimeCredential struct {
	Plaintext string
	Hash      string
}

// OneTimePasswordIssuer generates random passwords for new client accounts.
type OneTimePasswordIssuer struct {
	length int
	cost   int
}

// NewOneTimePasswordIssuer builds an issuer. Lengths below 12 are raised to 12.
func NewOneTimePasswordIssuer(length, bcryptCost int) *OneTimePasswordIssuer {
	if length < 12 {
		length = 12
	}
	return &OneTimePasswordIssuer{length: length, cost: bcryptCost}
}

// IssueOneTimePassword returns a random password and its bcrypt hash.
func (i *OneTimePasswordIssuer) IssueOneTimePassword() (OneTimeCredential, error) {
	max := big.NewInt(int64(len(oneTimeAlphabet)))
	buf := make([]byte, i.length)
	for idx := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return OneTimeCredential{}, fmt.Errorf("generate password: %w", err)
		}
		buf[idx] = oneTimeAlphabet[n.Int64()]
	}
	plaintext := string(buf)

	hash, err := HashPassword(plaintext, i.cost)
	if err != nil {
		return OneTimeCredential{}, fmt.Errorf("hash password: %w", err)
	}
	return OneTimeCredential{Plaintext: plaintext, Hash: hash}, nil
}
