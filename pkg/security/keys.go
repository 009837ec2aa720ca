package security

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinSecretLen is the shortest master secret accepted.
const MinSecretLen = 32

var ErrWeakSecret = errors.New("secret must be at least 32 bytes")

// Keys holds the purpose-bound keys derived from the portal's master secret.
type Keys struct {
	Signing    []byte
	Encryption []byte
}

// DeriveKeys expands one master secret into independent signing and
// encryption keys with HKDF-SHA256.
func DeriveKeys(secret []byte) (*Keys, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	signing, err := expand(secret, "adherence-portal session signing")
	if err != nil {
		return nil, err
	}
	encryption, err := expand(secret, "adherence-portal session encryption")
	if err != nil {
		return nil, err
	}
	return &Keys{Signing: signing, Encryption: encryption}, nil
}

func expand(secret []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}
