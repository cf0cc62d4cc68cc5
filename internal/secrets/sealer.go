// Package secrets seals access credentials before they are written to the database.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// prefix marks sealed values so legacy plain-text credentials still open.
const prefix = "sealed:v1:"

// Sealer encrypts short secrets with AES-GCM.
// Not a replacement for OS keychains but avoids plain-text credentials in the database.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a key from passphrase. An empty passphrase falls back to a
// per-user key, which only obfuscates.
func NewSealer(passphrase string) (*Sealer, error) {
	if strings.TrimSpace(passphrase) == "" {
		passphrase = fmt.Sprintf("ledgersync-%s-%s", runtime.GOOS, os.Getenv("USER"))
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plain and returns a printable token.
func (s *Sealer) Seal(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("nothing to seal")
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged.
func (s *Sealer) Open(token string) (string, error) {
	if !strings.HasPrefix(token, prefix) {
		return token, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, prefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, body := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	pt, err := s.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(pt), nil
}
