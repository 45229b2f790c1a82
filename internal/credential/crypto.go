package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Decryptor decrypts credential payloads sealed with AES-256-GCM. The wire
// format is base64(nonce || ciphertext).
type Decryptor struct {
	aead cipher.AEAD
}

// NewDecryptor creates a decryptor from a 32-byte key.
func NewDecryptor(key []byte) (*Decryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("credential key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential gcm: %w", err)
	}
	return &Decryptor{aead: aead}, nil
}

// Decrypt opens an encrypted key payload. Any failure maps to ErrDecryption.
func (d *Decryptor) Decrypt(encrypted string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	ns := d.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("%w: payload too short", ErrDecryption)
	}
	plain, err := d.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plain), nil
}

// Encrypt seals a plaintext key. Used by the admin tooling and tests; the
// query path only ever decrypts.
func (d *Decryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, d.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := d.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
