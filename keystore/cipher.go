package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrAuthentication is returned by Cipher.Decrypt when the authentication tag
// does not verify: the ciphertext was produced under a different key, the IV
// does not match, or the stored bytes were tampered with.
var ErrAuthentication = errors.New("keystore: message authentication failed")

// Cipher performs authenticated encryption under a provider key. Encrypt
// generates a fresh random IV per call and returns it alongside the
// ciphertext; the authentication tag is appended to the ciphertext.
type Cipher interface {
	Encrypt(key Key, plaintext []byte) (iv, ciphertext []byte, err error)
	Decrypt(key Key, iv, ciphertext []byte) ([]byte, error)
}

// GCM is the production Cipher: AES-256-GCM with a 12-byte IV and a 128-bit
// tag, no additional authenticated data.
type GCM struct{}

// NewGCM returns the AES-GCM cipher.
func NewGCM() *GCM {
	return &GCM{}
}

func (g *GCM) aead(key Key) (cipher.AEAD, func(), error) {
	buf, err := key.material()
	if err != nil {
		return nil, nil, err
	}
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("failed to create cipher for alias %s: %w", key.Alias(), err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("failed to create GCM mode for alias %s: %w", key.Alias(), err)
	}
	return aead, buf.Destroy, nil
}

// Encrypt seals plaintext under key. The returned IV is always IVLen bytes;
// the ciphertext carries the TagLen-byte authentication tag at its end and is
// therefore never empty, even for empty plaintext.
func (g *GCM) Encrypt(key Key, plaintext []byte) ([]byte, []byte, error) {
	aead, done, err := g.aead(key)
	if err != nil {
		return nil, nil, err
	}
	defer done()

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	ciphertext := aead.Seal(nil, iv, plaintext, nil)
	return iv, ciphertext, nil
}

// Decrypt opens ciphertext under key, verifying the authentication tag.
func (g *GCM) Decrypt(key Key, iv, ciphertext []byte) ([]byte, error) {
	aead, done, err := g.aead(key)
	if err != nil {
		return nil, err
	}
	defer done()

	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("IV must be %d bytes, got %d: %w", aead.NonceSize(), len(iv), ErrAuthentication)
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		// crypto/cipher reports a generic open failure; everything that
		// goes wrong here means the record cannot be trusted.
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
