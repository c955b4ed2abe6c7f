// Package crypt encrypts note content before it leaves the device.
//
// The stores never look inside content; they carry opaque bytes and an
// encrypted flag. Key management is up to the caller.
package crypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrDecrypt is returned for a wrong key or tampered ciphertext.
	ErrDecrypt = errors.New("crypt: decryption failed")
	// ErrEmptyKey is returned when no key material is given.
	ErrEmptyKey = errors.New("crypt: empty key")
)

const (
	saltSize = 16
	info     = "notelog content v1"
)

// Cipher encrypts and decrypts content with caller-supplied key material.
type Cipher interface {
	Encrypt(key, plaintext []byte) ([]byte, error)
	Decrypt(key, ciphertext []byte) ([]byte, error)
}

// XChaCha derives a per-message key from the key material with HKDF-SHA256
// and seals content with XChaCha20-Poly1305.
//
// Ciphertext layout: salt (16) | nonce (24) | sealed content.
type XChaCha struct{}

var _ Cipher = XChaCha{}

func (XChaCha) Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	header := make([]byte, saltSize+chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, header); err != nil {
		return nil, fmt.Errorf("crypt: random: %w", err)
	}
	salt, nonce := header[:saltSize], header[saltSize:]

	aead, err := newAEAD(key, salt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(header), len(header)+len(plaintext)+aead.Overhead())
	copy(out, header)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

func (XChaCha) Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	headerSize := saltSize + chacha20poly1305.NonceSizeX
	if len(ciphertext) < headerSize+chacha20poly1305.Overhead {
		return nil, ErrDecrypt
	}
	salt := ciphertext[:saltSize]
	nonce := ciphertext[saltSize:headerSize]

	aead, err := newAEAD(key, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext[headerSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newAEAD(key, salt []byte) (cipher.AEAD, error) {
	derived := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, salt, []byte(info)), derived); err != nil {
		return nil, fmt.Errorf("crypt: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("crypt: %w", err)
	}
	return aead, nil
}
