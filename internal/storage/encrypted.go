package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Sealed objects are laid out as magic(8) + salt(16) + nonce(12) + ciphertext+tag.
const (
	gcmMagic     = "GCM3NCR0"
	saltSize     = 16
	nonceSize    = 12
	pbkdf2Rounds = 100000
	keySize      = 32
)

// ErrNotSealed is returned when stored bytes lack the sealed-object header.
var ErrNotSealed = errors.New("object is not encrypted")

// Encrypted seals objects with AES-GCM before handing them to the inner store.
// Each object gets its own salt, so the key is derived per object.
type Encrypted struct {
	inner      Store
	passphrase []byte
}

// NewEncrypted wraps inner. An empty passphrase returns inner unchanged.
func NewEncrypted(inner Store, passphrase string) Store {
	if passphrase == "" {
		return inner
	}
	return &Encrypted{inner: inner, passphrase: []byte(passphrase)}
}

func (e *Encrypted) Put(ctx context.Context, key string, data []byte) error {
	sealed, err := e.seal(data)
	if err != nil {
		return err
	}
	return e.inner.Put(ctx, key, sealed)
}

func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.open(sealed)
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

func (e *Encrypted) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, pbkdf2Rounds, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (e *Encrypted) seal(plain []byte) ([]byte, error) {
	header := make([]byte, len(gcmMagic)+saltSize+nonceSize)
	copy(header, gcmMagic)
	salt := header[len(gcmMagic) : len(gcmMagic)+saltSize]
	nonce := header[len(gcmMagic)+saltSize:]
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	aead, err := e.gcm(salt)
	if err != nil {
		return nil, err
	}
	return aead.Seal(header, nonce, plain, nil), nil
}

func (e *Encrypted) open(sealed []byte) ([]byte, error) {
	hdr := len(gcmMagic) + saltSize + nonceSize
	if len(sealed) < hdr+16 || string(sealed[:len(gcmMagic)]) != gcmMagic {
		return nil, ErrNotSealed
	}
	salt := sealed[len(gcmMagic) : len(gcmMagic)+saltSize]
	nonce := sealed[len(gcmMagic)+saltSize : hdr]
	aead, err := e.gcm(salt)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, sealed[hdr:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}
