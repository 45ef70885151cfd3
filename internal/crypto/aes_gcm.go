package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKeySize       = errors.New("invalid AES key size (must be 16, 24, or 32 bytes)")
	ErrInvalidCiphertext    = errors.New("ciphertext too short to contain nonce")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

// NewAESGCM creates a new AES-GCM cipher block based on the key size.
func NewAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeySize, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}

// MessageCipher seals chat message bodies before they reach the store.
// The conversation id is bound as additional data, so a ciphertext copied
// into another conversation fails to open.
type MessageCipher struct {
	aead cipher.AEAD
}

// NewMessageCipher builds a MessageCipher from a raw AES key.
func NewMessageCipher(key []byte) (*MessageCipher, error) {
	aead, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return &MessageCipher{aead: aead}, nil
}

// Seal encrypts content and prepends the random nonce.
func (c *MessageCipher) Seal(conversationID, content string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(content), []byte(conversationID))
	return append(nonce, sealed...), nil
}

// Open reverses Seal.
func (c *MessageCipher) Open(conversationID string, data []byte) (string, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(conversationID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return string(plaintext), nil
}
