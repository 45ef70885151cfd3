package crypto

import (
	"bytes"
	"errors"
	"testing"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func TestMessageCipherRoundTrip(t *testing.T) {
	c, err := NewMessageCipher(testKey)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	sealed, err := c.Seal("c1", "I'm stressed")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("stressed")) {
		t.Fatal("sealed bytes leak plaintext")
	}

	got, err := c.Open("c1", sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "I'm stressed" {
		t.Fatalf("unexpected plaintext %q", got)
	}
}

func TestMessageCipherBindsConversation(t *testing.T) {
	c, err := NewMessageCipher(testKey)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, err := c.Seal("c1", "hello")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := c.Open("c2", sealed); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestMessageCipherRejectsShortInput(t *testing.T) {
	c, err := NewMessageCipher(testKey)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	if _, err := c.Open("c1", []byte{1, 2}); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestNewAESGCMRejectsBadKey(t *testing.T) {
	if _, err := NewAESGCM([]byte("short")); !errors.Is(err, ErrInvalidKeySize) {
		t.Fatalf("expected ErrInvalidKeySize, got %v", err)
	}
}
