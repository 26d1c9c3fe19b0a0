package crypto

import (
	"strings"
	"testing"
)

const testKey = "3132333435363738393031323334353637383930313233343536373839303132"

func TestEncryptDecrypt(t *testing.T) {
	e, err := NewEncryptor(testKey)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}

	plaintext := "super-secret-password"
	encrypted, err := e.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if encrypted == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := e.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestNewEncryptorRejectsBadKeys(t *testing.T) {
	if _, err := NewEncryptor("not-hex"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	if _, err := NewEncryptor(strings.Repeat("ab", 16)); err == nil {
		t.Fatal("expected error for 16-byte key")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	e, _ := NewEncryptor(testKey)
	encrypted, _ := e.Encrypt("payload")

	tampered := "A" + encrypted[1:]
	if _, err := e.Decrypt(tampered); err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}
}
