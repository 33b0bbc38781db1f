package crypto

import (
	"encoding/base64"
	"testing"
)

func TestECDHSymmetry(t *testing.T) {
	aPriv, aPub, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate A: %v", err)
	}
	bPriv, bPub, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate B: %v", err)
	}

	sharedA, err := DeriveShared(aPriv, bPub)
	if err != nil {
		t.Fatalf("derive A: %v", err)
	}
	sharedB, err := DeriveShared(bPriv, aPub)
	if err != nil {
		t.Fatalf("derive B: %v", err)
	}

	if sharedA != sharedB {
		t.Fatalf("shared secrets differ: %q != %q", sharedA, sharedB)
	}

	raw, err := base64.StdEncoding.DecodeString(sharedA)
	if err != nil {
		t.Fatalf("decode shared: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("shared secret length = %d, want 32", len(raw))
	}
	if len(sharedA) != 44 {
		t.Fatalf("shared secret base64 length = %d, want 44", len(sharedA))
	}
}

func TestCryptoRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	keyB64 := base64.StdEncoding.EncodeToString(key)

	cases := []string{
		"",
		"a",
		"exactly16bytes!!",
		"hello, world! this spans more than one AES block.",
		"日本語のテキスト",
	}

	for _, plaintext := range cases {
		ciphertext, err := Encrypt(keyB64, plaintext)
		if err != nil {
			t.Fatalf("encrypt(%q): %v", plaintext, err)
		}
		decrypted, err := Decrypt(keyB64, ciphertext)
		if err != nil {
			t.Fatalf("decrypt(%q): %v", plaintext, err)
		}
		if decrypted != plaintext {
			t.Fatalf("round trip mismatch: got %q, want %q", decrypted, plaintext)
		}
	}
}

func TestDecryptBadKeyLength(t *testing.T) {
	shortKey := base64.StdEncoding.EncodeToString([]byte("tooshort"))
	if _, err := Encrypt(shortKey, "x"); err != ErrBadKey {
		t.Fatalf("Encrypt with short key: got %v, want ErrBadKey", err)
	}
	if _, err := Decrypt(shortKey, "AAAA"); err != ErrBadKey {
		t.Fatalf("Decrypt with short key: got %v, want ErrBadKey", err)
	}
}

func TestDecryptBadPadding(t *testing.T) {
	key := make([]byte, 32)
	keyB64 := base64.StdEncoding.EncodeToString(key)

	ciphertext, err := Encrypt(keyB64, "abc")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(ciphertext)
	raw[len(raw)-1] = 0 // zero is never a valid pad length
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := Decrypt(keyB64, tampered); err != ErrBadPadding {
		t.Fatalf("decrypt tampered: got %v, want ErrBadPadding", err)
	}
}

func TestDecryptBadBase64(t *testing.T) {
	key := make([]byte, 32)
	keyB64 := base64.StdEncoding.EncodeToString(key)
	if _, err := Decrypt(keyB64, "not valid base64!!"); err != ErrBadBase64 {
		t.Fatalf("got %v, want ErrBadBase64", err)
	}
}
