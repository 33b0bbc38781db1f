// Package crypto implements the login handshake's cryptographic primitives:
// ECDH key agreement on NIST P-256 and AES-256 block encryption of short
// passcode payloads.
//
// The block cipher mode here is deliberately ECB with a repeated-byte
// padding scheme, not an AEAD. The passcode is short and verified by exact
// equality after decryption, so a streaming authenticated mode buys nothing;
// wire compatibility with the existing handshake requires this exact
// construction.
package crypto

import (
	"crypto/aes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrBadKey      = errors.New("crypto: key must be 32 bytes")
	ErrBadBase64   = errors.New("crypto: invalid base64")
	ErrBadPadding  = errors.New("crypto: invalid padding")
	ErrBadBlockLen = errors.New("crypto: ciphertext not a multiple of the block size")
)

// GenerateKeypair produces a fresh NIST P-256 keypair. The private half is
// encoded as raw scalar bytes (analogous to SEC1 DER for this curve's fixed
// field width) and the public half as an uncompressed SEC1 point; both are
// base64-encoded for storage and transport.
func GenerateKeypair() (privateB64, publicB64 string, err error) {
	curve := ecdh.P256()
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	privateB64 = base64.StdEncoding.EncodeToString(priv.Bytes())
	publicB64 = base64.StdEncoding.EncodeToString(priv.PublicKey().Bytes())
	return privateB64, publicB64, nil
}

// DeriveShared computes the ECDH shared secret between a base64 private key
// and a base64 public key, returning it base64-encoded. By curve symmetry,
// DeriveShared(a, B) == DeriveShared(b, A) for keypairs (a,A) and (b,B).
func DeriveShared(privateB64, publicB64 string) (string, error) {
	privBytes, err := base64.StdEncoding.DecodeString(privateB64)
	if err != nil {
		return "", fmt.Errorf("%w: private key", ErrBadBase64)
	}
	pubBytes, err := base64.StdEncoding.DecodeString(publicB64)
	if err != nil {
		return "", fmt.Errorf("%w: public key", ErrBadBase64)
	}

	curve := ecdh.P256()
	priv, err := curve.NewPrivateKey(privBytes)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	pub, err := curve.NewPublicKey(pubBytes)
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}

	shared, err := priv.ECDH(pub)
	if err != nil {
		return "", fmt.Errorf("ecdh: %w", err)
	}
	return base64.StdEncoding.EncodeToString(shared), nil
}

// Encrypt encrypts plaintext with AES-256 in ECB mode, padding to a 16-byte
// boundary. The padding byte value equals the pad length (1-16); a plaintext
// that is already block-aligned still receives a full block of padding, so
// decryption can always recover the pad length unambiguously.
func Encrypt(keyB64, plaintext string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return "", fmt.Errorf("%w: key", ErrBadBase64)
	}
	if len(key) != 32 {
		return "", ErrBadKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}

	data := []byte(plaintext)
	padLen := aes.BlockSize - (len(data) % aes.BlockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt inverts Encrypt.
func Decrypt(keyB64, ciphertextB64 string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return "", fmt.Errorf("%w: key", ErrBadBase64)
	}
	if len(key) != 32 {
		return "", ErrBadKey
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext", ErrBadBase64)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrBadBlockLen
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}

	padLen := int(out[len(out)-1])
	if padLen < 1 || padLen > aes.BlockSize || padLen > len(out) {
		return "", ErrBadPadding
	}
	for _, b := range out[len(out)-padLen:] {
		if int(b) != padLen {
			return "", ErrBadPadding
		}
	}

	return string(out[:len(out)-padLen]), nil
}
