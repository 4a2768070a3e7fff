// Package token implements the verification-token codec: symmetric
// encryption of a session descriptor into an opaque, tamper-evident
// credential and back.
//
// Wire format is "ivHex:cipherHex" where iv is a fresh random 16-byte
// value per encryption and cipher is the AES-256-CBC encryption of the
// plaintext under a key derived once from the shared secret.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrInvalidToken is the single failure surfaced by Decrypt. Malformed
// tokens, bad hex, wrong keys, and padding failures all collapse into it
// so callers never learn why decryption failed.
var ErrInvalidToken = errors.New("token: invalid token")

const (
	keyLen = 32 // AES-256
	ivLen  = aes.BlockSize

	// kdfSalt is fixed so the authenticator and the verifier derive the
	// same key from the same shared secret with no extra coordination.
	kdfSalt = "gateward-token-v1"
)

// Codec encrypts and decrypts verification tokens. The key is derived
// once at construction; Encrypt and Decrypt are pure and safe for
// concurrent use.
type Codec struct {
	key []byte
}

// NewCodec derives the AES-256 key from secret via scrypt with a fixed
// salt. The same secret always yields the same key.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: empty secret")
	}
	key, err := scrypt.Key([]byte(secret), []byte(kdfSalt), 1<<15, 8, 1, keyLen)
	if err != nil {
		return nil, err
	}
	return &Codec{key: key}, nil
}

// Encrypt returns hex(iv) + ":" + hex(ciphertext) with a fresh random IV,
// so two encryptions of identical plaintext differ.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext))
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Every failure mode returns ErrInvalidToken.
func (c *Codec) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivLen {
		return "", ErrInvalidToken
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrInvalidToken
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", ErrInvalidToken
	}

	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	pt, ok := unpad(pt)
	if !ok {
		return "", ErrInvalidToken
	}
	return string(pt), nil
}

// pad applies PKCS#7 padding up to the AES block size.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// unpad strips PKCS#7 padding, rejecting anything inconsistent.
func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
