// Package tokencrypt encrypts JSON claim sets into opaque, tamper-evident
// token strings using AES-256-GCM. The same codec backs both access and
// session tokens; only the key differs.
package tokencrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	nonceSize = 16
	tagSize   = 16
	keySize   = 32
)

var (
	// ErrMalformedToken means the input is not valid base64 or is too short
	// to contain a nonce and tag. Returned before any decryption happens.
	ErrMalformedToken = errors.New("malformed token")
	// ErrTamperedToken means the GCM authentication tag check failed. The
	// plaintext is never interpreted in this case.
	ErrTamperedToken = errors.New("tampered token")
	// ErrCorruptToken means decryption succeeded but the plaintext is not
	// valid JSON.
	ErrCorruptToken = errors.New("corrupt token")
)

// DeriveKey derives a 256-bit key from an arbitrary-length secret via
// HKDF-SHA256. The purpose label keeps the access and session keys distinct
// even if the configured secrets happen to be equal.
func DeriveKey(secret, purpose string) []byte {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// Only reachable if HKDF is asked for more output than it can
		// produce, which a 32-byte read never does.
		panic(err)
	}
	return key
}

// Encode marshals claims to JSON, seals them with AES-256-GCM and returns
// base64(nonce || tag || ciphertext).
func Encode(claims any, key []byte) (string, error) {
	plaintext, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	sealed, err := encrypt(key, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode reverses Encode into out. It fails with ErrMalformedToken,
// ErrTamperedToken or ErrCorruptToken depending on where validation breaks.
func Decode(token string, key []byte, out any) error {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil || len(data) < nonceSize+tagSize {
		return ErrMalformedToken
	}
	plaintext, err := decrypt(key, data)
	if err != nil {
		return ErrTamperedToken
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return ErrCorruptToken
	}
	return nil
}

// StructureCheck reports whether token has the shape of an encoded token
// (decodable base64, long enough for nonce and tag) without decrypting it.
func StructureCheck(token string) bool {
	data, err := base64.StdEncoding.DecodeString(token)
	return err == nil && len(data) >= nonceSize+tagSize
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	// Seal appends the tag after the ciphertext; the wire layout wants
	// nonce || tag || ciphertext, so the tag moves to the front.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

func decrypt(key, data []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := data[:nonceSize]
	tag := data[nonceSize : nonceSize+tagSize]
	ct := data[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	return aead.Open(nil, nonce, sealed, nil)
}
