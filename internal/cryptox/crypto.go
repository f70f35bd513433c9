// Package cryptox is the client's crypto provider: argon2id key
// derivation from a user passphrase and AES-256-GCM payload encryption.
// The rest of the core treats item payloads as opaque ciphertext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/quillnotes/quill/internal/common"
	"golang.org/x/crypto/argon2"
)

// NonceSize is the AES-GCM nonce length in bytes. One fresh random
// nonce is generated per encryption and stored next to the ciphertext.
const NonceSize = 12

// KeySize is the master key length in bytes (AES-256).
const KeySize = 32

// SaltSize is the length of the per-user KDF salt in bytes.
const SaltSize = 16

// Params holds argon2id cost parameters. They are negotiated with the
// server at registration time and cached locally, so old accounts keep
// decrypting after defaults change.
type Params struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

// DefaultParams are the cost parameters used for new accounts.
var DefaultParams = Params{Time: 1, Memory: 64 * 1024, Threads: 4}

// DeriveMasterKey stretches a passphrase into a 32-byte master key.
func DeriveMasterKey(password, salt []byte, p Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, KeySize)
}

// MakeVerifier returns a value safe to store or send to the server for
// checking a derived key without revealing it.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// VerifyMasterKey compares a candidate key against a stored verifier in
// constant time.
func VerifyMasterKey(masterKey, verifier []byte) bool {
	candidate := MakeVerifier(masterKey)
	return subtle.ConstantTimeCompare(candidate, verifier) == 1
}

// GenerateSalt returns a fresh random KDF salt.
func GenerateSalt() ([]byte, error) {
	return randBytes(SaltSize)
}

// Encrypt seals plaintext with AES-256-GCM under key. The ciphertext
// carries the GCM authentication tag; the nonce is returned separately.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce, err = randBytes(NonceSize)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. A tag mismatch returns
// common.ErrAuthenticationFailed; callers must treat that as permanent,
// not as a transient fault.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

// EncryptJSON serializes v to JSON and encrypts the result.
func EncryptJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return Encrypt(plaintext, key)
}

// DecryptJSON decrypts ciphertext and unmarshals the plaintext into v.
func DecryptJSON(ciphertext, nonce, key []byte, v any) error {
	plaintext, err := Decrypt(ciphertext, nonce, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// Wipe overwrites the contents of b with zeros. Used to remove keys and
// passphrases from memory after use.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
