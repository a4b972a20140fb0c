// Package pw stores the wallet password in an encrypted file so the service can start unattended.
//
// The file is a small JSON document {"salt", "nonce", "pw"} with hex encoded values. The key is derived from a fixed
// passphrase with scrypt and the password is sealed with a NaCl secretbox. This is not a strong protection, it only
// keeps the password out of plain sight until a keychain integration is available.
package pw

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters and sizes of the random values.
const (
	scryptN  = 1 << 14
	scryptR  = 8
	scryptP  = 1
	keyLen   = 32
	saltLen  = 32
	nonceLen = 24
)

// Errors returned.
var (
	ErrNoPassword = errors.New("password file not found")
	ErrDecrypt    = errors.New("cannot decrypt: wrong passphrase or corrupted data")
	ErrEmpty      = errors.New("password cannot be empty")
)

// File is the content of the password file.
type File struct {
	Salt  string `json:"salt"`
	Nonce string `json:"nonce"`
	Pw    string `json:"pw"`
}

// Key derives the secretbox key for passphrase and salt.
func Key(salt []byte, passphrase string) (*[keyLen]byte, error) {
	k, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	var key [keyLen]byte
	copy(key[:], k)
	return &key, nil
}

// Seal encrypts data with a key derived from passphrase and returns the hex encoded salt, nonce and box.
func Seal(data []byte, passphrase string) (salt, nonce, box string, err error) {
	s := make([]byte, saltLen)
	if _, err = io.ReadFull(rand.Reader, s); err != nil {
		return "", "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	var n [nonceLen]byte
	if _, err = io.ReadFull(rand.Reader, n[:]); err != nil {
		return "", "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	key, err := Key(s, passphrase)
	if err != nil {
		return "", "", "", err
	}
	b := secretbox.Seal(nil, data, &n, key)
	return hex.EncodeToString(s), hex.EncodeToString(n[:]), hex.EncodeToString(b), nil
}

// Open reverses Seal.
func Open(salt, nonce, box, passphrase string) ([]byte, error) {
	s, err := hex.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	n, err := hex.DecodeString(nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	if len(n) != nonceLen {
		return nil, fmt.Errorf("failed to decode nonce: %d bytes", len(n))
	}
	b, err := hex.DecodeString(box)
	if err != nil {
		return nil, fmt.Errorf("failed to decode box: %w", err)
	}
	key, err := Key(s, passphrase)
	if err != nil {
		return nil, err
	}
	var nn [nonceLen]byte
	copy(nn[:], n)
	data, ok := secretbox.Open(nil, b, &nn, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return data, nil
}

// Exists reports whether the password file is present.
func Exists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// Load reads filename and returns the decrypted password.
func Load(filename, passphrase string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNoPassword, filename)
		}
		return "", fmt.Errorf("failed to read password file: %w", err)
	}
	var f File
	if err = json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("failed to unmarshal password file: %w", err)
	}
	p, err := Open(f.Salt, f.Nonce, f.Pw, passphrase)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Save encrypts pw and writes it to filename, replacing any previous password.
func Save(filename, passphrase, pw string) error {
	if pw == "" {
		return ErrEmpty
	}
	var f File
	var err error
	if f.Salt, f.Nonce, f.Pw, err = Seal([]byte(pw), passphrase); err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal password file: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(filename), 0o700); err != nil {
		return fmt.Errorf("failed to create password dir: %w", err)
	}
	tmp := filename + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write password file: %w", err)
	}
	if err = os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("failed to write password file: %w", err)
	}
	return nil
}
