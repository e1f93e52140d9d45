// Package keyvault keeps a private key encrypted at rest. The symmetric key
// and the encrypted payload live in two separate files; losing either one
// makes the private key unrecoverable.
package keyvault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	DefaultKeyPath  = "secret.key"
	DefaultDataPath = "encrypted_data.txt"

	KeySize = chacha20poly1305.KeySize
)

// ErrDecryption is returned when a ciphertext fails authentication.
var ErrDecryption = errors.New("decryption failed")

// DecryptionError carries the reason a payload was rejected.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return ErrDecryption.Error() + ": " + e.Reason
}

func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryption
}

type Vault struct {
	KeyPath  string
	DataPath string
}

func New(keyPath, dataPath string) *Vault {
	if keyPath == "" {
		keyPath = DefaultKeyPath
	}
	if dataPath == "" {
		dataPath = DefaultDataPath
	}
	return &Vault{KeyPath: keyPath, DataPath: dataPath}
}

// LoadOrCreateKey returns the key stored at KeyPath, generating and
// persisting a fresh one on first use.
func (v *Vault) LoadOrCreateKey() ([]byte, error) {
	key, err := v.loadKey()
	if errors.Is(err, os.ErrNotExist) {
		return v.generateKey()
	}
	return key, err
}

// loadKey reads KeyPath without ever creating it.
func (v *Vault) loadKey() ([]byte, error) {
	raw, err := os.ReadFile(v.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", v.KeyPath, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key file %s holds %d bytes, want %d", v.KeyPath, len(key), KeySize)
	}
	return key, nil
}

func (v *Vault) generateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key) + "\n"
	if err := writeFile(v.KeyPath, []byte(encoded)); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

// SavePrivateKey encrypts plaintext and overwrites DataPath.
func (v *Vault) SavePrivateKey(plaintext []byte) error {
	key, err := v.LoadOrCreateKey()
	if err != nil {
		return err
	}
	sealed, err := Encrypt(plaintext, key)
	if err != nil {
		return err
	}
	if err := writeFile(v.DataPath, sealed); err != nil {
		return fmt.Errorf("write encrypted key: %w", err)
	}
	return nil
}

// LoadPrivateKey decrypts DataPath with the stored key. A missing data or
// key file yields an error matching os.ErrNotExist; neither file is created.
func (v *Vault) LoadPrivateKey() ([]byte, error) {
	sealed, err := os.ReadFile(v.DataPath)
	if err != nil {
		return nil, fmt.Errorf("read encrypted key: %w", err)
	}
	key, err := v.loadKey()
	if err != nil {
		return nil, err
	}
	return Decrypt(sealed, key)
}

// Encrypt seals plaintext with XChaCha20-Poly1305. The random nonce is
// prepended to the output.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func Decrypt(ciphertext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, &DecryptionError{Reason: err.Error()}
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, &DecryptionError{Reason: "ciphertext too short"}
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &DecryptionError{Reason: "authentication failed"}
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}
