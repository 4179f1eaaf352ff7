package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultIterations = 100000
	vaultKeyLength  = 32
	vaultSaltLength = 32
)

// Vault encrypts secrets at rest with AES-256-GCM. The key is derived with
// PBKDF2 from a machine passphrase and a random salt stored in saltPath.
type Vault struct {
	saltPath string
	key      []byte
}

// OpenVault loads the salt at saltPath, creating one if none exists.
func OpenVault(saltPath string) (*Vault, error) {
	v := &Vault{saltPath: saltPath}
	if err := os.MkdirAll(filepath.Dir(saltPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	salt, err := v.readSalt()
	if os.IsNotExist(err) {
		salt, err = v.writeSalt()
	}
	if err != nil {
		return nil, err
	}

	v.key = pbkdf2.Key([]byte(machinePassphrase()), salt, vaultIterations, vaultKeyLength, sha256.New)
	return v, nil
}

func (v *Vault) readSalt() ([]byte, error) {
	data, err := os.ReadFile(v.saltPath)
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vault salt: %w", err)
	}
	return salt, nil
}

func (v *Vault) writeSalt() ([]byte, error) {
	salt := make([]byte, vaultSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate vault salt: %w", err)
	}
	if err := os.WriteFile(v.saltPath, []byte(hex.EncodeToString(salt)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write vault salt: %w", err)
	}
	return salt, nil
}

func machinePassphrase() string {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	return fmt.Sprintf("tachikoma-%s-%s", hostname, username)
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext). An empty
// plaintext seals to "".
func (v *Vault) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Open reverses Seal.
func (v *Vault) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, body := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
