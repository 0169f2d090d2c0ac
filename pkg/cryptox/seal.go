package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	sealKeyOnce sync.Once
	sealKey     []byte
	sealKeyPath string
)

// SetSealKeyPath configures where to load the sealing key from. Must be
// called before the first Seal/Open operation.
func SetSealKeyPath(path string) {
	sealKeyPath = path
}

// loadSealKey derives a 32-byte AES-256 key from either:
// 1. File specified by sealKeyPath (if set)
// 2. WARDEN_SEAL_KEY environment variable
// 3. An ephemeral random key (development only; sealed data will not
//    survive a restart)
func loadSealKey() ([]byte, error) {
	var keyMaterial []byte

	if sealKeyPath != "" {
		data, err := os.ReadFile(sealKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read seal key file: %w", err)
		}
		keyMaterial = data
	} else if envKey := os.Getenv("WARDEN_SEAL_KEY"); envKey != "" {
		keyMaterial = []byte(envKey)
	} else {
		keyMaterial = make([]byte, 32)
		if _, err := rand.Read(keyMaterial); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral seal key: %w", err)
		}
	}

	hash := sha256.Sum256(keyMaterial)
	return hash[:], nil
}

func getSealKey() ([]byte, error) {
	var err error
	sealKeyOnce.Do(func() {
		sealKey, err = loadSealKey()
	})
	if err != nil {
		return nil, err
	}
	return sealKey, nil
}

// SealSecret encrypts a secret (e.g. a TOTP shared secret) with AES-256-GCM.
// The output format is: [12-byte nonce][ciphertext][16-byte auth tag].
// A fresh random nonce is used per call.
func SealSecret(plaintext []byte) ([]byte, error) {
	key, err := getSealKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get seal key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenSecret decrypts data produced by SealSecret.
func OpenSecret(sealed []byte) ([]byte, error) {
	key, err := getSealKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get seal key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

// ResetSealKeyForTesting resets the seal key singleton. Tests only.
func ResetSealKeyForTesting() {
	sealKeyOnce = sync.Once{}
	sealKey = nil
}
