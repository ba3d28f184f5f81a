// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/knightcli/knight/internal/util"
)

// =============================================================================
// ENCRYPTION PARAMETERS
// =============================================================================

const (
	credKeySize   = 32 // AES-256
	credSaltSize  = 32
	credNonceSize = 12
	// PBKDF2-SHA-256 iteration count per current OWASP guidance.
	credIterations = 600000

	credFileName = "credentials.enc"
	saltFileName = "credentials.salt"
	keyFileName  = "credentials.key"
)

// encryptedPrefix marks a stored blob: ENC:base64(nonce|ciphertext).
const encryptedPrefix = "ENC:"

var (
	// ErrDecryptFailed indicates a wrong key or tampered blob.
	ErrDecryptFailed = errors.New("credential decryption failed")
	// ErrNoCredential indicates the requested credential is not stored.
	ErrNoCredential = errors.New("credential not found")
)

// =============================================================================
// CREDENTIAL STORE
// =============================================================================

// Credentials stores platform tokens encrypted at rest with
// AES-256-GCM. The data key lives in a 0600 key file next to the
// blob and is derived through PBKDF2 so the stored file alone is
// useless without it.
type Credentials struct {
	mu     sync.RWMutex
	dir    string
	values map[string]string
	aead   cipher.AEAD
}

// OpenCredentials loads (or initializes) the credential store under
// dir, typically the configuration directory.
func OpenCredentials(dir string) (*Credentials, error) {
	c := &Credentials{
		dir:    dir,
		values: make(map[string]string),
	}
	if err := c.initCipher(); err != nil {
		return nil, err
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// initCipher derives the AEAD from the key material on disk, creating
// key and salt files on first use.
func (c *Credentials) initCipher() error {
	keyPath := filepath.Join(c.dir, keyFileName)
	saltPath := filepath.Join(c.dir, saltFileName)

	secret, err := os.ReadFile(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		secret = make([]byte, credKeySize)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return fmt.Errorf("cannot generate key material: %w", err)
		}
		if err := os.MkdirAll(c.dir, 0o700); err != nil {
			return fmt.Errorf("cannot create credential directory: %w", err)
		}
		if err := util.AtomicWriteFile(keyPath, secret, 0o600); err != nil {
			return fmt.Errorf("cannot store key material: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot read key material: %w", err)
	}

	salt, err := os.ReadFile(saltPath)
	if errors.Is(err, os.ErrNotExist) {
		salt = make([]byte, credSaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("cannot generate salt: %w", err)
		}
		if err := util.AtomicWriteFile(saltPath, salt, 0o600); err != nil {
			return fmt.Errorf("cannot store salt: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot read salt: %w", err)
	}

	key := pbkdf2.Key(secret, salt, credIterations, credKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("cannot initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("cannot initialize GCM: %w", err)
	}
	c.aead = aead
	return nil
}

// load reads and decrypts the stored blob if one exists.
func (c *Credentials) load() error {
	raw, err := os.ReadFile(filepath.Join(c.dir, credFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read credential store: %w", err)
	}

	plain, err := c.decrypt(strings.TrimSpace(string(raw)))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, &c.values); err != nil {
		return fmt.Errorf("credential store is corrupt: %w", err)
	}
	return nil
}

// save encrypts and persists the current values.
func (c *Credentials) save() error {
	plain, err := json.Marshal(c.values)
	if err != nil {
		return fmt.Errorf("cannot encode credentials: %w", err)
	}
	blob, err := c.encrypt(plain)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(filepath.Join(c.dir, credFileName), []byte(blob), 0o600)
}

func (c *Credentials) encrypt(plain []byte) (string, error) {
	nonce := make([]byte, credNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cannot generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Credentials) decrypt(blob string) ([]byte, error) {
	if !strings.HasPrefix(blob, encryptedPrefix) {
		return nil, ErrDecryptFailed
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, encryptedPrefix))
	if err != nil || len(sealed) < credNonceSize {
		return nil, ErrDecryptFailed
	}
	plain, err := c.aead.Open(nil, sealed[:credNonceSize], sealed[credNonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Get returns a stored credential.
func (c *Credentials) Get(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[name]
	if !ok || v == "" {
		return "", ErrNoCredential
	}
	return v, nil
}

// Set stores a credential and persists the store.
func (c *Credentials) Set(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
	return c.save()
}

// Delete removes a credential and persists the store.
func (c *Credentials) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[name]; !ok {
		return nil
	}
	delete(c.values, name)
	return c.save()
}

// Well-known credential names.
const (
	CredGitHubToken    = "github_token"
	CredGitHubUsername = "github_username"
)
