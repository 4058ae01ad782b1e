package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

// Environment variables consulted by GetDefaultKeyProvider.
const (
	EncryptionKeyEnvVar = "MEETIQ_ENCRYPTION_KEY"
	PassphraseEnvVar    = "MEETIQ_PASSPHRASE"
)

const (
	keyringService = "meetiq"
	keyringAccount = "semantic-token-key"
	saltFile       = "credentials.salt"

	// keyLength is an AES-256 key.
	keyLength  = 32
	saltLength = 16
)

// Argon2id cost for passphrase keys; RFC 9106 second recommended option.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// ErrKeyringUnavailable is returned when no system keyring can be reached,
// typically on headless Linux.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// KeyProvider supplies the key that encrypts the stored token.
type KeyProvider interface {
	// GetKey returns a 32-byte key, creating one if the backend allows it.
	GetKey() ([]byte, error)
	// Description names the backend for `meetiq auth status`.
	Description() string
}

// GetDefaultKeyProvider picks the key source: an explicit hex key in
// MEETIQ_ENCRYPTION_KEY, then a key stretched from MEETIQ_PASSPHRASE with a
// salt kept in dir, then the system keyring.
func GetDefaultKeyProvider(dir string) (KeyProvider, error) {
	switch {
	case os.Getenv(EncryptionKeyEnvVar) != "":
		return NewEnvKeyProvider(EncryptionKeyEnvVar), nil

	case os.Getenv(PassphraseEnvVar) != "":
		salt, err := loadOrCreateSalt(dir)
		if err != nil {
			return nil, err
		}
		return NewPassphraseKeyProvider(os.Getenv(PassphraseEnvVar), salt), nil
	}

	p := NewKeyringKeyProvider()
	if _, err := p.GetKey(); err != nil {
		if errors.Is(err, ErrKeyringUnavailable) {
			return nil, fmt.Errorf("%w; set %s or %s instead", err, EncryptionKeyEnvVar, PassphraseEnvVar)
		}
		return nil, err
	}
	return p, nil
}

func decodeKey(s, source string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key in %s is not hex: %w", source, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("key in %s is %d bytes, want %d", source, len(key), keyLength)
	}
	return key, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// KeyringKeyProvider keeps a random key in the OS keyring, creating it on
// first use.
type KeyringKeyProvider struct {
	mu sync.Mutex
}

// NewKeyringKeyProvider returns a keyring-backed provider.
func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{}
}

// GetKey implements KeyProvider. A missing or malformed entry is replaced.
func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, err := keyring.Get(keyringService, keyringAccount)
	switch {
	case err == nil:
		if key, decErr := decodeKey(stored, "keyring"); decErr == nil {
			return key, nil
		}
	case !errors.Is(err, keyring.ErrNotFound):
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	key, err := randomBytes(keyLength)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringAccount, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

// Description implements KeyProvider.
func (p *KeyringKeyProvider) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "Secret Service keyring"
	}
}

// PassphraseKeyProvider derives the key from a passphrase with Argon2id.
type PassphraseKeyProvider struct {
	passphrase string
	salt       []byte
}

// NewPassphraseKeyProvider returns a provider for passphrase and salt. The
// same pair always yields the same key.
func NewPassphraseKeyProvider(passphrase string, salt []byte) *PassphraseKeyProvider {
	return &PassphraseKeyProvider{passphrase: passphrase, salt: salt}
}

// GetKey implements KeyProvider.
func (p *PassphraseKeyProvider) GetKey() ([]byte, error) {
	if p.passphrase == "" {
		return nil, errors.New("passphrase is empty")
	}
	if len(p.salt) == 0 {
		return nil, errors.New("salt is empty")
	}
	return argon2.IDKey([]byte(p.passphrase), p.salt, argon2Time, argon2Memory, argon2Threads, keyLength), nil
}

// Description implements KeyProvider.
func (p *PassphraseKeyProvider) Description() string {
	return "Passphrase-derived key (Argon2id, " + PassphraseEnvVar + ")"
}

// GenerateSalt returns a fresh random salt.
func GenerateSalt() ([]byte, error) {
	salt, err := randomBytes(saltLength)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// EnvKeyProvider reads a hex key from an environment variable. Used in CI
// and tests where no keyring exists.
type EnvKeyProvider struct {
	envVar string
}

// NewEnvKeyProvider returns a provider reading envVar.
func NewEnvKeyProvider(envVar string) *EnvKeyProvider {
	return &EnvKeyProvider{envVar: envVar}
}

// GetKey implements KeyProvider.
func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	v := os.Getenv(p.envVar)
	if v == "" {
		return nil, fmt.Errorf("%s is not set", p.envVar)
	}
	return decodeKey(v, p.envVar)
}

// Description implements KeyProvider.
func (p *EnvKeyProvider) Description() string {
	return "Environment variable (" + p.envVar + ")"
}

// loadOrCreateSalt reads the hex salt beside the credentials file, writing a
// new one on first use.
func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		salt, decErr := hex.DecodeString(string(data))
		if decErr != nil || len(salt) == 0 {
			return nil, fmt.Errorf("corrupt salt in %s", path)
		}
		return salt, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading salt: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(salt)), 0o600); err != nil {
		return nil, fmt.Errorf("writing salt: %w", err)
	}
	return salt, nil
}
