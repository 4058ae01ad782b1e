// Package credentials keeps the bearer token for the semantic classifier
// service in ~/.meetiq/credentials.yaml.
//
// The token is sealed with AES-256-GCM. The classifier address is bound in
// as additional data, so a file edited to point the token at another host
// no longer decrypts. The key comes from GetDefaultKeyProvider.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCredentialsDir  = ".meetiq"
	DefaultCredentialsFile = "credentials.yaml"

	// ConfigDirEnvVar relocates the credentials directory.
	ConfigDirEnvVar = "MEETIQ_CONFIG_DIR"

	// TokenEnvVar overrides the stored token.
	TokenEnvVar = "MEETIQ_SEMANTIC_TOKEN"

	fileVersion = 1
)

var (
	// ErrNoCredentials: nothing stored and no TokenEnvVar.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrExpiredToken: the stored token is past its expiry.
	ErrExpiredToken = errors.New("stored token has expired")
	// ErrEncryptionFailed: wrong key, tampered file, or a cipher failure.
	ErrEncryptionFailed = errors.New("encryption failed")
)

// Credentials is a token for the semantic classifier service.
type Credentials struct {
	Token string
	// Address is the classifier this token is for; used when the config
	// does not name one.
	Address     string
	ExpiresAt   time.Time
	LastUpdated time.Time
	// Source is TokenEnvVar or the file the token was read from.
	Source string
}

// credentialsFile is the on-disk form.
type credentialsFile struct {
	Version     int       `yaml:"version"`
	Token       string    `yaml:"token"`
	Address     string    `yaml:"address,omitempty"`
	ExpiresAt   time.Time `yaml:"expires_at,omitempty"`
	LastUpdated time.Time `yaml:"last_updated"`
}

// Store reads and writes the credentials file in one directory.
type Store struct {
	dir         string
	key         []byte
	keyProvider KeyProvider
}

// NewStore opens the store in CredentialsDir with the default key provider.
func NewStore() (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, err
	}
	kp, err := GetDefaultKeyProvider(dir)
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}
	return NewStoreAt(dir, kp)
}

// NewStoreAt opens a store in dir using kp.
func NewStoreAt(dir string, kp KeyProvider) (*Store, error) {
	key, err := kp.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}
	return &Store{dir: dir, key: key, keyProvider: kp}, nil
}

// KeyDescription names where the encryption key lives.
func (s *Store) KeyDescription() string {
	return s.keyProvider.Description()
}

// CredentialsDir is $MEETIQ_CONFIG_DIR, or ~/.meetiq.
func CredentialsDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnvVar); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultCredentialsDir), nil
}

// CredentialsPath is the credentials file inside CredentialsDir.
func CredentialsPath() (string, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultCredentialsFile), nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, DefaultCredentialsFile)
}

// Save seals and writes creds, replacing the file atomically.
func (s *Store) Save(creds *Credentials) error {
	if creds.Token == "" {
		return errors.New("token is empty")
	}
	sealed, err := s.seal(creds.Token, creds.Address)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(&credentialsFile{
		Version:     fileVersion,
		Token:       sealed,
		Address:     creds.Address,
		ExpiresAt:   creds.ExpiresAt,
		LastUpdated: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".credentials-*.yaml")
	if err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint: errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path())
}

// Load reads and opens the stored token. It returns ErrNoCredentials when
// there is no file.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var f credentialsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path(), err)
	}
	if f.Version > fileVersion {
		return nil, fmt.Errorf("%s has version %d, this build reads up to %d", s.path(), f.Version, fileVersion)
	}
	if f.Token == "" {
		return nil, ErrNoCredentials
	}
	token, err := s.open(f.Token, f.Address)
	if err != nil {
		return nil, err
	}
	return &Credentials{
		Token:       token,
		Address:     f.Address,
		ExpiresAt:   f.ExpiresAt,
		LastUpdated: f.LastUpdated,
		Source:      s.path(),
	}, nil
}

// Delete removes the file. Deleting nothing is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

// Exists reports whether a credentials file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path())
	return err == nil
}

// GetActiveCredential returns the token to send: TokenEnvVar if set,
// otherwise the stored one unless it has expired.
func (s *Store) GetActiveCredential() (*Credentials, error) {
	if token := os.Getenv(TokenEnvVar); token != "" {
		return &Credentials{Token: token, Source: TokenEnvVar}, nil
	}
	creds, err := s.Load()
	if err != nil {
		return nil, err
	}
	if !creds.ExpiresAt.IsZero() && time.Now().After(creds.ExpiresAt) {
		return nil, ErrExpiredToken
	}
	return creds, nil
}

// ActiveToken is GetActiveCredential without opening a store when the env
// var is set or no file exists, so the CLI never needs a keyring in CI.
func ActiveToken() (*Credentials, error) {
	if token := os.Getenv(TokenEnvVar); token != "" {
		return &Credentials{Token: token, Source: TokenEnvVar}, nil
	}
	path, err := CredentialsPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrNoCredentials
	}
	store, err := NewStore()
	if err != nil {
		return nil, err
	}
	return store.GetActiveCredential()
}

func (s *Store) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return gcm, nil
}

func additionalData(address string) []byte {
	return []byte("meetiq-semantic-token\x00" + address)
}

// seal returns base64(nonce || ciphertext).
func (s *Store) seal(token, address string) (string, error) {
	gcm, err := s.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrEncryptionFailed, err)
	}
	out := gcm.Seal(nonce, nonce, []byte(token), additionalData(address))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Store) open(sealed, address string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: token is not base64", ErrEncryptionFailed)
	}
	gcm, err := s.aead()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: token too short", ErrEncryptionFailed)
	}
	nonce, ct := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, additionalData(address))
	if err != nil {
		return "", fmt.Errorf("%w: wrong key or modified file", ErrEncryptionFailed)
	}
	return string(plain), nil
}

// MaskToken shows the first and last eight characters of long tokens and
// stars out short ones.
func MaskToken(token string) string {
	if len(token) <= 20 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + token[len(token)-8:]
}

// FormatExpiry renders the time left on a token.
func FormatExpiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "never"
	}
	left := time.Until(expiresAt)
	switch {
	case left < 0:
		return "expired"
	case left < time.Hour:
		return fmt.Sprintf("%d minutes", int(left.Minutes()))
	case left < 24*time.Hour:
		return fmt.Sprintf("%d hours", int(left.Hours()))
	default:
		return fmt.Sprintf("%d days", int(left.Hours()/24))
	}
}
