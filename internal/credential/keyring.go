// Package credential keeps the mailbox password in the system keyring so
// it never has to be written to the configuration file.
package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/bcfeed/internal/model"
)

const serviceName = "bcfeed"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = errors.New("credential not found")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join("~", ".config", "bcfeed", "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("bcfeed-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Store reads and writes mailbox passwords.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return &Store{ring: ring}, nil
}

// New returns a Store backed by ring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// passwordKey is the keyring key holding the password of an IMAP account.
func passwordKey(username string) string {
	return "imap:" + username
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "bcfeed " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// SetPassword stores the IMAP password for username.
func (s *Store) SetPassword(username, password string) error {
	return s.Set(passwordKey(username), password)
}

// DeletePassword forgets the IMAP password for username.
func (s *Store) DeletePassword(username string) error {
	return s.Delete(passwordKey(username))
}

// ResolvePassword fills cfg.Password from the keyring when the
// configuration and environment left it empty.
func (s *Store) ResolvePassword(cfg *model.IMAPConfig) error {
	if cfg.Password != "" {
		return nil
	}
	if cfg.Username == "" {
		return errors.New("no IMAP username configured")
	}

	password, err := s.Get(passwordKey(cfg.Username))
	if err != nil {
		return fmt.Errorf("no password for %s: %w", cfg.Username, err)
	}
	cfg.Password = password
	return nil
}
