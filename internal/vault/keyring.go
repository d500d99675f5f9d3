package vault

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// KeyringStore backs the vault with the OS keychain (Secret Service on
// Linux, Keychain on macOS, Credential Manager on Windows).
type KeyringStore struct{}

// NewKeyringStore returns the OS keychain backend.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (k *KeyringStore) Set(service, field, value string) error {
	return keyring.Set(service, field, value)
}

func (k *KeyringStore) Get(service, field string) (string, error) {
	value, err := keyring.Get(service, field)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return value, err
}

func (k *KeyringStore) Delete(service, field string) error {
	err := keyring.Delete(service, field)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
