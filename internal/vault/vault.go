// Package vault stores HTTP Basic auth credentials for feeds in an
// external secret store instead of plaintext config files. Writes are
// refused for non-HTTPS feed URLs as defense in depth against
// credential leakage.
package vault

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// servicePrefix namespaces service names in the backing secret store.
const servicePrefix = "jinkies"

// Secret-store field names for the two halves of a credential pair.
const (
	fieldUsername = "username"
	fieldToken    = "token"
)

// ErrNotFound is returned by a SecretStore when no value exists for a
// service/field pair.
var ErrNotFound = errors.New("secret not found")

// PolicyError reports a refused credential operation: storing
// credentials for a non-HTTPS URL, or transmitting them over plain
// HTTP. It is always surfaced to the caller and never retried.
type PolicyError struct {
	URL    string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.URL)
}

// SecretStore is the capability interface over an external secret
// store. Any platform-appropriate backing satisfies it: the OS
// keychain, or an in-memory double for tests.
type SecretStore interface {
	Set(service, field, value string) error
	// Get returns ErrNotFound when no value exists.
	Get(service, field string) (string, error)
	// Delete is not required to be idempotent; the Vault handles absence.
	Delete(service, field string) error
}

// Credentials is a stored username/token pair.
type Credentials struct {
	Username string
	Token    string
}

// Vault stores and retrieves feed credentials through a SecretStore.
// It performs no in-process caching; every lookup hits the live store
// so credential edits take effect immediately.
type Vault struct {
	store SecretStore
}

// New returns a Vault backed by the given secret store.
func New(store SecretStore) *Vault {
	return &Vault{store: store}
}

func serviceName(feedURL string) string {
	return servicePrefix + ":" + feedURL
}

// Store saves credentials for a feed URL, overwriting any prior value.
// It fails with a *PolicyError if the URL is not HTTPS; the underlying
// store is never touched in that case.
func (v *Vault) Store(feedURL, username, token string) error {
	if !strings.HasPrefix(feedURL, "https://") {
		return &PolicyError{
			URL:    feedURL,
			Reason: "refusing to store credentials for non-HTTPS URL; credentials must only be sent over encrypted connections",
		}
	}
	service := serviceName(feedURL)
	if err := v.store.Set(service, fieldUsername, username); err != nil {
		return fmt.Errorf("store username: %w", err)
	}
	if err := v.store.Set(service, fieldToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	log.WithField("feed", feedURL).Debug("stored credentials")
	return nil
}

// Get retrieves the credentials for a feed URL. The second return is
// false when no usable pair exists; a partial pair (username without
// token or vice versa) is treated as absent, never as authenticated.
func (v *Vault) Get(feedURL string) (Credentials, bool, error) {
	service := serviceName(feedURL)
	username, err := v.store.Get(service, fieldUsername)
	if errors.Is(err, ErrNotFound) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, fmt.Errorf("read username: %w", err)
	}
	token, err := v.store.Get(service, fieldToken)
	if errors.Is(err, ErrNotFound) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, fmt.Errorf("read token: %w", err)
	}
	if username == "" || token == "" {
		return Credentials{}, false, nil
	}
	return Credentials{Username: username, Token: token}, true, nil
}

// Delete removes both credential fields for a feed URL. Absence of an
// existing entry is not an error.
func (v *Vault) Delete(feedURL string) error {
	service := serviceName(feedURL)
	for _, field := range []string{fieldUsername, fieldToken} {
		if err := v.store.Delete(service, field); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete %s: %w", field, err)
		}
	}
	log.WithField("feed", feedURL).Debug("deleted credentials")
	return nil
}
