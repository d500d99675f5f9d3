package vault

import "sync"

// MemoryStore is an in-process SecretStore used by tests and as a
// fallback when no OS keychain is reachable. Contents do not survive
// the process.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]string
}

// NewMemoryStore returns an empty in-memory secret store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: map[string]string{}}
}

func key(service, field string) string {
	return service + "\x00" + field
}

func (m *MemoryStore) Set(service, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key(service, field)] = value
	return nil
}

func (m *MemoryStore) Get(service, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.secrets[key(service, field)]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) Delete(service, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(service, field)
	if _, ok := m.secrets[k]; !ok {
		return ErrNotFound
	}
	delete(m.secrets, k)
	return nil
}
