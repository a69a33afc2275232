package agent

import (
	"sync"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

// Device describes the runtime the agent is embedded in.
type Device struct {
	Platform string
	Model    string

	// Version is the runtime version, used to gate commands that older
	// runtimes do not support.
	Version string
}

// App is the hook set an app runtime exposes to remote commands.
type App interface {
	Reload()
	ToggleDevToolbar()

	// UITree returns a printable representation of the widget tree.
	UITree() string
}

// Store is a string key-value store of the device, such as localStorage.
type Store interface {
	Items() map[string]string
	Replace(items map[string]string)
	Clear()
}

// MemoryStore is an in-memory Store. It also offers the item accessors of
// the web storage API so it can back a script-visible localStorage.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

// GetItem returns the value stored for key.
func (s *MemoryStore) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// SetItem stores value under key.
func (s *MemoryStore) SetItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// RemoveItem deletes key.
func (s *MemoryStore) RemoveItem(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Items returns a copy of all entries.
func (s *MemoryStore) Items() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// Replace discards all entries and stores a copy of items.
func (s *MemoryStore) Replace(items map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]string, len(items))
	for k, v := range items {
		s.items[k] = v
	}
}

// Clear removes all entries.
func (s *MemoryStore) Clear() {
	s.Replace(nil)
}

// hasSecureStorage reports whether the platform keeps a separate secure
// store that takes part in storage transfer.
func hasSecureStorage(platform string) bool {
	return platform == protocol.PlatformIOS
}
