// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend provides payload storage backends.
// All backends implement types.BackendStorage interface.
package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/internaltools/credshare/pkg/types"
)

// ErrBlobNotFound is returned by Read when the key does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// Registry holds registered backend factories
var (
	registryMu sync.RWMutex
	registry   = make(map[types.StorageType]Factory)
)

// Factory creates a BackendStorage from config
type Factory func(cfg types.BackendConfig) (types.BackendStorage, error)

// Register adds a factory for a storage type
func Register(t types.StorageType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// New creates a BackendStorage from config
func New(cfg types.BackendConfig) (types.BackendStorage, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
	return f(cfg)
}

// Manager tracks the named backends of a process, e.g. the payload store and
// the access-log destination.
type Manager struct {
	mu       sync.RWMutex
	backends map[string]types.BackendStorage
}

// NewManager creates a backend manager
func NewManager() *Manager {
	return &Manager{
		backends: make(map[string]types.BackendStorage),
	}
}

// Add creates and registers a backend
func (m *Manager) Add(id string, cfg types.BackendConfig) (types.BackendStorage, error) {
	storage, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create backend %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.backends[id]; exists {
		old.Close()
	}

	m.backends[id] = storage
	return storage, nil
}

// Get retrieves a backend by ID
func (m *Manager) Get(id string) (types.BackendStorage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.backends[id]
	return b, ok
}

// List returns all backend IDs
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.backends))
	for id := range m.backends {
		ids = append(ids, id)
	}
	return ids
}

// Close closes all backends
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, b := range m.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend %s: %w", id, err))
		}
	}
	m.backends = make(map[string]types.BackendStorage)
	return errors.Join(errs...)
}
