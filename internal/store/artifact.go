// Package store provides the artifact and blob collaborator contracts the
// orchestration engine depends on, plus in-memory and file-backed
// implementations.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ArtifactStore is the durable step-output map. Keys follow the
// "step_{id}_{suffix}" scheme; writes are idempotent per key (retries
// overwrite). Implementations must be durable across scheduling ticks within
// a session.
type ArtifactStore interface {
	// Get returns the artifact for key, or ok=false when none exists.
	Get(key string) (json.RawMessage, bool, error)

	// Put writes the artifact for key, replacing any previous value.
	Put(key string, value json.RawMessage) error

	// Keys returns all stored keys in sorted order.
	Keys() ([]string, error)
}

// MemoryStore is an in-process ArtifactStore for a single session.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]json.RawMessage)}
}

// Get implements ArtifactStore.Get
func (m *MemoryStore) Get(key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.artifacts[key]
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

// Put implements ArtifactStore.Put
func (m *MemoryStore) Put(key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("artifact key is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[key] = append(json.RawMessage(nil), value...)
	return nil
}

// Keys implements ArtifactStore.Keys
func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.artifacts))
	for key := range m.artifacts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// FileStore persists artifacts as JSON files under a session directory,
// one file per artifact key.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-backed artifact store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Get implements ArtifactStore.Get
func (f *FileStore) Get(key string) (json.RawMessage, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return data, true, nil
}

// Put implements ArtifactStore.Put
func (f *FileStore) Put(key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("artifact key is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	// Write-then-rename so a crashed write never leaves a torn artifact.
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		return fmt.Errorf("commit artifact %s: %w", key, err)
	}
	return nil
}

// Keys implements ArtifactStore.Keys
func (f *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read artifact directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}
