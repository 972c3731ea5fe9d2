// Package credstore holds the locally cached identity state: the user snapshot
// and, for bearer deployments, the access token.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	KeyUser  = "user"
	KeyToken = "token"
)

// Store is the injected replacement for browser local storage.
// Writers are last-writer-wins and must be visible to the next Get.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Clear(keys ...string) error
}

// IdentityKeys are cleared on logout and on any 401.
var IdentityKeys = []string{KeyUser, KeyToken}

type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Clear(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// File persists values as one JSON object. Every mutation is written through
// before returning so a restart never observes a pre-operation value.
type File struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("missing cache path")
	}
	f := &File{path: path, values: map[string]string{}}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if len(b) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(b, &f.values); err != nil {
		// A corrupt cache is treated as empty; it is only a weak copy.
		f.values = map[string]string{}
	}
	return f, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.values[key]
	f.values[key] = value
	if err := f.flushLocked(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) Clear(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return f.flushLocked()
}

func (f *File) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	b, err := json.Marshal(f.values)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
