package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// =============================================================================
// File Store
// =============================================================================

// FileStore keeps the session in a JSON file, replaced atomically on save.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path. The parent directory is created on
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (WalletSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out WalletSession
	if err := readJSON(s.path, &out); err != nil {
		return WalletSession{}, fmt.Errorf("read session %s: %w", s.path, err)
	}
	return out, nil
}

func (s *FileStore) Save(ctx context.Context, sess WalletSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := writeJSON(s.path, sess, 0o600); err != nil {
		return fmt.Errorf("write session %s: %w", s.path, err)
	}
	return nil
}

// readJSON reads path into out; a missing file leaves out untouched.
func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}

// writeJSON writes JSON via a temp file, then renames it over path.
func writeJSON(path string, v any, mode os.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// =============================================================================
// Memory Store
// =============================================================================

// MemoryStore keeps the session in process memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	sess WalletSession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(ctx context.Context) (WalletSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess, nil
}

func (s *MemoryStore) Save(ctx context.Context, sess WalletSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	return nil
}
