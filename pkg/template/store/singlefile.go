package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// SingleFileStore keeps every bundle inside one JSON file, keyed by template
// id. Suited to small registries that should travel as a single artifact.
type SingleFileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*SingleFileStore)(nil)

// NewSingleFileStore creates the store's parent directory if needed.
func NewSingleFileStore(path string) (*SingleFileStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving registry path: %w", err)
		}
		path = filepath.Join(home, ".fingraph", "templates.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	return &SingleFileStore{path: path}, nil
}

// List returns every stored id, sorted.
func (s *SingleFileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Save adds payload under id and rewrites the file atomically.
func (s *SingleFileStore) Save(id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, exists := entries[id]; exists {
		return AlreadyExists(id)
	}
	entries[id] = json.RawMessage(append([]byte(nil), payload...))
	return s.write(entries)
}

// Load returns the payload stored under id.
func (s *SingleFileStore) Load(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	payload, exists := entries[id]
	if !exists {
		return nil, NotFound(id)
	}
	return append([]byte(nil), payload...), nil
}

// Delete removes id and rewrites the file. Absent ids are ignored.
func (s *SingleFileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, exists := entries[id]; !exists {
		return nil
	}
	delete(entries, id)
	return s.write(entries)
}

func (s *SingleFileStore) read() (map[string]json.RawMessage, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("reading registry file: %w", err)
	}
	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, ferrors.Wrap(err, ferrors.CodeInvalidPayload, "registry file is corrupt")
	}
	return entries, nil
}

func (s *SingleFileStore) write(entries map[string]json.RawMessage) error {
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry file: %w", err)
	}
	return atomicWrite(s.path, payload)
}
