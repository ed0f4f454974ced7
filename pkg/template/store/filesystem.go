package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

const indexFile = "index.json"

// FilesystemStore keeps one JSON bundle file per template under a root
// directory, plus an index file mapping template ids to relative bundle
// paths. Writes go through a temp file and an atomic rename so partially
// written files are never observed; root and files are created with
// owner-only permissions. Index paths are validated against traversal.
type FilesystemStore struct {
	root string
	mu   sync.Mutex
}

var _ Store = (*FilesystemStore)(nil)

// NewFilesystemStore creates (if needed) the root directory with 0700
// permissions and returns the store.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving registry root: %w", err)
		}
		root = filepath.Join(home, ".fingraph", "templates")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating registry root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

// Root returns the store's root directory.
func (s *FilesystemStore) Root() string { return s.root }

// List returns every indexed template id, sorted.
func (s *FilesystemStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Save writes the bundle file and updates the index, both atomically.
func (s *FilesystemStore) Save(id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	if _, exists := index[id]; exists {
		return AlreadyExists(id)
	}

	segments := append([]string{"store"}, bundlePathSegments(id)...)
	segments = append(segments, "bundle.json")
	relPath := filepath.Join(segments...)
	fullPath := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o700); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}
	if err := atomicWrite(fullPath, payload); err != nil {
		return err
	}

	index[id] = relPath
	return s.writeIndex(index)
}

// Load resolves id through the index and reads the bundle file. Index
// entries that escape the root are integrity violations and fail hard.
func (s *FilesystemStore) Load(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	relPath, exists := index[id]
	if !exists {
		return nil, NotFound(id)
	}
	if err := guardRelPath(relPath); err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(filepath.Join(s.root, relPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NotFound(id)
		}
		return nil, fmt.Errorf("reading bundle %q: %w", id, err)
	}
	return payload, nil
}

// Delete removes the bundle file and its index entry. Absent ids are
// ignored.
func (s *FilesystemStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	relPath, exists := index[id]
	if !exists {
		return nil
	}
	if err := guardRelPath(relPath); err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.root, relPath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing bundle %q: %w", id, err)
	}
	delete(index, id)
	return s.writeIndex(index)
}

func (s *FilesystemStore) readIndex() (map[string]string, error) {
	payload, err := os.ReadFile(filepath.Join(s.root, indexFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("reading registry index: %w", err)
	}
	index := make(map[string]string)
	if err := json.Unmarshal(payload, &index); err != nil {
		return nil, ferrors.Wrap(err, ferrors.CodeInvalidPayload, "registry index is corrupt")
	}
	return index, nil
}

func (s *FilesystemStore) writeIndex(index map[string]string) error {
	payload, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry index: %w", err)
	}
	return atomicWrite(filepath.Join(s.root, indexFile), payload)
}

// atomicWrite writes payload to a temp file in the target directory and
// renames it into place, so readers never observe a partial write.
func atomicWrite(path string, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting temp file permissions: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}

// guardRelPath rejects index entries that are absolute or escape the root.
func guardRelPath(relPath string) error {
	if filepath.IsAbs(relPath) {
		return ferrors.New(ferrors.CodePathTraversal,
			"registry index entry %q is absolute", relPath)
	}
	clean := filepath.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return ferrors.New(ferrors.CodePathTraversal,
			"registry index entry %q escapes the registry root", relPath)
	}
	return nil
}

// bundlePathSegments splits "<name>_<version>" into path segments, keeping
// ids without a version suffix as a single segment.
func bundlePathSegments(id string) []string {
	idx := strings.LastIndex(id, "_")
	if idx <= 0 || idx == len(id)-1 {
		return []string{sanitizeSegment(id)}
	}
	return []string{sanitizeSegment(id[:idx]), sanitizeSegment(id[idx+1:])}
}

// sanitizeSegment keeps bundle paths inside their directory regardless of
// what characters a template name carries.
func sanitizeSegment(segment string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	out := replacer.Replace(segment)
	if out == "" || out == "." {
		return "_"
	}
	return out
}
