package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// exerciseStore runs the shared backend contract against any Store.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Save("model_v1", []byte(`{"a":1}`)))
	require.NoError(t, s.Save("model_v2", []byte(`{"a":2}`)))

	// No silent overwrite
	err = s.Save("model_v1", []byte(`{"tampered":true}`))
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeTemplateExists))

	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"model_v1", "model_v2"}, ids)

	payload, err := s.Load("model_v1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(payload))

	_, err = s.Load("model_v9")
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeTemplateNotFound))

	require.NoError(t, s.Delete("model_v1"))
	require.NoError(t, s.Delete("model_v1")) // idempotent

	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"model_v2"}, ids)
}

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesPayloads(t *testing.T) {
	s := NewMemoryStore()
	payload := []byte(`{"a":1}`)
	require.NoError(t, s.Save("id", payload))

	payload[2] = 'X' // mutate the caller's slice
	loaded, err := s.Load("id")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(loaded))
}

func TestFilesystemStoreContract(t *testing.T) {
	s, err := NewFilesystemStore(filepath.Join(t.TempDir(), "registry"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFilesystemStoreBundleLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "registry")
	s, err := NewFilesystemStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Save("income_v1", []byte(`{"a":1}`)))

	payload, err := os.ReadFile(filepath.Join(root, "store", "income", "v1", "bundle.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(payload))
}

func TestFilesystemStoreRejectsTraversalInIndex(t *testing.T) {
	root := filepath.Join(t.TempDir(), "registry")
	s, err := NewFilesystemStore(root)
	require.NoError(t, err)
	require.NoError(t, s.Save("model_v1", []byte(`{}`)))

	// Corrupt the index to point outside the root.
	require.NoError(t, s.writeIndex(map[string]string{
		"model_v1": filepath.Join("..", "..", "etc", "passwd"),
	}))

	_, err = s.Load("model_v1")
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodePathTraversal))

	require.NoError(t, s.writeIndex(map[string]string{
		"model_v1": "/etc/passwd",
	}))
	_, err = s.Load("model_v1")
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodePathTraversal))
}

func TestFilesystemStoreSanitizesTemplateNames(t *testing.T) {
	root := filepath.Join(t.TempDir(), "registry")
	s, err := NewFilesystemStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Save("../sneaky_v1", []byte(`{}`)))
	payload, err := s.Load("../sneaky_v1")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(payload))
}

func TestSingleFileStoreContract(t *testing.T) {
	s, err := NewSingleFileStore(filepath.Join(t.TempDir(), "templates.json"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestStoreConfigDispatch(t *testing.T) {
	s, err := New(Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Config{Type: "filesystem", Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FilesystemStore{}, s)

	_, err = New(Config{Type: "cassandra"})
	require.Error(t, err)
}
