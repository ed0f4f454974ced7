// Package store provides the pluggable persistence backends behind the
// template registry. Every backend stores opaque bundle payloads keyed by
// template id and refuses to overwrite an existing id.
package store

import (
	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// Store is the persistence contract the template registry requires.
type Store interface {
	// List returns every stored template id.
	List() ([]string, error)
	// Save persists payload under id. It fails if id already exists.
	Save(id string, payload []byte) error
	// Load returns the payload stored under id, or a not-found error.
	Load(id string) ([]byte, error)
	// Delete removes id. Deleting an absent id is not an error.
	Delete(id string) error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Type is one of "memory", "filesystem", "singlefile", "s3", "redis".
	Type string `mapstructure:"type"`
	// Root is the directory (filesystem) or file path (singlefile).
	Root string `mapstructure:"root"`
	// Bucket and Prefix configure the s3 backend.
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	// URL configures the redis backend.
	URL string `mapstructure:"url"`
}

// New builds the backend described by cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		return NewFilesystemStore(cfg.Root)
	case "singlefile":
		return NewSingleFileStore(cfg.Root)
	case "s3":
		return NewS3Store(S3Options{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	case "redis":
		return NewRedisStore(RedisOptions{URL: cfg.URL, Prefix: cfg.Prefix})
	default:
		return nil, ferrors.New(ferrors.CodeBadDefinition, "store type %q not found", cfg.Type)
	}
}

// NotFound builds the error every backend returns for an unknown id.
func NotFound(id string) error {
	return ferrors.New(ferrors.CodeTemplateNotFound, "template %q not found", id)
}

// AlreadyExists builds the error every backend returns when Save would
// overwrite.
func AlreadyExists(id string) error {
	return ferrors.New(ferrors.CodeTemplateExists, "template %q already exists", id)
}
