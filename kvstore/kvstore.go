// Package kvstore provides the small key-value persistence contract the
// job state machine and job runner use to load and save job state, step
// records, and other small documents. Unlike streamio.Source/Output, a
// Store is not streamed: values are read and written whole, which is
// adequate for job state documents but not for bulk data.
package kvstore

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/flowforge/pipeline/errs"
)

// Store is a simple key-value store keyed by path-like strings ("job
// state" documents use "{instance_id}.{name}.job.json" as their key).
// Implementations must treat NotExist as a distinguishable, non-fatal
// outcome so callers like kvstore.Paired can treat a miss on one side as
// "absent" rather than an error.
type Store interface {
	// Load reads the raw bytes stored at key. Returns an *errs.Error with
	// Kind errs.NotExist if key has never been written.
	Load(ctx context.Context, key string) ([]byte, error)

	// Write stores value at key, creating any parent directories
	// implied by key's PathSep-separated segments.
	Write(ctx context.Context, key string, value []byte) error

	// ListKeys returns every key currently stored.
	ListKeys(ctx context.Context) ([]string, error)

	// PathSep is the separator this store's keys use to express
	// hierarchical structure (e.g. "/" for filesystem-backed stores).
	PathSep() string
}

// ParentFolder returns the portion of key before its last PathSep
// component, or "" if key has no separator.
func ParentFolder(store Store, key string) string {
	sep := store.PathSep()
	idx := strings.LastIndex(key, sep)
	if idx < 0 {
		return ""
	}
	return key[:idx]
}

// aferoStore is the shared implementation behind both MemStore and
// FSStore: both are just an afero.Fs, one backed by afero.MemMapFs and
// one by afero.OsFs rooted at a directory.
type aferoStore struct {
	fs   afero.Fs
	root string
}

func newAferoStore(fs afero.Fs, root string) *aferoStore {
	return &aferoStore{fs: fs, root: root}
}

func (s *aferoStore) PathSep() string { return "/" }

func (s *aferoStore) fullPath(key string) string {
	if s.root == "" {
		return key
	}
	return s.root + "/" + key
}

func (s *aferoStore) Load(_ context.Context, key string) ([]byte, error) {
	path := s.fullPath(key)
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return nil, errs.NewFatalIO("checking existence of "+path, err)
	}
	if !exists {
		return nil, errs.NewNotExist(key, nil)
	}
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, errs.NewFatalIO("reading "+path, err)
	}
	return b, nil
}

func (s *aferoStore) Write(_ context.Context, key string, value []byte) error {
	path := s.fullPath(key)
	if parent := ParentFolder(s, path); parent != "" {
		if err := s.fs.MkdirAll(parent, 0o755); err != nil {
			return errs.NewFatalIO("creating parent directory "+parent, err)
		}
	}
	if err := afero.WriteFile(s.fs, path, value, 0o644); err != nil {
		return errs.NewFatalIO("writing "+path, err)
	}
	return nil
}

func (s *aferoStore) ListKeys(_ context.Context) ([]string, error) {
	var keys []string
	root := s.root
	if root == "" {
		root = "."
	}
	err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		key := path
		if s.root != "" && strings.HasPrefix(key, s.root+"/") {
			key = key[len(s.root)+1:]
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, errs.NewFatalIO("listing keys under "+root, err)
	}
	return keys, nil
}

// MemStore is an in-memory Store, backed by afero.MemMapFs. It's suitable
// for tests and for ephemeral job state that doesn't need to survive a
// process restart.
type MemStore struct {
	*aferoStore
}

// NewMemStore constructs an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{aferoStore: newAferoStore(afero.NewMemMapFs(), "")}
}

// FSStore is a local-filesystem Store rooted at a directory, backed by
// afero.OsFs. jobmanager persists job state in one only when a caller
// passes it via jobmanager.WithStore; jobmanager's default is a MemStore.
type FSStore struct {
	*aferoStore
}

// NewFSStore constructs a Store rooted at dir. dir is created on first
// Write if it doesn't already exist.
func NewFSStore(dir string) *FSStore {
	return &FSStore{aferoStore: newAferoStore(afero.NewOsFs(), dir)}
}
