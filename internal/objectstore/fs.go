package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"
)

// FSStore keeps objects as files under <root>/<bucket>/<key>
type FSStore struct {
	fs   afero.Fs
	root string
}

// NewFSStore creates a store on the local filesystem rooted at root
func NewFSStore(root string) *FSStore {
	return NewFSStoreWithFs(afero.NewOsFs(), root)
}

// NewFSStoreWithFs creates a store on an arbitrary afero filesystem
func NewFSStoreWithFs(fs afero.Fs, root string) *FSStore {
	return &FSStore{fs: fs, root: root}
}

// GetObject reads an object file
func (s *FSStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := s.objectPath(bucket, key)
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// PutObject writes an object file, creating parent directories. The content
// type is not persisted.
func (s *FSStore) PutObject(ctx context.Context, bucket, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := s.objectPath(bucket, key)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}

	// Write to a temp file and rename so readers never see a partial object
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

func (s *FSStore) objectPath(bucket, key string) string {
	return path.Join(s.root, bucket, path.Clean("/"+key))
}
