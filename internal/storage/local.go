package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hiring-data-sync/internal/errors"
)

const tempMarker = ".tmp-"

// LocalStore keeps objects as files below a base directory
type LocalStore struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStore creates a LocalStore, creating the base directory if needed
func NewLocalStore(config *LocalConfig) (*LocalStore, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.NewConfigurationError("invalid local storage configuration", err)
	}

	perm := config.Permissions
	if perm == 0 {
		perm = 0750
	}

	if err := os.MkdirAll(config.BasePath, perm); err != nil {
		return nil, errors.NewStorageError("failed to create base directory", err)
	}

	return &LocalStore{basePath: config.BasePath, permissions: perm}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	key = CleanKey(key)
	if key == "" {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "object key cannot be empty", nil)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", errors.NewAppError(errors.ErrorTypeValidation,
				fmt.Sprintf("object key %q escapes the base directory", key), nil)
		}
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Create stages the object in a temporary file next to its final path
func (s *LocalStore) Create(ctx context.Context, key string) (Upload, error) {
	final, err := s.path(key)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, s.permissions); err != nil {
		return nil, errors.NewStorageError("failed to create object directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(final)+tempMarker+"*")
	if err != nil {
		return nil, errors.NewStorageError("failed to create temporary file", err)
	}

	return &localUpload{file: tmp, final: final}, nil
}

// Open opens the object file for reading
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, errors.NewStorageReadError(fmt.Sprintf("failed to open %s", key), err)
	}
	return f, nil
}

// List walks the base directory and returns committed objects under prefix
func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	prefix = CleanKey(prefix)
	var objects []ObjectInfo

	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.Contains(d.Name(), tempMarker) {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, errors.NewStorageReadError("failed to list local objects", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Delete removes the object file
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return errors.NewStorageError(fmt.Sprintf("failed to delete %s", key), err)
	}
	return nil
}

// Location returns the absolute file path of key
func (s *LocalStore) Location(key string) string {
	p, err := s.path(key)
	if err != nil {
		return key
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Close is a no-op for local storage
func (s *LocalStore) Close() error {
	return nil
}

type localUpload struct {
	file  *os.File
	final string
	done  bool
}

func (u *localUpload) Write(p []byte) (int, error) {
	return u.file.Write(p)
}

// Commit flushes the temporary file and renames it over the final path
func (u *localUpload) Commit(ctx context.Context) error {
	if u.done {
		return errors.NewStorageError("upload already finished", nil)
	}
	u.done = true

	if err := ctx.Err(); err != nil {
		u.discard()
		return errors.NewCancellationError("upload canceled before commit", err)
	}
	if err := u.file.Sync(); err != nil {
		u.discard()
		return errors.NewStorageError("failed to sync temporary file", err)
	}
	if err := u.file.Close(); err != nil {
		os.Remove(u.file.Name())
		return errors.NewStorageError("failed to close temporary file", err)
	}
	if err := os.Rename(u.file.Name(), u.final); err != nil {
		os.Remove(u.file.Name())
		return errors.NewStorageError("failed to publish object", err)
	}
	return nil
}

// Abort removes the temporary file
func (u *localUpload) Abort() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.discard()
}

func (u *localUpload) discard() error {
	u.file.Close()
	if err := os.Remove(u.file.Name()); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError("failed to remove temporary file", err)
	}
	return nil
}
