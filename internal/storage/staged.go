package storage

import (
	"context"
	"io"
	"os"

	"hiring-data-sync/internal/errors"
)

// publishFunc uploads a fully written staging file. The file is positioned at offset 0.
type publishFunc func(ctx context.Context, f *os.File, size int64) error

// stagedUpload buffers an object in a local temporary file and publishes it
// to a remote provider on Commit
type stagedUpload struct {
	file    *os.File
	size    int64
	publish publishFunc
	done    bool
}

func newStagedUpload(publish publishFunc) (*stagedUpload, error) {
	f, err := os.CreateTemp("", "hiring-data-sync-upload-*")
	if err != nil {
		return nil, errors.NewStorageError("failed to create staging file", err)
	}
	return &stagedUpload{file: f, publish: publish}, nil
}

func (u *stagedUpload) Write(p []byte) (int, error) {
	n, err := u.file.Write(p)
	u.size += int64(n)
	return n, err
}

// Commit uploads the staging file and removes it
func (u *stagedUpload) Commit(ctx context.Context) error {
	if u.done {
		return errors.NewStorageError("upload already finished", nil)
	}
	u.done = true
	defer u.cleanup()

	if err := ctx.Err(); err != nil {
		return errors.NewCancellationError("upload canceled before commit", err)
	}
	if _, err := u.file.Seek(0, io.SeekStart); err != nil {
		return errors.NewStorageError("failed to rewind staging file", err)
	}
	if err := u.publish(ctx, u.file, u.size); err != nil {
		return errors.WrapError(err, "failed to publish object")
	}
	return nil
}

// Abort discards the staging file without uploading
func (u *stagedUpload) Abort() error {
	if u.done {
		return nil
	}
	u.done = true
	u.cleanup()
	return nil
}

func (u *stagedUpload) cleanup() {
	u.file.Close()
	os.Remove(u.file.Name())
}
