package answerbank

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend keeps the bank in a single file that is rewritten in full on every change.
type FileBackend struct {
	path  string
	codec Codec
}

// NewFileBackend stores the bank at path using codec.
func NewFileBackend(path string, codec Codec) *FileBackend {
	return &FileBackend{path: path, codec: codec}
}

// Path returns the backing file location.
func (f *FileBackend) Path() string { return f.path }

// Load reads the file. A missing file is an empty bank.
func (f *FileBackend) Load(_ context.Context) ([]Entry, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	defer file.Close()

	entries, err := f.codec.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", f.path, err)
	}
	return entries, nil
}

// Persist rewrites the whole file. The new content is written to a temporary sibling and
// renamed over the old file so a crash mid-write leaves the previous bank intact.
func (f *FileBackend) Persist(ctx context.Context, _ Entry, all []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.codec.Encode(tmp, all); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
