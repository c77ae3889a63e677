package authclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const sessionFileMode = 0o600

var errEmptySessionDirectory = errors.New("authclient.file_store.empty_directory")

// FileSessionStore keeps one file per key inside a directory.
// Writes go to a temporary file that is renamed over the target, so readers never see a partial blob.
type FileSessionStore struct {
	mutex     sync.Mutex
	directory string
}

// NewFileSessionStore creates the directory when missing.
func NewFileSessionStore(directory string) (*FileSessionStore, error) {
	if strings.TrimSpace(directory) == "" {
		return nil, errEmptySessionDirectory
	}
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("authclient.file_store.mkdir: %w", err)
	}
	return &FileSessionStore{directory: directory}, nil
}

func (store *FileSessionStore) path(key string) string {
	return filepath.Join(store.directory, filepath.Base(key)+".json")
}

// Get reads the session file or returns ErrSessionNotFound.
func (store *FileSessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	raw, err := os.ReadFile(store.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("authclient.file_store.read: %w", err)
	}
	return raw, nil
}

// Set writes a temp file with mode 0600 and renames it over the session file.
func (store *FileSessionStore) Set(ctx context.Context, key string, value []byte) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	temporary, err := os.CreateTemp(store.directory, ".session-*")
	if err != nil {
		return fmt.Errorf("authclient.file_store.create_temp: %w", err)
	}
	temporaryName := temporary.Name()
	defer os.Remove(temporaryName)

	if _, err := temporary.Write(value); err != nil {
		_ = temporary.Close()
		return fmt.Errorf("authclient.file_store.write: %w", err)
	}
	if err := temporary.Chmod(sessionFileMode); err != nil {
		_ = temporary.Close()
		return fmt.Errorf("authclient.file_store.chmod: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("authclient.file_store.close: %w", err)
	}
	if err := os.Rename(temporaryName, store.path(key)); err != nil {
		return fmt.Errorf("authclient.file_store.rename: %w", err)
	}
	return nil
}

// Remove deletes the session file; a missing file is not an error.
func (store *FileSessionStore) Remove(ctx context.Context, key string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := os.Remove(store.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("authclient.file_store.remove: %w", err)
	}
	return nil
}
