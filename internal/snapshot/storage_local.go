package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorageProvider implements StorageProvider for a single directory on the local file system
type LocalStorageProvider struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStorageProvider creates a new LocalStorageProvider instance
func NewLocalStorageProvider(config *LocalConfig) (*LocalStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("local storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid local storage configuration", err)
	}

	basePath, err := filepath.Abs(config.BasePath)
	if err != nil {
		return nil, NewConfigurationError("failed to resolve base path", err)
	}

	provider := &LocalStorageProvider{
		basePath:    filepath.Clean(basePath),
		permissions: config.Permissions,
	}

	if err := provider.ensureBaseDirectory(); err != nil {
		return nil, NewStoreIOError("failed to create base directory", err)
	}

	return provider, nil
}

// Put writes the file through a temporary sibling and a rename, so readers never see a partial snapshot.
func (lsp *LocalStorageProvider) Put(ctx context.Context, name string, data []byte) error {
	path, err := lsp.resolvePath(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return NewStoreIOError("store operation cancelled", err)
	}

	tmp, err := os.CreateTemp(lsp.basePath, ".snapshot-*.tmp")
	if err != nil {
		return NewStoreIOError("failed to create temporary snapshot file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return NewStoreIOError("failed to write snapshot file", err)
	}
	if err := tmp.Close(); err != nil {
		return NewStoreIOError("failed to close snapshot file", err)
	}
	if err := os.Chmod(tmpName, lsp.filePermissions()); err != nil {
		return NewStoreIOError("failed to set snapshot file permissions", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return NewStoreIOError("failed to move snapshot file into place", err)
	}

	return nil
}

// Get reads a snapshot file
func (lsp *LocalStorageProvider) Get(ctx context.Context, name string) ([]byte, error) {
	path, err := lsp.resolvePath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), err)
		}
		return nil, NewStoreIOError("failed to read snapshot file", err)
	}

	return data, nil
}

// Delete removes a snapshot file
func (lsp *LocalStorageProvider) Delete(ctx context.Context, name string) error {
	path, err := lsp.resolvePath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), err)
		}
		return NewStoreIOError("failed to delete snapshot file", err)
	}

	return nil
}

// List returns the regular files directly under the base directory. The
// namespace is flat, so subdirectories and hidden files are skipped.
func (lsp *LocalStorageProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(lsp.basePath)
	if err != nil {
		return nil, NewStoreIOError("failed to list snapshots", err)
	}

	objects := make([]ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}

	return objects, nil
}

// Describe returns a short human readable location
func (lsp *LocalStorageProvider) Describe() string {
	return "local:" + lsp.basePath
}

// GetBasePath returns the base path for the storage provider
func (lsp *LocalStorageProvider) GetBasePath() string {
	return lsp.basePath
}

// HealthCheck verifies that the storage provider is accessible and functional
func (lsp *LocalStorageProvider) HealthCheck(ctx context.Context) error {
	testFile := filepath.Join(lsp.basePath, ".health_check")

	if err := os.WriteFile(testFile, []byte("health_check"), lsp.filePermissions()); err != nil {
		return NewStoreIOError("storage provider health check failed: cannot write to base directory", err)
	}
	if _, err := os.ReadFile(testFile); err != nil {
		return NewStoreIOError("storage provider health check failed: cannot read from base directory", err)
	}

	os.Remove(testFile)
	return nil
}

// resolvePath joins name to the base directory and rejects anything that
// would land outside it.
func (lsp *LocalStorageProvider) resolvePath(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	path := filepath.Join(lsp.basePath, name)
	rel, err := filepath.Rel(lsp.basePath, path)
	if err != nil || rel == "." || rel != filepath.Base(path) || strings.HasPrefix(rel, "..") {
		return "", NewPathRejectedError(fmt.Sprintf("snapshot name %q resolves outside the snapshot directory", name), err)
	}

	return path, nil
}

func (lsp *LocalStorageProvider) ensureBaseDirectory() error {
	if err := os.MkdirAll(lsp.basePath, lsp.permissions); err != nil {
		return fmt.Errorf("failed to create base directory %s: %w", lsp.basePath, err)
	}
	return nil
}

// filePermissions drops the execute bits of the directory permissions.
func (lsp *LocalStorageProvider) filePermissions() os.FileMode {
	return lsp.permissions &^ 0111
}
