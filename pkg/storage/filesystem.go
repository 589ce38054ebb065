package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/foliotrace/foliotrace/pkg/session"
)

// FilesystemStore persists one JSON file per session under a root directory.
type FilesystemStore struct {
	rootDir string
}

// NewFilesystemStore creates a filesystem-backed store rooted at rootDir,
// creating the directory if needed.
func NewFilesystemStore(rootDir string) (*FilesystemStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("root directory is empty")
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FilesystemStore{rootDir: rootDir}, nil
}

func (s *FilesystemStore) path(id string) string {
	return filepath.Join(s.rootDir, id+".json")
}

// Save writes the snapshot to a temp file and renames it into place, so a
// crash mid-write never leaves a truncated session file behind.
func (s *FilesystemStore) Save(ctx context.Context, snap *session.Snapshot) error {
	if err := validateID(snap.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.rootDir, ".save-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmpName, s.path(snap.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename snapshot into place: %w", err)
	}
	return nil
}

// Get reads and decodes the session file, or returns ErrNotFound.
func (s *FilesystemStore) Get(ctx context.Context, id string) (*session.Snapshot, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List enumerates session files, most recent activity first. Entries that
// fail to parse (stale temp files, partial external writes) are skipped
// rather than failing the whole listing.
func (s *FilesystemStore) List(ctx context.Context) ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	var infos []SessionInfo
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.rootDir, entry.Name()))
		if err != nil {
			continue
		}
		var snap session.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}

		var size int64
		if fi, err := entry.Info(); err == nil {
			size = fi.Size()
		}
		infos = append(infos, infoFor(&snap, size))
	}

	sortByActivity(infos)
	return infos, nil
}

// Delete removes the session file, or returns ErrNotFound.
func (s *FilesystemStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// Ping verifies the root directory is still accessible.
func (s *FilesystemStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(s.rootDir); err != nil {
		return fmt.Errorf("root directory inaccessible: %w", err)
	}
	return nil
}

// Name implements Store.
func (s *FilesystemStore) Name() string { return TypeFilesystem }

// Close implements Store. The filesystem store holds no open handles.
func (s *FilesystemStore) Close() error { return nil }
