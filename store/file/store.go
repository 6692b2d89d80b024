// Package file stores engine snapshots as TOML documents, one file per
// instance, replaced atomically on every save.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
)

const (
	snapshotFileMode = 0o600
	snapshotDirMode  = 0o700
	snapshotExt      = ".toml"
	tempFilePattern  = ".snapshot-*.toml.tmp"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps snapshots under a directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// New returns a store rooted at dir. The directory is created by Migrate.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("tickledger/file: snapshot directory is empty")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("tickledger/file: resolve snapshot directory: %w", err)
	}
	return &Store{dir: filepath.Clean(absDir)}, nil
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(instanceID id.InstanceID) string {
	return filepath.Join(s.dir, instanceID.String()+snapshotExt)
}

func (s *Store) SaveSnapshot(ctx context.Context, snap *store.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.InstanceID.IsNil() {
		return tickledger.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeSchema(s.path(snap.InstanceID), toSchema(snap))
}

func (s *Store) LoadSnapshot(ctx context.Context, instanceID id.InstanceID) (*store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(instanceID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, tickledger.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("tickledger/file: read snapshot: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("tickledger/file: decode snapshot: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return nil, fmt.Errorf("tickledger/file: %w", err)
	}
	file.applyDefaults()

	snap, err := fromSchema(file)
	if err != nil {
		return nil, fmt.Errorf("tickledger/file: %w", err)
	}
	if snap.InstanceID.String() != instanceID.String() {
		return nil, fmt.Errorf("tickledger/file: snapshot holds instance %s, want %s", snap.InstanceID, instanceID)
	}
	return snap, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, instanceID id.InstanceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(instanceID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tickledger.ErrSnapshotNotFound
		}
		return fmt.Errorf("tickledger/file: remove snapshot: %w", err)
	}
	return nil
}

// Migrate creates the snapshot directory.
func (s *Store) Migrate(_ context.Context) error {
	if err := os.MkdirAll(s.dir, snapshotDirMode); err != nil {
		return fmt.Errorf("tickledger/file: create snapshot directory: %w", err)
	}
	return nil
}

// Ping checks that the snapshot directory exists.
func (s *Store) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("tickledger/file: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("tickledger/file: %s is not a directory", s.dir)
	}
	return nil
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

func (s *Store) writeSchema(path string, file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(path), snapshotDirMode); err != nil {
		return fmt.Errorf("tickledger/file: create snapshot directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("tickledger/file: encode snapshot: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("tickledger/file: create temp snapshot: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("tickledger/file: write temp snapshot: %w", err)
	}

	if err := tempFile.Chmod(snapshotFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("tickledger/file: chmod temp snapshot: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("tickledger/file: sync temp snapshot: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("tickledger/file: close temp snapshot: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("tickledger/file: replace snapshot: %w", err)
	}

	cleanup = false
	return nil
}
