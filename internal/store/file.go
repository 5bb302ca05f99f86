package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrcode/nightscout-basics/internal/basics"
)

const latestFile = "basics.json"

// FileStore keeps the latest snapshot as a JSON file
type FileStore struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewFileStore creates a store writing into dir
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger, now: time.Now}
}

// Path returns the file holding the latest snapshot
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, latestFile)
}

// PersistBasics implements basics.Persister
func (s *FileStore) PersistBasics(ctx context.Context, state basics.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		State:     state,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	// write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(s.dir, latestFile+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	s.logger.Debug("snapshot written", zap.String("id", snapshot.ID), zap.String("path", s.Path()))
	return nil
}

// Latest reads the most recent snapshot
func (s *FileStore) Latest(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &snapshot, nil
}

// Close implements Store
func (s *FileStore) Close(context.Context) error {
	return nil
}
