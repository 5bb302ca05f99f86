// Package store persists the basics state handed over when a session closes
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mrcode/nightscout-basics/internal/basics"
	"github.com/mrcode/nightscout-basics/internal/models"
)

// ErrNotFound is returned when no snapshot has been stored yet
var ErrNotFound = errors.New("no basics snapshot stored")

// Snapshot is one persisted basics state
type Snapshot struct {
	ID        string       `json:"id" bson:"_id"`
	CreatedAt time.Time    `json:"createdAt" bson:"createdAt"`
	State     basics.State `json:"state" bson:"state"`
}

// Store persists and reads back basics snapshots
type Store interface {
	basics.Persister
	Latest(ctx context.Context) (*Snapshot, error)
	Close(ctx context.Context) error
}

// New opens the store selected in settings. It returns a nil Store for
// models.StoreNone.
func New(ctx context.Context, settings *models.Settings, logger *zap.Logger) (Store, error) {
	switch settings.Store {
	case models.StoreNone:
		return nil, nil
	case models.StoreMongo:
		cfg, err := LoadMongoConfig()
		if err != nil {
			return nil, err
		}
		return NewMongoStore(ctx, cfg, logger)
	case models.StoreFile, "":
		dir, err := models.GetConfigDir()
		if err != nil {
			return nil, fmt.Errorf("getting config dir: %w", err)
		}
		return NewFileStore(filepath.Join(dir, "snapshots"), logger), nil
	default:
		return nil, fmt.Errorf("unknown store %q", settings.Store)
	}
}
