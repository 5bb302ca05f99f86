package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"go.mongodb.org/mongo-driver/bson"
	mongoDriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/mrcode/nightscout-basics/internal/basics"
	"github.com/mrcode/nightscout-basics/internal/models"
)

const basicsCollection = "basics"

// MongoConfig is read from NSBASICS_MONGO_* variables
type MongoConfig struct {
	URI              string        `envconfig:"URI"`
	Scheme           string        `envconfig:"SCHEME" default:"mongodb"`
	Addresses        []string      `envconfig:"ADDRESSES" default:"localhost:27017"`
	User             string        `envconfig:"USER"`
	Password         string        `envconfig:"PASSWORD"`
	Database         string        `envconfig:"DATABASE" default:"nightscout_basics"`
	CollectionPrefix string        `envconfig:"COLLECTION_PREFIX"`
	OptParams        string        `envconfig:"OPT_PARAMS"`
	Timeout          time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// LoadMongoConfig reads the Mongo configuration from the environment
func LoadMongoConfig() (*MongoConfig, error) {
	cfg := &MongoConfig{}
	if err := envconfig.Process(models.EnvPrefix+"_MONGO", cfg); err != nil {
		return nil, fmt.Errorf("loading mongo config: %w", err)
	}
	return cfg, nil
}

// AsConnectionString builds the connection URI; an explicit URI wins
func (c *MongoConfig) AsConnectionString() string {
	if c.URI != "" {
		return c.URI
	}

	var b strings.Builder
	b.WriteString(c.Scheme)
	b.WriteString("://")
	if c.User != "" {
		b.WriteString(url.QueryEscape(c.User))
		if c.Password != "" {
			b.WriteString(":")
			b.WriteString(url.QueryEscape(c.Password))
		}
		b.WriteString("@")
	}
	b.WriteString(strings.Join(c.Addresses, ","))
	b.WriteString("/")
	if c.OptParams != "" {
		b.WriteString("?")
		b.WriteString(c.OptParams)
	}
	return b.String()
}

// MongoStore appends snapshots to a collection
type MongoStore struct {
	client *mongoDriver.Client
	config *MongoConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewMongoStore creates the client. The driver connects lazily, so an
// unreachable server only shows up on Ping or the first write.
func NewMongoStore(ctx context.Context, cfg *MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg == nil {
		return nil, errors.New("database config is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().
		ApplyURI(cfg.AsConnectionString()).
		SetConnectTimeout(cfg.Timeout).
		SetServerSelectionTimeout(cfg.Timeout)

	client, err := mongoDriver.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connection options are invalid: %w", err)
	}

	return &MongoStore{client: client, config: cfg, logger: logger, now: time.Now}, nil
}

// CollectionName returns the prefixed collection name
func (s *MongoStore) CollectionName() string {
	return s.config.CollectionPrefix + basicsCollection
}

func (s *MongoStore) collection() *mongoDriver.Collection {
	return s.client.Database(s.config.Database).Collection(s.CollectionName())
}

// PersistBasics implements basics.Persister
func (s *MongoStore) PersistBasics(ctx context.Context, state basics.State) error {
	snapshot := Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		State:     state,
	}
	if _, err := s.collection().InsertOne(ctx, snapshot); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	s.logger.Debug("snapshot inserted",
		zap.String("id", snapshot.ID),
		zap.String("collection", s.CollectionName()),
	)
	return nil
}

// Latest returns the most recently inserted snapshot
func (s *MongoStore) Latest(ctx context.Context) (*Snapshot, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var snapshot Snapshot
	err := s.collection().FindOne(ctx, bson.D{}, opts).Decode(&snapshot)
	if errors.Is(err, mongoDriver.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding snapshot: %w", err)
	}
	return &snapshot, nil
}

// Ping checks that the server is reachable
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("store has not been initialized")
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
