package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/internal"
	"github.com/turbolytics/activerecord/internal/local"
	"github.com/turbolytics/activerecord/internal/s3"
	"github.com/turbolytics/activerecord/pkg/changes"
	"github.com/turbolytics/activerecord/pkg/changes/kafka"
	"github.com/turbolytics/activerecord/pkg/memory"
	"github.com/turbolytics/activerecord/pkg/mongo"
	"github.com/turbolytics/activerecord/pkg/postgres"
	"github.com/turbolytics/activerecord/pkg/record"
	"github.com/turbolytics/activerecord/pkg/sqldb"
)

// Closer releases a resource opened from the config.
type Closer func(ctx context.Context) error

func noopCloser(context.Context) error { return nil }

// InitializeDelegate connects to the database named by the config.
func InitializeDelegate(ctx context.Context, c *Config, logger *zap.Logger) (record.Delegate, Closer, error) {
	l := logger.Named("delegate")
	switch c.Database.Driver {
	case "memory":
		return memory.New(memory.WithLogger(l)), noopCloser, nil
	case "pgxpool":
		p, err := postgres.Connect(ctx, c.Database.DSN, postgres.WithLogger(l))
		if err != nil {
			return nil, nil, err
		}
		return p, func(context.Context) error { p.Close(); return nil }, nil
	case "mongodb", "mongo":
		opts := []mongo.Option{mongo.WithLogger(l)}
		for _, t := range c.Tables {
			if t.PrimaryKey != "" {
				opts = append(opts, mongo.WithPrimaryKey(t.Name, t.PrimaryKey))
			}
		}
		s, err := mongo.Connect(ctx, c.Database.DSN, c.Database.Database, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Disconnect, nil
	case "sqlite", "sqlite3", "mysql", "postgres", "pgx":
		db, err := sqldb.Open(ctx, c.Database.Driver, c.Database.DSN, sqldb.WithLogger(l))
		if err != nil {
			return nil, nil, err
		}
		return db, func(context.Context) error { return db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("config: unsupported driver %q", c.Database.Driver)
}

// Publisher returns the change event sink configured for the run. JSON
// lines go to w, stdout when w is nil.
func (c *Config) Publisher(w io.Writer, logger *zap.Logger) (changes.Publisher, Closer, error) {
	var pubs changes.Fanout
	closer := Closer(noopCloser)
	if c.Changes.Stdout {
		if w == nil {
			w = os.Stdout
		}
		pubs = append(pubs, changes.NewJSONPublisher(w))
	}
	if c.Changes.Kafka != "" {
		topic, cm, err := kafka.ParseURI(c.Changes.Kafka)
		if err != nil {
			return nil, nil, err
		}
		p, err := kafka.New(topic, cm, kafka.WithLogger(logger.Named("kafka")))
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, p)
		closer = p.Close
	}

	switch len(pubs) {
	case 0:
		return changes.NopPublisher{}, closer, nil
	case 1:
		return pubs[0], closer, nil
	}
	return pubs, closer, nil
}

// ExportRepository returns the target of export run runID and a printable
// location. dir forces a local directory; otherwise export.s3 wins over
// export.path.
func (c *Config) ExportRepository(dir, runID string, logger *zap.Logger) (internal.Repository, string, error) {
	if dir == "" && c.Export.S3 != nil {
		cfg := c.Export.S3
		r, err := s3.New(
			s3.WithBucket(cfg.Bucket),
			s3.WithRegion(cfg.Region),
			s3.WithEndpoint(cfg.Endpoint),
			s3.WithForcePathStyle(cfg.ForcePathStyle),
			s3.WithPrefix(path.Join(cfg.Prefix, runID)),
			s3.WithLogger(logger.Named("s3")),
		)
		if err != nil {
			return nil, "", err
		}
		return r, r.Location(), nil
	}
	if dir == "" {
		dir = c.Export.Path
	}
	if dir == "" {
		return nil, "", fmt.Errorf("config: export path is not configured")
	}
	r := local.New(dir, local.WithPrefix(runID), local.WithLogger(logger))
	return r, r.Dir(), nil
}

// Models binds every registered schema to delegate.
func Models(reg *record.Registry, delegate record.Delegate, opts ...record.Option) map[string]*record.Model {
	models := make(map[string]*record.Model)
	for _, table := range reg.Tables() {
		s, _ := reg.Lookup(table)
		models[table] = record.NewModel(s, delegate, opts...)
	}
	return models
}

// NewLogger builds the process logger for level: debug, info, warn or
// error. An empty level is development logging.
func NewLogger(level string) (*zap.Logger, error) {
	if level == "" || level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}
