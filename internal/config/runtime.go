package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/pkg/record"
)

// Runtime is everything a command needs after loading a config file.
type Runtime struct {
	Config   *Config
	Logger   *zap.Logger
	Registry *record.Registry
	Delegate record.Delegate
	Models   map[string]*record.Model

	closers []Closer
}

// Bootstrap loads the config at path, builds the named logger, validates
// the schemas and connects the delegate. Change events go to events.
func Bootstrap(ctx context.Context, path, name string, events io.Writer) (*Runtime, error) {
	c, err := NewFromFile(path)
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(c.Logger.Level)
	if err != nil {
		return nil, err
	}
	l := logger.Named(name)

	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}
	delegate, closeDelegate, err := InitializeDelegate(ctx, c, l)
	if err != nil {
		return nil, err
	}
	publisher, closePublisher, err := c.Publisher(events, l)
	if err != nil {
		closeDelegate(ctx)
		return nil, err
	}
	l.Debug("runtime ready",
		zap.String("driver", c.Database.Driver),
		zap.Strings("tables", reg.Tables()),
	)
	return &Runtime{
		Config:   c,
		Logger:   l,
		Registry: reg,
		Delegate: delegate,
		Models: Models(reg, delegate,
			record.WithLogger(l.Named("record")),
			record.WithPublisher(publisher),
		),
		closers: []Closer{closePublisher, closeDelegate},
	}, nil
}

func (rt *Runtime) Model(table string) (*record.Model, error) {
	m, ok := rt.Models[table]
	if !ok {
		return nil, fmt.Errorf("table %q is not configured", table)
	}
	return m, nil
}

// Close flushes the change publisher, then releases the delegate.
func (rt *Runtime) Close(ctx context.Context) error {
	defer rt.Logger.Sync()
	var errs []error
	for _, c := range rt.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
