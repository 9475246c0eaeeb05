package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/internal"
	"github.com/turbolytics/activerecord/internal/catalog"
	"github.com/turbolytics/activerecord/pkg/query"
	"github.com/turbolytics/activerecord/pkg/record"
)

type Option func(*Exporter)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// Exporter snapshots tables into a repository: one parquet file per batch
// and a catalog.json describing the run.
type Exporter struct {
	repository internal.Repository
	logger     *zap.Logger
	batchSize  int
}

func New(repository internal.Repository, opts ...Option) *Exporter {
	e := &Exporter{
		repository: repository,
		logger:     zap.NewNop(),
		batchSize:  1000,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes every row matched by sel. A nil sel exports the whole table.
// The catalog is written even when the export fails.
func (e *Exporter) Export(ctx context.Context, runID string, m *record.Model, sel *query.Select) (*catalog.Catalog, error) {
	s := m.Schema()
	c := &catalog.Catalog{
		RunID:     runID,
		StartTime: time.Now().UTC(),
		Source:    s.Table(),
		Table:     s.Table(),
		Files:     []string{},
	}
	err := e.export(ctx, c, m, sel)
	c.EndTime = time.Now().UTC()
	c.Completed = err == nil
	c.Success = err == nil && c.Verify()
	if err != nil {
		c.Error = err.Error()
	}

	if werr := e.writeCatalog(ctx, c); werr != nil && err == nil {
		err = werr
	}
	e.logger.Info("export finished",
		zap.String("table", s.Table()),
		zap.Int64("source_records", c.NumSourceRecords),
		zap.Int64("processed", c.NumRecordsProcessed),
		zap.Bool("success", c.Success),
		zap.Duration("duration", c.EndTime.Sub(c.StartTime)),
	)
	return c, err
}

func (e *Exporter) export(ctx context.Context, c *catalog.Catalog, m *record.Model, sel *query.Select) error {
	s := m.Schema()
	schema, err := SchemaFor(s)
	if err != nil {
		return err
	}
	preserver := NewPreserver(schema, e.repository, e.logger)

	base := m.Select()
	if sel != nil {
		base = sel.Clone()
		base.Limit, base.Offset = 0, 0
	}
	if len(base.Order) == 0 {
		base.OrderBy(s.PrimaryKey(), false)
	}

	if c.NumSourceRecords, err = m.Count(ctx, base); err != nil {
		return err
	}

	for part := 0; ; part++ {
		page := base.Clone().Paginate(e.batchSize, part*e.batchSize)
		records, err := m.FetchAll(ctx, page)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		key := fmt.Sprintf("%s/part-%05d.parquet", s.Table(), part)
		if err := preserver.Preserve(ctx, key, records); err != nil {
			return err
		}
		c.Files = append(c.Files, key)
		c.NumRecordsProcessed += int64(len(records))
		if len(records) < e.batchSize {
			return nil
		}
	}
}

func (e *Exporter) writeCatalog(ctx context.Context, c *catalog.Catalog) error {
	bs, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return e.repository.Write(ctx, fmt.Sprintf("%s/catalog.json", c.Table), bytes.NewReader(bs))
}
