package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/internal"
	"github.com/turbolytics/activerecord/pkg/record"
)

// Preserver writes batches of records as parquet files.
type Preserver struct {
	schema     Schema
	repository internal.Repository
	logger     *zap.Logger
	parallel   int64
}

func NewPreserver(schema Schema, repository internal.Repository, logger *zap.Logger) *Preserver {
	return &Preserver{
		schema:     schema,
		repository: repository,
		logger:     logger,
		parallel:   4,
	}
}

// Preserve writes records to key in the repository.
func (p *Preserver) Preserve(ctx context.Context, key string, records []*record.Record) error {
	var buf bytes.Buffer
	pw, err := writer.NewCSVWriterFromWriter(p.schema.Metadata(), &buf, p.parallel)
	if err != nil {
		return fmt.Errorf("export: parquet writer: %w", err)
	}
	for _, r := range records {
		row, err := p.schema.Row(r)
		if err != nil {
			return err
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("export: write row %d: %w", r.ID(), err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("export: finish %s: %w", key, err)
	}

	p.logger.Debug("preserving batch",
		zap.String("key", key),
		zap.Int("records", len(records)),
		zap.Int("bytes", buf.Len()),
	)
	return p.repository.Write(ctx, key, &buf)
}
