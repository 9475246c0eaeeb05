package fixtures

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/internal/config"
	"github.com/turbolytics/activerecord/pkg/record"
)

func newGenerateCommand() *cobra.Command {
	var records int
	var table string

	var cmd = &cobra.Command{
		Use:   "generate",
		Short: "Inserts random rows into a configured table",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			rt, err := config.Bootstrap(ctx, viper.GetString("config"), "activerecord.fixtures.generate", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.Close(ctx); cerr != nil && err == nil {
					err = cerr
				}
			}()

			m, err := rt.Model(table)
			if err != nil {
				return err
			}

			start := time.Now()
			row := m.New()
			for i := 0; i < records; i++ {
				rec := row.CreateRow()
				if err := rec.ExchangeArray(Row(m.Schema(), i)); err != nil {
					return err
				}
				if err := rec.Save(ctx); err != nil {
					return err
				}
			}
			rt.Logger.Info("fixtures generated",
				zap.String("table", table),
				zap.Int("records", records),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		},
	}

	cmd.Flags().IntVarP(&records, "records", "n", 100, "Number of rows to insert")
	cmd.Flags().StringVarP(&table, "table", "t", "", "Table to fill")
	cmd.MarkFlagRequired("table")
	return cmd
}

// Row builds the values of the i-th fixture row. The primary key is left
// for the database to generate.
func Row(s *record.Schema, i int) map[string]any {
	values := make(map[string]any)
	for _, f := range s.Fields() {
		if f.Name == s.PrimaryKey() {
			continue
		}
		switch f.Type {
		case record.String:
			values[f.Name] = fmt.Sprintf("%d %s", i+1, f.Name)
		case record.Integer:
			values[f.Name] = int64(rand.Intn(1000))
		case record.Float:
			values[f.Name] = rand.Float64() * 1000
		case record.Timestamp:
			values[f.Name] = time.Now().UTC().Truncate(time.Second)
		case record.Bool:
			values[f.Name] = i%2 == 0
		}
	}
	return values
}
