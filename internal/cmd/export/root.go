package export

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/internal/config"
	"github.com/turbolytics/activerecord/internal/export"
	"github.com/turbolytics/activerecord/pkg/query"
)

func NewCommand() *cobra.Command {
	var where string
	var path string

	var cmd = &cobra.Command{
		Use:   "export [table...]",
		Short: "Snapshots tables into parquet files",
		Long: `export writes the rows of each table into <path>/<run id>/<table>/ as
parquet files, next to a catalog.json describing the run. When export.s3 is
configured the files are uploaded to the bucket instead, unless --path is
given. Without arguments every configured table is exported.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			rt, err := config.Bootstrap(ctx, viper.GetString("config"), "activerecord.export", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.Close(ctx); cerr != nil && err == nil {
					err = cerr
				}
			}()

			tables := args
			if len(tables) == 0 {
				tables = rt.Registry.Tables()
			}
			filters, err := query.ParseWhere(where)
			if err != nil {
				return err
			}

			runID := uuid.New().String()
			repo, location, err := rt.Config.ExportRepository(path, runID, rt.Logger)
			if err != nil {
				return err
			}
			exporter := export.New(repo,
				export.WithLogger(rt.Logger),
				export.WithBatchSize(rt.Config.Export.BatchSize),
			)
			rt.Logger.Info("starting export",
				zap.String("run_id", runID),
				zap.String("location", location),
				zap.Strings("tables", tables),
			)

			for _, table := range tables {
				m, err := rt.Model(table)
				if err != nil {
					return err
				}
				sel := m.Select()
				sel.Where = filters
				c, err := exporter.Export(ctx, runID, m, sel)
				if err != nil {
					return fmt.Errorf("export %s: %w", table, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\t%d files\t%s\n",
					table, c.NumRecordsProcessed, len(c.Files), location)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&where, "where", "w", "", "Only export rows matching this condition")
	cmd.Flags().StringVarP(&path, "path", "p", "", "Output directory, overrides export.path and export.s3")
	return cmd
}
