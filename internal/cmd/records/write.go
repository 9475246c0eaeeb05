package records

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDeleteCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Deletes the row with the given primary key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			rt, m, err := open(cmd, "delete", args[0])
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.Context(), rt, &err)

			if err := m.New().DeleteByID(cmd.Context(), id); err != nil {
				return err
			}
			rt.Logger.Info("deleted", zap.String("table", args[0]), zap.Int64("id", id))
			return nil
		},
	}
	return cmd
}

func newSaveCommand() *cobra.Command {
	var data string

	var cmd = &cobra.Command{
		Use:   "save <table>",
		Short: "Inserts a row, or updates it when the data carries its primary key",
		Long: `save reads a JSON object from --data. Without a primary key the row is
inserted. With one, the stored row is loaded, the given fields are applied on
top of it and the row is updated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			values := map[string]any{}
			dec := json.NewDecoder(bytes.NewBufferString(data))
			dec.UseNumber()
			if err := dec.Decode(&values); err != nil {
				return fmt.Errorf("decode --data: %w", err)
			}

			rt, m, err := open(cmd, "save", args[0])
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.Context(), rt, &err)

			rec := m.New()
			pk := m.Schema().PrimaryKey()
			if v, ok := values[pk]; ok && v != nil {
				id, err := m.Schema().Coerce(pk, v)
				if err != nil {
					return err
				}
				if id := id.(int64); id > 0 {
					existing, err := m.Find(cmd.Context(), id)
					if err != nil {
						return err
					}
					if existing == nil {
						return fmt.Errorf("%s %d not found", args[0], id)
					}
					rec = existing
				}
			}
			if err := rec.ExchangeArray(values); err != nil {
				return err
			}
			if err := rec.Save(cmd.Context()); err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), rec)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "{}", "JSON object of field values")
	return cmd
}
