package records

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newFindCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "find <table> <id>",
		Short: "Prints the row with the given primary key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			rt, m, err := open(cmd, "find", args[0])
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.Context(), rt, &err)

			rec, err := m.Find(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%s %d not found", args[0], id)
			}
			return writeRecords(cmd.OutOrStdout(), rec)
		},
	}
	return cmd
}

func newListCommand() *cobra.Command {
	var f selectFlags

	var cmd = &cobra.Command{
		Use:   "list <table>",
		Short: "Prints matching rows as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rt, m, err := open(cmd, "list", args[0])
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.Context(), rt, &err)

			sel, err := f.build(m)
			if err != nil {
				return err
			}
			recs, err := m.FetchAll(cmd.Context(), sel)
			if err != nil {
				return err
			}
			rt.Logger.Debug("fetched rows", zap.String("table", args[0]), zap.Int("rows", len(recs)))
			return writeRecords(cmd.OutOrStdout(), recs...)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newCountCommand() *cobra.Command {
	var f selectFlags

	var cmd = &cobra.Command{
		Use:   "count <table>",
		Short: "Prints the number of matching rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rt, m, err := open(cmd, "count", args[0])
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.Context(), rt, &err)

			sel, err := f.build(m)
			if err != nil {
				return err
			}
			n, err := m.Count(cmd.Context(), sel)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	f.register(cmd, false)
	return cmd
}
