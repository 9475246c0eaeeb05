package records

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turbolytics/activerecord/internal/config"
	"github.com/turbolytics/activerecord/pkg/query"
	"github.com/turbolytics/activerecord/pkg/record"
)

func NewCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "records",
		Short: "Reads and writes the rows of a configured table",
	}

	cmd.AddCommand(newFindCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newCountCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newSaveCommand())

	return cmd
}

// open bootstraps the runtime and resolves the table model. Change events
// go to stderr so stdout only carries rows.
func open(cmd *cobra.Command, name, table string) (*config.Runtime, *record.Model, error) {
	rt, err := config.Bootstrap(cmd.Context(), viper.GetString("config"), "activerecord.records."+name, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	m, err := rt.Model(table)
	if err != nil {
		rt.Close(cmd.Context())
		return nil, nil, err
	}
	return rt, m, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writeRecords(w io.Writer, recs ...*record.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r.ToArray()); err != nil {
			return err
		}
	}
	return nil
}

type selectFlags struct {
	where  string
	order  []string
	limit  int
	offset int
}

func (f *selectFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringVarP(&f.where, "where", "w", "", "Condition, e.g. \"qty >= 5 and name like 'b%'\"")
	if paging {
		cmd.Flags().StringSliceVarP(&f.order, "order", "o", nil, "Order by fields, prefix with - for descending")
		cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum number of rows")
		cmd.Flags().IntVar(&f.offset, "offset", 0, "Rows to skip")
	}
}

func (f *selectFlags) build(m *record.Model) (*query.Select, error) {
	sel := m.Select()
	filters, err := query.ParseWhere(f.where)
	if err != nil {
		return nil, err
	}
	sel.Where = filters
	for _, o := range f.order {
		if strings.HasPrefix(o, "-") {
			sel.OrderBy(strings.TrimPrefix(o, "-"), true)
		} else {
			sel.OrderBy(o, false)
		}
	}
	sel.Paginate(f.limit, f.offset)
	return sel, nil
}

func closeRuntime(ctx context.Context, rt *config.Runtime, err *error) {
	if cerr := rt.Close(ctx); cerr != nil && *err == nil {
		*err = cerr
	}
}
