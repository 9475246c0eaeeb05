package schema

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turbolytics/activerecord/internal/config"
)

func newValidateCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "validate",
		Short: "Checks every table schema in the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.NewFromFile(viper.GetString("config"))
			if err != nil {
				return err
			}
			reg, err := c.Registry()
			if err != nil {
				return err
			}
			for _, table := range reg.Tables() {
				s, _ := reg.Lookup(table)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d fields, primary key %s\n",
					table, len(s.Fields()), s.PrimaryKey())
			}
			return nil
		},
	}
	return cmd
}
