package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turbolytics/activerecord/internal/cmd/export"
	"github.com/turbolytics/activerecord/internal/cmd/fixtures"
	"github.com/turbolytics/activerecord/internal/cmd/records"
	"github.com/turbolytics/activerecord/internal/cmd/schema"
)

func NewRootCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "activerecord",
		Short: "Maps table rows to records and back",
		Long: `activerecord loads table schemas from a config file and reads or writes
rows through the configured database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "activerecord.yml", "Path to config file")
	viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	viper.SetEnvPrefix("ACTIVERECORD")
	viper.AutomaticEnv()

	cmd.AddCommand(schema.NewCommand())
	cmd.AddCommand(records.NewCommand())
	cmd.AddCommand(export.NewCommand())
	cmd.AddCommand(fixtures.NewCommand())
	cmd.AddCommand(newServeCommand())

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
