package schema

import (
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "schema",
		Short: "Utilities to check and generate table schemas",
	}

	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newGenerateCommand())

	return cmd
}
