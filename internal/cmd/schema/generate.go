package schema

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/turbolytics/activerecord/internal/config"
)

func newGenerateCommand() *cobra.Command {
	var query string
	var file string

	var cmd = &cobra.Command{
		Use:   "generate",
		Short: "Generates a table config from a CREATE TABLE statement",
		RunE: func(cmd *cobra.Command, args []string) error {
			ddl := query
			if file != "" {
				bs, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				ddl = string(bs)
			}
			if ddl == "" {
				return fmt.Errorf("one of --query or --file is required")
			}

			t, err := config.TableFromDDL(ddl)
			if err != nil {
				return err
			}
			if _, err := t.Schema(); err != nil {
				return err
			}

			bs, err := yaml.Marshal([]config.Table{t})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(bs)
			return err
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "The CREATE TABLE statement to parse")
	cmd.Flags().StringVarP(&file, "file", "f", "", "File holding the CREATE TABLE statement")
	return cmd
}
