// Package config implements the config command.
package config

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/longrec/internal/conf"
)

// Command creates the config command. Secrets are masked in the output.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := conf.DumpYAML(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
