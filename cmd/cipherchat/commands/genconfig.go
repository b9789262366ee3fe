package commands

import (
	"github.com/spf13/cobra"

	"cipherchat/internal/app"
)

func genconfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "genconfig",
		Short: "Print the effective client configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := app.Encode(cfg)
			if err != nil {
				return err
			}
			if out != "" {
				return app.WriteFile(out, b, 0o600)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}
