package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(env *environment) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := env.loadConfig(cmd.Flags()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	})

	var (
		showSecrets bool
		output      string
	)
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, secrets, err := env.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if !showSecrets {
				cfg = cfg.Masked(secrets)
			}

			switch output {
			case "yaml":
				formatted, err := cfg.YAML()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), formatted)
			case "text":
				fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			default:
				return fmt.Errorf("unsupported output %q (supported: yaml, text)", output)
			}
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	showCmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml, text)")
	configCmd.AddCommand(showCmd)

	return configCmd
}
