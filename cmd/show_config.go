package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dggscli/pkg/utils"
)

var showConfigCmd = &cobra.Command{
	Use:   "show-config <config.toml>",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and environment overrides are applied.
Credentials are masked.`,
	Example: `  dggscli show-config config.toml
  dggscli show-config config.toml --format json`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runShowConfig,
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	const command = "show-config"

	cfg, _, err := setup(cmd, args[0])
	if err != nil {
		utils.PrintError(err, command)
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		if err := utils.PrintJSON(cfg); err != nil {
			utils.PrintError(err, command)
			return err
		}
	case "yaml":
		out, err := cfg.Redacted()
		if err != nil {
			utils.PrintError(err, command)
			return err
		}
		fmt.Print(out)
	default:
		err := fmt.Errorf("unknown format %q, expected yaml or json", format)
		utils.PrintError(err, command)
		return err
	}
	return nil
}

func init() {
	showConfigCmd.Flags().StringP("format", "f", "yaml", "Output format: yaml or json")
}
