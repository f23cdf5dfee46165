package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gitlab.com/nunet/nosana-node-monitor/internal/config"
	"gitlab.com/nunet/nosana-node-monitor/internal/jsonx"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the monitor configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the loaded configuration can be used to run the monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration OK")
		fmt.Fprintf(out, "  node:   %s\n", cfg.Node.Address)
		fmt.Fprintf(out, "  ledger: %s (%s)\n", cfg.LedgerPath(), cfg.Ledger.Backend)
		if cfg.Poll.CronExpr != "" {
			fmt.Fprintf(out, "  poll:   cron %q\n", cfg.Poll.CronExpr)
		} else {
			fmt.Fprintf(out, "  poll:   every %s\n", cfg.Poll.Interval)
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		sections := map[string]interface{}{
			"general":   cfg.General,
			"node":      cfg.Node,
			"endpoints": cfg.Endpoints,
			"poll":      cfg.Poll,
			"ledger":    cfg.Ledger,
			"queue":     cfg.Queue,
			"rest":      cfg.Rest,
			"tracing":   cfg.Tracing,
		}
		raw, err := jsonx.MarshalIndent(sections, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
