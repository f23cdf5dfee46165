package cmd

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gitlab.com/nunet/nosana-node-monitor/internal/config"
)

var (
	flagConfig string
	flagNode   string
)

var rootCmd = &cobra.Command{
	Use:     "nosana-monitor",
	Short:   "Nosana node monitor",
	Long:    `Polls the public Nosana endpoints for a single node, keeps a persisted ledger of its jobs and serves the latest snapshot over HTTP.`,
	Version: Version,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: false,
		HiddenDefaultCmd:  true,
	},
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	bindGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func bindGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&flagConfig, "config", "c", "", "path to a nosana_config.json file")
	fs.StringVarP(&flagNode, "node", "n", "", "node address, overrides node.address")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// .env is optional
	_ = godotenv.Load()

	if flagConfig != "" {
		if err := config.LoadConfigFile(flagConfig); err != nil {
			return err
		}
	} else {
		config.LoadConfig()
	}
	if flagNode != "" {
		config.SetConfig("node.address", flagNode)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func Execute() {
	// CheckErr prints formatted error message, if there is any, and exits
	cobra.CheckErr(rootCmd.ExecuteContext(context.Background()))
}
