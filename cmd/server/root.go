package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/warp/accrual-engine/config"
	"github.com/warp/accrual-engine/logging"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "accrual-engine",
	Short: "Recomputes per-day accrual balances when time records change.",
	Long: `accrual-engine keeps running totals of accrued worked time (annual target hours,
night hours) up to date as time records are created and deleted.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(v)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.accrual-engine.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("logformat", "text", "Log format: text or json")

	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("loglevel"))
	v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("logformat"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	if err := config.UseFile(v, cfgFile); err != nil {
		return err
	}
	if err := config.Read(v); err != nil {
		return err
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	// Init log library
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	if err := logging.SetFormat(cfg.Log.Format); err != nil {
		return err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logging.Log.WithField("file", used).Debug("Config file loaded")
	}
	return nil
}
