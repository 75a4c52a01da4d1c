// File: cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

var cfgFile string

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "formpilot",
	Short:   "Formpilot drives multi-step web application forms with human review at every decision point.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Fall back to a console logger so the failure is visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "formpilot"})
			return err
		}

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Configuration loaded", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml, then ~/.formpilot/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig merges defaults, the config file, and FORMPILOT_*
// environment variables, in ascending precedence.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("expanding config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.formpilot")
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FORMPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment carry the run.
	}
	return nil
}
