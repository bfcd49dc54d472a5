// Package cmd implements the CLI commands for videodl.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/observability"
	"github.com/jmylchreest/videodl/internal/version"
)

var (
	cfgFile string
	debug   bool
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "videodl",
	Short:   "Media downloader with NLE-ready post-processing",
	Version: version.Short(),
	Long: `videodl fetches media through yt-dlp and, when asked, remuxes or
re-encodes the result with ffmpeg so the output imports directly into
non-linear editors or matches a requested codec target.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose application logs")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose logs for all dependencies too")
}

// mustBindPFlag binds a cobra flag to a viper key, panicking on programmer
// error (a missing flag name).
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", key, err))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.videodl")
		viper.AddConfigPath("/etc/videodl")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("VIDEODL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// initLogging configures the slog logger from config and the two verbosity
// flags. Both raise the application level; --verbose additionally switches
// the external tools themselves to verbose output (wired into the
// orchestrator by the download command).
func initLogging() error {
	logCfg := config.LoggingConfig{
		Level:      viper.GetString("logging.level"),
		Format:     viper.GetString("logging.format"),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}
	if debug || verbose {
		logCfg.Level = "debug"
	}
	observability.SetDefault(observability.NewLogger(logCfg))
	return nil
}
