package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "mender-cli",
	Short: "mender-cli is the command-line interface for code-mender.",
	Long:  `A CLI for analyzing projects with static-analysis tools, ranking the findings, and driving LLM-suggested fixes through verification.`,
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("CM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// isRemoteTarget reports whether a project argument names a remote repository
// rather than a local path.
func isRemoteTarget(target string) bool {
	return strings.Contains(target, "://") || strings.HasPrefix(target, "git@")
}
