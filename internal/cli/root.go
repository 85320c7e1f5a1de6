// Package cli implements the foundry command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "foundry",
	Short: "Gated multi-agent workflow orchestrator",
	Long: `foundry drives products through a sequence of human-approved gates,
backed by an event-sourced truth store.

Every state change is an appended event; projections (gates, tasks,
proofs, documents) are derived views. Gate approvals require typed
confirmation and hash-verified proof artifacts.

Quick start:
  foundry project create my-app --owner alice
  foundry gate current my-app
  foundry task add my-app --category generation "Build the API"
  foundry serve`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .foundry/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newProjectCmd())
	rootCmd.AddCommand(newGateCmd())
	rootCmd.AddCommand(newTaskCmd())
	rootCmd.AddCommand(newProofCmd())
	rootCmd.AddCommand(newAssessCmd())
	rootCmd.AddCommand(newSpecCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".foundry")
		viper.AddConfigPath("$HOME/.foundry")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("FOUNDRY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
