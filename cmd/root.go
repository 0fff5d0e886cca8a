package cmd

import (
	"os"

	"github.com/encodeous/dvsim/state"
	"github.com/spf13/cobra"
)

var (
	configPath = state.DefaultConfigPath
	logPath    string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dvsim",
	Short: "Distance vector routing simulator",
	Long: `dvsim runs a small network of distance vector routers on one host.
Each router advertises its routing table to its neighbours over UDP and merges what it hears using Bellman-Ford.
Routers and their interfaces are started and stopped from an interactive shell.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Prepare a topology",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sim",
		Title: "Simulation Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "topology file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "log file, defaults to settings.log_path of the topology")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output and echo logs to the console")
}
