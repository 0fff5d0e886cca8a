package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/dvsim/state"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the sample five router topology",
	Run: func(cmd *cobra.Command, args []string) {
		outPath := cmd.Flag("output").Value.String()
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(outPath); err == nil && !force {
			fmt.Printf("%s already exists, use --force to overwrite it\n", outPath)
			os.Exit(1)
		}

		data, err := state.MarshalTopology(state.SampleTopology())
		if err != nil {
			panic(err)
		}
		err = os.WriteFile(outPath, data, 0644)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Wrote %s\n", outPath)
	},
	GroupID: "init",
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a topology and print it in normalized form",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := state.LoadTopology(configPath)
		if err != nil {
			panic(err)
		}
		cfg.Settings = cfg.Settings.WithDefaults()
		if err := state.TopologyValidator(cfg); err != nil {
			fmt.Printf("%s is invalid: %v\n", configPath, err)
			os.Exit(1)
		}

		out, err := state.MarshalTopology(cfg)
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s is valid\n", configPath)
		for _, id := range cfg.RouterIds() {
			links, _ := cfg.Links(id)
			fmt.Printf("  %s on %s, %d neighbours\n", id, cfg.Endpoint(cfg.Routers[id].Port), len(links))
		}
		fmt.Println(string(out))
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)

	initCmd.Flags().StringP("output", "o", state.DefaultConfigPath, "Output file")
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
}
