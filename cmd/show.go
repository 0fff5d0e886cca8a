package cmd

import (
	"context"
	"time"

	"github.com/encodeous/dvsim/core"
	"github.com/encodeous/dvsim/state"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Run every router in process and draw the network",
	Long: `Starts every router of the topology on an in-process network with all interfaces up,
then draws the topology and routing tables until q is pressed or --for elapses.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger, closer := newLogger(false)
		defer closer.Close()

		cfg, err := state.LoadTopology(configPath)
		if err != nil {
			panic(err)
		}
		overrides := state.Settings{}
		overrides.Interval, _ = cmd.Flags().GetDuration("interval")
		cfg.Settings = cfg.Settings.Override(overrides).WithDefaults()

		ctx := context.Background()
		if d, _ := cmd.Flags().GetDuration("for"); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		env := state.NewEnv(ctx, logger, cfg.Settings)
		n, err := core.NewNetwork(env, cfg, core.NewMemNetwork().Factory())
		if err != nil {
			panic(err)
		}
		defer n.Close()
		if err := n.SetEveryInterface(true); err != nil {
			panic(err)
		}
		if err := n.StartAll(); err != nil {
			panic(err)
		}

		if err := showTerminal(ctx, n.View); err != nil {
			panic(err)
		}
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().Duration("for", 0, "close the view after this long, 0 waits for q")
	showCmd.Flags().Duration("interval", 2*time.Second, "update interval")
}
