package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/encodeous/dvsim/core"
	"github.com/encodeous/dvsim/state"
	"github.com/encodeous/dvsim/viz"
	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a topology and open the router shell",
	Long: `Loads the topology given by --config and opens an interactive shell to control its routers.
Routers bind UDP sockets on the topology host unless --mem is given, in which case they exchange advertisements in process.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger, closer := newLogger(verbose)
		defer closer.Close()

		overrides := settingsOverrides(cmd)

		factory := core.UDPFactory
		if mem, _ := cmd.Flags().GetBool("mem"); mem {
			factory = core.NewMemNetwork().Factory()
		}

		if addr, _ := cmd.Flags().GetString("debug-addr"); addr != "" {
			go func() {
				// serves /debug/vars and /debug/metrics
				err := http.ListenAndServe(addr, nil)
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("debug server stopped", "error", err)
				}
			}()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		shell := core.NewShell(core.ShellOptions{
			Context:    ctx,
			Log:        logger,
			Factory:    factory,
			ConfigPath: configPath,
			Overrides:  overrides,
			Out:        os.Stdout,
			Show:       showTerminal,
		})
		defer func() {
			if err := shell.Close(); err != nil {
				logger.Error("failed to stop routers", "error", err)
			}
		}()

		if _, err := os.Stat(configPath); err == nil {
			if err := shell.Exec("load_config"); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}

		prompter, restore := newPrompter(shell.Complete)
		defer restore()
		err := shell.Run(prompter)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "sim",
}

func addSettingsFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", 0, fmt.Sprintf("update interval, overrides the topology (default %s)", state.UpdateInterval))
	cmd.Flags().Int("receive-per-cycle", 0, "datagrams handled per cycle, 0 drains the inbox (default: the topology's value)")
	cmd.Flags().Int("inbox-size", 0, fmt.Sprintf("datagrams queued per router (default %d)", state.InboxSize))
}

// settingsOverrides collects the settings flags given on the command line.
func settingsOverrides(cmd *cobra.Command) state.Settings {
	overrides := state.Settings{}
	overrides.Interval, _ = cmd.Flags().GetDuration("interval")
	overrides.InboxSize, _ = cmd.Flags().GetInt("inbox-size")
	if cmd.Flags().Changed("receive-per-cycle") {
		overrides.ReceivePerCycle, _ = cmd.Flags().GetInt("receive-per-cycle")
		if overrides.ReceivePerCycle == 0 {
			overrides.ReceivePerCycle = state.DrainInbox
		}
	}
	return overrides
}

// showTerminal takes over the terminal until the user closes the view.
func showTerminal(ctx context.Context, snapshot func() state.NetworkView) error {
	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()
	return viz.Run(ctx, s, snapshot)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("mem", false, "exchange advertisements in process instead of over UDP")
	addSettingsFlags(runCmd)
	runCmd.Flags().String("debug-addr", "", "serve expvar metrics on this address, e.g. 127.0.0.1:6060")
}
