package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Print the metrics of a running simulation",
	Long:    `Reads the expvar page of a simulation started with run --debug-addr.`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		resp, err := http.Get("http://" + addr + "/debug/vars")
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		defer resp.Body.Close()

		var vars map[string]json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&vars); err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		names := make([]string, 0)
		for name := range vars {
			if strings.HasPrefix(name, "dvsim:") {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Printf("%-26s %s\n", name, vars[name])
		}
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().String("addr", "127.0.0.1:6060", "debug address of the simulation")
}
