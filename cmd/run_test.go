package cmd

import (
	"testing"
	"time"

	"github.com/encodeous/dvsim/state"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsOverrides(t *testing.T) {
	parse := func(args ...string) state.Settings {
		cmd := &cobra.Command{}
		addSettingsFlags(cmd)
		require.NoError(t, cmd.Flags().Parse(args))
		return settingsOverrides(cmd)
	}

	assert.Equal(t, state.Settings{}, parse())
	assert.Equal(t, state.Settings{Interval: time.Second, InboxSize: 8},
		parse("--interval", "1s", "--inbox-size", "8"))
	assert.Equal(t, 2, parse("--receive-per-cycle", "2").ReceivePerCycle)

	// an explicit 0 must still win over the topology file
	drain := parse("--receive-per-cycle", "0")
	assert.Equal(t, state.DrainInbox, drain.ReceivePerCycle)
	file := state.Settings{ReceivePerCycle: 1}
	assert.Equal(t, state.DrainInbox, file.Override(drain).ReceivePerCycle)
}
