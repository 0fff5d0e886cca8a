package state

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatJson = `{
  "R10": {"port": 5010, "neighbors": {"R20": [5020, 1]}},
  "R20": {"port": 5020, "neighbors": {"R10": [5010, 1], "R30": [5030, 2]}},
  "R30": {"port": 5030, "neighbors": {"R20": [5020, 2]}}
}`

const fullYaml = `settings:
  host: 127.0.0.2
  interval: 2s
  receive_per_cycle: 1
routers:
  a:
    port: 6000
    neighbors:
      b: [6001, 4]
  b:
    port: 6001
    neighbors:
      a: [6000, 4]
`

func TestParseTopologyFlatJson(t *testing.T) {
	cfg, err := ParseTopology([]byte(flatJson))
	require.NoError(t, err)
	assert.Equal(t, []NodeId{"R10", "R20", "R30"}, cfg.RouterIds())
	assert.Equal(t, NeighborCfg{Port: 5030, Cost: 2}, cfg.Routers["R20"].Neighbors["R30"])
	assert.Equal(t, DefaultHost, cfg.Host())
	assert.NoError(t, TopologyValidator(cfg))
}

func TestParseTopologyFullYaml(t *testing.T) {
	cfg, err := ParseTopology([]byte(fullYaml))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.2", cfg.Settings.Host)
	assert.Equal(t, 2*time.Second, cfg.Settings.Interval)
	assert.Equal(t, 1, cfg.Settings.ReceivePerCycle)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.2:6001"), cfg.Endpoint(6001))

	links, err := cfg.Links("a")
	require.NoError(t, err)
	assert.Equal(t, []Link{{Id: "b", Endpoint: netip.MustParseAddrPort("127.0.0.2:6001"), Cost: 4, Static: true}}, links)

	_, err = cfg.Links("zz")
	assert.ErrorIs(t, err, ErrUnknownRouter)
}

func TestParseTopologyInvalidNeighbor(t *testing.T) {
	_, err := ParseTopology([]byte(`{"a": {"port": 1, "neighbors": {"b": [2]}}}`))
	assert.ErrorContains(t, err, "[port, cost]")

	_, err = ParseTopology([]byte(`{"a": {"port": 1, "neighbors": {"b": [70000, 1]}}}`))
	assert.ErrorContains(t, err, "out of range")
}

func TestTopologyRoundTrip(t *testing.T) {
	cfg := SampleTopology()
	out, err := MarshalTopology(cfg)
	require.NoError(t, err)

	parsed, err := ParseTopology(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Routers, parsed.Routers)
	assert.Equal(t, cfg.Settings.Interval, parsed.Settings.Interval)
	assert.NoError(t, TopologyValidator(parsed))
}

func TestLoadTopology(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(flatJson), 0600))

	cfg, err := LoadTopology(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Routers, 3)

	_, err = LoadTopology(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
