package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/encodeous/dvsim/perf"
	"github.com/encodeous/dvsim/state"
	"github.com/encodeous/tint"
)

const (
	prompt = "dvsim> "
	intro  = "Welcome to the distance vector router simulation.\n" +
		"Type 'help' to list commands.\n" +
		"Type 'quit' to exit."
)

// Prompter reads one line of input.
type Prompter interface {
	Prompt(prompt string) (string, error)
}

type ShellOptions struct {
	Context context.Context
	Log     *slog.Logger
	// Factory binds transports for loaded routers.
	Factory TransportFactory
	// ConfigPath is loaded by load_config when no path is given.
	ConfigPath string
	// Overrides take precedence over the settings of a loaded topology.
	Overrides state.Settings
	Out       io.Writer
	// Show renders the network until the user closes the view. show is unavailable when nil.
	Show func(ctx context.Context, snapshot func() state.NetworkView) error
}

// Shell is the interactive control surface of a simulated network.
type Shell struct {
	opts     ShellOptions
	out      *syncWriter
	commands map[string]*command

	env     *state.Env
	net     *Network
	prev    map[state.NodeId]map[state.NodeId]state.Route
	updates bool
	unsub   func()
}

type command struct {
	name    string
	usage   string
	help    string
	minArgs int
	maxArgs int
	run     func(s *Shell, args []string) error
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func NewShell(opts ShellOptions) *Shell {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = state.DefaultConfigPath
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	s := &Shell{
		opts:     opts,
		out:      &syncWriter{w: opts.Out},
		commands: make(map[string]*command),
		prev:     make(map[state.NodeId]map[state.NodeId]state.Route),
	}
	for _, c := range commands() {
		s.commands[c.name] = c
	}
	s.commands["show_table"] = s.commands["show_tables"]
	s.commands["exit"] = s.commands["quit"]
	return s
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) println(args ...any) {
	_, _ = fmt.Fprintln(s.out, args...)
}

// Network returns the loaded network, or nil.
func (s *Shell) Network() *Network {
	return s.net
}

// Run reads commands until quit, end of input or an aborted prompt.
func (s *Shell) Run(p Prompter) error {
	s.println(intro)
	for {
		line, err := p.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		err = s.Exec(line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			s.printf("error: %v\n", err)
		}
	}
}

// Exec runs a single command line.
func (s *Shell) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	c, ok := s.commands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, type 'help' to list commands", fields[0])
	}
	args := fields[1:]
	if len(args) < c.minArgs || len(args) > c.maxArgs {
		return fmt.Errorf("usage: %s", c.usage)
	}
	return c.run(s, args)
}

// Complete returns every command name that starts with the given line.
func (s *Shell) Complete(line string) []string {
	var out []string
	for name := range s.commands {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Close hides updates and shuts the loaded network down.
func (s *Shell) Close() error {
	s.hideUpdates()
	return s.unload()
}

func (s *Shell) unload() error {
	if s.net == nil {
		return nil
	}
	err := s.net.Close()
	s.env.Cancel(errors.New("network unloaded"))
	s.net = nil
	s.env = nil
	s.unsub = nil
	clear(s.prev)
	return err
}

func (s *Shell) load(path string) error {
	cfg, err := state.LoadTopology(path)
	if err != nil {
		return err
	}
	cfg.Settings = cfg.Settings.Override(s.opts.Overrides).WithDefaults()
	if err := state.TopologyValidator(cfg); err != nil {
		return err
	}
	var saved *savedNetwork
	if s.net != nil {
		saved = saveNetwork(s.net)
	}
	if err := s.unload(); err != nil {
		s.opts.Log.Warn("failed to close previous network", "error", err)
	}
	env := state.NewEnv(s.opts.Context, s.opts.Log, cfg.Settings)
	n, err := NewNetwork(env, cfg, s.opts.Factory)
	if err != nil {
		env.Cancel(err)
		if saved != nil {
			if rerr := s.restore(saved); rerr != nil {
				s.opts.Log.Error("failed to restore previous network", "error", rerr)
				err = errors.Join(err, fmt.Errorf("restoring previous network: %w", rerr))
			} else {
				s.println("Previous network restored, routing tables start over.")
			}
			if s.net != nil && s.updates {
				s.subscribe()
			}
		}
		return err
	}
	s.env = env
	s.net = n
	if s.updates {
		s.subscribe()
	}
	return nil
}

// savedNetwork is the part of a network's state that survives a failed reload.
type savedNetwork struct {
	cfg     *state.TopologyCfg
	added   map[state.NodeId][]state.Link
	active  map[state.NodeId][]netip.AddrPort
	running []state.NodeId
}

func saveNetwork(n *Network) *savedNetwork {
	saved := &savedNetwork{
		cfg:    n.Config(),
		added:  make(map[state.NodeId][]state.Link),
		active: make(map[state.NodeId][]netip.AddrPort),
	}
	for _, r := range n.Routers() {
		for _, l := range r.Links() {
			if !l.Static {
				saved.added[r.id] = append(saved.added[r.id], l)
			}
			if up, _ := r.InterfaceActive(l.Endpoint); up {
				saved.active[r.id] = append(saved.active[r.id], l.Endpoint)
			}
		}
		if r.Running() {
			saved.running = append(saved.running, r.id)
		}
	}
	return saved
}

// restore rebuilds a saved network. Routers start again from their own routes only.
func (s *Shell) restore(saved *savedNetwork) error {
	env := state.NewEnv(s.opts.Context, s.opts.Log, saved.cfg.Settings)
	n, err := NewNetwork(env, saved.cfg, s.opts.Factory)
	if err != nil {
		env.Cancel(err)
		return err
	}
	var errs []error
	for id, links := range saved.added {
		for _, l := range links {
			errs = append(errs, n.AddNeighbor(id, l.Id, l.Endpoint, l.Cost))
		}
	}
	for id, eps := range saved.active {
		for _, ep := range eps {
			errs = append(errs, n.SetInterface(id, ep, true))
		}
	}
	for _, id := range saved.running {
		errs = append(errs, n.StartRouter(id))
	}
	s.env = env
	s.net = n
	return errors.Join(errs...)
}

func (s *Shell) loaded() (*Network, error) {
	if s.net == nil {
		return nil, ErrNotLoaded
	}
	return s.net, nil
}

func (s *Shell) router(id string) (*Router, error) {
	n, err := s.loaded()
	if err != nil {
		return nil, err
	}
	return n.Router(state.NodeId(id))
}

func (s *Shell) iface(r *Router, port string) (netip.AddrPort, error) {
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid port %q", port)
	}
	return r.InterfaceByPort(uint16(p))
}

func (s *Shell) subscribe() {
	logger := slog.New(tint.NewHandler(s.out, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	}))
	ctx := s.opts.Context
	s.unsub = s.net.Trace().Subscribe(func(e Event) {
		level := slog.LevelInfo
		if e.Kind >= SendFailed {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, e.Kind.String(), e.Attrs()...)
	})
}

func (s *Shell) hideUpdates() {
	s.updates = false
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

func (s *Shell) showTables() error {
	n, err := s.loaded()
	if err != nil {
		return err
	}
	for _, r := range n.Routers() {
		prev := s.prev[r.Id()]
		cur := make(map[state.NodeId]state.Route)
		s.printf("\nRouting Table for %s:\n", r.Id())
		s.printf("  %-12s | %8s | %-12s\n", "Destination", "Cost", "Next Hop")
		s.println("  " + strings.Repeat("-", 37))
		for _, e := range r.SnapshotTable() {
			mark := " "
			if old, ok := prev[e.Dest]; !ok || old != e.Route {
				mark = "*"
			}
			cur[e.Dest] = e.Route
			s.printf("%s %-12s | %8d | %-12s\n", mark, e.Dest, e.Cost, e.NextHop)
		}
		s.println("  " + strings.Repeat("-", 37))
		s.prev[r.Id()] = cur
	}
	return nil
}

func (s *Shell) listInterfaces(r *Router) {
	s.printf("\nInterfaces for %s:\n", r.Id())
	s.printf("%-10s | %-21s | %-5s | %-8s | %s\n", "Neighbor", "Interface", "Cost", "Status", "Heard")
	s.println(strings.Repeat("-", 64))
	for _, l := range r.Links() {
		status := "Inactive"
		if up, _ := r.InterfaceActive(l.Endpoint); up {
			status = "Active"
		}
		heard := "-"
		if t, ok := r.NeighborHeard(l.Id); ok {
			heard = time.Since(t).Truncate(time.Second).String() + " ago"
		}
		s.printf("%-10s | %-21s | %-5d | %-8s | %s\n", l.Id, l.Endpoint, l.Cost, status, heard)
	}
	s.println(strings.Repeat("-", 64))
}

func (s *Shell) status() error {
	n, err := s.loaded()
	if err != nil {
		return err
	}
	for _, r := range n.Routers() {
		running := "Stopped"
		if r.Running() {
			running = "Running"
		}
		s.printf("Router %s (%s): %s\n", r.Id(), r.Endpoint(), running)
		ifaces := make([]string, 0)
		for _, l := range r.Links() {
			up, _ := r.InterfaceActive(l.Endpoint)
			ifaces = append(ifaces, fmt.Sprintf("%d=%t", l.Endpoint.Port(), up))
		}
		s.printf("Interfaces: %s\n", strings.Join(ifaces, " "))
		s.println(strings.Repeat("-", 40))
	}
	return nil
}

func (s *Shell) stats() {
	metrics := perf.Snapshot()
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		s.printf("%-26s %s\n", name, metrics[name].String())
	}
}

func (s *Shell) help() {
	names := make([]string, 0, len(s.commands))
	for name, c := range s.commands {
		if name == c.name {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		c := s.commands[name]
		s.printf("%-44s %s\n", c.usage, c.help)
	}
}

func commands() []*command {
	return []*command{
		{
			name: "load_config", usage: "load_config [path]", maxArgs: 1,
			help: "load a topology, replacing the current network",
			run: func(s *Shell, args []string) error {
				path := s.opts.ConfigPath
				if len(args) == 1 {
					path = args[0]
				}
				if err := s.load(path); err != nil {
					return fmt.Errorf("failed to load configuration: %w", err)
				}
				s.printf("Configuration loaded from %s, %d routers.\n", path, len(s.net.Routers()))
				return nil
			},
		},
		{
			name: "start_router", usage: "start_router <router>", minArgs: 1, maxArgs: 1,
			help: "start the update loop of a router",
			run: func(s *Shell, args []string) error {
				r, err := s.router(args[0])
				if err != nil {
					return err
				}
				if !r.Start() {
					s.printf("Router %s is already running.\n", r.Id())
					return nil
				}
				s.printf("Router %s started.\n", r.Id())
				return nil
			},
		},
		{
			name: "stop_router", usage: "stop_router <router>", minArgs: 1, maxArgs: 1,
			help: "stop the update loop of a router",
			run: func(s *Shell, args []string) error {
				r, err := s.router(args[0])
				if err != nil {
					return err
				}
				if !r.Stop() {
					s.printf("Router %s is not running.\n", r.Id())
					return nil
				}
				s.printf("Router %s stopped.\n", r.Id())
				return nil
			},
		},
		{
			name: "start_routers", usage: "start_routers",
			help: "start every router",
			run: func(s *Shell, args []string) error {
				n, err := s.loaded()
				if err != nil {
					return err
				}
				if err := n.StartAll(); err != nil {
					return err
				}
				s.println("All routers started.")
				return nil
			},
		},
		{
			name: "stop_routers", usage: "stop_routers",
			help: "stop every router",
			run: func(s *Shell, args []string) error {
				n, err := s.loaded()
				if err != nil {
					return err
				}
				if err := n.StopAll(); err != nil {
					return err
				}
				s.println("All routers stopped.")
				return nil
			},
		},
		{
			name: "start_interface", usage: "start_interface <router> <port>", minArgs: 2, maxArgs: 2,
			help: "activate the interface towards the neighbour on port",
			run: func(s *Shell, args []string) error {
				return s.toggle(args, true)
			},
		},
		{
			name: "stop_interface", usage: "stop_interface <router> <port>", minArgs: 2, maxArgs: 2,
			help: "deactivate the interface towards the neighbour on port",
			run: func(s *Shell, args []string) error {
				return s.toggle(args, false)
			},
		},
		{
			name: "start_all_interfaces", usage: "start_all_interfaces <router>", minArgs: 1, maxArgs: 1,
			help: "activate every interface of a router",
			run: func(s *Shell, args []string) error {
				return s.toggleAll(args[0], true)
			},
		},
		{
			name: "stop_all_interfaces", usage: "stop_all_interfaces <router>", minArgs: 1, maxArgs: 1,
			help: "deactivate every interface of a router",
			run: func(s *Shell, args []string) error {
				return s.toggleAll(args[0], false)
			},
		},
		{
			name: "all_interfaces_start", usage: "all_interfaces_start",
			help: "activate every interface of every router",
			run: func(s *Shell, args []string) error {
				return s.toggleEvery(true)
			},
		},
		{
			name: "all_interfaces_stop", usage: "all_interfaces_stop",
			help: "deactivate every interface of every router",
			run: func(s *Shell, args []string) error {
				return s.toggleEvery(false)
			},
		},
		{
			name: "add_neighbor", usage: "add_neighbor <router> <peer> <port> <cost>", minArgs: 4, maxArgs: 4,
			help: "add a link at runtime, its interface starts inactive",
			run: func(s *Shell, args []string) error {
				n, err := s.loaded()
				if err != nil {
					return err
				}
				port, err := strconv.ParseUint(args[2], 10, 16)
				if err != nil || port == 0 {
					return fmt.Errorf("invalid port %q", args[2])
				}
				cost, err := strconv.ParseUint(args[3], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid cost %q", args[3])
				}
				ep := n.Config().Endpoint(uint16(port))
				if err := n.AddNeighbor(state.NodeId(args[0]), state.NodeId(args[1]), ep, uint32(cost)); err != nil {
					return err
				}
				s.printf("Added neighbour %s on port %d to router %s with cost %d.\n", args[1], port, args[0], cost)
				return nil
			},
		},
		{
			name: "list_interfaces", usage: "list_interfaces <router>", minArgs: 1, maxArgs: 1,
			help: "list the interfaces of a router",
			run: func(s *Shell, args []string) error {
				r, err := s.router(args[0])
				if err != nil {
					return err
				}
				s.listInterfaces(r)
				return nil
			},
		},
		{
			name: "show_tables", usage: "show_tables",
			help: "print every routing table, * marks entries changed since the last call",
			run: func(s *Shell, args []string) error {
				return s.showTables()
			},
		},
		{
			name: "status", usage: "status",
			help: "print whether each router runs and its interface states",
			run: func(s *Shell, args []string) error {
				return s.status()
			},
		},
		{
			name: "show_updates", usage: "show_updates",
			help: "print router events as they happen",
			run: func(s *Shell, args []string) error {
				if s.updates {
					s.println("Updates are already shown.")
					return nil
				}
				s.updates = true
				if s.net != nil {
					s.subscribe()
				}
				s.println("Showing updates.")
				return nil
			},
		},
		{
			name: "hide_updates", usage: "hide_updates",
			help: "stop printing router events",
			run: func(s *Shell, args []string) error {
				s.hideUpdates()
				s.println("Hiding updates.")
				return nil
			},
		},
		{
			name: "stats", usage: "stats",
			help: "print protocol metrics",
			run: func(s *Shell, args []string) error {
				s.stats()
				return nil
			},
		},
		{
			name: "show", usage: "show",
			help: "draw the topology until q is pressed",
			run: func(s *Shell, args []string) error {
				n, err := s.loaded()
				if err != nil {
					return err
				}
				if s.opts.Show == nil {
					return errors.New("show is not available in this terminal")
				}
				return s.opts.Show(s.opts.Context, n.View)
			},
		},
		{
			name: "help", usage: "help",
			help: "list commands",
			run: func(s *Shell, args []string) error {
				s.help()
				return nil
			},
		},
		{
			name: "quit", usage: "quit",
			help: "stop every router and exit",
			run: func(s *Shell, args []string) error {
				return errQuit
			},
		},
	}
}

func (s *Shell) toggle(args []string, active bool) error {
	r, err := s.router(args[0])
	if err != nil {
		return err
	}
	ep, err := s.iface(r, args[1])
	if err != nil {
		return err
	}
	if err := r.SetInterfaceActive(ep, active); err != nil {
		return err
	}
	s.printf("%s interface %d on router %s.\n", verb(active), ep.Port(), r.Id())
	return nil
}

func (s *Shell) toggleAll(id string, active bool) error {
	n, err := s.loaded()
	if err != nil {
		return err
	}
	if err := n.SetAllInterfaces(state.NodeId(id), active); err != nil {
		return err
	}
	s.printf("%s all interfaces of router %s.\n", verb(active), id)
	return nil
}

func (s *Shell) toggleEvery(active bool) error {
	n, err := s.loaded()
	if err != nil {
		return err
	}
	if err := n.SetEveryInterface(active); err != nil {
		return err
	}
	s.printf("%s all interfaces of all routers.\n", verb(active))
	return nil
}

func verb(active bool) string {
	if active {
		return "Started"
	}
	return "Stopped"
}
