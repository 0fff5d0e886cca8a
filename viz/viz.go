// Package viz draws a simulated network in the terminal.
package viz

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/encodeous/dvsim/state"
	"github.com/gdamore/tcell/v2"
)

// RefreshInterval is how often Run redraws the network.
var RefreshInterval = time.Second

const panelWidth = 30

var (
	baseStyle     = tcell.StyleDefault
	titleStyle    = baseStyle.Bold(true)
	runningStyle  = baseStyle.Background(tcell.ColorGreen).Foreground(tcell.ColorBlack)
	stoppedStyle  = baseStyle.Background(tcell.ColorRed).Foreground(tcell.ColorWhite)
	activeEdge    = baseStyle.Foreground(tcell.ColorLightBlue)
	inactiveEdge  = baseStyle.Foreground(tcell.ColorGray)
	costStyle     = baseStyle.Foreground(tcell.ColorYellow)
	panelStyle    = baseStyle.Foreground(tcell.ColorGray)
	footerMessage = "q / Esc: close   green: running   red: stopped   blue link: active"
)

type point struct{ x, y int }

type edge struct {
	a, b   state.NodeId
	cost   uint32
	active bool
}

// layout places nodes on an ellipse inside the given area.
func layout(nodes []state.NodeView, w, h int) map[state.NodeId]point {
	pos := make(map[state.NodeId]point, len(nodes))
	cx, cy := w/2, h/2
	rx, ry := float64(max(w/2-8, 1)), float64(max(h/2-2, 1))
	for i, n := range nodes {
		angle := 2*math.Pi*float64(i)/float64(len(nodes)) - math.Pi/2
		pos[n.Id] = point{
			x: cx + int(math.Round(rx*math.Cos(angle))),
			y: cy + int(math.Round(ry*math.Sin(angle))),
		}
	}
	return pos
}

// edges merges both directions of every link. A link is active when either side may send over it
// and both routers run.
func edges(v state.NetworkView) []edge {
	running := make(map[state.NodeId]bool, len(v.Nodes))
	for _, n := range v.Nodes {
		running[n.Id] = n.Running
	}
	index := make(map[[2]state.NodeId]int)
	var out []edge
	for _, n := range v.Nodes {
		for _, e := range n.Edges {
			if _, ok := running[e.Peer]; !ok {
				continue
			}
			key := [2]state.NodeId{n.Id, e.Peer}
			if key[1] < key[0] {
				key[0], key[1] = key[1], key[0]
			}
			active := e.Active && n.Running && running[e.Peer]
			if i, ok := index[key]; ok {
				out[i].active = out[i].active || active
				continue
			}
			index[key] = len(out)
			out = append(out, edge{a: key[0], b: key[1], cost: e.Cost, active: active})
		}
	}
	return out
}

func nodeLabel(n state.NodeView) string {
	return fmt.Sprintf(" %s:%d ", n.Id, n.Endpoint.Port())
}

// Render draws the whole view and shows it.
func Render(s tcell.Screen, v state.NetworkView) {
	s.Clear()
	w, h := s.Size()
	graphW := w
	if w >= 2*panelWidth+20 {
		graphW = w - panelWidth
	}
	graphH := h - 2

	drawText(s, 0, 0, titleStyle, fmt.Sprintf("dvsim: %d routers", len(v.Nodes)))
	pos := layout(v.Nodes, graphW, graphH)

	for _, e := range edges(v) {
		a, b := pos[e.a], pos[e.b]
		style := inactiveEdge
		if e.active {
			style = activeEdge
		}
		drawLine(s, a.x, a.y+1, b.x, b.y+1, style)
		label := fmt.Sprint(e.cost)
		drawText(s, (a.x+b.x)/2-len(label)/2, (a.y+b.y)/2+1, costStyle, label)
	}

	for _, n := range v.Nodes {
		p := pos[n.Id]
		style := stoppedStyle
		if n.Running {
			style = runningStyle
		}
		label := nodeLabel(n)
		drawText(s, p.x-len(label)/2, p.y+1, style, label)
	}

	if graphW != w {
		drawTables(s, graphW, 1, w-1, h-2, v)
	}
	drawText(s, 0, h-1, panelStyle, footerMessage)
	s.Show()
}

func drawTables(s tcell.Screen, x1, y1, x2, y2 int, v state.NetworkView) {
	drawBox(s, x1, y1, x2, y2, panelStyle)
	drawText(s, x1+2, y1, titleStyle, " routing tables ")
	row := y1 + 1
	for _, n := range v.Nodes {
		if row >= y2 {
			return
		}
		drawText(s, x1+2, row, titleStyle, string(n.Id))
		row++
		for _, e := range n.Table {
			if row >= y2 {
				return
			}
			line := fmt.Sprintf("%-8s %6d via %s", e.Dest, e.Cost, e.NextHop)
			if len(line) > x2-x1-3 {
				line = line[:x2-x1-3]
			}
			drawText(s, x1+2, row, baseStyle, line)
			row++
		}
	}
}

// Run redraws the network every RefreshInterval until a quit key is pressed or ctx ends.
// The caller owns the screen and must have initialised it.
func Run(ctx context.Context, s tcell.Screen, snapshot func() state.NetworkView) error {
	events := make(chan tcell.Event)
	quit := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			ev := s.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()
	defer func() {
		close(quit)
		// wake the poller in case it is waiting for input
		_ = s.PostEvent(tcell.NewEventInterrupt(nil))
		<-polled
	}()

	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()
	Render(s, snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			Render(s, snapshot())
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				s.Sync()
				Render(s, snapshot())
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
					return nil
				}
			}
		}
	}
}
