package viz

import "github.com/gdamore/tcell/v2"

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	col := x
	for _, r := range text {
		s.SetContent(col, y, r, nil, style)
		col++
	}
}

// drawLine rasterises the segment between two cells.
func drawLine(s tcell.Screen, x1, y1, x2, y2 int, style tcell.Style) {
	dx, dy := abs(x2-x1), -abs(y2-y1)
	sx, sy := sign(x2-x1), sign(y2-y1)
	err := dx + dy
	for {
		s.SetContent(x1, y1, lineRune(dx, -dy), nil, style)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

func drawBox(s tcell.Screen, x1, y1, x2, y2 int, style tcell.Style) {
	for row := y1; row <= y2; row++ {
		s.SetContent(x1, row, '│', nil, style)
		s.SetContent(x2, row, '│', nil, style)
	}
	for col := x1 + 1; col < x2; col++ {
		s.SetContent(col, y1, '─', nil, style)
		s.SetContent(col, y2, '─', nil, style)
	}
	s.SetContent(x1, y1, '┌', nil, style)
	s.SetContent(x2, y1, '┐', nil, style)
	s.SetContent(x1, y2, '└', nil, style)
	s.SetContent(x2, y2, '┘', nil, style)
}

func lineRune(dx, dy int) rune {
	switch {
	case dy == 0:
		return '─'
	case dx == 0:
		return '│'
	default:
		return '·'
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
