package analysis

import (
	"math"
	"strings"
)

// plane is a character canvas over a rectangle of the real plane. The
// rectangle is widened by a tenth of its span on every side so points on
// the bounds stay off the border.
type plane struct {
	x0, y0, sx, sy float64
	cells          [][]rune
}

func newPlane(minX, maxX, minY, maxY float64, width, height int) *plane {
	spanX, spanY := maxX-minX, maxY-minY
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}
	minX -= spanX / 10
	minY -= spanY / 10
	spanX *= 1.2
	spanY *= 1.2

	cells := make([][]rune, height)
	for r := range cells {
		cells[r] = []rune(strings.Repeat(" ", width))
	}
	return &plane{
		x0:    minX,
		y0:    minY,
		sx:    float64(width-1) / spanX,
		sy:    float64(height-1) / spanY,
		cells: cells,
	}
}

func (p *plane) width() int  { return len(p.cells[0]) }
func (p *plane) height() int { return len(p.cells) }

// cell maps (x, y) to a row and column; ok is false off the canvas.
func (p *plane) cell(x, y float64) (row, col int, ok bool) {
	col = int((x - p.x0) * p.sx)
	row = p.height() - 1 - int((y-p.y0)*p.sy)
	ok = row >= 0 && row < p.height() && col >= 0 && col < p.width()
	return row, col, ok
}

func (p *plane) set(x, y float64, mark rune) {
	if r, c, ok := p.cell(x, y); ok {
		p.cells[r][c] = mark
	}
}

// vline and hline draw an axis through x or y without covering marks.
func (p *plane) vline(x float64) {
	_, c, _ := p.cell(x, p.y0)
	if c < 0 || c >= p.width() {
		return
	}
	for r := range p.cells {
		if p.cells[r][c] == ' ' {
			p.cells[r][c] = '│'
		}
	}
}

func (p *plane) hline(y float64) {
	r, _, _ := p.cell(p.x0, y)
	if r < 0 || r >= p.height() {
		return
	}
	for c := range p.cells[r] {
		if p.cells[r][c] == ' ' {
			p.cells[r][c] = '─'
		}
	}
}

func (p *plane) String() string {
	var sb strings.Builder
	for _, line := range p.cells {
		sb.WriteString(string(line))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
