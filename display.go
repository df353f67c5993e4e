package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/stesla/ntx/internal/ios"
)

const tabWidth = 8

// pc palette order to ANSI color numbers
var ansiColor = [8]int{0, 4, 2, 6, 1, 5, 3, 7}

type cell struct {
	r      rune
	fg, bg ios.Color
}

// terminal draws an ios.Display on an ANSI terminal. It keeps a copy of the
// screen so boxes can be scrolled and repainted.
type terminal struct {
	w             *bufio.Writer
	width, height int
	cells         []cell
	x, y          int
	fg, bg        ios.Color
}

func newTerminal(w io.Writer, width, height int) *terminal {
	if width <= 0 || height <= 0 {
		width, height = 80, 25
	}
	t := &terminal{
		w:      bufio.NewWriter(w),
		width:  width,
		height: height,
		cells:  make([]cell, width*height),
		fg:     7,
	}
	t.fill(0, 0, width, height)
	return t
}

func (t *terminal) Flush() error { return t.w.Flush() }

// Reset restores the terminal's own attributes and cursor.
func (t *terminal) Reset() error {
	fmt.Fprintf(t.w, "\x1b[0m\x1b[?25h\x1b[0 q\x1b[%d;1H\r\n", t.height)
	return t.Flush()
}

func (t *terminal) Size() (int, int) { return t.width, t.height }

func (t *terminal) Colors() (ios.Color, ios.Color) { return t.fg, t.bg }

func (t *terminal) SetColors(fg, bg ios.Color) {
	t.fg, t.bg = fg&0x0f, bg&0x0f
}

func (t *terminal) at(x, y int) *cell { return &t.cells[y*t.width+x] }

func (t *terminal) PutChar(r rune) {
	switch r {
	case '\r':
		t.x = 0
	case '\n':
		t.lineFeed()
	case '\b':
		if t.x > 0 {
			t.x--
		}
	case '\a':
		t.w.WriteByte('\a')
		return
	case '\t':
		t.x = min((t.x/tabWidth+1)*tabWidth, t.width-1)
	case 0x7f:
		return
	default:
		if t.x >= t.width {
			t.x = 0
			t.lineFeed()
		}
		*t.at(t.x, t.y) = cell{r, t.fg, t.bg}
		t.paint(t.x, t.y, 1)
		t.x++
		return
	}
	t.cursor()
}

func (t *terminal) lineFeed() {
	if t.y < t.height-1 {
		t.y++
		return
	}
	t.ScrollBoxUp(0, 0, t.width, t.height, 1)
}

func (t *terminal) MoveCursor(x, y int) {
	t.x = clamp(x, 0, t.width-1)
	t.y = clamp(y, 0, t.height-1)
	t.cursor()
}

func (t *terminal) EraseDisplay(mode ios.EraseMode) {
	switch mode {
	case ios.EraseWhole:
		t.fill(0, 0, t.width, t.height)
	case ios.EraseToStart:
		t.fill(0, 0, t.width, t.y)
		t.fill(0, t.y, min(t.x+1, t.width), 1)
	case ios.EraseToEnd:
		t.fill(min(t.x, t.width), t.y, t.width-min(t.x, t.width), 1)
		t.fill(0, t.y+1, t.width, t.height-t.y-1)
	}
	t.repaint(0, 0, t.width, t.height)
}

func (t *terminal) EraseLine(mode ios.EraseMode) {
	switch mode {
	case ios.EraseWhole:
		t.fill(0, t.y, t.width, 1)
	case ios.EraseToStart:
		t.fill(0, t.y, min(t.x+1, t.width), 1)
	case ios.EraseToEnd:
		t.fill(min(t.x, t.width), t.y, t.width-min(t.x, t.width), 1)
	}
	t.repaint(0, t.y, t.width, 1)
}

func (t *terminal) SetCursorShape(shape ios.CursorShape) {
	switch shape {
	case ios.CursorInvisible:
		t.w.WriteString("\x1b[?25l")
	case ios.CursorUnderscore:
		t.w.WriteString("\x1b[?25h\x1b[4 q")
	case ios.CursorLowerHalf, ios.CursorFullBlock:
		t.w.WriteString("\x1b[?25h\x1b[2 q")
	}
}

func (t *terminal) ScrollBoxUp(x, y, width, height, lines int) {
	t.scroll(x, y, width, height, lines)
}

func (t *terminal) ScrollBoxDown(x, y, width, height, lines int) {
	t.scroll(x, y, width, height, -lines)
}

// scroll moves the box contents up by lines (down if negative) and blanks
// the rows that are uncovered.
func (t *terminal) scroll(x, y, width, height, lines int) {
	x0, y0 := clamp(x, 0, t.width), clamp(y, 0, t.height)
	x1, y1 := clamp(x+width, x0, t.width), clamp(y+height, y0, t.height)
	width, height = x1-x0, y1-y0
	if width == 0 || height == 0 {
		return
	}
	n := min(abs(lines), height)
	if lines >= 0 {
		for row := y0; row < y1-n; row++ {
			copy(t.cells[row*t.width+x0:row*t.width+x1], t.cells[(row+n)*t.width+x0:(row+n)*t.width+x1])
		}
		t.fill(x0, y1-n, width, n)
	} else {
		for row := y1 - 1; row >= y0+n; row-- {
			copy(t.cells[row*t.width+x0:row*t.width+x1], t.cells[(row-n)*t.width+x0:(row-n)*t.width+x1])
		}
		t.fill(x0, y0, width, n)
	}
	t.repaint(x0, y0, width, height)
}

func (t *terminal) fill(x, y, width, height int) {
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			*t.at(col, row) = cell{' ', t.fg, t.bg}
		}
	}
}

func (t *terminal) repaint(x, y, width, height int) {
	for row := y; row < y+height; row++ {
		t.paint(x, row, width)
	}
	t.cursor()
}

// paint writes n cells of row y starting at column x.
func (t *terminal) paint(x, y, n int) {
	fmt.Fprintf(t.w, "\x1b[%d;%dH", y+1, x+1)
	var last *cell
	for col := x; col < x+n; col++ {
		c := t.at(col, y)
		if last == nil || c.fg != last.fg || c.bg != last.bg {
			t.w.WriteString(sgr(c.fg, c.bg))
		}
		t.w.WriteRune(c.r)
		last = c
	}
}

func (t *terminal) cursor() {
	fmt.Fprintf(t.w, "\x1b[%d;%dH", t.y+1, min(t.x, t.width-1)+1)
}

func sgr(fg, bg ios.Color) string {
	f, b := 30+ansiColor[fg&7], 40+ansiColor[bg&7]
	if fg&8 != 0 {
		f += 60
	}
	if bg&8 != 0 {
		b += 60
	}
	return fmt.Sprintf("\x1b[0;%d;%dm", f, b)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
