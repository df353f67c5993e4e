// Package ios interprets the IOS command stream a host application embeds in
// its terminal output. Literal text is converted to UTF-8 and drawn on a
// Display; NUL-introduced commands drive the display, the file coprocess and
// local programs, and some of them answer the host over the Channel.
package ios

import "github.com/stesla/ntx/internal/coproc"

// Channel is the connection back to the host. Transports satisfy it.
type Channel interface {
	Write(p []byte) (int, error)
	Prepend(p []byte) (int, error)
}

type Color uint8

type EraseMode int

const (
	EraseWhole EraseMode = iota
	EraseToStart
	EraseToEnd
)

type CursorShape int

const (
	CursorInvisible CursorShape = iota
	CursorUnderscore
	CursorLowerHalf
	CursorFullBlock
)

// Display is the character grid the machine draws on. Coordinates are
// zero-based.
type Display interface {
	PutChar(r rune)
	EraseDisplay(mode EraseMode)
	EraseLine(mode EraseMode)
	MoveCursor(x, y int)
	Colors() (fg, bg Color)
	SetColors(fg, bg Color)
	SetCursorShape(shape CursorShape)
	ScrollBoxUp(x, y, width, height, lines int)
	ScrollBoxDown(x, y, width, height, lines int)
	Size() (width, height int)
}

// Controls toggles local input devices.
type Controls interface {
	KeyboardEnable(enabled bool)
	MouseEnable(enabled bool)
}

// FileIO is the file coprocess. coproc.Bridge satisfies it.
type FileIO interface {
	Open(path string, mode coproc.Mode) error
	Write(p []byte) (int, error)
	Close()
	SetCallbacks(cb coproc.Callbacks)
}

type nopControls struct{}

func (nopControls) KeyboardEnable(bool) {}
func (nopControls) MouseEnable(bool)    {}
