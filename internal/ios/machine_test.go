package ios

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stesla/ntx/internal/coproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

type fakeChannel struct {
	written []byte
	prepend []byte
	// limit caps how much one Write accepts when set.
	limit int
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	if c.limit > 0 && len(p) > c.limit {
		p = p[:c.limit]
	}
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *fakeChannel) Prepend(p []byte) (int, error) {
	c.prepend = append(c.prepend, p...)
	return len(p), nil
}

// take returns whatever was prepended so a test can feed it back.
func (c *fakeChannel) take() []byte {
	p := c.prepend
	c.prepend = nil
	return p
}

type fakeDisplay struct {
	ops    []string
	fg, bg Color
}

func (d *fakeDisplay) op(format string, args ...any) {
	d.ops = append(d.ops, fmt.Sprintf(format, args...))
}

func (d *fakeDisplay) PutChar(r rune) {
	if n := len(d.ops); n > 0 && strings.HasPrefix(d.ops[n-1], "text:") {
		d.ops[n-1] += string(r)
		return
	}
	d.op("text:%c", r)
}

func (d *fakeDisplay) EraseDisplay(mode EraseMode) { d.op("erase-display %d", mode) }
func (d *fakeDisplay) EraseLine(mode EraseMode)    { d.op("erase-line %d", mode) }
func (d *fakeDisplay) MoveCursor(x, y int)         { d.op("move %d,%d", x, y) }
func (d *fakeDisplay) Colors() (Color, Color)      { return d.fg, d.bg }

func (d *fakeDisplay) SetColors(fg, bg Color) {
	d.fg, d.bg = fg, bg
	d.op("colors %d,%d", fg, bg)
}

func (d *fakeDisplay) SetCursorShape(shape CursorShape) { d.op("cursor %d", shape) }

func (d *fakeDisplay) ScrollBoxUp(x, y, w, h, n int) {
	d.op("scroll-up %d,%d %dx%d %d", x, y, w, h, n)
}

func (d *fakeDisplay) ScrollBoxDown(x, y, w, h, n int) {
	d.op("scroll-down %d,%d %dx%d %d", x, y, w, h, n)
}

func (d *fakeDisplay) Size() (int, int) { return 80, 25 }

type fakeControls struct {
	keyboard, mouse bool
}

func (c *fakeControls) KeyboardEnable(enabled bool) { c.keyboard = enabled }
func (c *fakeControls) MouseEnable(enabled bool)    { c.mouse = enabled }

type fakeFiles struct {
	cb      coproc.Callbacks
	openErr error
	opened  []string
	writes  []string
	closes  int
}

func (f *fakeFiles) Open(path string, mode coproc.Mode) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, mode.String()+" "+path)
	return nil
}

func (f *fakeFiles) Write(p []byte) (int, error) {
	f.writes = append(f.writes, string(p))
	return len(p), nil
}

func (f *fakeFiles) Close()                           { f.closes++ }
func (f *fakeFiles) SetCallbacks(cb coproc.Callbacks) { f.cb = cb }

type fixture struct {
	*Machine
	channel  *fakeChannel
	display  *fakeDisplay
	controls *fakeControls
	files    *fakeFiles
	fs       afero.Fs
	log      *bytes.Buffer
}

func newFixture(t *testing.T, opts Options) *fixture {
	f := &fixture{
		channel:  &fakeChannel{},
		display:  &fakeDisplay{fg: 7},
		controls: &fakeControls{keyboard: true, mouse: true},
		files:    &fakeFiles{},
		fs:       afero.NewMemMapFs(),
		log:      &bytes.Buffer{},
	}
	opts.Channel = f.channel
	opts.Display = f.display
	opts.Controls = f.controls
	opts.Files = f.files
	opts.Fs = f.fs
	opts.Logger = zerolog.New(f.log)
	if opts.Getenv == nil {
		opts.Getenv = func(name string) string {
			if name == "TMP" {
				return "/tmp"
			}
			return ""
		}
	}
	opts.Username = "nobody"
	f.Machine = New(opts)
	t.Cleanup(f.Close)
	return f
}

func cmd(c byte, params ...string) string {
	return "\x00" + string([]byte{c}) + strings.Join(params, "")
}

func TestLiteralCommandPartition(t *testing.T) {
	input := "ab" + cmd(ClearScreen) + "cd" + cmd(MoveCursor, "\x05\x03") + "e"
	want := []string{"text:ab", "erase-display 0", "text:cd", "move 4,2", "text:e"}

	f := newFixture(t, Options{})
	f.Input([]byte(input))
	require.Equal(t, want, f.display.ops)

	for i := 1; i < len(input); i++ {
		f := newFixture(t, Options{})
		f.Input([]byte(input[:i]))
		f.Input([]byte(input[i:]))
		require.Equal(t, want, f.display.ops, "split at %d", i)
		require.Empty(t, f.channel.prepend)
	}
}

func TestConvertsIBM866(t *testing.T) {
	f := newFixture(t, Options{})
	f.Input([]byte{0x8f, 0xe0, 0xa8, 0xa2, 0xa5, 0xe2})
	require.Equal(t, []string{"text:Привет"}, f.display.ops)
}

func TestIncompleteSequencePrepended(t *testing.T) {
	f := newFixture(t, Options{Encoding: unicode.UTF8})
	f.Input([]byte("a\xd0"))
	require.Equal(t, []string{"text:a"}, f.display.ops)
	require.Equal(t, []byte{0xd0}, f.channel.prepend)

	f.Input(append(f.channel.take(), 0x90, 'b'))
	require.Equal(t, []string{"text:aАb"}, f.display.ops)
	require.Empty(t, f.channel.prepend)
}

func TestIncompleteSequenceBeforeCommandFlushed(t *testing.T) {
	f := newFixture(t, Options{Encoding: unicode.UTF8})
	f.Input([]byte("a\xd0" + cmd(ClearEOL) + "b"))
	require.Equal(t, []string{"text:a�", "erase-line 2", "text:b"}, f.display.ops)
	require.Empty(t, f.channel.prepend)
}

func TestShowFiltersUnprintable(t *testing.T) {
	d := &fakeDisplay{}
	show(d, []byte("a\x01\tb\x7f\x07\x1bc\x00d"))
	require.Equal(t, []string{"text:a\tb\x7f\x07c"}, d.ops)
}

func TestDisplayCommands(t *testing.T) {
	tests := []struct {
		input string
		ops   []string
	}{
		{cmd(ClearScreen), []string{"erase-display 0"}},
		{cmd(ClearEOL), []string{"erase-line 2"}},
		{cmd(SetColor, "\x1e"), []string{"colors 14,1"}},
		{cmd(MoveCursor, "\x01\x01"), []string{"move 0,0"}},
		{cmd(CursorOff), []string{"cursor 0"}},
		{cmd(SetCursorUnderscore), []string{"cursor 1"}},
		{cmd(SetCursorHalfBlock), []string{"cursor 2"}},
		{cmd(SetCursorFullBlock), []string{"cursor 3"}},
		{cmd(ScrollBoxUp, "\x02\x03\x0b\x08\x4e\x02"), []string{
			"colors 14,4", "scroll-up 1,2 10x6 2", "colors 7,0",
		}},
		{cmd(ScrollBoxDown, "\x01\x01\x50\x19\x00\x01"), []string{
			"colors 0,0", "scroll-down 0,0 80x25 1", "colors 7,0",
		}},
		{cmd(Bell, "x") + "y", []string{"text:y"}},
		{cmd(OutputString, "ignored\x00") + "y", []string{"text:y"}},
		{cmd(LocalAction, "ignored\x00") + "y", []string{"text:y"}},
		{cmd(Unhandled99, "123456789") + "y", []string{"text:y"}},
		{cmd(FileNewline) + "y", []string{"text:y"}},
	}
	for _, test := range tests {
		f := newFixture(t, Options{})
		f.Input([]byte(test.input))
		assert.Equal(t, test.ops, f.display.ops, "%q", test.input)
		assert.Empty(t, f.channel.written, "%q", test.input)
	}
}

func TestResponses(t *testing.T) {
	tests := []struct {
		input string
		reply string
	}{
		{cmd(GetVersion), "3.13\x1b"},
		{cmd(GetConsoleSize), "80,25\x1b"},
		{cmd(AreYouAlive, "?"), "998\x1b"},
		{cmd(KeyboardLock), "999\x1b"},
		{cmd(GetTempDir), "/tmp/\x1b"},
		{cmd(GetCwd), "/work\x1b"},
		{cmd(ReadIni, "section\x01param\x00"), "\x1b"},
		{cmd(ReadIni, "section\x00"), ""},
	}
	for _, test := range tests {
		f := newFixture(t, Options{Getwd: func() (string, error) { return "/work", nil }})
		f.Input([]byte(test.input))
		assert.Equal(t, test.reply, string(f.channel.written), "%q", test.input)
		assert.Empty(t, f.display.ops, "%q", test.input)
	}
}

func TestShortResponseLogged(t *testing.T) {
	f := newFixture(t, Options{})
	f.channel.limit = 2
	f.Input([]byte(cmd(GetVersion)))
	require.Equal(t, "3.", string(f.channel.written))
	require.Contains(t, f.log.String(), "response truncated")
}

func TestGetCwdFailureSendsNothing(t *testing.T) {
	f := newFixture(t, Options{Getwd: func() (string, error) { return "", errors.New("gone") }})
	f.Input([]byte(cmd(GetCwd)))
	require.Empty(t, f.channel.written)
}

func TestControls(t *testing.T) {
	f := newFixture(t, Options{})
	f.Input([]byte(cmd(KeyboardLock)))
	require.False(t, f.controls.keyboard)
	require.False(t, f.controls.mouse)

	f.Input([]byte(cmd(KeyboardUnlock)))
	require.True(t, f.controls.keyboard)
	require.True(t, f.controls.mouse)

	f.Input([]byte(cmd(MouseDisable)))
	require.False(t, f.controls.mouse)
	f.Input([]byte(cmd(MouseEnable, "\x01") + "z"))
	require.True(t, f.controls.mouse)
	require.Equal(t, []string{"text:z"}, f.display.ops)
}

func TestUnknownCommandResumesLiteral(t *testing.T) {
	f := newFixture(t, Options{})
	f.Input([]byte(cmd(200) + "XY"))
	require.Equal(t, []string{"text:XY"}, f.display.ops)
	require.Empty(t, f.channel.written)
}

func TestScreenFlagDoesNotGateCommands(t *testing.T) {
	f := newFixture(t, Options{})
	require.False(t, f.ScreenActive())

	f.Input([]byte(cmd(ClearScreen)))
	require.Equal(t, []string{"erase-display 0"}, f.display.ops)

	f.Input([]byte(cmd(StartIOS)))
	require.True(t, f.ScreenActive())
	f.Input([]byte(cmd(StopIOS) + cmd(GetVersion)))
	require.False(t, f.ScreenActive())
	require.Equal(t, "3.13\x1b", string(f.channel.written))
}

func TestParameterTruncated(t *testing.T) {
	f := newFixture(t, Options{})
	long := strings.Repeat("a", MaxParam+10)
	f.Input([]byte(cmd(FileExists, long, "\x00") + "z"))
	require.Equal(t, "1\x1b", string(f.channel.written))
	require.Equal(t, []string{"text:z"}, f.display.ops)
}
