package ios

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/user"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stesla/ntx/internal/buffer"
	"github.com/stesla/ntx/internal/reactor"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// MaxParam is the capacity of the parameter accumulator.
const MaxParam = 8192

type state int

const (
	stateLiteral state = iota
	stateCommand
	stateParams
)

type Options struct {
	// Encoding of the host's literal text. Defaults to IBM866.
	Encoding encoding.Encoding
	Channel  Channel
	Display  Display
	Controls Controls
	Files    FileIO
	Loop     reactor.Poster
	Fs       afero.Fs
	Logger   zerolog.Logger

	// CommandWrapper is argv[0] of every OS command.
	CommandWrapper string

	Getenv   func(string) string
	Getwd    func() (string, error)
	Username string
}

type Machine struct {
	channel  Channel
	display  Display
	controls Controls
	files    FileIO
	loop     reactor.Poster
	fs       afero.Fs
	logger   zerolog.Logger
	wrapper  string
	getenv   func(string) string
	getwd    func() (string, error)
	username string

	conv       *converter
	state      state
	cmd        byte
	params     *buffer.Bounded
	overflow   bool
	text       []byte
	screen     bool
	fileOpened bool
	reply      *buffer.Bounded
	child      *exec.Cmd
}

func New(opts Options) *Machine {
	m := &Machine{
		channel:  opts.Channel,
		display:  opts.Display,
		controls: opts.Controls,
		files:    opts.Files,
		loop:     opts.Loop,
		fs:       opts.Fs,
		logger:   opts.Logger,
		wrapper:  opts.CommandWrapper,
		getenv:   opts.Getenv,
		getwd:    opts.Getwd,
		username: opts.Username,
		params:   buffer.New(MaxParam),
		reply:    newReplyBuffer(),
	}
	enc := opts.Encoding
	if enc == nil {
		enc = charmap.CodePage866
	}
	m.conv = newConverter(enc)
	if m.controls == nil {
		m.controls = nopControls{}
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.getenv == nil {
		m.getenv = os.Getenv
	}
	if m.getwd == nil {
		m.getwd = os.Getwd
	}
	if m.username == "" {
		if u, err := user.Current(); err == nil {
			m.username = u.Username
		}
	}
	if m.wrapper == "" {
		m.wrapper = "cmdwrapper"
	}
	m.files.SetCallbacks(m.FileCallbacks())
	return m
}

// ScreenActive reports whether the host has started IOS mode. It only
// affects how local keys are translated; commands are obeyed either way.
func (m *Machine) ScreenActive() bool { return m.screen }

// Close ends an open file session.
func (m *Machine) Close() {
	if m.fileOpened {
		m.files.Close()
		m.fileOpened = false
	}
}

// Input consumes one chunk of host output.
func (m *Machine) Input(p []byte) {
	for _, c := range p {
		switch m.state {
		case stateLiteral:
			if c == 0 {
				m.flushText(true)
				m.state = stateCommand
			} else {
				m.text = append(m.text, c)
			}
		case stateCommand:
			m.command(c)
		case stateParams:
			m.param(c)
		}
	}
	m.flushText(false)
}

// flushText draws the accumulated literal text. At the end of a chunk an
// incomplete multi-byte sequence goes back to the channel to be delivered
// again ahead of the next chunk.
func (m *Machine) flushText(final bool) {
	if len(m.text) == 0 {
		return
	}
	text := m.text
	m.text = nil
	out, rest, err := m.conv.convert(text, final)
	if err != nil {
		m.logger.Warn().Err(err).Msg("can't convert sequence")
	}
	show(m.display, out)
	if len(rest) > 0 {
		if _, err := m.channel.Prepend(rest); err != nil {
			m.logger.Warn().Err(err).Int("len", len(rest)).Msg("prepend incomplete sequence")
		}
	}
}

func (m *Machine) command(c byte) {
	m.cmd = c
	m.state = stateLiteral
	m.logger.Trace().Uint8("cmd", c).Str("name", commandName(c)).Msg("ios command")

	switch c {
	case StartIOS:
		m.screen = true
	case StopIOS:
		m.screen = false
	case GetVersion:
		m.respondString(Version)
	case KeyboardLock:
		m.controls.KeyboardEnable(false)
		m.controls.MouseEnable(false)
		m.respondString("999")
	case KeyboardUnlock:
		m.controls.KeyboardEnable(true)
		m.controls.MouseEnable(true)
	case ClearScreen:
		m.display.EraseDisplay(EraseWhole)
	case GetConsoleSize:
		w, h := m.display.Size()
		m.respondString(fmt.Sprintf("%d,%d", w, h))
	case CursorOff:
		m.display.SetCursorShape(CursorInvisible)
	case ClearEOL:
		m.display.EraseLine(EraseToEnd)
	case SetCursorFullBlock:
		m.display.SetCursorShape(CursorFullBlock)
	case SetCursorHalfBlock:
		m.display.SetCursorShape(CursorLowerHalf)
	case SetCursorUnderscore:
		m.display.SetCursorShape(CursorUnderscore)
	case MouseDisable:
		m.controls.MouseEnable(false)
	case GetCwd:
		m.getCwd()
	case FileClose:
		m.fileClose()
	case GetTempDir:
		m.respondString(m.tempDir() + "/")
	case FileNewline:
		m.logger.Debug().Msg("file newline")
	default:
		m.startParams(c)
	}
}

func (m *Machine) startParams(c byte) {
	_, fixed := fixedParams[c]
	if !fixed && !stringParams[c] {
		m.logger.Warn().Uint8("cmd", c).Msg("unknown command")
		return
	}
	m.params.Reset()
	m.overflow = false
	if prefix, ok := filePrefix[c]; ok {
		m.params.WriteByte(prefix)
	}
	m.state = stateParams
}

func (m *Machine) param(c byte) {
	if n, ok := fixedParams[m.cmd]; ok {
		m.params.WriteByte(c)
		if m.params.Len() >= n {
			params := m.params.Take()
			m.state = stateLiteral
			m.fixed(params)
		}
		return
	}

	switch m.cmd {
	case FileWriteString, FileBinaryWrite:
		if c == 0 {
			m.params.WriteByte('\n')
			params := m.params.Take()
			m.state = stateLiteral
			m.logger.Trace().Str("cmd", commandName(m.cmd)).Int("len", len(params)-1).Msg("file write")
			m.fileRequest(params)
			return
		}
		m.params.WriteByte(c)
		if m.params.Len() == MaxParam-1 {
			m.fileRequest(m.params.Take())
		}
		return
	}

	if c != 0 {
		if m.params.Len() < MaxParam-1 {
			m.params.WriteByte(c)
		} else if !m.overflow {
			m.overflow = true
			m.logger.Warn().Str("cmd", commandName(m.cmd)).Msg("parameter truncated")
		}
		return
	}
	params := m.params.Take()
	m.state = stateLiteral
	m.terminated(params)
}

// fixed runs a command whose parameters have a known length.
func (m *Machine) fixed(p []byte) {
	switch m.cmd {
	case SetColor:
		m.display.SetColors(Color(p[0]&0x0f), Color(p[0]>>4))
	case MoveCursor:
		m.display.MoveCursor(int(p[0])-1, int(p[1])-1)
	case ScrollBoxUp, ScrollBoxDown:
		m.scrollBox(p)
	case Bell:
		m.logger.Debug().Msg("bell")
	case AreYouAlive:
		m.respondString("998")
	case MouseEnable:
		m.controls.MouseEnable(true)
	case Unhandled99:
		m.logger.Debug().Msg("command 99 ignored")
	}
}

func (m *Machine) scrollBox(p []byte) {
	x1, y1, x2, y2 := int(p[0])-1, int(p[1])-1, int(p[2])-1, int(p[3])-1
	color, lines := p[4], int(p[5])
	width, height := x2-x1+1, y2-y1+1

	fg, bg := m.display.Colors()
	m.display.SetColors(Color(color&0x0f), Color(color>>4))
	if m.cmd == ScrollBoxUp {
		m.display.ScrollBoxUp(x1, y1, width, height, lines)
	} else {
		m.display.ScrollBoxDown(x1, y1, width, height, lines)
	}
	m.display.SetColors(fg, bg)
}

// terminated runs a command whose parameters ended at a NUL.
func (m *Machine) terminated(p []byte) {
	switch m.cmd {
	case FileExists:
		m.fileExists(string(p))
	case FileOpen:
		m.fileOpen(p)
	case FileReadString, FileBinaryRead:
		p = append(p, '\n')
		m.logger.Trace().Str("cmd", commandName(m.cmd)).Bytes("request", p[1:len(p)-1]).Msg("file read")
		m.fileRequest(p)
	case OSCommand:
		m.osCommand(string(p))
	case ReadIni:
		section, param, ok := bytes.Cut(p, []byte{soh})
		if !ok {
			m.logger.Debug().Bytes("param", p).Msg("read ini without parameter")
			return
		}
		m.logger.Debug().Bytes("section", section).Bytes("param", param).Msg("read ini")
		m.respond()
	case OutputString, LocalAction:
		m.logger.Debug().Str("cmd", commandName(m.cmd)).Msg("ignored")
	}
}

func (m *Machine) getCwd() {
	dir, err := m.getwd()
	if err != nil {
		m.logger.Warn().Err(err).Msg("getcwd")
		return
	}
	m.respondString(dir)
}

// respond sends p followed by ESC.
func (m *Machine) respond(p ...byte) {
	m.write(append(p, esc))
}

func (m *Machine) respondString(s string) {
	m.respond([]byte(s)...)
}

func (m *Machine) write(p []byte) {
	if n, err := m.channel.Write(p); err != nil {
		m.logger.Warn().Err(err).Msg("response not sent")
	} else if n < len(p) {
		m.logger.Warn().Int("len", len(p)).Int("written", n).Msg("response truncated")
	}
}
