package ios

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"github.com/stesla/ntx/internal/buffer"
	"github.com/stesla/ntx/internal/coproc"
	"github.com/stesla/ntx/internal/fio"
	"golang.org/x/sys/unix"
)

// replySize holds the largest coprocess reply: a status byte, a stuffed
// read of fio.MaxLine bytes and the ESC LF terminator.
const replySize = 1 + 2*fio.MaxLine + 2

var replyEnd = []byte{esc, '\n'}

func (m *Machine) fileExists(name string) {
	name = m.hostPath(name)
	fi, err := m.fs.Stat(name)
	var c byte
	switch {
	case err == nil && fi.Mode().IsRegular():
		c = '2'
	case err == nil:
		c = '0'
	case errors.Is(err, os.ErrNotExist),
		errors.Is(err, unix.ENOTDIR),
		errors.Is(err, unix.ENAMETOOLONG),
		errors.Is(err, unix.ELOOP):
		c = '1'
	default:
		c = '0'
	}
	m.logger.Debug().Str("name", name).Str("result", string(c)).Msg("file exists")
	m.respond(c)
}

func (m *Machine) fileOpen(param []byte) {
	if m.fileOpened {
		m.logger.Warn().Msg("attempt to open second file")
		m.files.Close()
		m.fileOpened = false
	}
	m.reply.Reset()

	var how byte
	if len(param) > 0 {
		how = lower(param[0])
		param = param[1:]
	}
	name := m.hostPath(string(param))

	var mode coproc.Mode
	switch how {
	case 'r':
		mode = coproc.ReadOnly
	case 'w':
		mode = coproc.WriteOnly
	case 'a':
		mode = coproc.Append
	default:
		m.logger.Warn().Str("mode", string(how)).Str("name", name).Msg("unknown file mode")
		m.respond('2')
		return
	}

	if err := m.files.Open(name, mode); err != nil {
		m.logger.Warn().Err(err).Str("name", name).Stringer("mode", mode).Msg("file open")
		m.respond('2')
		return
	}
	m.logger.Debug().Str("name", name).Stringer("mode", mode).Msg("file opened")
	m.fileOpened = true
	m.respond('1')
}

func (m *Machine) fileClose() {
	m.logger.Debug().Msg("file close")
	if m.fileOpened {
		m.files.Close()
	}
	m.fileOpened = false
	m.reply.Reset()
}

// fileRequest forwards p to the coprocess when a file is open.
func (m *Machine) fileRequest(p []byte) {
	if !m.fileOpened {
		m.logger.Debug().Int("len", len(p)).Msg("file request without open file")
		return
	}
	if n, err := m.files.Write(p); err != nil {
		m.logger.Warn().Err(err).Msg("file request")
	} else if n < len(p) {
		m.logger.Warn().Int("len", len(p)).Int("written", n).Msg("file request truncated")
	}
}

// FileCallbacks returns the callbacks the file coprocess reports through.
// New installs them.
func (m *Machine) FileCallbacks() coproc.Callbacks {
	return coproc.Callbacks{
		Data:      m.fileData,
		Writable:  func() { m.logger.Trace().Msg("coprocess writable") },
		IOError:   m.fileError,
		ChildExit: func(code int) { m.logger.Debug().Int("code", code).Msg("coprocess exited") },
	}
}

// fileData collects coprocess output. A reply is complete when a delivery
// leaves it ending in ESC LF; it goes to the host without the LF.
func (m *Machine) fileData(p []byte) {
	if !m.fileOpened {
		m.logger.Warn().Int("len", len(p)).Msg("coprocess data with no file opened")
		return
	}
	if _, err := m.reply.Write(p); err != nil {
		m.logger.Warn().Int("len", m.reply.Len()).Msg("coprocess reply too long, dropped")
		m.reply.Reset()
		return
	}
	reply := m.reply.Bytes()
	if len(reply) <= 2 || !bytes.HasSuffix(reply, replyEnd) {
		return
	}
	m.write(reply[:len(reply)-1])
	m.reply.Reset()
}

func (m *Machine) fileError(hangup bool) {
	m.logger.Debug().Bool("hangup", hangup).Msg("coprocess pipe closed")
	if m.reply.Len() > 0 {
		m.logger.Warn().Int("len", m.reply.Len()).Msg("no <esc><lf> terminator")
		m.reply.Reset()
	}
	m.files.Close()
	m.fileOpened = false
}

func newReplyBuffer() *buffer.Bounded { return buffer.New(replySize) }

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
