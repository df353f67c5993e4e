package transport

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stesla/ntx/internal/reactor"
	"github.com/stesla/ntx/internal/telnet"
	"golang.org/x/sys/unix"
)

const telnetReadSize = 2 * PrependSize

// Telnet connects to a host over TCP and runs the stream through a telnet
// engine. Prepended bytes are queued ahead of decoded payload, not raw
// protocol bytes.
type Telnet struct {
	base
	loop    reactor.Watcher
	addr    string
	timeout time.Duration
	engine  *telnet.Engine

	ctx    context.Context
	gen    uint64
	cancel context.CancelFunc
	file   *os.File
	fd     int
	watch  reactor.ID
}

func NewTelnet(host string, port int, timeout time.Duration, loop reactor.Watcher, logger zerolog.Logger) *Telnet {
	if host == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 23
	}
	t := &Telnet{
		base:    newBase(logger),
		loop:    loop,
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
		fd:      -1,
	}
	t.engine = telnet.NewEngine(fdWriter{t}, logger)
	telnet.NewClientHandler().Register(t.engine)
	return t
}

func (t *Telnet) Name() string { return "telnet" }

// Engine exposes the NVT so callers can listen to its events.
func (t *Telnet) Engine() *telnet.Engine { return t.engine }

func (t *Telnet) IsConnected() bool { return t.file != nil }

func (t *Telnet) Connect(ctx context.Context) error {
	if t.file != nil || t.cancel != nil {
		return ErrAlreadyConnected
	}
	t.logger.Debug().Str("addr", t.addr).Msg("connect")

	t.gen++
	gen := t.gen
	t.ctx = ctx
	var dialCtx context.Context
	if t.timeout > 0 {
		dialCtx, t.cancel = context.WithTimeout(ctx, t.timeout)
	} else {
		dialCtx, t.cancel = context.WithCancel(ctx)
	}

	go func() {
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", t.addr)
		t.loop.Post(func() { t.dialed(gen, conn, err) })
	}()
	return nil
}

func (t *Telnet) dialed(gen uint64, conn net.Conn, err error) {
	if gen != t.gen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	t.cancel()
	t.cancel = nil
	if err != nil {
		t.failed(errors.Wrapf(err, "telnet: dial %s", t.addr))
		return
	}

	file, err := conn.(*net.TCPConn).File()
	conn.Close()
	if err != nil {
		t.failed(errors.Wrap(err, "telnet: socket"))
		return
	}
	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		file.Close()
		t.failed(errors.Wrap(err, "telnet: nonblock"))
		return
	}

	t.file, t.fd = file, fd
	t.watch = t.loop.Watch(fd, reactor.In, t.handleRead)
	t.engine.Reset()
	t.logger.Debug().Str("addr", t.addr).Msg("connected")
	if err := t.engine.Connected(t.ctx); err != nil {
		t.logger.Warn().Err(err).Msg("telnet connected handler")
	}
}

func (t *Telnet) handleRead(fd int, _ reactor.Condition) bool {
	buf := make([]byte, telnetReadSize)
	n, err := unix.Read(fd, buf)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return true
	case n == 0 && err == nil:
		t.disconnected(nil)
		t.Disconnect()
		return false
	case err != nil:
		t.failed(errors.Wrap(err, "telnet: read"))
		t.Disconnect()
		return false
	}
	t.deliver(t.engine.Decode(t.ctx, buf[:n]))
	return true
}

func (t *Telnet) Disconnect() {
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.file == nil {
		return
	}
	t.logger.Debug().Msg("disconnect")
	t.loop.Remove(t.watch)
	t.file.Close()
	t.file, t.fd, t.watch = nil, -1, 0
}

func (t *Telnet) Finalize() { t.Disconnect() }

// Write escapes p for the wire. It returns how much of p went out before
// the socket would block.
func (t *Telnet) Write(p []byte) (int, error) {
	if t.file == nil {
		return 0, ErrNotConnected
	}
	n, err := t.engine.Write(p)
	if errors.Is(err, errShortWrite) || err == nil {
		return n, nil
	}
	t.failed(err)
	return n, err
}

var errShortWrite = errors.New("telnet: short write")

// fdWriter writes raw bytes to the connected socket.
type fdWriter struct{ t *Telnet }

func (w fdWriter) Write(p []byte) (n int, err error) {
	if w.t.file == nil {
		return 0, ErrNotConnected
	}
	for n < len(p) {
		nw, err := unix.Write(w.t.fd, p[n:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return n, errShortWrite
		case err != nil:
			return n, errors.Wrap(err, "telnet: write")
		}
		n += nw
	}
	return n, nil
}
