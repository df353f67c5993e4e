// Package coproc runs the fio helper as a coprocess and exchanges its line
// protocol over a pair of nonblocking pipes driven by the reactor.
package coproc

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stesla/ntx/internal/reactor"
	"golang.org/x/sys/unix"
)

const (
	// RingSize is the capacity of the write buffer.
	RingSize = 4096
	readSize = 1024
)

var (
	ErrClosed      = errors.New("coproc: not open")
	ErrAlreadyOpen = errors.New("coproc: already open")
)

type Mode int

const (
	ReadOnly Mode = iota
	WriteOnly
	Append
)

func (m Mode) flag() string {
	switch m {
	case WriteOnly:
		return "-w"
	case Append:
		return "-a"
	}
	return "-r"
}

func (m Mode) String() string {
	switch m {
	case WriteOnly:
		return "write"
	case Append:
		return "append"
	}
	return "read"
}

// Callbacks run on the reactor goroutine. Writable may call Write again.
type Callbacks struct {
	Data      func(p []byte)
	Writable  func()
	IOError   func(hangup bool)
	ChildExit func(code int)
}

type Bridge struct {
	program string
	loop    reactor.Watcher
	logger  zerolog.Logger
	cb      Callbacks

	session uint64
	pid     int
	rfd     int
	wfd     int
	rwatch  reactor.ID
	wwatch  reactor.ID

	ring       [RingSize]byte
	head, tail int
}

func New(program string, loop reactor.Watcher, logger zerolog.Logger) *Bridge {
	return &Bridge{
		program: program,
		loop:    loop,
		logger:  logger,
		pid:     -1,
		rfd:     -1,
		wfd:     -1,
	}
}

func (b *Bridge) SetCallbacks(cb Callbacks) { b.cb = cb }

func (b *Bridge) IsOpen() bool { return b.wfd >= 0 }

// Pid is -1 when no coprocess belongs to the open session.
func (b *Bridge) Pid() int { return b.pid }

// Open spawns the helper on path. Its stderr goes to the null device.
func (b *Bridge) Open(path string, mode Mode) error {
	if b.IsOpen() {
		return ErrAlreadyOpen
	}
	toChild, err := pipe()
	if err != nil {
		return err
	}
	fromChild, err := pipe()
	if err != nil {
		unix.Close(toChild[0])
		unix.Close(toChild[1])
		return err
	}
	stdin := os.NewFile(uintptr(toChild[0]), "coproc-stdin")
	stdout := os.NewFile(uintptr(fromChild[1]), "coproc-stdout")
	defer stdin.Close()
	defer stdout.Close()

	cmd := exec.Command(b.program, mode.flag(), path)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	if err := cmd.Start(); err != nil {
		unix.Close(toChild[1])
		unix.Close(fromChild[0])
		return errors.Wrapf(err, "coproc: start %s", b.program)
	}

	if err := b.attach(fromChild[0], toChild[1]); err != nil {
		unix.Close(toChild[1])
		unix.Close(fromChild[0])
		cmd.Process.Kill()
		cmd.Wait()
		return err
	}
	b.pid = cmd.Process.Pid
	b.logger.Debug().Int("pid", b.pid).Str("file", path).Stringer("mode", mode).Msg("coprocess started")

	session := b.session
	go func() {
		cmd.Wait()
		code := exitCode(cmd.ProcessState)
		b.loop.Post(func() { b.childExited(session, code) })
	}()
	return nil
}

func pipe() (p [2]int, err error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()
	if err = unix.Pipe(p[:]); err != nil {
		return p, errors.Wrap(err, "coproc: pipe")
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	return p, nil
}

// attach takes ownership of the parent ends of both pipes.
func (b *Bridge) attach(rfd, wfd int) error {
	for _, fd := range []int{rfd, wfd} {
		if err := unix.SetNonblock(fd, true); err != nil {
			return errors.Wrap(err, "coproc: nonblock")
		}
	}
	b.session++
	b.rfd, b.wfd = rfd, wfd
	b.head, b.tail = 0, 0
	b.rwatch = b.loop.Watch(rfd, reactor.In, b.handleRead)
	return nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		switch {
		case ws.Exited():
			return ws.ExitStatus()
		case ws.Signaled():
			return int(ws.Signal()) + 255
		}
	}
	return -1
}

func (b *Bridge) childExited(session uint64, code int) {
	b.logger.Debug().Int("code", code).Msg("coprocess exited")
	if session == b.session && b.cb.ChildExit != nil {
		b.cb.ChildExit(code)
	}
}

// Close releases both pipes. The coprocess is left to see end of file on
// its input and exit by itself. Closing twice is harmless.
func (b *Bridge) Close() {
	if b.rwatch != 0 {
		b.loop.Remove(b.rwatch)
		b.rwatch = 0
	}
	if b.wwatch != 0 {
		b.loop.Remove(b.wwatch)
		b.wwatch = 0
	}
	if b.rfd >= 0 {
		unix.Close(b.rfd)
		b.rfd = -1
	}
	if b.wfd >= 0 {
		unix.Close(b.wfd)
		b.wfd = -1
	}
	b.pid = -1
	b.head, b.tail = 0, 0
}

// Buffered reports how many bytes wait in the ring.
func (b *Bridge) Buffered() int { return b.head - b.tail }

// WriteBufferSpace reports how many bytes Write can buffer without
// truncation. Once the unread region starts past the middle of the ring
// it is moved to the front.
func (b *Bridge) WriteBufferSpace() int {
	if b.tail >= RingSize/2 {
		b.align()
	}
	return RingSize - b.head
}

func (b *Bridge) align() {
	if b.tail == 0 {
		return
	}
	b.head = copy(b.ring[:], b.ring[b.tail:b.head])
	b.tail = 0
}

// Write sends p to the coprocess. What cannot be written right away is
// buffered; the result counts both. Bytes beyond the ring capacity are
// dropped.
func (b *Bridge) Write(p []byte) (int, error) {
	if b.wfd < 0 {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if b.Buffered() > 0 {
		return b.enqueue(p), nil
	}
	n, err := b.writeFd(p)
	if err != nil {
		b.logger.Error().Err(err).Msg("coprocess write")
		return n, err
	}
	if n < len(p) {
		n += b.enqueue(p[n:])
	}
	return n, nil
}

// writeFd writes until done or the pipe would block.
func (b *Bridge) writeFd(p []byte) (n int, err error) {
	for n < len(p) {
		nw, err := unix.Write(b.wfd, p[n:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return n, nil
		case err != nil:
			return n, errors.Wrap(err, "coproc: write")
		}
		n += nw
	}
	return n, nil
}

func (b *Bridge) enqueue(p []byte) int {
	if RingSize-b.head < len(p) {
		b.align()
	}
	n := copy(b.ring[b.head:], p)
	b.head += n
	if n < len(p) {
		b.logger.Warn().Int("dropped", len(p)-n).Msg("coprocess write buffer truncated")
	}
	if b.wwatch == 0 && b.Buffered() > 0 {
		b.wwatch = b.loop.Watch(b.wfd, reactor.Out, b.handleWrite)
	}
	return n
}

func (b *Bridge) handleWrite(fd int, cond reactor.Condition) bool {
	n, err := b.writeFd(b.ring[b.tail:b.head])
	b.tail += n
	if b.tail == b.head {
		b.head, b.tail = 0, 0
	}
	if err != nil {
		b.logger.Error().Err(err).Msg("coprocess write")
		b.wwatch = 0
		b.head, b.tail = 0, 0
		if b.cb.IOError != nil {
			b.cb.IOError(false)
		}
		return false
	}
	if n > 0 && b.cb.Writable != nil {
		b.cb.Writable()
	}
	if b.wfd != fd || b.Buffered() == 0 {
		if b.wfd == fd {
			b.wwatch = 0
		}
		return false
	}
	return true
}

func (b *Bridge) handleRead(fd int, cond reactor.Condition) bool {
	if cond.Has(reactor.Err) && !cond.Has(reactor.In) {
		return b.ioError(fd, false)
	}
	buf := make([]byte, readSize)
	n, err := unix.Read(fd, buf)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return true
	case err != nil:
		b.logger.Warn().Err(err).Msg("coprocess read")
		return b.ioError(fd, false)
	case n == 0:
		return b.ioError(fd, true)
	}
	if b.cb.Data != nil {
		b.cb.Data(buf[:n])
	}
	return b.rfd == fd
}

// ioError reports once and drops the read watch.
func (b *Bridge) ioError(fd int, hangup bool) bool {
	b.logger.Debug().Bool("hangup", hangup).Msg("coprocess channel closed")
	if b.rfd == fd {
		b.rwatch = 0
	}
	if b.cb.IOError != nil {
		b.cb.IOError(hangup)
	}
	return false
}
