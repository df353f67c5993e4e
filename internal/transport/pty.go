package transport

import (
	"context"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stesla/ntx/internal/reactor"
	"golang.org/x/sys/unix"
)

const ptyReadSize = PrependSize

// Pty runs a shell command line on a pseudo-terminal and talks to its
// master side.
type Pty struct {
	base
	loop    reactor.Watcher
	cmdline string

	master *os.File
	fd     int
	watch  reactor.ID
	pid    int
	exited bool
}

func NewPty(cmdline string, loop reactor.Watcher, logger zerolog.Logger) *Pty {
	return &Pty{
		base:    newBase(logger),
		loop:    loop,
		cmdline: cmdline,
		fd:      -1,
	}
}

func (p *Pty) Name() string { return "pty" }

func (p *Pty) IsConnected() bool { return p.master != nil }

func (p *Pty) Connect(context.Context) error {
	if p.master != nil {
		return ErrAlreadyConnected
	}
	p.logger.Debug().Str("cmdline", p.cmdline).Msg("connect")

	cmd := exec.Command("/bin/sh", "-c", p.cmdline)
	master, err := pty.Start(cmd)
	if err != nil {
		return errors.Wrap(err, "pty: start")
	}
	fd := int(master.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		master.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return errors.Wrap(err, "pty: nonblock")
	}

	p.master, p.fd, p.pid, p.exited = master, fd, cmd.Process.Pid, false
	p.watch = p.loop.Watch(fd, reactor.In, p.handleRead)

	go func(pid int) {
		err := cmd.Wait()
		p.loop.Post(func() {
			p.logger.Debug().Int("pid", pid).Err(err).Msg("child exited")
			if p.pid == pid {
				p.exited = true
			}
		})
	}(p.pid)
	return nil
}

func (p *Pty) handleRead(fd int, _ reactor.Condition) bool {
	buf := make([]byte, max(ptyReadSize-p.pending.Len(), 1))
	n, err := unix.Read(fd, buf)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return true
	case n == 0 && err == nil, err == unix.EIO:
		// EIO is how Linux reports that the slave side has gone away.
		p.disconnected(nil)
		p.Disconnect()
		return false
	case err != nil:
		p.failed(errors.Wrap(err, "pty: read"))
		p.Disconnect()
		return false
	}
	p.deliver(buf[:n])
	return true
}

func (p *Pty) Disconnect() {
	if p.master == nil {
		return
	}
	p.logger.Debug().Msg("disconnect")
	if !p.exited {
		if err := unix.Kill(p.pid, unix.SIGTERM); err == unix.ESRCH {
			p.logger.Warn().Int("pid", p.pid).Msg("child not found")
		} else if err != nil {
			p.logger.Error().Err(err).Int("pid", p.pid).Msg("kill child")
		}
	}
	p.loop.Remove(p.watch)
	p.master.Close()
	p.master, p.fd, p.watch, p.pid = nil, -1, 0, 0
}

func (p *Pty) Finalize() { p.Disconnect() }

// Write returns how much the master accepted before it would block.
func (p *Pty) Write(b []byte) (n int, err error) {
	if p.master == nil {
		return 0, ErrNotConnected
	}
	for n < len(b) {
		nw, err := unix.Write(p.fd, b[n:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return n, nil
		case err != nil:
			err = errors.Wrap(err, "pty: write")
			p.failed(err)
			return n, err
		}
		n += nw
	}
	return n, nil
}
