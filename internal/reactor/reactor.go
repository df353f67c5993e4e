// Package reactor implements the single-threaded event loop that drives every
// transport and coprocess descriptor. Handlers and posted functions always run
// on the goroutine that calls Run or RunOnce, so the state they touch needs no
// locking.
package reactor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

type Condition int16

const (
	In  Condition = unix.POLLIN
	Out Condition = unix.POLLOUT
	Err Condition = unix.POLLERR
	Hup Condition = unix.POLLHUP
)

func (c Condition) Has(o Condition) bool { return c&o != 0 }

// ID identifies a watch. Zero is never a valid ID.
type ID uint64

// Handler is invoked when fd is ready. Returning false removes the watch.
type Handler func(fd int, cond Condition) bool

// Poster schedules fn to run on the loop goroutine.
type Poster interface {
	Post(fn func())
}

// Watcher is the subset of Loop that components depend on.
type Watcher interface {
	Poster
	Watch(fd int, cond Condition, h Handler) ID
	Remove(id ID) bool
}

type watch struct {
	id      ID
	fd      int
	cond    Condition
	handler Handler
	removed bool
}

type Loop struct {
	logger  zerolog.Logger
	watches []*watch
	nextID  ID

	mu     sync.Mutex
	posted []func()
	wakeR  int
	wakeW  int
	closed bool
}

func New(logger zerolog.Logger) (*Loop, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, errors.Wrap(err, "reactor: wake pipe")
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, errors.Wrap(err, "reactor: wake pipe")
		}
	}
	return &Loop{
		logger: logger,
		wakeR:  p[0],
		wakeW:  p[1],
	}, nil
}

func (l *Loop) Watch(fd int, cond Condition, h Handler) ID {
	l.nextID++
	l.watches = append(l.watches, &watch{
		id:      l.nextID,
		fd:      fd,
		cond:    cond,
		handler: h,
	})
	l.logger.Trace().Int("fd", fd).Uint64("id", uint64(l.nextID)).Msg("watch added")
	return l.nextID
}

func (l *Loop) Remove(id ID) bool {
	i := slices.IndexFunc(l.watches, func(w *watch) bool { return w.id == id })
	if i < 0 {
		return false
	}
	l.watches[i].removed = true
	l.watches = slices.Delete(l.watches, i, i+1)
	l.logger.Trace().Uint64("id", uint64(id)).Msg("watch removed")
	return true
}

// Len reports the number of active watches.
func (l *Loop) Len() int { return len(l.watches) }

// Post is safe to call from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.wakeup()
}

func (l *Loop) wakeup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		// EAGAIN means a wakeup is already pending.
		unix.Write(l.wakeW, []byte{0})
	}
}

func (l *Loop) pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.posted) > 0
}

// RunOnce waits up to timeout for readiness (forever if timeout < 0), then
// dispatches ready watches followed by posted functions.
func (l *Loop) RunOnce(timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	if l.pending() {
		ms = 0
	}

	active := slices.Clone(l.watches)
	fds := make([]unix.PollFd, 0, len(active)+1)
	fds = append(fds, unix.PollFd{Fd: int32(l.wakeR), Events: unix.POLLIN})
	for _, w := range active {
		fds = append(fds, unix.PollFd{Fd: int32(w.fd), Events: int16(w.cond)})
	}

	if _, err := unix.Poll(fds, ms); err != nil && err != unix.EINTR {
		return errors.Wrap(err, "reactor: poll")
	}

	if fds[0].Revents != 0 {
		l.drainWakeups()
	}

	for i, w := range active {
		revents := fds[i+1].Revents
		if revents == 0 || w.removed {
			continue
		}
		if revents&unix.POLLNVAL != 0 {
			l.logger.Warn().Int("fd", w.fd).Msg("watch on invalid descriptor removed")
			l.Remove(w.id)
			continue
		}
		cond := Condition(revents) & (w.cond | Err | Hup)
		if cond == 0 {
			continue
		}
		if !w.handler(w.fd, cond) && !w.removed {
			l.Remove(w.id)
		}
	}

	l.runPosted()
	return nil
}

func (l *Loop) drainWakeups() {
	var buf [64]byte
	for {
		n, err := unix.Read(l.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (l *Loop) runPosted() {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()
	for _, fn := range posted {
		fn()
	}
}

// Run dispatches events until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.wakeup)
	defer stop()
	for ctx.Err() == nil {
		if err := l.RunOnce(-1); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Close releases the wake pipe. Watches are dropped without being called.
func (l *Loop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.watches = nil
	unix.Close(l.wakeR)
	return unix.Close(l.wakeW)
}
