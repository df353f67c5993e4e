// Package transport moves bytes between the client and a remote host or a
// local process. Every backend exposes the same Transport contract so the
// protocol layers above never branch on which one is in use.
package transport

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stesla/ntx/internal/buffer"
	"github.com/stesla/ntx/internal/config"
	"github.com/stesla/ntx/internal/reactor"
)

// PrependSize is the capacity of the pushed-back byte queue.
const PrependSize = 1024

var (
	ErrNotConnected     = errors.New("transport: not connected")
	ErrAlreadyConnected = errors.New("transport: already connected")
)

// Callbacks are invoked on the reactor goroutine. Any of them may be nil.
type Callbacks struct {
	Input      func(p []byte)
	Disconnect func(err error)
	Error      func(err error)
}

type Transport interface {
	io.Writer
	Name() string
	// Connect starts a connection. A nil error means the backend is either
	// connected or will report the outcome through Callbacks.
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	// Prepend queues p to be delivered ahead of the next input. Bytes that
	// do not fit are refused with buffer.ErrTruncated.
	Prepend(p []byte) (int, error)
	SetCallbacks(cb Callbacks)
	Finalize()
}

// New builds the backend named by cfg.Channel.
func New(cfg *config.Config, loop reactor.Watcher, logger zerolog.Logger) (Transport, error) {
	logger = logger.With().Str("channel", cfg.Channel).Logger()
	switch cfg.Channel {
	case config.ChannelTelnet:
		return NewTelnet(cfg.Host, cfg.Port, cfg.ConnectTimeout, loop, logger), nil
	case config.ChannelPty:
		return NewPty(cfg.Command, loop, logger), nil
	case config.ChannelEcho:
		return NewEcho(logger), nil
	}
	return nil, errors.Errorf("transport: unknown channel %q", cfg.Channel)
}

// base holds what every backend shares: the callbacks and the prepend queue.
type base struct {
	logger  zerolog.Logger
	cb      Callbacks
	pending *buffer.Bounded
}

func newBase(logger zerolog.Logger) base {
	return base{
		logger:  logger,
		pending: buffer.New(PrependSize),
	}
}

func (b *base) SetCallbacks(cb Callbacks) { b.cb = cb }

func (b *base) Prepend(p []byte) (int, error) {
	n, err := b.pending.Write(p)
	if err != nil {
		b.logger.Warn().Int("len", len(p)).Int("accepted", n).Msg("prepend buffer full")
	}
	return n, err
}

// deliver hands p to the Input callback behind any pending bytes.
func (b *base) deliver(p []byte) {
	if queued := b.pending.Take(); queued != nil {
		p = append(queued, p...)
	}
	if len(p) > 0 && b.cb.Input != nil {
		b.cb.Input(p)
	}
}

func (b *base) disconnected(err error) {
	b.logger.Debug().Err(err).Msg("disconnected")
	if b.cb.Disconnect != nil {
		b.cb.Disconnect(err)
	}
}

func (b *base) failed(err error) {
	b.logger.Error().Err(err).Msg("transport error")
	if b.cb.Error != nil {
		b.cb.Error(err)
	}
}
