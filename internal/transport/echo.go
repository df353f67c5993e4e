package transport

import (
	"context"

	"github.com/rs/zerolog"
)

const echoChunk = 2 * PrependSize

// Echo loops every write straight back as input.
type Echo struct {
	base
	connected bool
}

func NewEcho(logger zerolog.Logger) *Echo {
	return &Echo{base: newBase(logger)}
}

func (e *Echo) Name() string { return "echo" }

func (e *Echo) Connect(context.Context) error {
	e.logger.Debug().Msg("connect")
	e.connected = true
	return nil
}

func (e *Echo) Disconnect() {
	if !e.connected {
		e.logger.Warn().Msg("no connection exists")
	}
	e.connected = false
}

func (e *Echo) IsConnected() bool { return e.connected }

func (e *Echo) Finalize() { e.connected = false }

// Write delivers p in chunks of at most echoChunk bytes, pending bytes
// first. The Input callback may write again.
func (e *Echo) Write(p []byte) (n int, err error) {
	if !e.connected {
		return 0, ErrNotConnected
	}
	for len(p) > 0 {
		queued := e.pending.Take()
		chunk := p[:min(len(p), echoChunk-len(queued))]
		buf := append(queued, chunk...)
		n += len(chunk)
		p = p[len(chunk):]
		if e.cb.Input != nil {
			e.cb.Input(buf)
		}
	}
	return
}
