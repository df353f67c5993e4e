package main

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stesla/ntx/internal/config"
	"github.com/stesla/ntx/internal/event"
	"github.com/stesla/ntx/internal/telnet"
)

// newLogger writes to cfg.LogFile, or to stderr when none is set. The
// returned closer releases the file.
func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrap(err, "log level")
	}
	var out io.WriteCloser = nopCloser{os.Stderr}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrap(err, "log file")
		}
		out = f
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: out, NoColor: cfg.LogFile != ""}).
		Level(level).
		With().Timestamp().Logger()
	return logger, out, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

var loggedEvents = []event.Name{
	telnet.EventConnected,
	telnet.EventCommand,
	telnet.EventNegotiation,
	telnet.EventOption,
	telnet.EventSubnegotiation,
	telnet.EventSend,
}

type LogHandler struct {
	dispatcher event.Dispatcher
	zerolog.Logger
}

func (h *LogHandler) Register(d event.Dispatcher) {
	h.dispatcher = d
	for _, name := range loggedEvents {
		d.Listen(name, h)
	}
}

func (h *LogHandler) Unregister() {
	for _, name := range loggedEvents {
		h.dispatcher.RemoveListener(name, h)
	}
}

func (h *LogHandler) Listen(_ context.Context, ev event.Event) error {
	log := h.Trace().Str("event", string(ev.Name))
	switch t := ev.Data.(type) {
	case nil:
	case byte:
		log.Uint8("command", t)
	case []byte:
		log.Bytes("data", t)
	case telnet.Negotiation:
		log.Uint8("command", t.Cmd).Uint8("option", t.Opt)
	case telnet.OptionData:
		log.Uint8("option", t.Option()).
			Bool("changedThem", t.ChangedThem).
			Bool("changedUs", t.ChangedUs).
			Bool("enabledThem", t.EnabledForThem()).
			Bool("enabledUs", t.EnabledForUs())
	case telnet.Subnegotiation:
		log.Uint8("option", t.Opt).Bytes("data", t.Data).Bool("truncated", t.Truncated)
	default:
		log.Any("data", t)
	}
	log.Send()
	return nil
}
