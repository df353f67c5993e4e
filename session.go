package main

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stesla/ntx/internal/config"
	"github.com/stesla/ntx/internal/coproc"
	"github.com/stesla/ntx/internal/ios"
	"github.com/stesla/ntx/internal/reactor"
	"github.com/stesla/ntx/internal/transport"
	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding"
)

const keyReadSize = 256

// session joins a transport to the IOS machine and the local terminal. All
// of its methods run on the loop goroutine.
type session struct {
	logger    zerolog.Logger
	loop      *reactor.Loop
	transport transport.Transport
	files     *coproc.Bridge
	machine   *ios.Machine
	display   *terminal
	keys      *keyTranslator
	events    *LogHandler
	input     int

	keyboard bool
	stop     context.CancelFunc
	err      error
}

func newSession(cfg *config.Config, enc encoding.Encoding, loop *reactor.Loop, display *terminal, input int, logger zerolog.Logger) (*session, error) {
	t, err := transport.New(cfg, loop, logger)
	if err != nil {
		return nil, err
	}
	s := &session{
		logger:    logger,
		loop:      loop,
		transport: t,
		files:     coproc.New(cfg.FioProgram, loop, logger.With().Str("component", "fio").Logger()),
		display:   display,
		keys:      newKeyTranslator(enc, cfg.Channel == config.ChannelTelnet, logger),
		input:     input,
		keyboard:  true,
	}
	if nvt, ok := t.(*transport.Telnet); ok {
		s.events = &LogHandler{Logger: logger}
		s.events.Register(nvt.Engine())
	}
	s.machine = ios.New(ios.Options{
		Encoding:       enc,
		Channel:        t,
		Display:        display,
		Controls:       s,
		Files:          s.files,
		Loop:           loop,
		Logger:         logger.With().Str("component", "ios").Logger(),
		CommandWrapper: cfg.CommandWrapper,
	})
	t.SetCallbacks(transport.Callbacks{
		Input:      s.receive,
		Disconnect: s.disconnected,
		Error:      s.failed,
	})
	return s, nil
}

// run connects and dispatches events until the host goes away, the user
// quits or ctx is done.
func (s *session) run(ctx context.Context) error {
	ctx, s.stop = context.WithCancel(ctx)
	defer s.stop()
	defer s.close()

	if err := s.transport.Connect(ctx); err != nil {
		return err
	}
	watch := s.loop.Watch(s.input, reactor.In, s.handleKeys)
	defer s.loop.Remove(watch)

	if err := s.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return s.err
}

func (s *session) close() {
	s.machine.Close()
	s.files.Close()
	s.transport.Finalize()
	if s.events != nil {
		s.events.Unregister()
	}
	s.display.Flush()
}

func (s *session) receive(p []byte) {
	s.machine.Input(p)
	if err := s.display.Flush(); err != nil {
		s.finish(errors.Wrap(err, "display"))
	}
}

func (s *session) disconnected(err error) {
	s.logger.Info().Err(err).Msg("disconnected")
	s.finish(err)
}

func (s *session) failed(err error) {
	s.finish(err)
}

func (s *session) finish(err error) {
	if s.err == nil {
		s.err = err
	}
	if s.stop != nil {
		s.stop()
	}
}

func (s *session) handleKeys(fd int, _ reactor.Condition) bool {
	buf := make([]byte, keyReadSize)
	n, err := unix.Read(fd, buf)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return true
	case err != nil:
		s.finish(errors.Wrap(err, "read keyboard"))
		return false
	case n == 0:
		s.finish(nil)
		return false
	}
	p := buf[:n]
	if bytes.IndexByte(p, quitKey) >= 0 {
		s.logger.Debug().Msg("quit key")
		s.finish(nil)
		return false
	}
	if !s.keyboard {
		return true
	}
	out := s.keys.Translate(p, s.machine.ScreenActive())
	if len(out) == 0 {
		return true
	}
	if _, err := s.transport.Write(out); err != nil {
		s.logger.Debug().Err(err).Msg("keys dropped")
	}
	return true
}

func (s *session) KeyboardEnable(enabled bool) { s.keyboard = enabled }

func (s *session) MouseEnable(enabled bool) {
	s.logger.Debug().Bool("enabled", enabled).Msg("mouse is not supported")
}
