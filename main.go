package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/stesla/ntx/internal/config"
	"github.com/stesla/ntx/internal/reactor"
	"golang.org/x/term"
	"golang.org/x/text/encoding/ianaindex"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	flags := newFlagSet(args[0], cfg)
	if err := flags.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := applyArgs(cfg, flags.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closer.Close()

	enc, _ := ianaindex.IANA.Encoding(cfg.Encoding)
	loop, err := reactor.New(logger)
	if err != nil {
		logger.Error().Err(err).Send()
		return 1
	}
	defer loop.Close()

	in, out := int(os.Stdin.Fd()), int(os.Stdout.Fd())
	if term.IsTerminal(in) {
		state, err := term.MakeRaw(in)
		if err != nil {
			logger.Error().Err(err).Msg("raw mode")
			return 1
		}
		defer term.Restore(in, state)
	}
	width, height, err := term.GetSize(out)
	if err != nil {
		logger.Debug().Err(err).Msg("terminal size unknown")
	}
	display := newTerminal(os.Stdout, width, height)
	defer display.Reset()

	s, err := newSession(cfg, enc, loop, display, in, logger)
	if err != nil {
		logger.Error().Err(err).Send()
		return 1
	}
	logger.Info().Str("channel", cfg.Channel).Msg("started")
	if err := s.run(ctx); err != nil {
		logger.Error().Err(err).Msg("session ended")
		return 1
	}
	return 0
}

func newFlagSet(name string, cfg *config.Config) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [host [port] | command]\n", name)
		flags.PrintDefaults()
	}
	flags.StringVarP(&cfg.Channel, "channel", "c", cfg.Channel, "transport: telnet, pty or echo")
	flags.DurationVarP(&cfg.ConnectTimeout, "timeout", "t", cfg.ConnectTimeout, "telnet connect timeout")
	flags.StringVarP(&cfg.Encoding, "encoding", "e", cfg.Encoding, "character set of the host")
	flags.StringVar(&cfg.FioProgram, "fio", cfg.FioProgram, "file I/O coprocess")
	flags.StringVar(&cfg.CommandWrapper, "wrapper", cfg.CommandWrapper, "program that runs host OS commands")
	flags.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write the log to this file")
	return flags
}

// applyArgs takes host and port for telnet, or the command line for pty.
func applyArgs(cfg *config.Config, args []string) error {
	switch cfg.Channel {
	case config.ChannelTelnet:
		if len(args) > 2 {
			return errors.New("too many arguments")
		}
		if len(args) > 0 {
			cfg.Host = args[0]
		}
		if len(args) > 1 {
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Wrapf(err, "invalid port %q", args[1])
			}
			cfg.Port = port
		}
	case config.ChannelPty:
		if len(args) > 0 {
			cfg.Command = strings.Join(args, " ")
		}
	default:
		if len(args) > 0 {
			return errors.Errorf("%s takes no arguments", cfg.Channel)
		}
	}
	return nil
}
