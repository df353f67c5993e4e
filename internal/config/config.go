// Package config loads the client settings from the environment.
package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/text/encoding/ianaindex"
)

// Config tags must agree with the constants in defaults.go.
type Config struct {
	Channel        string        `env:"NTX_CHANNEL,default=telnet"`
	Host           string        `env:"NTX_HOST,default=localhost"`
	Port           int           `env:"NTX_PORT,default=23"`
	Command        string        `env:"NTX_COMMAND,default=/bin/sh"`
	ConnectTimeout time.Duration `env:"NTX_CONNECT_TIMEOUT,default=10s"`
	Encoding       string        `env:"NTX_ENCODING,default=IBM866"`
	FioProgram     string        `env:"NTX_FIO_PROGRAM,default=fio"`
	CommandWrapper string        `env:"NTX_COMMAND_WRAPPER,default=cmdwrapper"`
	LogLevel       string        `env:"NTX_LOG_LEVEL,default=info"`

	// LogFile receives the log instead of stderr when set.
	LogFile string `env:"NTX_LOG_FILE"`
}

func Load(ctx context.Context) (*Config, error) {
	var c Config
	if err := envconfig.Process(ctx, &c); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	return &c, nil
}

// LoadWith reads settings through l instead of the process environment.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &c, l); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Channel {
	case ChannelTelnet:
		if c.Host == "" {
			return errors.New("config: host is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return errors.Errorf("config: invalid port %d", c.Port)
		}
		if c.ConnectTimeout < 0 {
			return errors.Errorf("config: invalid connect timeout %s", c.ConnectTimeout)
		}
	case ChannelPty:
		if c.Command == "" {
			return errors.New("config: command is required")
		}
	case ChannelEcho:
	default:
		return errors.Errorf("config: unknown channel %q", c.Channel)
	}
	if enc, err := ianaindex.IANA.Encoding(c.Encoding); err != nil {
		return errors.Wrapf(err, "config: encoding %q", c.Encoding)
	} else if enc == nil {
		return errors.Errorf("config: encoding %q is not supported", c.Encoding)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config")
	}
	return nil
}
