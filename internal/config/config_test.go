package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)
	require.Equal(t, &Config{
		Channel:        DefaultChannel,
		Host:           DefaultHost,
		Port:           DefaultPort,
		Command:        DefaultCommand,
		ConnectTimeout: DefaultConnectTimeout,
		Encoding:       DefaultEncoding,
		FioProgram:     DefaultFioProgram,
		CommandWrapper: DefaultCommandWrapper,
		LogLevel:       DefaultLogLevel,
	}, c)
	require.NoError(t, c.Validate())
}

func TestLoadOverrides(t *testing.T) {
	c, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"NTX_CHANNEL":         "pty",
		"NTX_COMMAND":         "cat",
		"NTX_CONNECT_TIMEOUT": "250ms",
		"NTX_PORT":            "2323",
	}))
	require.NoError(t, err)
	require.Equal(t, ChannelPty, c.Channel)
	require.Equal(t, "cat", c.Command)
	require.Equal(t, 250*time.Millisecond, c.ConnectTimeout)
	require.Equal(t, 2323, c.Port)
	require.NoError(t, c.Validate())
}

func TestLoadBadValue(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"NTX_PORT": "telnet",
	}))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Channel:  ChannelTelnet,
			Host:     DefaultHost,
			Port:     DefaultPort,
			Encoding: DefaultEncoding,
			LogLevel: DefaultLogLevel,
		}
	}
	var tests = []struct {
		mutate func(*Config)
		ok     bool
	}{
		{func(*Config) {}, true},
		{func(c *Config) { c.Channel = "serial" }, false},
		{func(c *Config) { c.Host = "" }, false},
		{func(c *Config) { c.Port = 0 }, false},
		{func(c *Config) { c.Port = 70000 }, false},
		{func(c *Config) { c.Channel = ChannelPty; c.Command = "" }, false},
		{func(c *Config) { c.Channel = ChannelEcho; c.Host = "" }, true},
		{func(c *Config) { c.Encoding = "no-such-charset" }, false},
		{func(c *Config) { c.Encoding = "windows-1251" }, true},
		{func(c *Config) { c.LogLevel = "loud" }, false},
	}
	for i, test := range tests {
		c := valid()
		test.mutate(&c)
		if test.ok {
			require.NoError(t, c.Validate(), i)
		} else {
			require.Error(t, c.Validate(), i)
		}
	}
}

func TestValidateMessages(t *testing.T) {
	var tests = []struct {
		c       Config
		message string
	}{
		{Config{Channel: "serial"}, `config: unknown channel "serial"`},
		{Config{Channel: ChannelTelnet, Host: "h", Port: 0}, "config: invalid port 0"},
		{Config{Channel: ChannelTelnet, Host: "h", Port: 23, ConnectTimeout: -time.Second}, "config: invalid connect timeout -1s"},
	}
	for _, test := range tests {
		require.EqualError(t, test.c.Validate(), test.message)
	}
}
