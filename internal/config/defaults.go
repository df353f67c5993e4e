package config

import "time"

// Channel names accepted by NTX_CHANNEL.
const (
	ChannelTelnet = "telnet"
	ChannelPty    = "pty"
	ChannelEcho   = "echo"
)

const (
	DefaultChannel        = ChannelTelnet
	DefaultHost           = "localhost"
	DefaultPort           = 23
	DefaultCommand        = "/bin/sh"
	DefaultConnectTimeout = 10 * time.Second

	// DefaultEncoding is the IANA name of the host's character set.
	DefaultEncoding = "IBM866"

	DefaultFioProgram     = "fio"
	DefaultCommandWrapper = "cmdwrapper"
	DefaultLogLevel       = "info"
)
