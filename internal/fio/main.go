package fio

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

// Main runs the fio command with args (program name excluded) and returns
// the process exit status.
func Main(fs afero.Fs, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).
		With().Str("program", filepath.Base(name)).Logger()

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		io.WriteString(stderr, "Usage: "+filepath.Base(name)+" [-rwa] file\n")
	}
	read := flags.BoolP("read", "r", false, "open the file for reading (default)")
	write := flags.BoolP("write", "w", false, "truncate or create the file for writing")
	appendMode := flags.BoolP("append", "a", false, "open or create the file for appending")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		flags.Usage()
		return 1
	}

	flag := os.O_RDONLY
	switch {
	case *appendMode:
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case *write:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case *read:
	}

	path := strings.ReplaceAll(flags.Arg(0), `\`, "/")
	f, err := fs.OpenFile(path, flag, 0o666)
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("can't open file")
		return 2
	}
	defer f.Close()

	srv := &Server{File: f, Logger: logger}
	if err := srv.Serve(stdin, stdout); err != nil {
		logger.Error().Err(err).Send()
	}
	return 0
}
