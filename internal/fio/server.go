package fio

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MaxLine bounds a command line and a single read.
const MaxLine = 8192

// Server executes commands against File.
type Server struct {
	File   io.ReadWriter
	Logger zerolog.Logger
}

// Serve runs until r is exhausted. Malformed lines are logged and skipped;
// only a failure to read r or write w ends the loop early.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	br := bufio.NewReaderSize(r, MaxLine+1)
	bw := bufio.NewWriter(w)
	for {
		line, err := br.ReadSlice('\n')
		if len(line) > 0 {
			if werr := s.handle(line, bw); werr != nil {
				return werr
			}
		}
		switch err {
		case nil, bufio.ErrBufferFull:
		case io.EOF:
			return nil
		default:
			return errors.Wrap(err, "fio: read command")
		}
	}
}

func (s *Server) handle(line []byte, w *bufio.Writer) error {
	if n := len(line); line[n-1] == lf {
		line = line[:n-1]
	} else {
		s.Logger.Warn().Msg("no <lf> at end of line")
	}
	if len(line) < 2 {
		s.Logger.Warn().Msg("too short command sequence")
		return nil
	}

	switch cmd, arg := line[0], line[1:]; cmd {
	case 'r', 'R':
		n, err := strconv.ParseUint(string(arg), 10, 32)
		if err != nil {
			s.Logger.Warn().Err(err).Msgf("%c: invalid read length", cmd)
			return nil
		}
		if n > MaxLine {
			s.Logger.Warn().Msgf("%c: can't read that much", cmd)
			n = MaxLine
		}
		return s.read(cmd, int(n), w)
	case 'w', 'W':
		data := arg
		if cmd == 'w' {
			data = Unstuff(arg)
		}
		if _, err := s.File.Write(data); err != nil {
			s.Logger.Error().Err(err).Msg("error writing file")
		}
	default:
		s.Logger.Warn().Msgf("unknown command 0x%02x", cmd)
	}
	return nil
}

func (s *Server) read(cmd byte, n int, w *bufio.Writer) error {
	buf := make([]byte, n)
	nr, err := io.ReadFull(s.File, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	data := buf[:nr]
	if cmd == 'r' {
		data = Stuff(data)
	}

	if nr == 0 || err != nil {
		if err != nil {
			s.Logger.Error().Err(err).Msg("error reading file")
		}
		w.WriteByte('0')
	} else {
		w.WriteByte('1')
		w.Write(data)
	}
	w.WriteByte(esc)
	w.WriteByte(lf)
	return errors.Wrap(w.Flush(), "fio: write response")
}
