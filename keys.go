package main

import (
	"bytes"
	"strconv"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
)

const (
	esc = 0x1b
	// quitKey (Ctrl-]) ends the session locally.
	quitKey = 0x1d
)

// xterm input sequences and the IOS key codes they stand for
var functionKeys = map[string]string{
	"\x1b[A":   "100",
	"\x1bOA":   "100",
	"\x1b[B":   "101",
	"\x1bOB":   "101",
	"\x1b[D":   "102",
	"\x1bOD":   "102",
	"\x1b[C":   "103",
	"\x1bOC":   "103",
	"\x1b[2~":  "81",
	"\x1b[H":   "82",
	"\x1bOH":   "82",
	"\x1b[1~":  "82",
	"\x1b[5~":  "83",
	"\x1b[6~":  "84",
	"\x1b[F":   "85",
	"\x1bOF":   "85",
	"\x1b[4~":  "85",
	"\x1b[3~":  "76",
	"\x1bOP":   "88",
	"\x1bOQ":   "89",
	"\x1bOR":   "90",
	"\x1bOS":   "91",
	"\x1b[15~": "92",
	"\x1b[17~": "93",
	"\x1b[18~": "94",
	"\x1b[19~": "95",
	"\x1b[20~": "96",
	"\x1b[21~": "97",
	"\x1b[23~": "98",
	"\x1b[24~": "99",
}

// Alt+a through Alt+z
var altLetters = [26]string{
	"37", "52", "50", "39", "28", "40", "41", "276",
	"32", "278", "279", "280", "54", "53", "33", "34",
	"27", "267", "38", "29", "31", "51", "00", "49",
	"30", "277",
}

// keyTranslator turns bytes read from the local terminal into what the host
// expects. In IOS mode every key becomes a code sent in the host's
// character set and terminated by ESC; otherwise keys pass through.
type keyTranslator struct {
	enc    *encoding.Encoder
	crlf   bool
	logger zerolog.Logger
}

func newKeyTranslator(enc encoding.Encoding, crlf bool, logger zerolog.Logger) *keyTranslator {
	return &keyTranslator{
		enc:    enc.NewEncoder(),
		crlf:   crlf,
		logger: logger,
	}
}

func (k *keyTranslator) Translate(p []byte, screen bool) []byte {
	if !screen {
		return k.plain(p)
	}
	var out []byte
	for len(p) > 0 {
		c := p[0]
		switch {
		case c == esc:
			if code, n := functionKey(p); n > 0 {
				out = k.code(out, code)
				p = p[n:]
			} else if len(p) > 1 && 'a' <= p[1] && p[1] <= 'z' {
				out = k.code(out, altLetters[p[1]-'a'])
				p = p[2:]
			} else {
				out = k.code(out, "-1")
				p = p[1:]
			}
		case c == 0x7f:
			out = k.code(out, "8")
			p = p[1:]
		case 1 <= c && c <= 26:
			out = k.code(out, strconv.Itoa(int(c)))
			p = p[1:]
		case c < 0x20:
			p = p[1:]
		default:
			r, size := utf8.DecodeRune(p)
			out = k.code(out, "+"+string(r))
			p = p[size:]
		}
	}
	return out
}

func (k *keyTranslator) plain(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, c := range p {
		switch {
		case c == '\r' && k.crlf:
			out = append(out, '\r', '\n')
		case c == 0x7f:
			out = append(out, '\b')
		default:
			out = append(out, c)
		}
	}
	return out
}

func (k *keyTranslator) code(out []byte, code string) []byte {
	s, err := k.enc.String(code)
	if err != nil {
		k.logger.Warn().Err(err).Str("key", code).Msg("key not representable")
		return out
	}
	return append(append(out, s...), esc)
}

// functionKey returns the code of the longest sequence p starts with.
func functionKey(p []byte) (code string, n int) {
	for seq, c := range functionKeys {
		if len(seq) > n && bytes.HasPrefix(p, []byte(seq)) {
			code, n = c, len(seq)
		}
	}
	return
}
