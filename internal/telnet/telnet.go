// Package telnet implements the client side of the Telnet network virtual
// terminal: decoding of the inbound byte stream, IAC escaping of outbound
// data and option negotiation.
package telnet

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/stesla/ntx/internal/buffer"
	"github.com/stesla/ntx/internal/event"
)

// SubnegotiationSize bounds the payload collected between IAC SB and IAC SE.
const SubnegotiationSize = 128

// writeChunk bounds how much payload is escaped per write to the peer.
const writeChunk = 1024

// Engine is the NVT state machine for one connection. It is not safe for
// concurrent use; the transport drives it from the reactor goroutine.
type Engine struct {
	event.Dispatcher

	w       io.Writer
	logger  zerolog.Logger
	options OptionMap

	ds          decodeState
	cmd         byte
	crPending   bool
	sbopt       byte
	sb          *buffer.Bounded
	sbTruncated bool

	// pendingIAC is set when a short write split a doubled IAC; the
	// second half goes out before anything else.
	pendingIAC bool
}

type decodeState int

const (
	decodeByte decodeState = 0 + iota
	decodeIAC
	decodeOptionNegotiation
	decodeSB
	decodeSBData
	decodeSBIAC
)

func NewEngine(w io.Writer, logger zerolog.Logger) *Engine {
	e := &Engine{
		Dispatcher: event.NewDispatcher(),
		w:          w,
		logger:     logger,
		options:    NewOptionMap(),
		sb:         buffer.New(SubnegotiationSize),
	}
	e.ListenFunc(EventSend, e.handleSend)
	return e
}

// Options is not consulted until it is registered for EventNegotiation.
func (e *Engine) Options() OptionMap { return e.options }

// Context returns ctx carrying the engine as dispatcher, which OptionState
// needs to send its replies.
func (e *Engine) Context(ctx context.Context) context.Context {
	return WithDispatcher(ctx, e)
}

// Reset puts the decoder back in its idle state and forgets all option
// state. Call it whenever a new connection is established.
func (e *Engine) Reset() {
	e.ds = decodeByte
	e.cmd = 0
	e.crPending = false
	e.sbopt = 0
	e.sb.Reset()
	e.sbTruncated = false
	e.pendingIAC = false
	e.options.Reset()
}

// Connected announces a freshly established connection to listeners.
func (e *Engine) Connected(ctx context.Context) error {
	return e.Dispatch(e.Context(ctx), event.Event{Name: EventConnected})
}

func (e *Engine) handleSend(_ context.Context, ev event.Event) error {
	return e.writeRaw(ev.Data.([]byte))
}

// Decode consumes raw bytes from the peer and returns the payload they
// carry. Protocol sequences may span calls.
func (e *Engine) Decode(ctx context.Context, p []byte) []byte {
	ctx = e.Context(ctx)
	out := make([]byte, 0, len(p)+1)
	for _, c := range p {
		switch e.ds {
		case decodeByte:
			switch {
			case c == IAC:
				e.ds = decodeIAC
			case e.crPending:
				e.crPending = false
				switch c {
				case lf:
					out = append(out, cr, lf)
				case nul:
					out = append(out, cr)
				default:
					out = append(out, cr, c)
				}
			case c == cr:
				e.crPending = true
			default:
				out = append(out, c)
			}
		case decodeIAC:
			switch c {
			case IAC:
				if e.crPending {
					e.crPending = false
					out = append(out, cr)
				}
				out = append(out, IAC)
				e.ds = decodeByte
			case SB:
				e.ds = decodeSB
			case WILL, WONT, DO, DONT:
				e.cmd = c
				e.ds = decodeOptionNegotiation
			default:
				e.logger.Trace().Uint8("cmd", c).Msg("telnet command")
				dispatch(ctx, event.Event{Name: EventCommand, Data: c})
				e.ds = decodeByte
			}
		case decodeOptionNegotiation:
			e.negotiate(ctx, e.cmd, c)
			e.cmd = 0
			e.ds = decodeByte
		case decodeSB:
			e.sbopt = c
			e.sb.Reset()
			e.sbTruncated = false
			e.ds = decodeSBData
		case decodeSBData:
			if c == IAC {
				e.ds = decodeSBIAC
			} else {
				e.appendSB(c)
			}
		case decodeSBIAC:
			switch c {
			case IAC:
				e.appendSB(IAC)
				e.ds = decodeSBData
			case SE:
				e.subnegotiate(ctx)
				e.ds = decodeByte
			}
			// anything else is ignored until IAC or SE arrives
		}
	}
	return out
}

func (e *Engine) appendSB(c byte) {
	if e.sb.WriteByte(c) != nil {
		e.sbTruncated = true
	}
}

func (e *Engine) negotiate(ctx context.Context, cmd, opt byte) {
	e.logger.Trace().Str("cmd", commandName(cmd)).Uint8("opt", opt).Msg("telnet negotiation")
	if e.Listening(EventNegotiation) {
		dispatch(ctx, event.Event{Name: EventNegotiation, Data: Negotiation{Cmd: cmd, Opt: opt}})
		return
	}
	switch cmd {
	case DO:
		e.Send(WONT, opt)
	case WILL:
		e.Send(DONT, opt)
	}
}

func (e *Engine) subnegotiate(ctx context.Context) {
	data := e.sb.Take()
	if e.sbTruncated {
		e.logger.Warn().Uint8("opt", e.sbopt).Msg("telnet subnegotiation truncated")
	}
	dispatch(ctx, event.Event{Name: EventSubnegotiation, Data: Subnegotiation{
		Opt:       e.sbopt,
		Data:      data,
		Truncated: e.sbTruncated,
	}})
	e.sbTruncated = false
}

// Write escapes p and sends it to the peer. On a short write n counts the
// payload bytes that made it out. An IAC whose doubling was cut short counts
// as sent; its second half is written first on the next call, so an empty
// Write finishes it.
func (e *Engine) Write(p []byte) (n int, err error) {
	if err = e.flushIAC(); err != nil {
		return
	}
	for len(p) > 0 {
		chunk := p[:min(len(p), writeChunk)]
		escaped := Escape(chunk)
		var nw int
		nw, err = e.w.Write(escaped)
		if err != nil || nw < len(escaped) {
			sent, split := payloadLen(escaped[:nw])
			n += sent
			e.pendingIAC = split
			if err == nil {
				err = io.ErrShortWrite
			}
			return
		}
		n += len(chunk)
		p = p[len(chunk):]
	}
	return
}

// payloadLen counts the unescaped bytes represented by a prefix of escaped
// output. split reports that the prefix ends on the first half of an IAC
// pair, which is counted.
func payloadLen(escaped []byte) (n int, split bool) {
	for i := 0; i < len(escaped); i++ {
		if escaped[i] == IAC {
			if i+1 >= len(escaped) {
				return n + 1, true
			}
			i++
		}
		n++
	}
	return n, false
}

func (e *Engine) flushIAC() error {
	if !e.pendingIAC {
		return nil
	}
	nw, err := e.w.Write([]byte{IAC})
	if nw == 1 {
		e.pendingIAC = false
	}
	if err == nil && nw < 1 {
		err = io.ErrShortWrite
	}
	return err
}

// writeRaw sends protocol bytes behind any pending IAC.
func (e *Engine) writeRaw(p []byte) error {
	if err := e.flushIAC(); err != nil {
		return err
	}
	_, err := e.w.Write(p)
	return err
}

func (e *Engine) Send(cmd, opt byte) error {
	return e.writeRaw([]byte{IAC, cmd, opt})
}

func (e *Engine) Subnegotiate(opt byte, data []byte) error {
	buf := make([]byte, 0, len(data)+5)
	buf = append(buf, IAC, SB, opt)
	buf = append(buf, Escape(data)...)
	buf = append(buf, IAC, SE)
	return e.writeRaw(buf)
}

// Escape doubles every IAC in p.
func Escape(p []byte) []byte {
	buf := make([]byte, 0, len(p))
	for _, c := range p {
		if c == IAC {
			buf = append(buf, IAC)
		}
		buf = append(buf, c)
	}
	return buf
}

// Unescape collapses doubled IACs. A lone IAC is kept.
func Unescape(p []byte) []byte {
	buf := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		buf = append(buf, p[i])
		if p[i] == IAC && i+1 < len(p) && p[i+1] == IAC {
			i++
		}
	}
	return buf
}

func commandName(cmd byte) string {
	switch cmd {
	case WILL:
		return "WILL"
	case WONT:
		return "WONT"
	case DO:
		return "DO"
	case DONT:
		return "DONT"
	}
	return "?"
}
