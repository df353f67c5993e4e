package telnet

import (
	"context"

	"github.com/stesla/ntx/internal/event"
)

// ClientHandler is the option policy of a terminal client. It asks the
// server to echo, reports a terminal type and a fixed window size, and
// refuses everything else.
type ClientHandler struct {
	TerminalType  string
	Width, Height uint16

	engine *Engine
}

func NewClientHandler() *ClientHandler {
	return &ClientHandler{
		TerminalType: "telnet",
		Width:        80,
		Height:       24,
	}
}

func (h *ClientHandler) Register(e *Engine) {
	h.engine = e
	opts := e.Options()
	opts.Get(Echo).Allow(true, false)
	opts.Get(TerminalType).Allow(false, true)
	opts.Get(NAWS).Allow(false, true)
	e.Listen(EventNegotiation, opts)
	e.ListenFunc(EventConnected, h.handleConnected)
	e.ListenFunc(EventOption, h.handleOption)
	e.ListenFunc(EventSubnegotiation, h.handleSubnegotiation)
}

func (h *ClientHandler) handleConnected(ctx context.Context, _ event.Event) error {
	h.engine.Options().Get(Echo).EnableThem(ctx)
	return nil
}

func (h *ClientHandler) handleOption(_ context.Context, ev event.Event) error {
	data := ev.Data.(OptionData)
	if data.Option() == NAWS && data.ChangedUs && data.EnabledForUs() {
		return h.engine.Subnegotiate(NAWS, []byte{
			byte(h.Width >> 8), byte(h.Width),
			byte(h.Height >> 8), byte(h.Height),
		})
	}
	return nil
}

func (h *ClientHandler) handleSubnegotiation(_ context.Context, ev event.Event) error {
	data := ev.Data.(Subnegotiation)
	if data.Opt != TerminalType || len(data.Data) == 0 || data.Data[0] != TerminalTypeSend {
		return nil
	}
	return h.engine.Subnegotiate(TerminalType, append([]byte{TerminalTypeIs}, h.TerminalType...))
}
