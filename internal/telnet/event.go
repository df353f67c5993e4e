package telnet

import (
	"context"
	"errors"

	"github.com/stesla/ntx/internal/event"
)

const (
	EventCommand        event.Name = "telnet.command"
	EventConnected      event.Name = "telnet.connected"
	EventNegotiation    event.Name = "telnet.option.negotiation"
	EventOption         event.Name = "telnet.option"
	EventSend           event.Name = "telnet.send-data"
	EventSubnegotiation event.Name = "telnet.option.subnegotiation"
)

// Negotiation is the data of EventNegotiation: one of WILL, WONT, DO, DONT
// followed by an option code.
type Negotiation struct {
	Cmd byte
	Opt byte
}

// Subnegotiation is the data of EventSubnegotiation. Data has IAC escapes
// removed. Truncated is set when the peer sent more than SubnegotiationSize
// bytes; the excess was dropped.
type Subnegotiation struct {
	Opt       byte
	Data      []byte
	Truncated bool
}

// OptionData is the data of EventOption, dispatched whenever negotiation
// changes the state of an option on either side.
type OptionData struct {
	OptionState
	ChangedThem bool
	ChangedUs   bool
}

type contextKey int

const KeyDispatcher contextKey = iota

var errNoDispatcher = errors.New("telnet: no dispatcher in context")

func WithDispatcher(ctx context.Context, d event.Dispatcher) context.Context {
	return context.WithValue(ctx, KeyDispatcher, d)
}

func Dispatch(ctx context.Context, ev event.Event) error {
	d, ok := ctx.Value(KeyDispatcher).(event.Dispatcher)
	if !ok {
		return errNoDispatcher
	}
	return d.Dispatch(ctx, ev)
}

func dispatch(ctx context.Context, ev event.Event) {
	Dispatch(ctx, ev)
}
