package telnet

import (
	"context"

	"github.com/stesla/ntx/internal/event"
)

// OptionState tracks one option on both sides of the connection using the
// Q method of RFC 1143. Allow controls how requests from the peer are
// answered; Enable and Disable start a negotiation of our own.
type OptionState interface {
	Allow(them, us bool) OptionState
	AllowThem(bool) OptionState
	AllowUs(bool) OptionState
	DisableThem(ctx context.Context) OptionState
	DisableUs(ctx context.Context) OptionState
	EnableThem(ctx context.Context) OptionState
	EnableUs(ctx context.Context) OptionState

	Enabled() (them, us bool)
	EnabledForThem() bool
	EnabledForUs() bool
	Option() byte
}

// OptionMap answers EventNegotiation. Registering it with an Engine replaces
// the engine's default of refusing everything.
type OptionMap interface {
	event.Listener
	Get(opt byte) OptionState
	// Reset returns every option to disabled without sending anything. The
	// Allow settings are kept.
	Reset()
}

func NewOptionMap() OptionMap {
	m := &optionMap{}
	for i := range m.opts {
		m.opts[i] = &optionState{opt: byte(i)}
	}
	return m
}

type optionMap struct {
	opts [256]*optionState
}

func (m *optionMap) Get(opt byte) OptionState {
	return m.opts[opt]
}

func (m *optionMap) Listen(ctx context.Context, ev event.Event) error {
	n := ev.Data.(Negotiation)
	m.opts[n.Opt].receive(ctx, n.Cmd)
	return nil
}

func (m *optionMap) Reset() {
	for _, o := range m.opts {
		o.them, o.us = qNo, qNo
	}
}

type qState int

const (
	qNo qState = 0 + iota
	qYes
	qWantNoEmpty
	qWantNoOpposite
	qWantYesEmpty
	qWantYesOpposite
)

type optionState struct {
	opt       byte
	allowThem bool
	them      qState
	allowUs   bool
	us        qState
}

func (o *optionState) Allow(them, us bool) OptionState {
	return o.AllowThem(them).AllowUs(us)
}

func (o *optionState) AllowThem(allow bool) OptionState {
	o.allowThem = allow
	return o
}

func (o *optionState) AllowUs(allow bool) OptionState {
	o.allowUs = allow
	return o
}

func (o *optionState) DisableThem(ctx context.Context) OptionState {
	o.disable(ctx, &o.them, DONT)
	return o
}

func (o *optionState) DisableUs(ctx context.Context) OptionState {
	o.disable(ctx, &o.us, WONT)
	return o
}

func (o *optionState) EnableThem(ctx context.Context) OptionState {
	o.enable(ctx, &o.them, DO)
	return o
}

func (o *optionState) EnableUs(ctx context.Context) OptionState {
	o.enable(ctx, &o.us, WILL)
	return o
}

func (o *optionState) Enabled() (them, us bool) { return o.EnabledForThem(), o.EnabledForUs() }
func (o *optionState) EnabledForThem() bool     { return o.them == qYes }
func (o *optionState) EnabledForUs() bool       { return o.us == qYes }

func (o *optionState) Option() byte { return o.opt }

func (o *optionState) disable(ctx context.Context, state *qState, cmd byte) {
	switch *state {
	case qYes:
		*state = qWantNoEmpty
		o.send(ctx, cmd)
	case qWantNoOpposite:
		*state = qWantNoEmpty
	case qWantYesEmpty:
		*state = qWantYesOpposite
	}
}

func (o *optionState) enable(ctx context.Context, state *qState, cmd byte) {
	switch *state {
	case qNo:
		*state = qWantYesEmpty
		o.send(ctx, cmd)
	case qWantNoEmpty:
		*state = qWantNoOpposite
	case qWantYesOpposite:
		*state = qWantYesEmpty
	}
}

func (o *optionState) receive(ctx context.Context, cmd byte) {
	themBefore, usBefore := o.them, o.us

	allow, state, accept, reject := &o.allowThem, &o.them, byte(DO), byte(DONT)
	if cmd == DO || cmd == DONT {
		allow, state, accept, reject = &o.allowUs, &o.us, WILL, WONT
	}

	switch cmd {
	case DO, WILL:
		switch *state {
		case qNo:
			if *allow {
				*state = qYes
				o.send(ctx, accept)
			} else {
				o.send(ctx, reject)
			}
		case qWantNoEmpty:
			*state = qNo
		case qWantNoOpposite, qWantYesEmpty:
			*state = qYes
		case qWantYesOpposite:
			*state = qWantNoEmpty
			o.send(ctx, reject)
		}
	case DONT, WONT:
		switch *state {
		case qYes:
			*state = qNo
			o.send(ctx, reject)
		case qWantNoOpposite:
			*state = qWantYesEmpty
			o.send(ctx, accept)
		case qWantNoEmpty, qWantYesEmpty, qWantYesOpposite:
			*state = qNo
		}
	}

	if changedThem, changedUs := themBefore != o.them, usBefore != o.us; changedThem || changedUs {
		dispatch(ctx, event.Event{Name: EventOption, Data: OptionData{
			OptionState: o,
			ChangedThem: changedThem,
			ChangedUs:   changedUs,
		}})
	}
}

func (o *optionState) send(ctx context.Context, cmd byte) {
	dispatch(ctx, event.Event{Name: EventSend, Data: []byte{IAC, cmd, o.opt}})
}
