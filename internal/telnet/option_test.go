package telnet

import (
	"context"
	"testing"

	"github.com/stesla/ntx/internal/event"
	"github.com/stretchr/testify/require"
)

func captureSend(t *testing.T) (context.Context, *[][]byte) {
	t.Helper()
	var sent [][]byte
	d := event.NewDispatcher()
	d.ListenFunc(EventSend, func(_ context.Context, ev event.Event) error {
		sent = append(sent, ev.Data.([]byte))
		return nil
	})
	return WithDispatcher(context.Background(), d), &sent
}

func TestOptionStateReceive(t *testing.T) {
	var tests = []struct {
		b     byte
		start optionState
		end   optionState
		sent  []byte
	}{
		{DO, optionState{allowUs: true, us: qNo}, optionState{allowUs: true, us: qYes}, []byte{IAC, WILL}},
		{DO, optionState{us: qNo}, optionState{us: qNo}, []byte{IAC, WONT}},
		{DO, optionState{us: qYes}, optionState{us: qYes}, nil},
		{DO, optionState{us: qWantNoEmpty}, optionState{us: qNo}, nil},
		{DO, optionState{us: qWantNoOpposite}, optionState{us: qYes}, nil},
		{DO, optionState{us: qWantYesEmpty}, optionState{us: qYes}, nil},
		{DO, optionState{us: qWantYesOpposite}, optionState{us: qWantNoEmpty}, []byte{IAC, WONT}},

		{DONT, optionState{us: qNo}, optionState{us: qNo}, nil},
		{DONT, optionState{us: qYes}, optionState{us: qNo}, []byte{IAC, WONT}},
		{DONT, optionState{us: qWantNoEmpty}, optionState{us: qNo}, nil},
		{DONT, optionState{us: qWantNoOpposite}, optionState{us: qWantYesEmpty}, []byte{IAC, WILL}},
		{DONT, optionState{us: qWantYesEmpty}, optionState{us: qNo}, nil},
		{DONT, optionState{us: qWantYesOpposite}, optionState{us: qNo}, nil},

		{WILL, optionState{allowThem: true, them: qNo}, optionState{allowThem: true, them: qYes}, []byte{IAC, DO}},
		{WILL, optionState{them: qNo}, optionState{them: qNo}, []byte{IAC, DONT}},
		{WILL, optionState{them: qYes}, optionState{them: qYes}, nil},
		{WILL, optionState{them: qWantNoEmpty}, optionState{them: qNo}, nil},
		{WILL, optionState{them: qWantNoOpposite}, optionState{them: qYes}, nil},
		{WILL, optionState{them: qWantYesEmpty}, optionState{them: qYes}, nil},
		{WILL, optionState{them: qWantYesOpposite}, optionState{them: qWantNoEmpty}, []byte{IAC, DONT}},

		{WONT, optionState{them: qNo}, optionState{them: qNo}, nil},
		{WONT, optionState{them: qYes}, optionState{them: qNo}, []byte{IAC, DONT}},
		{WONT, optionState{them: qWantNoEmpty}, optionState{them: qNo}, nil},
		{WONT, optionState{them: qWantNoOpposite}, optionState{them: qWantYesEmpty}, []byte{IAC, DO}},
		{WONT, optionState{them: qWantYesEmpty}, optionState{them: qNo}, nil},
		{WONT, optionState{them: qWantYesOpposite}, optionState{them: qNo}, nil},
	}

	for i, test := range tests {
		ctx, sent := captureSend(t)
		state := test.start
		state.opt = Echo
		expected := test.end
		expected.opt = Echo
		state.receive(ctx, test.b)
		require.Equal(t, expected, state, i)
		if test.sent != nil {
			require.Equal(t, [][]byte{append(test.sent, Echo)}, *sent, i)
		} else {
			require.Empty(t, *sent, i)
		}
	}
}

func TestOptionEnable(t *testing.T) {
	disableThem := func(ctx context.Context, os *optionState) { os.DisableThem(ctx) }
	disableUs := func(ctx context.Context, os *optionState) { os.DisableUs(ctx) }
	enableThem := func(ctx context.Context, os *optionState) { os.EnableThem(ctx) }
	enableUs := func(ctx context.Context, os *optionState) { os.EnableUs(ctx) }
	var tests = []struct {
		fn    func(context.Context, *optionState)
		start optionState
		end   optionState
		sent  []byte
	}{
		{disableThem, optionState{them: qNo}, optionState{them: qNo}, nil},
		{disableThem, optionState{them: qYes}, optionState{them: qWantNoEmpty}, []byte{IAC, DONT}},
		{disableThem, optionState{them: qWantNoEmpty}, optionState{them: qWantNoEmpty}, nil},
		{disableThem, optionState{them: qWantNoOpposite}, optionState{them: qWantNoEmpty}, nil},
		{disableThem, optionState{them: qWantYesEmpty}, optionState{them: qWantYesOpposite}, nil},
		{disableThem, optionState{them: qWantYesOpposite}, optionState{them: qWantYesOpposite}, nil},

		{disableUs, optionState{us: qNo}, optionState{us: qNo}, nil},
		{disableUs, optionState{us: qYes}, optionState{us: qWantNoEmpty}, []byte{IAC, WONT}},
		{disableUs, optionState{us: qWantNoEmpty}, optionState{us: qWantNoEmpty}, nil},
		{disableUs, optionState{us: qWantNoOpposite}, optionState{us: qWantNoEmpty}, nil},
		{disableUs, optionState{us: qWantYesEmpty}, optionState{us: qWantYesOpposite}, nil},
		{disableUs, optionState{us: qWantYesOpposite}, optionState{us: qWantYesOpposite}, nil},

		{enableThem, optionState{them: qNo}, optionState{them: qWantYesEmpty}, []byte{IAC, DO}},
		{enableThem, optionState{them: qYes}, optionState{them: qYes}, nil},
		{enableThem, optionState{them: qWantNoEmpty}, optionState{them: qWantNoOpposite}, nil},
		{enableThem, optionState{them: qWantNoOpposite}, optionState{them: qWantNoOpposite}, nil},
		{enableThem, optionState{them: qWantYesEmpty}, optionState{them: qWantYesEmpty}, nil},
		{enableThem, optionState{them: qWantYesOpposite}, optionState{them: qWantYesEmpty}, nil},

		{enableUs, optionState{us: qNo}, optionState{us: qWantYesEmpty}, []byte{IAC, WILL}},
		{enableUs, optionState{us: qYes}, optionState{us: qYes}, nil},
		{enableUs, optionState{us: qWantNoEmpty}, optionState{us: qWantNoOpposite}, nil},
		{enableUs, optionState{us: qWantNoOpposite}, optionState{us: qWantNoOpposite}, nil},
		{enableUs, optionState{us: qWantYesEmpty}, optionState{us: qWantYesEmpty}, nil},
		{enableUs, optionState{us: qWantYesOpposite}, optionState{us: qWantYesEmpty}, nil},
	}

	for i, test := range tests {
		ctx, sent := captureSend(t)
		actual := test.start
		actual.opt = Echo
		expected := test.end
		expected.opt = Echo
		test.fn(ctx, &actual)
		require.Equal(t, expected, actual, i)
		if test.sent != nil {
			require.Equal(t, [][]byte{append(test.sent, Echo)}, *sent, i)
		} else {
			require.Empty(t, *sent, i)
		}
	}
}

func TestOptionEnabled(t *testing.T) {
	enabledForThem := func(os optionState) bool { return os.EnabledForThem() }
	enabledForUs := func(os optionState) bool { return os.EnabledForUs() }
	var tests = []struct {
		enabled  func(optionState) bool
		state    optionState
		expected bool
	}{
		{enabledForThem, optionState{them: qNo}, false},
		{enabledForThem, optionState{them: qYes}, true},
		{enabledForThem, optionState{them: qWantNoEmpty}, false},
		{enabledForThem, optionState{them: qWantNoOpposite}, false},
		{enabledForThem, optionState{them: qWantYesEmpty}, false},
		{enabledForThem, optionState{them: qWantYesOpposite}, false},

		{enabledForUs, optionState{us: qNo}, false},
		{enabledForUs, optionState{us: qYes}, true},
		{enabledForUs, optionState{us: qWantNoEmpty}, false},
		{enabledForUs, optionState{us: qWantNoOpposite}, false},
		{enabledForUs, optionState{us: qWantYesEmpty}, false},
		{enabledForUs, optionState{us: qWantYesOpposite}, false},
	}

	for i, test := range tests {
		actual := test.enabled(test.state)
		require.Equal(t, test.expected, actual, i)
	}
}

func TestOptionChangeDispatchesEvent(t *testing.T) {
	var got []OptionData
	d := event.NewDispatcher()
	d.ListenFunc(EventSend, func(context.Context, event.Event) error { return nil })
	d.ListenFunc(EventOption, func(_ context.Context, ev event.Event) error {
		got = append(got, ev.Data.(OptionData))
		return nil
	})
	ctx := WithDispatcher(context.Background(), d)

	m := NewOptionMap()
	m.Get(NAWS).AllowUs(true)
	require.NoError(t, m.Listen(ctx, event.Event{Name: EventNegotiation, Data: Negotiation{DO, NAWS}}))
	require.Len(t, got, 1)
	require.Equal(t, byte(NAWS), got[0].Option())
	require.True(t, got[0].ChangedUs)
	require.False(t, got[0].ChangedThem)
	require.True(t, got[0].EnabledForUs())

	m.Reset()
	them, us := m.Get(NAWS).Enabled()
	require.False(t, them)
	require.False(t, us)
}
