package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const testEvent Name = "test.event"

func TestEventDispatch(t *testing.T) {
	var event Event
	bus := NewDispatcher()
	bus.ListenFunc(testEvent, func(_ context.Context, ev Event) (err error) {
		event = ev
		return nil
	})
	err := bus.Dispatch(context.Background(), Event{testEvent, 42})
	require.NoError(t, err)
	require.Equal(t, testEvent, event.Name)
	require.Equal(t, 42, event.Data)
}

func TestRemoveListener(t *testing.T) {
	var called bool
	fn := func(context.Context, Event) error {
		called = true
		return nil
	}

	bus := NewDispatcher()
	l := bus.ListenFunc(testEvent, fn)
	require.True(t, bus.Listening(testEvent))
	bus.RemoveListener(testEvent, l)
	require.False(t, bus.Listening(testEvent))
	err := bus.Dispatch(context.Background(), Event{testEvent, 42})
	require.NoError(t, err)
	require.False(t, called)
}

func TestDispatchStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	bus := NewDispatcher()
	bus.ListenFunc(testEvent, func(context.Context, Event) error {
		calls++
		return boom
	})
	bus.ListenFunc(testEvent, func(context.Context, Event) error {
		calls++
		return nil
	})
	err := bus.Dispatch(context.Background(), Event{Name: testEvent})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestListenDuringDispatch(t *testing.T) {
	var calls int
	bus := NewDispatcher()
	bus.ListenFunc(testEvent, func(context.Context, Event) error {
		bus.ListenFunc(testEvent, func(context.Context, Event) error {
			calls++
			return nil
		})
		return nil
	})
	require.NoError(t, bus.Dispatch(context.Background(), Event{Name: testEvent}))
	require.Equal(t, 0, calls)
	require.NoError(t, bus.Dispatch(context.Background(), Event{Name: testEvent}))
	require.Equal(t, 1, calls)
}
