package transport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Events) {
	t.Helper()
	events := NewEvents()
	metrics, _ := newTestMetrics(t)
	return NewDispatcher(events, newTestTelemetryClient(t), metrics, "test"), events
}

func TestDispatchCaseInsensitiveCommand(t *testing.T) {
	d, events := newTestDispatcher(t)

	var kinds []domain.EventKind
	for _, kind := range []domain.EventKind{domain.EventNewCandle, domain.EventTransReply, domain.EventStop} {
		events.Subscribe(kind, func(ctx context.Context, ev Event) error {
			kinds = append(kinds, ev.Kind)
			return nil
		})
	}

	ctx := context.Background()
	d.Dispatch(ctx, &codec.Envelope{Command: "NewCandle"})
	d.Dispatch(ctx, &codec.Envelope{Command: "OnTransReply"})
	d.Dispatch(ctx, &codec.Envelope{Command: "ONSTOP"})

	assert.Equal(t, []domain.EventKind{domain.EventNewCandle, domain.EventTransReply, domain.EventStop}, kinds)
}

func TestDispatchUnknownCommandKeepsGoing(t *testing.T) {
	d, events := newTestDispatcher(t)

	var unknown []string
	events.OnUnknown(func(ctx context.Context, env *codec.Envelope) { unknown = append(unknown, env.Command) })

	trades := 0
	events.Subscribe(domain.EventTrade, func(ctx context.Context, ev Event) error {
		trades++
		return nil
	})

	ctx := context.Background()
	assert.NotPanics(t, func() {
		d.Dispatch(ctx, &codec.Envelope{Command: "totallyUnknownEvent"})
		d.Dispatch(ctx, &codec.Envelope{Command: "OnTrade"})
	})
	assert.Equal(t, []string{"totallyUnknownEvent"}, unknown)
	assert.Equal(t, 1, trades)
}

func TestDispatchIgnoredCommand(t *testing.T) {
	d, events := newTestDispatcher(t)
	unknown := 0
	events.OnUnknown(func(ctx context.Context, env *codec.Envelope) { unknown++ })

	d.Dispatch(context.Background(), &codec.Envelope{Command: "OnNegDeal"})
	assert.Equal(t, 0, unknown)
}

func TestDispatchLuaErrorGoesToErrorSink(t *testing.T) {
	d, events := newTestDispatcher(t)
	var reported error
	events.OnError(func(ctx context.Context, err error) { reported = err })

	called := false
	events.Subscribe(domain.EventOrder, func(ctx context.Context, ev Event) error {
		called = true
		return nil
	})

	d.Dispatch(context.Background(), &codec.Envelope{Command: "OnOrder", Error: "attempt to index nil"})
	assert.False(t, called)
	require.Error(t, reported)
	assert.True(t, domain.IsCode(reported, domain.ErrPeerError))
}

func TestDispatchDecodeFailureDoesNotStopLaterEvents(t *testing.T) {
	d, events := newTestDispatcher(t)
	var reported []error
	events.OnError(func(ctx context.Context, err error) { reported = append(reported, err) })

	var qty []int
	On(events, domain.EventAllTrade, func(ctx context.Context, v struct {
		Qty int `json:"qty"`
	}) {
		qty = append(qty, v.Qty)
	})

	ctx := context.Background()
	d.Dispatch(ctx, &codec.Envelope{Command: "OnAllTrade", Data: json.RawMessage(`{"qty":"x"}`)})
	d.Dispatch(ctx, &codec.Envelope{Command: "OnAllTrade", Data: json.RawMessage(`{"qty":3}`)})

	assert.Equal(t, []int{3}, qty)
	require.Len(t, reported, 1)
	assert.True(t, domain.IsCode(reported[0], domain.ErrDecodeError))
}

func TestEmitLifecycleEvent(t *testing.T) {
	d, events := newTestDispatcher(t)
	var got Event
	events.Subscribe(domain.EventConnectedToPeer, func(ctx context.Context, ev Event) error {
		got = ev
		return nil
	})

	d.Emit(context.Background(), domain.EventConnectedToPeer)
	assert.Equal(t, domain.EventConnectedToPeer, got.Kind)
	assert.Nil(t, got.Envelope)
	assert.NoError(t, got.Decode(&struct{}{}))
}
