package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
)

func TestEventsPublishInRegistrationOrder(t *testing.T) {
	events := NewEvents()
	var calls []string
	events.Subscribe(domain.EventTrade, func(ctx context.Context, ev Event) error {
		calls = append(calls, "first")
		return nil
	})
	events.Subscribe(domain.EventTrade, func(ctx context.Context, ev Event) error {
		calls = append(calls, "second")
		return nil
	})
	events.Subscribe(domain.EventOrder, func(ctx context.Context, ev Event) error {
		calls = append(calls, "order")
		return nil
	})

	n := events.Publish(context.Background(), Event{Kind: domain.EventTrade})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestEventsUnsubscribe(t *testing.T) {
	events := NewEvents()
	count := 0
	unsubscribe := events.Subscribe(domain.EventQuote, func(ctx context.Context, ev Event) error {
		count++
		return nil
	})
	require.Equal(t, 1, events.Subscribers(domain.EventQuote))

	events.Publish(context.Background(), Event{Kind: domain.EventQuote})
	unsubscribe()
	events.Publish(context.Background(), Event{Kind: domain.EventQuote})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, events.Subscribers(domain.EventQuote))
}

func TestEventsHandlerFailuresReachErrorSink(t *testing.T) {
	events := NewEvents()
	var reported []error
	events.OnError(func(ctx context.Context, err error) { reported = append(reported, err) })

	reached := false
	events.Subscribe(domain.EventParam, func(ctx context.Context, ev Event) error {
		return errors.New("handler failed")
	})
	events.Subscribe(domain.EventParam, func(ctx context.Context, ev Event) error {
		panic("boom")
	})
	events.Subscribe(domain.EventParam, func(ctx context.Context, ev Event) error {
		reached = true
		return nil
	})

	assert.NotPanics(t, func() {
		events.Publish(context.Background(), Event{Kind: domain.EventParam, Command: "OnParam"})
	})
	assert.True(t, reached)
	require.Len(t, reported, 2)
	assert.EqualError(t, reported[0], "handler failed")
	assert.Contains(t, reported[1].Error(), "handler panic: boom")
}

func TestOnDecodesPayload(t *testing.T) {
	type trade struct {
		TradeNum int64  `json:"trade_num"`
		SecCode  string `json:"sec_code"`
	}

	events := NewEvents()
	var got trade
	On(events, domain.EventTrade, func(ctx context.Context, tr trade) { got = tr })

	env := &codec.Envelope{Command: "OnTrade", Data: json.RawMessage(`{"trade_num":12,"sec_code":"SBER"}`)}
	events.Publish(context.Background(), Event{Kind: domain.EventTrade, Envelope: env})

	assert.Equal(t, trade{TradeNum: 12, SecCode: "SBER"}, got)
}

func TestOnReportsDecodeError(t *testing.T) {
	events := NewEvents()
	var reported error
	events.OnError(func(ctx context.Context, err error) { reported = err })

	called := false
	On(events, domain.EventOrder, func(ctx context.Context, n int) { called = true })

	env := &codec.Envelope{Command: "OnOrder", Data: json.RawMessage(`"not a number"`)}
	events.Publish(context.Background(), Event{Kind: domain.EventOrder, Envelope: env})

	assert.False(t, called)
	assert.True(t, domain.IsCode(reported, domain.ErrDecodeError))
}
