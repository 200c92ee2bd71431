package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportErrorMessage(t *testing.T) {
	err := NewError(ErrTimeout, "valid_until elapsed").WithCall("ping", 7)
	assert.Equal(t, "[TIMEOUT] ping#7 valid_until elapsed", err.Error())

	wrapped := WrapError(ErrChannelLost, "write failed", errors.New("broken pipe"))
	assert.Equal(t, "[CHANNEL_LOST] write failed: broken pipe", wrapped.Error())
}

func TestTransportErrorIsByCode(t *testing.T) {
	err := fmt.Errorf("call failed: %w", NewError(ErrTimeout, "deadline").WithCall("ping", 1))

	assert.True(t, errors.Is(err, NewError(ErrTimeout, "")))
	assert.False(t, errors.Is(err, NewError(ErrCancelled, "")))
	assert.True(t, IsCode(err, ErrTimeout))
}

func TestTransportErrorUnwrap(t *testing.T) {
	err := WrapError(ErrCancelled, "caller cancelled", context.Canceled)
	assert.True(t, errors.Is(err, context.Canceled))

	var te *TransportError
	require.True(t, errors.As(fmt.Errorf("x: %w", err), &te))
	assert.Equal(t, ErrCancelled, te.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrNoError, CodeOf(nil))
	assert.Equal(t, ErrUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, ErrTimeout, CodeOf(context.DeadlineExceeded))
	assert.Equal(t, ErrCancelled, CodeOf(context.Canceled))
	assert.Equal(t, ErrPeerError, CodeOf(NewError(ErrPeerError, "lua failed")))
}

func TestWithDetail(t *testing.T) {
	err := NewError(ErrSizeLimitExceeded, "too big").WithDetail("size", 2048)
	assert.Equal(t, 2048, err.Details["size"])
}
