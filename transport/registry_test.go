package transport

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
)

func TestRegistryNextIDWrapsToOne(t *testing.T) {
	r := NewRegistry(WithInitialCorrelationID(math.MaxInt32 - 1))
	assert.Equal(t, int64(math.MaxInt32), r.NextID())
	assert.Equal(t, int64(1), r.NextID())
	assert.Equal(t, int64(2), r.NextID())
}

func TestRegistryInitialCorrelationID(t *testing.T) {
	r := NewRegistry(WithInitialCorrelationID(1000))
	assert.Equal(t, int64(1001), r.NextID())

	r = NewRegistry(WithInitialCorrelationID(-5))
	assert.Equal(t, int64(1), r.NextID())
}

func TestRegistryConcurrentAllocateIsUnique(t *testing.T) {
	r := NewRegistry()
	const n = 500

	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.Allocate("ping").ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, r.Len())
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(7, "ping")
	require.NoError(t, err)

	_, err = r.Register(7, "ping")
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrProtocolViolation))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryResolvesExactlyOnce(t *testing.T) {
	r := NewRegistry()
	p, err := r.Register(1, "ping")
	require.NoError(t, err)

	env := &codec.Envelope{ID: 1, Command: "ping"}
	assert.True(t, r.Resolve(1, env))
	assert.False(t, r.Resolve(1, &codec.Envelope{ID: 1}))
	assert.False(t, r.Fail(1, errors.New("late")))
	assert.False(t, r.Cancel(1))

	<-p.Done()
	got, err := p.Result()
	require.NoError(t, err)
	assert.Same(t, env, got)
	assert.False(t, r.Has(1))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		assert.False(t, r.Resolve(99, &codec.Envelope{}))
		assert.False(t, r.Fail(99, errors.New("x")))
		assert.False(t, r.Cancel(99))
	})
}

func TestRegistryFailAndCancel(t *testing.T) {
	r := NewRegistry()
	failed := r.Allocate("getInfo")
	cancelled := r.Allocate("getInfo")

	boom := domain.NewError(domain.ErrChannelLost, "boom")
	require.True(t, r.Fail(failed.ID(), boom))
	require.True(t, r.Cancel(cancelled.ID()))

	_, err := failed.Result()
	assert.Same(t, boom, err)

	_, err = cancelled.Result()
	assert.True(t, domain.IsCode(err, domain.ErrCancelled))
}

func TestRegistryDrainAllAsCancelled(t *testing.T) {
	r := NewRegistry()
	pending := []*Pending{r.Allocate("a"), r.Allocate("b"), r.Allocate("c")}

	assert.Equal(t, 3, r.DrainAllAsCancelled())
	assert.Equal(t, 0, r.Len())
	for _, p := range pending {
		select {
		case <-p.Done():
		default:
			t.Fatalf("pending %d not completed", p.ID())
		}
		_, err := p.Result()
		assert.True(t, domain.IsCode(err, domain.ErrCancelled))
	}
	assert.Equal(t, 0, r.DrainAllAsCancelled())
}
