package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/events"
)

type recorder struct {
	mu   sync.Mutex
	seen []events.Event
}

func (r *recorder) Handle(e events.Event) {
	r.mu.Lock()
	r.seen = append(r.seen, e)
	r.mu.Unlock()
}

func (r *recorder) events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.seen))
	copy(out, r.seen)
	return out
}

func TestBusDeliversToTypeAndAllSubscribers(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 16)

	typed := &recorder{}
	all := &recorder{}
	bus.Subscribe(events.SwapConfigured, typed)
	bus.SubscribeAll(all)

	events.Emit(bus, events.SwapConfigured, events.Fields{"dex": "cetus"})
	events.Emit(bus, events.PoolDiscovered, events.Fields{"dex": "turbos"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	assert.Len(t, typed.events(), 1)
	assert.Len(t, all.events(), 2)

	got := typed.events()[0]
	assert.NotEmpty(t, got.ID, "событиям присваивается id")
	assert.Equal(t, "cetus", got.Fields["dex"])
}

func TestNilSinkEmitIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		events.Emit(nil, events.SwapConfigured, events.Fields{"dex": "cetus"})
	})
}
