package messaging

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
		Logger:        logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError}),
	})
}

func TestEventBus_PublishToTypedSubscriber(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var received []shared.Event
	err := bus.Subscribe(shared.EventXPGained, func(e shared.Event) error {
		received = append(received, e)
		return nil
	})
	assert.NoError(t, err)

	assert.NoError(t, bus.Publish(shared.NewXPGainedEvent("student1", 50, 150, 2, "Attendance", "attendance")))
	assert.NoError(t, bus.Publish(shared.NewStreakUpdatedEvent("student1", "login", 3, 5)))

	// Only the subscribed type is delivered.
	assert.Len(t, received, 1)
	assert.Equal(t, shared.EventXPGained, received[0].EventType())
	assert.Equal(t, "student1", received[0].AggregateID())
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	count := 0
	assert.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		count++
		return nil
	}))

	assert.NoError(t, bus.Publish(shared.NewXPGainedEvent("s", 1, 1, 1, "", "tasks")))
	assert.NoError(t, bus.Publish(shared.NewLevelUpEvent("s", 1, 2, 100)))

	assert.Equal(t, 2, count)
}

func TestEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	second := false
	assert.NoError(t, bus.Subscribe(shared.EventXPGained, func(e shared.Event) error {
		return errors.New("projection down")
	}))
	assert.NoError(t, bus.Subscribe(shared.EventXPGained, func(e shared.Event) error {
		second = true
		return nil
	}))

	assert.NoError(t, bus.Publish(shared.NewXPGainedEvent("s", 1, 1, 1, "", "tasks")))
	assert.True(t, second)
}

func TestEventBus_NilChecks(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventXPGained, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

func TestEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := syncBus()
	assert.NoError(t, bus.Close())
	// Closing twice is a no-op.
	assert.NoError(t, bus.Close())

	err := bus.Publish(shared.NewXPGainedEvent("s", 1, 1, 1, "", "tasks"))
	assert.ErrorIs(t, err, ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 2,
		Logger:         logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError}),
	})

	var wg sync.WaitGroup
	wg.Add(5)
	var mu sync.Mutex
	count := 0
	assert.NoError(t, bus.Subscribe(shared.EventXPGained, func(e shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		wg.Done()
		return nil
	}))

	for i := 0; i < 5; i++ {
		assert.NoError(t, bus.Publish(shared.NewXPGainedEvent("s", 1, 1, 1, "", "tasks")))
	}

	wg.Wait()
	assert.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}

func TestEventBusMetrics(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.NoError(t, bus.Subscribe(shared.EventXPGained, func(e shared.Event) error { return nil }))
	assert.NoError(t, bus.Subscribe(shared.EventXPGained, func(e shared.Event) error { return errors.New("fail") }))
	assert.NoError(t, bus.Publish(shared.NewXPGainedEvent("s", 1, 1, 1, "", "tasks")))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.0001)
}
