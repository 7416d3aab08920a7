package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewBus()

	var cursor, all []Type
	bus.Subscribe(func(e *Event) { cursor = append(cursor, e.Type) }, CursorUpdate)
	bus.Subscribe(func(e *Event) { all = append(all, e.Type) })

	bus.Publish(CursorUpdate, nil)
	bus.Publish(SegmentationChange, 12)

	assert.Equal(t, []Type{CursorUpdate}, cursor)
	assert.Equal(t, []Type{CursorUpdate, SegmentationChange}, all)
}

func TestDeliveryOrderAndUnsubscribe(t *testing.T) {
	bus := NewBus()

	var order []int
	ids := make([]string, 5)
	for i := range ids {
		i := i
		ids[i] = bus.Subscribe(func(*Event) { order = append(order, i) })
	}

	bus.Publish(ModeChange, "SNAP")
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	assert.True(t, bus.Unsubscribe(ids[2]))
	assert.False(t, bus.Unsubscribe(ids[2]))
	assert.False(t, bus.Unsubscribe("unknown"))

	order = nil
	bus.Publish(ModeChange, "IRIS")
	assert.Equal(t, []int{0, 1, 3, 4}, order)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewBus(WithLogger(zap.New(core)))

	var got *Event
	bus.Subscribe(func(*Event) { panic("boom") })
	bus.Subscribe(func(e *Event) { got = e })

	bus.Publish(UndoHistoryChange, "paint")

	require.NotNil(t, got)
	assert.Equal(t, "paint", got.Data)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 1, logs.FilterMessage("event handler panicked").Len())
}

func TestRecentIsBounded(t *testing.T) {
	bus := NewBus(WithBufferSize(3))
	for i := 0; i < 5; i++ {
		bus.Publish(SegmentationChange, i)
	}

	recent := bus.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, 2, recent[0].Data)
	assert.Equal(t, 4, recent[2].Data)
}
