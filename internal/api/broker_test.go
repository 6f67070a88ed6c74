package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrptw/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r1")
	other := b.Subscribe("r2")

	b.Publish("r1", model.RunEvent{Type: model.EventRunProgress, RunID: "r1"})

	select {
	case got := <-ch:
		assert.Equal(t, model.EventRunProgress, got.Type)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case <-other:
		t.Fatal("event leaked to another run")
	default:
	}

	b.Unsubscribe("r1", ch)
	_, ok := <-ch
	require.False(t, ok, "channel closed after unsubscribe")
	b.Unsubscribe("r1", ch) // second call is a no-op
	b.Publish("r1", model.RunEvent{Type: model.EventRunCompleted})
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r1")
	for i := range 100 {
		b.Publish("r1", model.RunEvent{Type: model.EventRunProgress, Data: i})
	}
	assert.Len(t, ch, cap(ch))
}
