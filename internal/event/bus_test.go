package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe()
	b, unsubB := bus.Subscribe()
	defer unsubB()

	bus.Publish(Event{Type: TypeSessionSignedIn})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, TypeSessionSignedIn, e.Type)
			assert.NotEmpty(t, e.ID)
			assert.NotEmpty(t, e.Timestamp)
		case <-time.After(time.Second):
			require.Fail(t, "event not delivered")
		}
	}

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			bus.Publish(New(TypeNotice, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "publish blocked on a slow subscriber")
	}
}

func TestIsSession(t *testing.T) {
	assert.True(t, TypeSessionRestored.IsSession())
	assert.True(t, TypeSessionFirstAccessCleared.IsSession())
	assert.False(t, TypeNotice.IsSession())
	assert.False(t, TypeAccessReevaluated.IsSession())
}
