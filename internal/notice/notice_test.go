package notice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-console/internal/event"
)

func TestBusNotifierPublishes(t *testing.T) {
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	NewBusNotifier(bus).Notify(context.Background(), PasswordChanged)

	select {
	case e := <-events:
		assert.Equal(t, event.TypeNotice, e.Type)
		assert.Equal(t, PasswordChanged, e.Payload)
	case <-time.After(time.Second):
		require.Fail(t, "notice was not published")
	}
}
