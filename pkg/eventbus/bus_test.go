package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBus_DeliversOnlyToTopic(t *testing.T) {
	bus := NewLocalBus()

	var got []string
	unsub := bus.Subscribe("a", func(p []byte) { got = append(got, "a:"+string(p)) })
	bus.Subscribe("b", func(p []byte) { got = append(got, "b:"+string(p)) })

	require.NoError(t, bus.Publish(context.Background(), "a", []byte("1")))
	require.NoError(t, bus.Publish(context.Background(), "b", []byte("2")))
	assert.Equal(t, []string{"a:1", "b:2"}, got)

	unsub()
	unsub()
	require.NoError(t, bus.Publish(context.Background(), "a", []byte("3")))
	assert.Equal(t, []string{"a:1", "b:2"}, got)
}

func TestLocalBus_UnsubscribeInsideHandler(t *testing.T) {
	bus := NewLocalBus()

	calls := 0
	var unsub func()
	unsub = bus.Subscribe("t", func([]byte) {
		calls++
		unsub()
	})

	_ = bus.Publish(context.Background(), "t", nil)
	_ = bus.Publish(context.Background(), "t", nil)
	assert.Equal(t, 1, calls)
}
