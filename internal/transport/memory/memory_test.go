package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/zerosystem/internal/transport"
)

func TestPipe_DeliversInOrderAsDecodedJSON(t *testing.T) {
	a, b := Pipe("a", "b")
	defer a.Close()

	got := make(chan any, 3)
	b.On("msg", func(args ...any) { got <- transport.First(args) })

	for i := 1; i <= 3; i++ {
		require.NoError(t, a.Emit("msg", map[string]int{"n": i}))
	}

	for i := 1; i <= 3; i++ {
		select {
		case v := <-got:
			assert.Equal(t, map[string]any{"n": float64(i)}, v)
		case <-time.After(time.Second):
			t.Fatalf("message %d not delivered", i)
		}
	}
}

func TestClose_FiresDisconnectOnBothEnds(t *testing.T) {
	a, b := Pipe("a", "b")
	done := make(chan string, 2)
	a.On(transport.EventDisconnect, func(...any) { done <- "a" })
	b.On(transport.EventDisconnect, func(...any) { done <- "b" })

	require.NoError(t, a.Close())

	seen := map[string]bool{<-done: true, <-done: true}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
	assert.ErrorIs(t, b.Emit("msg", 1), transport.ErrClosed)
}

func TestHub_DialHandsServerEndToHandlers(t *testing.T) {
	hub := NewHub()
	accepted := make(chan transport.Conn, 1)
	hub.OnConnection(func(c transport.Conn) { accepted <- c })

	client := hub.Dial()
	defer client.Close()

	server := <-accepted
	assert.Equal(t, client.ID(), server.ID())
}

func TestHub_HandlersAddedDuringDialApplyToLaterDials(t *testing.T) {
	hub := NewHub()
	var first, second int
	hub.OnConnection(func(transport.Conn) {
		first++
		if first == 1 {
			hub.OnConnection(func(transport.Conn) { second++ })
		}
	})

	a := hub.Dial()
	defer a.Close()
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)

	b := hub.Dial()
	defer b.Close()
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestDecode_IntoTypedStruct(t *testing.T) {
	var out struct {
		V int `json:"v"`
	}
	require.NoError(t, transport.Decode(map[string]any{"v": float64(7)}, &out))
	assert.Equal(t, 7, out.V)

	assert.Error(t, transport.Decode(nil, &out))
}
