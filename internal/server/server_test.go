package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/zerosystem/internal/protocol"
	"github.com/vk/zerosystem/internal/registry"
	"github.com/vk/zerosystem/internal/transport"
	"github.com/vk/zerosystem/internal/transport/memory"
)

// inbox collects broadcasts received by one client connection.
type inbox struct {
	mu  sync.Mutex
	got []protocol.Broadcast
}

func (in *inbox) listen(conn transport.Conn, event string) {
	conn.On(event, func(args ...any) {
		var msg protocol.Broadcast
		if err := transport.Decode(transport.First(args), &msg); err != nil {
			return
		}
		in.mu.Lock()
		in.got = append(in.got, msg)
		in.mu.Unlock()
	})
}

func (in *inbox) messages() []protocol.Broadcast {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]protocol.Broadcast(nil), in.got...)
}

func newServer(t *testing.T) (*Server, *memory.Hub) {
	t.Helper()
	srv, err := New(context.Background(), registry.New())
	require.NoError(t, err)
	hub := memory.NewHub()
	srv.Attach(hub)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, hub
}

func TestNew_ClaimsSingleton(t *testing.T) {
	reg := registry.New()
	srv, err := New(context.Background(), reg)
	require.NoError(t, err)

	obj, err := reg.Get(context.Background(), Name)
	require.NoError(t, err)
	assert.Same(t, srv, obj)

	_, err = New(context.Background(), reg)
	var dup *registry.DuplicateSingletonError
	assert.ErrorAs(t, err, &dup)
}

func TestBroadcast_ReachesEveryActiveConnection(t *testing.T) {
	srv, hub := newServer(t)
	inboxes := make([]*inbox, 3)
	for i := range inboxes {
		inboxes[i] = &inbox{}
		inboxes[i].listen(hub.Dial(), EventController)
	}
	require.Len(t, srv.Mounts(), 3)

	// Act
	sent := srv.Broadcast(EventController, HandlerInfo, Info{Type: Connect, Mount: "c1"})

	// Assert
	assert.Equal(t, 3, sent)
	want := protocol.Broadcast{Handler: HandlerInfo, Data: map[string]any{"type": "connect", "mount": "c1"}}
	for _, in := range inboxes {
		assert.Eventually(t, func() bool {
			for _, msg := range in.messages() {
				if assert.ObjectsAreEqual(want, msg) {
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
	}
}

func TestLifecycle_ConnectAndDisconnect(t *testing.T) {
	srv, hub := newServer(t)
	var (
		mu     sync.Mutex
		events []Lifecycle
	)
	record := func(kind Lifecycle) LifecycleFunc {
		return func(_ context.Context, s *Server, m *protocol.Mount) {
			mu.Lock()
			events = append(events, kind)
			mu.Unlock()
			assert.Same(t, srv, s)
			assert.NotNil(t, m)
		}
	}
	srv.OnLifecycle(Connect, record(Connect)).OnLifecycle(Disconnect, record(Disconnect))

	watcher := &inbox{}
	watcher.listen(hub.Dial(), EventController)
	leaving := hub.Dial()
	require.Len(t, srv.Mounts(), 2)
	leavingID := srv.Mounts()[1].ID()

	require.NoError(t, leaving.Close())

	assert.Len(t, srv.Mounts(), 1)
	assert.Nil(t, srv.Mount(leavingID))
	mu.Lock()
	assert.Equal(t, []Lifecycle{Connect, Connect, Disconnect}, events)
	mu.Unlock()

	assert.Eventually(t, func() bool {
		msgs := watcher.messages()
		if len(msgs) < 2 {
			return false
		}
		joined := msgs[len(msgs)-2].Data.(map[string]any)
		left := msgs[len(msgs)-1].Data.(map[string]any)
		return joined["type"] == "connect" && joined["mount"] == leavingID &&
			left["type"] == "disconnect" && left["mount"] == leavingID
	}, time.Second, 5*time.Millisecond, "the watcher sees the second client come and go")
}

func TestHandlers_SharedAcrossMounts(t *testing.T) {
	srv, hub := newServer(t)
	srv.AddHandler("echo", func(_ context.Context, req *protocol.Request, _ *protocol.Mount, answer protocol.Answer) error {
		answer(req.Data)
		return nil
	}, 0)

	for _, payload := range []string{"a", "b"} {
		m := protocol.NewMount(context.Background(), hub.Dial()).Init()
		resp, err := m.Request(context.Background(), "echo", payload, protocol.Meta{})
		require.NoError(t, err)
		assert.Equal(t, payload, resp.Data)
	}
}

func TestSession_AdoptedAndVerified(t *testing.T) {
	srv, hub := newServer(t)
	srv.AddHandler("whoami", func(_ context.Context, _ *protocol.Request, m *protocol.Mount, answer protocol.Answer) error {
		answer(m.ID())
		return nil
	}, 0)
	m := protocol.NewMount(context.Background(), hub.Dial()).Init()

	resp, err := m.Request(context.Background(), "whoami", nil, protocol.Meta{Session: "ident-1"})
	require.NoError(t, err)
	assert.Equal(t, "ident-1", resp.Data)
	assert.NotNil(t, srv.Mount("ident-1"))

	_, err = m.Request(context.Background(), "whoami", nil, protocol.Meta{Session: "ident-2"})
	assert.ErrorContains(t, err, "does not match")
	assert.ErrorIs(t, err, protocol.ErrHandler)
}
