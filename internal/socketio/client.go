package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/transport"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DialTimeout bounds the wait for the initial connection when the context
// carries no deadline.
const DialTimeout = 15 * time.Second

// DialOptions configures an outbound connection.
type DialOptions struct {
	Namespace          string
	InsecureSkipVerify bool
}

// Dial connects to a socket.io server and blocks until the connection is
// established or fails.
func Dial(ctx context.Context, rawURL string, o DialOptions) (transport.Conn, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	path := parsedURL.Path
	if path == "" || path == "/" {
		path = Path
	}
	opts.SetPath(path)
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))
	// A Conn is one connection; callers redial and reattach themselves.
	opts.SetReconnection(false)

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := transport.First(errs).(error)
		if err == nil {
			err = fmt.Errorf("connect_error: %v", errs)
		}
		connectChan <- err
	})

	logger.Debug("Initiating connection...")
	io.Connect()

	timer := time.NewTimer(DialTimeout)
	defer timer.Stop()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &clientConn{s: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", DialTimeout)
	}
}

type clientConn struct {
	s *socket.Socket
}

func (c *clientConn) ID() string { return fmt.Sprint(c.s.Id()) }

func (c *clientConn) On(event string, fn transport.Listener) {
	c.s.On(types.EventName(event), func(args ...any) { fn(args...) })
}

func (c *clientConn) Emit(event string, args ...any) error {
	if !c.s.Connected() {
		return transport.ErrClosed
	}
	c.s.Emit(event, args...)
	return nil
}

func (c *clientConn) Close() error {
	c.s.Disconnect()
	return nil
}
