// Package bus wraps a NATS connection with the operations a worker needs:
// queue subscription, header-carrying publish, graceful unsubscribe and drain.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/types"
)

// DialOptions tune the NATS connection.
type DialOptions struct {
	// Name is reported to the server for monitoring.
	Name string

	// ConnectTimeout bounds the initial dial. Default: 5s.
	ConnectTimeout time.Duration

	// MaxReconnects is the number of reconnect attempts after a drop; -1 retries forever.
	// Default: 60.
	MaxReconnects int

	// ReconnectWait is the pause between reconnect attempts. Default: 2s.
	ReconnectWait time.Duration

	// DrainTimeout bounds nats.go's own drain before it force-closes. Default: 30s.
	DrainTimeout time.Duration
}

func (o *DialOptions) setDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 60
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 30 * time.Second
	}
}

// Dial opens a NATS connection. It does not retry a failed first connect: a
// worker that cannot reach the bus at startup must fail rather than run detached.
//
// Parameters:
//   - url: Server URL, e.g. "nats://localhost:4223"
//   - opts: Connection tuning; zero values use defaults
//
// Returns:
//   - *nats.Conn: The open connection
//   - error: Wraps ErrConnect and the nats.go cause
func Dial(url string, opts DialOptions) (*nats.Conn, error) {
	opts.setDefaults()

	nc, err := nats.Connect(url,
		nats.Name(opts.Name),
		nats.Timeout(opts.ConnectTimeout),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DrainTimeout(opts.DrainTimeout),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, url, err)
	}

	return nc, nil
}

// Client owns one NATS connection.
type Client struct {
	nc     *nats.Conn
	logger types.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect dials url and wraps the connection.
func Connect(url string, opts DialOptions, logger types.Logger) (*Client, error) {
	nc, err := Dial(url, opts)
	if err != nil {
		return nil, err
	}

	return Wrap(nc, logger)
}

// Wrap takes ownership of an open connection and installs lifecycle handlers
// that log disconnects and reconnects and signal Done on close.
func Wrap(nc *nats.Conn, logger types.Logger) (*Client, error) {
	if nc == nil {
		return nil, ErrNilConn
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Client{nc: nc, logger: logger, closed: make(chan struct{})}

	nc.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			c.logger.Warn("bus disconnected", "error", err)
		}
	})
	nc.SetReconnectHandler(func(conn *nats.Conn) {
		c.logger.Info("bus reconnected", "url", conn.ConnectedUrl())
	})
	nc.SetClosedHandler(func(*nats.Conn) {
		c.markClosed()
	})
	if nc.IsClosed() {
		c.markClosed()
	}

	return c, nil
}

func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Conn returns the underlying connection.
func (c *Client) Conn() *nats.Conn {
	return c.nc
}

// Done is closed once the connection is closed, whether by Drain, Close or a
// reconnect budget running out.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Subscription is one queue-group subscription.
type Subscription struct {
	sub     *nats.Subscription
	Subject string
	Group   string
}

// Subscribe joins queue group on subject. The bus delivers each message to one
// member of the group; nats.go runs handler serially for this subscription.
//
// Interest is flushed to the server before returning, so messages published
// after Subscribe returns are routed to this subscriber.
func (c *Client) Subscribe(subject, group string, handler nats.MsgHandler) (*Subscription, error) {
	sub, err := c.nc.QueueSubscribe(subject, group, handler)
	if err != nil {
		return nil, fmt.Errorf("queue subscribe %s/%s: %w", subject, group, err)
	}
	if err := c.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription %s/%s: %w", subject, group, err)
	}

	return &Subscription{sub: sub, Subject: subject, Group: group}, nil
}

// Publish sends payload with headers to address. It does not wait for any
// acknowledgment.
func (c *Client) Publish(address string, payload []byte, headers nats.Header) error {
	if address == "" {
		return ErrNoAddress
	}

	return c.nc.PublishMsg(&nats.Msg{Subject: address, Data: payload, Header: headers})
}

// Unsubscribe removes interest and blocks until every message already buffered
// for sub has been passed to its handler. Nothing buffered is dropped.
//
// Returns ctx.Err() wrapped with types.ErrDrainTimeout if ctx ends first.
func (c *Client) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if err := sub.sub.Drain(); err != nil {
		if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
			return nil
		}

		return fmt.Errorf("drain subscription %s: %w", sub.Subject, err)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for sub.sub.IsValid() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: unsubscribe %s: %w", types.ErrDrainTimeout, sub.Subject, ctx.Err())
		case <-c.closed:
			return nil
		case <-ticker.C:
		}
	}

	return nil
}

// Drain flushes outstanding publishes and closes the connection, blocking until
// it is closed. If ctx ends first the connection is closed immediately and an
// error wrapping types.ErrDrainTimeout is returned.
func (c *Client) Drain(ctx context.Context) error {
	if c.nc.IsClosed() {
		c.markClosed()
		return nil
	}

	if err := c.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		c.nc.Close()
		return fmt.Errorf("drain connection: %w", err)
	}

	select {
	case <-c.closed:
		return nil
	case <-ctx.Done():
		c.nc.Close()
		return fmt.Errorf("%w: drain connection: %w", types.ErrDrainTimeout, ctx.Err())
	}
}

// Close closes the connection without draining.
func (c *Client) Close() {
	c.nc.Close()
}
