package rabbitmq

import (
	"context"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConnection is the part of *amqp.Connection the manager and its callers
// rely on.
type AMQPConnection interface {
	// Channel opens a new channel on the connection.
	Channel() (*amqp.Channel, error)

	// NotifyClose registers a listener for close events.
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error

	// IsClosed reports whether the connection has been shut down.
	IsClosed() bool

	// Close gracefully closes the connection and all its channels.
	Close() error

	// LocalAddr returns the local TCP address, or *net.TCPAddr{} if unknown.
	LocalAddr() net.Addr
}

// Connector is the broker-client entrypoint pair used by create.
type Connector interface {
	// Dial connects to url and lets the client library choose TLS from the
	// URI scheme.
	Dial(ctx context.Context, url string, config amqp.Config) (AMQPConnection, error)

	// Open runs the AMQP handshake over an already established stream.
	Open(ctx context.Context, stream net.Conn, config amqp.Config) (AMQPConnection, error)
}

// StreamDialer opens raw transport streams. *net.Dialer satisfies it.
type StreamDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// amqpConnector drives github.com/rabbitmq/amqp091-go.
type amqpConnector struct{}

// NewConnector returns the Connector backed by amqp091-go.
func NewConnector() Connector {
	return amqpConnector{}
}

func (amqpConnector) Dial(ctx context.Context, url string, config amqp.Config) (AMQPConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(url, config)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (amqpConnector) Open(ctx context.Context, stream net.Conn, config amqp.Config) (AMQPConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := amqp.Open(stream, config)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// dialFunc adapts a StreamDialer to amqp.Config.Dial. Like amqp.DefaultDial
// it arms a deadline for the TLS and AMQP handshakes; the client library
// clears it once the connection is open.
func dialFunc(ctx context.Context, dialer StreamDialer, timeout time.Duration) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(handshakeDeadline(ctx, timeout)); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
