package rabbitmq

import (
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionState is the lifecycle state of a broker connection as observed
// by the manager. Transitions are driven by the client library only.
type ConnectionState int

const (
	// StateConnected means the session is open and usable.
	StateConnected ConnectionState = iota
	// StateClosed means the connection was closed cleanly.
	StateClosed
	// StateError means the broker or the network tore the connection down.
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Connection is a pooled handle to an established broker session.
type Connection struct {
	AMQPConnection

	id        string
	createdAt time.Time
	closes    chan *amqp.Error

	mu       sync.Mutex
	terminal *ConnectionState
	cause    *amqp.Error
}

// newConnection wraps conn and subscribes to its close notifications. The
// buffer lets the client library deliver the close error without a reader.
func newConnection(conn AMQPConnection) *Connection {
	c := &Connection{
		AMQPConnection: conn,
		id:             uuid.New().String(),
		createdAt:      time.Now(),
		closes:         make(chan *amqp.Error, 1),
	}
	conn.NotifyClose(c.closes)
	return c
}

// ID uniquely identifies the connection for logs and metrics.
func (c *Connection) ID() string { return c.id }

// CreatedAt is when create returned the connection.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// State reports the connection's current state without blocking.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminal != nil {
		return *c.terminal
	}

	select {
	case err, ok := <-c.closes:
		state := StateClosed
		if ok && err != nil {
			state = StateError
			c.cause = err
		}
		c.terminal = &state
		return state
	default:
	}

	// The library flags the connection closed before it publishes the cause,
	// so this answer is not cached.
	if c.AMQPConnection.IsClosed() {
		return StateClosed
	}
	return StateConnected
}

// Err returns the error that closed the connection, if any.
func (c *Connection) Err() error {
	if c.State() != StateError {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Unwrap exposes the underlying client connection.
func (c *Connection) Unwrap() AMQPConnection {
	return c.AMQPConnection
}
