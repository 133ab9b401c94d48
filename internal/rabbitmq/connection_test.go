package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionState(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "connected", StateConnected.String())
		assert.Equal(t, "closed", StateClosed.String())
		assert.Equal(t, "error", StateError.String())
		assert.Equal(t, "unknown", ConnectionState(42).String())
	})

	t.Run("new connection starts connected", func(t *testing.T) {
		conn := newConnection(&MockAMQPConnection{})
		assert.Equal(t, StateConnected, conn.State())
		assert.NoError(t, conn.Err())
		assert.WithinDuration(t, time.Now(), conn.CreatedAt(), time.Second)
	})

	t.Run("ids are unique", func(t *testing.T) {
		a := newConnection(&MockAMQPConnection{})
		b := newConnection(&MockAMQPConnection{})
		assert.NotEqual(t, a.ID(), b.ID())
	})

	t.Run("clean close is terminal", func(t *testing.T) {
		mock := &MockAMQPConnection{}
		conn := newConnection(mock)

		require.NoError(t, conn.Close())
		assert.Equal(t, StateClosed, conn.State())
		assert.Equal(t, StateClosed, conn.State())
		assert.NoError(t, conn.Err())
	})

	t.Run("peer close records the cause", func(t *testing.T) {
		mock := &MockAMQPConnection{}
		conn := newConnection(mock)
		cause := &amqp.Error{Code: amqp.ConnectionForced, Reason: "shutdown", Server: true}

		mock.shutdown(cause)

		assert.Equal(t, StateError, conn.State())
		assert.Equal(t, StateError, conn.State())
		assert.Equal(t, cause, conn.Err())
	})

	t.Run("closed flag without notification reads as closed", func(t *testing.T) {
		mock := &MockAMQPConnection{}
		conn := newConnection(mock)
		mock.mu.Lock()
		mock.closed = true
		mock.mu.Unlock()

		assert.Equal(t, StateClosed, conn.State())
	})

	t.Run("connection already closed at registration", func(t *testing.T) {
		mock := &MockAMQPConnection{closed: true}
		conn := newConnection(mock)
		assert.Equal(t, StateClosed, conn.State())
	})

	t.Run("Unwrap exposes the client connection", func(t *testing.T) {
		mock := &MockAMQPConnection{}
		conn := newConnection(mock)
		assert.Same(t, mock, conn.Unwrap())
	})
}
