package rabbitmq

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionManager creates and recycles broker connections for a resource
// pool. It holds only its immutable configuration, so Create and Recycle are
// safe to call from any number of goroutines.
type ConnectionManager struct {
	config    ManagerConfig
	connector Connector
	dialer    StreamDialer
	logger    *slog.Logger
}

// ManagerOption configures the ConnectionManager
type ManagerOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithConnector replaces the amqp091-go entrypoints.
func WithConnector(connector Connector) ManagerOption {
	return func(cm *ConnectionManager) {
		cm.connector = connector
	}
}

// WithDialer replaces the TCP dialer used for both TLS paths.
func WithDialer(dialer StreamDialer) ManagerOption {
	return func(cm *ConnectionManager) {
		cm.dialer = dialer
	}
}

// NewConnectionManager creates a manager for address. An empty caCertPath
// selects DefaultTLS; otherwise the certificate at that path is trusted and
// peer verification is skipped (see CustomCertFile).
func NewConnectionManager(address string, props ConnectionProperties, caCertPath string, options ...ManagerOption) *ConnectionManager {
	mode := DefaultTLS()
	if caCertPath != "" {
		mode = CustomCertFile(caCertPath)
	}
	return NewConnectionManagerWithTLS(address, props, mode, options...)
}

// NewConnectionManagerWithTLS creates a manager with an explicit TLS mode.
func NewConnectionManagerWithTLS(address string, props ConnectionProperties, mode TLSMode, options ...ManagerOption) *ConnectionManager {
	cm := &ConnectionManager{
		config: ManagerConfig{
			Address:    address,
			Properties: props,
			TLS:        mode,
		}.clone(),
		connector: NewConnector(),
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(cm)
	}

	if cm.dialer == nil {
		cm.dialer = &net.Dialer{Timeout: props.dialTimeout()}
	}

	return cm
}

// Config returns a copy of the manager's configuration.
func (cm *ConnectionManager) Config() ManagerConfig {
	return cm.config.clone()
}

// Create opens a new broker connection. Exactly one TLS path runs per call,
// chosen by the configured TLSMode. Nothing is retried here.
func (cm *ConnectionManager) Create(ctx context.Context) (*Connection, error) {
	uri, err := amqp.ParseURI(cm.config.Address)
	if err != nil {
		return nil, &ConfigError{
			Field: "address",
			Value: SanitizeURL(cm.config.Address),
			Err:   fmt.Errorf("%w: %v", ErrInvalidURI, err),
		}
	}

	var conn AMQPConnection
	switch cm.config.TLS.Kind() {
	case TLSCustomCert:
		conn, err = cm.createCustomCert(ctx, uri)
	default:
		conn, err = cm.createDefault(ctx)
	}
	if err != nil {
		return nil, err
	}

	c := newConnection(conn)
	cm.logger.Debug("created amqp connection",
		"url", SanitizeURL(cm.config.Address),
		"tls", cm.config.TLS.String(),
		"connectionId", c.ID())
	return c, nil
}

// Recycle reports whether conn may be handed out again. It only reads the
// connection state and never closes or repairs the connection.
func (cm *ConnectionManager) Recycle(_ context.Context, conn *Connection) error {
	if conn == nil {
		return &RecycleError{State: StateClosed}
	}
	if state := conn.State(); state != StateConnected {
		return &RecycleError{State: state}
	}
	return nil
}

func (cm *ConnectionManager) createDefault(ctx context.Context) (AMQPConnection, error) {
	config := cm.config.Properties.AMQPConfig()
	config.Dial = dialFunc(ctx, cm.dialer, cm.config.Properties.dialTimeout())

	conn, err := cm.connector.Dial(ctx, cm.config.Address, config)
	if err != nil {
		return nil, cm.connectionError("dial", err)
	}
	return conn, nil
}

func (cm *ConnectionManager) createCustomCert(ctx context.Context, uri amqp.URI) (AMQPConnection, error) {
	// The certificate is loaded before any socket is opened so a bad path
	// never leaks a half-open connection.
	tlsConfig, err := customTLSConfig(cm.config.TLS, uri.Host)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(uri.Host, strconv.Itoa(uri.Port))
	raw, err := cm.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, cm.connectionError("dial", err)
	}
	if err := raw.SetDeadline(handshakeDeadline(ctx, cm.config.Properties.dialTimeout())); err != nil {
		raw.Close()
		return nil, cm.connectionError("dial", err)
	}

	stream := tls.Client(raw, tlsConfig)
	if err := stream.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, cm.connectionError("tls handshake", fmt.Errorf("%w: %w", ErrTLSHandshake, err))
	}

	config := cm.config.Properties.AMQPConfig()
	config.SASL = []amqp.Authentication{uri.PlainAuth()}
	config.Vhost = uri.Vhost
	config.TLSClientConfig = tlsConfig

	conn, err := cm.connector.Open(ctx, stream, config)
	if err != nil {
		stream.Close()
		return nil, cm.connectionError("open", err)
	}
	return conn, nil
}

func (cm *ConnectionManager) connectionError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrConnectionTimeout, err)
	case errors.Is(err, context.Canceled):
		err = fmt.Errorf("%w: %w", ErrOperationCancelled, err)
	}
	return &ConnectionError{
		Op:        op,
		URL:       SanitizeURL(cm.config.Address),
		Err:       err,
		Timestamp: time.Now(),
	}
}
