package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// Connection errors
	ErrConnectionTimeout = errors.New("rabbitmq: connection timeout")
	ErrTLSHandshake      = errors.New("rabbitmq: tls handshake failed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("rabbitmq: invalid configuration")
	ErrInvalidURI           = errors.New("rabbitmq: invalid amqp uri")
	ErrCertificateRead      = errors.New("rabbitmq: cannot read ca certificate")
	ErrCertificateParse     = errors.New("rabbitmq: cannot parse ca certificate")

	// General errors
	ErrOperationCancelled = errors.New("rabbitmq: operation cancelled")
)

// ConnectionError represents a failure to establish a broker connection
type ConnectionError struct {
	Op        string    // Operation that failed: dial, tls handshake, open
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq connection error: %s %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConfigError reports manager configuration that can never produce a
// connection, such as a malformed URI or an unreadable certificate file.
type ConfigError struct {
	Field string // Configuration field at fault
	Value string // Offending value (sanitized for URIs)
	Err   error  // Underlying error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rabbitmq configuration error: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrInvalidConfiguration) match every ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// RecycleError is returned by Recycle when a connection must not be reused.
type RecycleError struct {
	State ConnectionState
}

func (e *RecycleError) Error() string {
	return fmt.Sprintf("amqp connection is in state: %s", e.State)
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		return false
	case errors.Is(err, ErrOperationCancelled):
		return false
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}

	var recycleErr *RecycleError
	if errors.As(err, &recycleErr) {
		return true
	}

	// Default to retryable for unknown errors
	return true
}

// IsFatal determines if an error is fatal and should not be retried
func IsFatal(err error) bool {
	return err != nil && !IsRetryable(err)
}

// SanitizeURL removes the password from an AMQP URL so it can be logged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
