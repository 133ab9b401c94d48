// Package rabbitmq opens and inspects RabbitMQ connections for a pool.
//
// This package includes:
//   - ConnectionManager: creates connections and decides whether they may be reused
//   - Connection: a broker connection that tracks its own close notification
//   - Connector: the amqp091-go entrypoints, replaceable in tests
//   - TLSMode: default TLS from the URI scheme, or a custom trusted certificate
//
// Connection failures are returned to the caller as ConnectionError or
// ConfigError. Nothing here retries or reconnects.
package rabbitmq
