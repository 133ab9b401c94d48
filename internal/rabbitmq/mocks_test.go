package rabbitmq

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

// MockAMQPConnection mimics the close behaviour of *amqp.Connection
type MockAMQPConnection struct {
	mu           sync.Mutex
	closed       bool
	closeCalls   int
	channelCalls int
	listeners    []chan *amqp.Error
}

func (m *MockAMQPConnection) Channel() (*amqp.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelCalls++
	return nil, amqp.ErrClosed
}

func (m *MockAMQPConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(receiver)
		return receiver
	}
	m.listeners = append(m.listeners, receiver)
	return receiver
}

func (m *MockAMQPConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockAMQPConnection) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	m.shutdown(nil)
	return nil
}

func (m *MockAMQPConnection) LocalAddr() net.Addr {
	return &net.TCPAddr{}
}

// shutdown tears the connection down the way the client library does:
// flag closed, publish the cause, then close every listener.
func (m *MockAMQPConnection) shutdown(err *amqp.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, l := range m.listeners {
		if err != nil {
			l <- err
		}
		close(l)
	}
	m.listeners = nil
}

func (m *MockAMQPConnection) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

func (m *MockAMQPConnection) ChannelCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channelCalls
}

type dialCall struct {
	url    string
	config amqp.Config
}

type openCall struct {
	stream net.Conn
	tls    tls.ConnectionState
	config amqp.Config
}

// RecordingConnector records the options each entrypoint was called with
type RecordingConnector struct {
	mu      sync.Mutex
	dials   []dialCall
	opens   []openCall
	dialErr error
	openErr error
	conns   []*MockAMQPConnection
}

func (r *RecordingConnector) Dial(_ context.Context, url string, config amqp.Config) (AMQPConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dials = append(r.dials, dialCall{url: url, config: config})
	if r.dialErr != nil {
		return nil, r.dialErr
	}
	conn := &MockAMQPConnection{}
	r.conns = append(r.conns, conn)
	return conn, nil
}

func (r *RecordingConnector) Open(_ context.Context, stream net.Conn, config amqp.Config) (AMQPConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := openCall{stream: stream, config: config}
	if tc, ok := stream.(*tls.Conn); ok {
		call.tls = tc.ConnectionState()
	}
	r.opens = append(r.opens, call)
	if r.openErr != nil {
		return nil, r.openErr
	}
	conn := &MockAMQPConnection{}
	r.conns = append(r.conns, conn)
	return conn, nil
}

func (r *RecordingConnector) Calls() (dials, opens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dials), len(r.opens)
}

// RecordingDialer counts raw stream dials and forwards them to net.Dialer
type RecordingDialer struct {
	mu    sync.Mutex
	addrs []string
	err   error
}

func (d *RecordingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, address)
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var nd net.Dialer
	return nd.DialContext(ctx, network, address)
}

func (d *RecordingDialer) Addrs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addrs...)
}

// newTestCertificate creates a self-signed CA certificate for host.
func newTestCertificate(t *testing.T, host string) (tls.Certificate, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: host},
		DNSNames:              []string{host},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, pemBytes
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// startTLSBroker listens on loopback with a certificate issued for a name
// that does not match 127.0.0.1. It completes TLS handshakes and then holds
// the stream open until the client goes away.
func startTLSBroker(t *testing.T, cert tls.Certificate) string {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if err := c.(*tls.Conn).Handshake(); err != nil {
					return
				}
				_, _ = io.Copy(io.Discard, c)
			}(conn)
		}
	}()

	return ln.Addr().String()
}

var errBrokerRefused = errors.New("connection refused by test")
