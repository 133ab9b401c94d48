package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultURL is the broker address used when none is configured.
	DefaultURL = "amqp://127.0.0.1:5672/%2f"

	defaultHeartbeat   = 10 * time.Second
	defaultLocale      = "en_US"
	defaultDialTimeout = 30 * time.Second
)

// ConnectionProperties are the protocol-level client options handed to the
// broker client unchanged on every connect.
type ConnectionProperties struct {
	Heartbeat        time.Duration `yaml:"heartbeat"`
	ChannelMax       int           `yaml:"channel_max"`
	FrameSize        int           `yaml:"frame_size"`
	Locale           string        `yaml:"locale"`
	ConnectionName   string        `yaml:"connection_name"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ClientProperties amqp.Table    `yaml:"client_properties"`
}

// DefaultConnectionProperties returns the properties amqp.Dial would use.
func DefaultConnectionProperties() ConnectionProperties {
	return ConnectionProperties{
		Heartbeat:   defaultHeartbeat,
		Locale:      defaultLocale,
		DialTimeout: defaultDialTimeout,
	}
}

// AMQPConfig converts the properties into a fresh amqp.Config. The client
// property table is copied so a handshake never writes into shared state.
func (p ConnectionProperties) AMQPConfig() amqp.Config {
	props := amqp.NewConnectionProperties()
	for k, v := range p.ClientProperties {
		props[k] = v
	}
	if p.ConnectionName != "" {
		props.SetClientConnectionName(p.ConnectionName)
	}

	locale := p.Locale
	if locale == "" {
		locale = defaultLocale
	}

	return amqp.Config{
		Heartbeat:  p.Heartbeat,
		ChannelMax: p.ChannelMax,
		FrameSize:  p.FrameSize,
		Locale:     locale,
		Properties: props,
	}
}

func (p ConnectionProperties) dialTimeout() time.Duration {
	if p.DialTimeout <= 0 {
		return defaultDialTimeout
	}
	return p.DialTimeout
}

// TLSModeKind selects how create secures the transport.
type TLSModeKind int

const (
	// TLSDefault lets the URI scheme decide: plaintext for amqp, full
	// certificate validation for amqps.
	TLSDefault TLSModeKind = iota
	// TLSCustomCert trusts an explicit PEM certificate read from disk.
	TLSCustomCert
)

func (k TLSModeKind) String() string {
	switch k {
	case TLSDefault:
		return "default"
	case TLSCustomCert:
		return "custom-cert"
	default:
		return "unknown"
	}
}

// TLSMode is the transport-security variant a manager connects with.
// The zero value is DefaultTLS.
type TLSMode struct {
	kind       TLSModeKind
	certPath   string
	skipVerify bool
}

// DefaultTLS returns the mode that relies on the URI scheme alone.
func DefaultTLS() TLSMode {
	return TLSMode{kind: TLSDefault}
}

// CustomCertFile returns the mode that trusts the PEM certificate at path.
//
// Chain and hostname verification are disabled in this mode so brokers with
// self-signed or mismatched certificates are accepted. This weakens TLS to
// encryption without authentication; use WithVerification to opt back in.
func CustomCertFile(path string) TLSMode {
	return TLSMode{kind: TLSCustomCert, certPath: path, skipVerify: true}
}

// WithVerification returns a copy of m that verifies the peer chain against
// the trusted certificate and checks the hostname.
func (m TLSMode) WithVerification() TLSMode {
	m.skipVerify = false
	return m
}

// WithSkipVerify returns a copy of m with verification toggled explicitly.
func (m TLSMode) WithSkipVerify(skip bool) TLSMode {
	m.skipVerify = skip
	return m
}

// Kind reports which variant m is.
func (m TLSMode) Kind() TLSModeKind { return m.kind }

// CertPath is the trusted certificate path, empty for DefaultTLS.
func (m TLSMode) CertPath() string { return m.certPath }

// SkipVerify reports whether peer verification is disabled.
func (m TLSMode) SkipVerify() bool { return m.kind == TLSCustomCert && m.skipVerify }

func (m TLSMode) String() string {
	if m.kind == TLSCustomCert {
		return m.kind.String() + "(" + m.certPath + ")"
	}
	return m.kind.String()
}

// ManagerConfig holds everything a ConnectionManager needs. It is copied into
// the manager at construction and never changed afterwards.
type ManagerConfig struct {
	Address    string
	Properties ConnectionProperties
	TLS        TLSMode
}

// CACertPath returns the custom certificate path and whether one is set.
func (c ManagerConfig) CACertPath() (string, bool) {
	if c.TLS.kind != TLSCustomCert {
		return "", false
	}
	return c.TLS.certPath, true
}

func (c ManagerConfig) clone() ManagerConfig {
	if c.Properties.ClientProperties != nil {
		props := make(amqp.Table, len(c.Properties.ClientProperties))
		for k, v := range c.Properties.ClientProperties {
			props[k] = v
		}
		c.Properties.ClientProperties = props
	}
	return c
}
