package amqppool

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/glimte/amqppool/internal/rabbitmq"
	"github.com/glimte/amqppool/pool"
)

// Config describes a connection pool in a form that can live in a YAML file.
type Config struct {
	// URL of the broker. Defaults to amqp://127.0.0.1:5672/%2f.
	URL string `yaml:"url"`

	// CACertPath, when set, trusts this PEM certificate instead of the
	// system roots.
	CACertPath string `yaml:"ca_cert_path"`

	// InsecureSkipVerify overrides peer verification on the CACertPath
	// path. Unset means skip, matching CustomCertFile.
	InsecureSkipVerify *bool `yaml:"insecure_skip_verify"`

	ConnectionProperties ConnectionProperties `yaml:"connection_properties"`

	Pool *pool.Config `yaml:"pool"`
}

// DefaultConfig returns a Config with client defaults and no pool overrides.
func DefaultConfig() Config {
	return Config{
		ConnectionProperties: DefaultConnectionProperties(),
	}
}

// ParseConfig decodes YAML on top of DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &ConfigError{Field: "yaml", Value: "", Err: fmt.Errorf("%w: %v", rabbitmq.ErrInvalidConfiguration, err)}
	}
	return cfg, nil
}

// TLSMode derives the manager's TLS variant from CACertPath and
// InsecureSkipVerify.
func (c Config) TLSMode() TLSMode {
	if c.CACertPath == "" {
		return rabbitmq.DefaultTLS()
	}
	mode := rabbitmq.CustomCertFile(c.CACertPath)
	if c.InsecureSkipVerify != nil {
		mode = mode.WithSkipVerify(*c.InsecureSkipVerify)
	}
	return mode
}

// Validate reports configuration errors that need no I/O to detect.
func (c Config) Validate() error {
	if c.InsecureSkipVerify != nil && c.CACertPath == "" {
		return &ConfigError{
			Field: "insecure_skip_verify",
			Value: fmt.Sprint(*c.InsecureSkipVerify),
			Err:   fmt.Errorf("%w: requires ca_cert_path", rabbitmq.ErrInvalidConfiguration),
		}
	}
	if c.Pool != nil {
		if err := c.poolConfig().Validate(); err != nil {
			return &ConfigError{Field: "pool", Err: err}
		}
	}
	return nil
}

// poolConfig fills a zero max_size with the pool default.
func (c Config) poolConfig() pool.Config {
	cfg := *c.Pool
	if cfg.MaxSize == 0 {
		cfg.MaxSize = pool.DefaultConfig().MaxSize
	}
	return cfg
}

// CreateManager builds a Manager from the configuration.
func (c Config) CreateManager(options ...ManagerOption) (*Manager, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	url := c.URL
	if url == "" {
		url = rabbitmq.DefaultURL
	}
	return rabbitmq.NewConnectionManagerWithTLS(url, c.ConnectionProperties, c.TLSMode(), options...), nil
}

// CreatePool builds a Manager and a Pool around it. Pool options given here
// are applied after the configured pool settings.
func (c Config) CreatePool(managerOptions []ManagerOption, poolOptions ...pool.Option) (*Pool, error) {
	manager, err := c.CreateManager(managerOptions...)
	if err != nil {
		return nil, err
	}

	var opts []pool.Option
	if c.Pool != nil {
		opts = append(opts, pool.WithConfig(c.poolConfig()))
	}
	opts = append(opts, poolOptions...)

	p, err := NewPool(manager, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return p, nil
}
