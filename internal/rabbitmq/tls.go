package rabbitmq

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadTrustRoots reads the PEM file at path and parses every CERTIFICATE
// block in it. The file is read on each call; nothing is cached.
func LoadTrustRoots(path string) (*x509.CertPool, []*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &ConfigError{Field: "ca_cert_path", Value: path, Err: fmt.Errorf("%w: %v", ErrCertificateRead, err)}
	}

	var certs []*x509.Certificate
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, &ConfigError{Field: "ca_cert_path", Value: path, Err: fmt.Errorf("%w: %v", ErrCertificateParse, err)}
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, nil, &ConfigError{Field: "ca_cert_path", Value: path, Err: fmt.Errorf("%w: no PEM certificate found", ErrCertificateParse)}
	}

	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}
	return pool, certs, nil
}

// customTLSConfig builds the client config for the custom certificate path.
// serverName is the URI host and is always sent as SNI.
func customTLSConfig(mode TLSMode, serverName string) (*tls.Config, error) {
	roots, _, err := LoadTrustRoots(mode.CertPath())
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		RootCAs:    roots,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
		// Accepts any peer certificate unless the mode opted into verification.
		InsecureSkipVerify: mode.SkipVerify(), //nolint:gosec
	}, nil
}
