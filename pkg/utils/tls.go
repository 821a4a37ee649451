// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"crypto/tls"
	"fmt"
)

// LoadServerTLSConfig loads TLS configuration for the HTTP listener.
// Returns nil if certFile and keyFile are empty (plain HTTP).
func LoadServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("both tls cert and key are required")
	}

	cert, err := tls.LoadX509KeyPair(ResolvePath(certFile), ResolvePath(keyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
