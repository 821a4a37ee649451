// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"crypto/tls"
	"net"
)

// NewListener opens a TCP listener on addr, wrapped in TLS when tlsConfig
// is non-nil.
func NewListener(addr string, tlsConfig *tls.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	return ln, nil
}
