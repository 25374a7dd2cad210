// Copyright 2025 Kirill Scherba <kirill@scherba.ru>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// TLS configuration for the webtransport package: builds a TLS 1.3-only
// server configuration advertising the HTTP/3 ALPN family from a loaded
// credential.

package webtransport

import "crypto/tls"

// ALPNProtocols are the ALPN tokens advertised by the endpoint, in
// preference order. The list must include at least h3, h3-29, h3-30, h3-31
// and h3-32; a client offering only h2 or http/1.1 fails the handshake.
var ALPNProtocols = []string{"h3", "h3-32", "h3-31", "h3-30", "h3-29"}

// buildTLSConfig returns a TLS server configuration for cert: TLS 1.3 only
// (no downgrade), no client authentication, and the package's ALPN list.
// crypto/tls's default cipher suites and curve preferences are used as-is;
// they already exclude anything unsafe for TLS 1.3.
func buildTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   ALPNProtocols,
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		ClientAuth:   tls.NoClientCert,
	}
}
