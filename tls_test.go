// Copyright 2025 Kirill Scherba <kirill@scherba.ru>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package webtransport

import (
	"crypto/tls"
	"testing"
)

func TestBuildTLSConfigALPN(t *testing.T) {
	cfg := buildTLSConfig(tls.Certificate{})

	want := map[string]bool{"h3": false, "h3-29": false, "h3-30": false, "h3-31": false, "h3-32": false}
	for _, proto := range cfg.NextProtos {
		if _, ok := want[proto]; ok {
			want[proto] = true
		}
	}
	for proto, seen := range want {
		if !seen {
			t.Errorf("ALPN list %v is missing required token %q", cfg.NextProtos, proto)
		}
	}
}

func TestBuildTLSConfigVersionIsTLS13Only(t *testing.T) {
	cfg := buildTLSConfig(tls.Certificate{})

	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %#x, want TLS 1.3 (%#x)", cfg.MinVersion, tls.VersionTLS13)
	}
	if cfg.MaxVersion != tls.VersionTLS13 {
		t.Errorf("MaxVersion = %#x, want TLS 1.3 (%#x)", cfg.MaxVersion, tls.VersionTLS13)
	}
}

func TestBuildTLSConfigNoClientAuth(t *testing.T) {
	cfg := buildTLSConfig(tls.Certificate{})

	if cfg.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v, want NoClientCert", cfg.ClientAuth)
	}
}

func TestBuildTLSConfigCarriesTheSuppliedCertificate(t *testing.T) {
	cert := tls.Certificate{Certificate: [][]byte{[]byte("leaf")}}
	cfg := buildTLSConfig(cert)

	if len(cfg.Certificates) != 1 {
		t.Fatalf("Certificates has %d entries, want 1", len(cfg.Certificates))
	}
	if len(cfg.Certificates[0].Certificate) != 1 || string(cfg.Certificates[0].Certificate[0]) != "leaf" {
		t.Fatalf("Certificates[0] = %v, want the supplied cert", cfg.Certificates[0])
	}
}
