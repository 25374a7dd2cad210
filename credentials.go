// Copyright 2025 Kirill Scherba <kirill@scherba.ru>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Credential loading for the webtransport package: reads a private key and
// certificate chain from the filesystem and builds a tls.Certificate from
// them. DER vs. PEM is chosen by file extension; PEM keys try PKCS#8 first
// and fall back to PKCS#1.

package webtransport

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadCredentials reads the private key at keyPath and the certificate chain
// at certPath and returns a tls.Certificate ready to be installed in a
// tls.Config. Errors are wrapped as KindCredential.
func LoadCredentials(keyPath, certPath string) (tls.Certificate, error) {
	key, err := loadPrivateKey(keyPath)
	if err != nil {
		return tls.Certificate{}, newError(KindCredential, err)
	}

	chain, err := loadCertificateChain(certPath)
	if err != nil {
		return tls.Certificate{}, newError(KindCredential, err)
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return tls.Certificate{}, newError(KindCredential, fmt.Errorf("parse leaf certificate: %w", err))
	}

	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// isDER reports whether path's extension marks its contents as a single
// DER-encoded blob rather than PEM text.
func isDER(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".der")
}

// loadPrivateKey reads the key file at path. A .der extension is parsed as a
// single PKCS#8 key. Any other extension is treated as PEM: PKCS#8 blocks
// ("PRIVATE KEY") are preferred, falling back to PKCS#1 ("RSA PRIVATE KEY")
// if no PKCS#8 block parses.
func loadPrivateKey(path string) (crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	if isDER(path) {
		key, err := x509.ParsePKCS8PrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed PKCS#8 private key: %w", err)
		}
		return key, nil
	}

	if key, ok := firstPKCS8Key(raw); ok {
		return key, nil
	}
	if key, ok := firstPKCS1Key(raw); ok {
		return key, nil
	}
	return nil, fmt.Errorf("no private keys found in %s", path)
}

func firstPKCS8Key(pemBytes []byte) (crypto.PrivateKey, bool) {
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, false
		}
		if block.Type != "PRIVATE KEY" {
			continue
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			continue
		}
		return key, true
	}
}

func firstPKCS1Key(pemBytes []byte) (crypto.PrivateKey, bool) {
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, false
		}
		if block.Type != "RSA PRIVATE KEY" {
			continue
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			continue
		}
		return key, true
	}
}

// loadCertificateChain reads the certificate file at path. A .der extension
// is parsed as a single DER certificate. Any other extension is treated as a
// PEM bundle and every "CERTIFICATE" block is collected in file order
// (leaf first).
func loadCertificateChain(path string) ([][]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate chain: %w", err)
	}

	if isDER(path) {
		return [][]byte{raw}, nil
	}

	var chain [][]byte
	rest := raw
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("invalid PEM-encoded certificate: no certificate blocks in %s", path)
	}
	return chain, nil
}
