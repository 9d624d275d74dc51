// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"crypto/tls"
	"crypto/x509"
	"strings"

	"github.com/pkg/errors"
)

// matchesSubjectAltName checks hostname against the certificate's SAN
// DNS entries. Returns (matched, sawSAN); entries with embedded NULs are
// skipped as malformed.
func matchesSubjectAltName(hostname string, cert *x509.Certificate) (bool, bool) {
	if len(cert.DNSNames) == 0 {
		return false, false
	}

	for _, dnsName := range cert.DNSNames {
		if strings.IndexByte(dnsName, 0) >= 0 {
			continue
		}
		if strings.EqualFold(hostname, dnsName) {
			return true, true
		}
		// Single leading-label wildcard: "*.x.y" matches "a.x.y" but
		// not "b.a.x.y" and not "x.y".
		if len(dnsName) > 2 && dnsName[0] == '*' && dnsName[1] == '.' {
			suffix := dnsName[1:]
			dot := strings.IndexByte(hostname, '.')
			if dot >= 0 && strings.EqualFold(hostname[dot:], suffix) {
				return true, true
			}
		}
	}
	return false, true
}

// matchesCommonName checks hostname against the subject CN. Exact
// case-insensitive match only; no wildcards in CN.
func matchesCommonName(hostname string, cert *x509.Certificate) bool {
	cn := cert.Subject.CommonName
	if cn == "" || strings.IndexByte(cn, 0) >= 0 {
		return false
	}
	return strings.EqualFold(hostname, cn)
}

// verifyForcedHostname applies the engine's hostname matching to the
// leaf certificate: SAN DNS entries first, CN only when the certificate
// carries no SAN.
func verifyForcedHostname(hostname string, cert *x509.Certificate) bool {
	matched, sawSAN := matchesSubjectAltName(hostname, cert)
	if matched {
		return true
	}
	if sawSAN {
		return false
	}
	return matchesCommonName(hostname, cert)
}

// tlsConfigFor builds the per-request TLS configuration: TLS 1.2 minimum
// (pinned to exactly 1.2 unless unbound), no session resumption, the
// engine's CA bundle, and, when a forced Host header value is active
// with peer verification on, chain validation plus the engine's own
// hostname check against that value in place of the default one.
func (e *Engine) tlsConfigFor(bc *BucketContext, verifyPeer bool) *tls.Config {
	cfg := &tls.Config{
		MinVersion:             tls.VersionTLS12,
		SessionTicketsDisabled: true,
	}
	if !bc.UnboundTLSVersion {
		cfg.MaxVersion = tls.VersionTLS12
	}
	if e.rootCAs != nil {
		cfg.RootCAs = e.rootCAs
	}

	if !verifyPeer {
		cfg.InsecureSkipVerify = true
		return cfg
	}

	if bc.HostHeaderValue != "" {
		// Default hostname verification is against the URL host, which
		// by construction differs from the forced Host header. Keep
		// chain validation, swap in our own hostname matching.
		host := bc.HostHeaderValue
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			certs := make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					return err
				}
				certs = append(certs, cert)
			}
			if len(certs) == 0 {
				return errors.New("no peer certificates presented")
			}

			opts := x509.VerifyOptions{
				Roots:         e.rootCAs,
				Intermediates: x509.NewCertPool(),
			}
			for _, cert := range certs[1:] {
				opts.Intermediates.AddCert(cert)
			}
			if _, err := certs[0].Verify(opts); err != nil {
				return err
			}

			if !verifyForcedHostname(host, certs[0]) {
				return x509.HostnameError{Certificate: certs[0], Host: host}
			}
			return nil
		}
	}

	return cfg
}
