// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

// Package s3req is the request engine of an S3-compatible object storage
// client: it turns a structured request description into a fully signed
// HTTP request (Signature V2 or V4), executes it over a pooled keep-alive
// connection, streams the payload through caller callbacks, and reports a
// typed status.
package s3req

import (
	"crypto/x509"
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	verMajor = 1
	verMinor = 0

	defaultHostNameValue = "s3.amazonaws.com"
	defaultRegionName    = "us-east-1"
)

// InitOptions configures an Engine.
type InitOptions struct {
	// UserAgentInfo names the application in the User-Agent string.
	UserAgentInfo string

	// DefaultHostName is used when a BucketContext does not name a host.
	// Defaults to s3.amazonaws.com.
	DefaultHostName string

	// Region for V4 credential scoping. Defaults to us-east-1.
	Region string

	// VerifyPeer enables TLS peer verification.
	VerifyPeer bool

	// UseSignatureV4 selects V4 signing; V2 otherwise.
	UseSignatureV4 bool

	// Logger receives engine debug and error output. Defaults to the
	// logrus standard logger.
	Logger logrus.FieldLogger
}

// Engine holds the configuration shared by all requests: signing scheme,
// region, default host, TLS settings, user agent and the handle pool.
// Construct it once; its configuration must not be mutated while
// requests are in flight.
type Engine struct {
	defaultHostName  string
	region           string
	signatureVersion SignatureVersion
	verifyPeer       bool
	userAgent        string
	rootCAs          *x509.CertPool
	logger           logrus.FieldLogger
	pool             *handlePool
}

// NewEngine validates the options and builds an Engine.
func NewEngine(opts InitOptions) (*Engine, error) {
	host := opts.DefaultHostName
	if host == "" {
		host = defaultHostNameValue
	}
	if len(host) > maxHostNameSize {
		return nil, errors.Errorf("default host name too long: %d bytes", len(host))
	}

	region := opts.Region
	if region == "" {
		region = defaultRegionName
	}

	info := opts.UserAgentInfo
	if info == "" {
		info = "Unknown"
	}

	sigVersion := SignatureV2
	if opts.UseSignatureV4 {
		sigVersion = SignatureV4
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		defaultHostName:  host,
		region:           region,
		signatureVersion: sigVersion,
		verifyPeer:       opts.VerifyPeer,
		userAgent: fmt.Sprintf("Mozilla/4.0 (Compatible; %s; s3req %d.%d; %s %s)",
			info, verMajor, verMinor, runtime.GOOS, runtime.GOARCH),
		logger: logger,
		pool:   newHandlePool(),
	}, nil
}

// SetRegionName updates the V4 credential scope region.
func (e *Engine) SetRegionName(name string) Status {
	if name == "" {
		return StatusOK
	}
	if len(name) > maxHostNameSize {
		return StatusUriTooLong
	}
	e.region = name
	return StatusOK
}

// SetCAInfo loads a PEM bundle to use as the trust roots in place of the
// system pool.
func (e *Engine) SetCAInfo(path string) Status {
	if path == "" {
		return StatusOK
	}
	if len(path) > maxHostNameSize {
		return StatusUriTooLong
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		e.logger.WithError(errors.Wrap(err, "read CA bundle")).Error("SetCAInfo failed")
		return StatusInternalError
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		e.logger.Errorf("SetCAInfo: no certificates in %s", path)
		return StatusInternalError
	}
	e.rootCAs = pool
	return StatusOK
}

// Close drains the handle pool and tears down every idle connection.
func (e *Engine) Close() {
	e.pool.drain()
}

// UserAgent reports the composed User-Agent string.
func (e *Engine) UserAgent() string {
	return e.userAgent
}
