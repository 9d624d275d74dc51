// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// requestPoolSize bounds the number of idle handles kept for reuse.
const requestPoolSize = 32

// maxRedirects is the safety valve on redirect following.
const maxRedirects = 10

// transportProfile captures the settings a handle's transport was built
// with. A pooled handle is reconfigured only when the profile changes,
// so the transport's connection cache survives ordinary reuse.
type transportProfile struct {
	verifyPeer        bool
	unboundTLSVersion bool
	forcedHostHeader  string
	connectTo         string
	scheme            string
}

// request is a pooled handle: an HTTP client with its keep-alive state,
// plus the per-dispatch scratch that is reset between uses.
type request struct {
	client     *http.Client
	transport  *http.Transport
	profile    transportProfile
	hasProfile bool

	uri     string
	method  string
	headers []string

	// Outbound body accounting for PUT/POST.
	contentLength int64
	hasUploadBody bool

	status           Status
	httpResponseCode int

	toS3Callback       ToS3Callback
	toS3BytesRemaining uint64
	fromS3Callback     FromS3Callback
	propertiesCallback PropertiesCallback
	completeCallback   CompleteCallback

	propertiesCallbackMade bool

	headersHandler ResponseHeadersHandler
	errorParser    ErrorParser
}

func newRequest() *request {
	return &request{
		headersHandler: newResponseHeadersHandler(),
		errorParser:    newXMLErrorParser(),
	}
}

// reset clears all per-dispatch state while keeping the transport (and
// with it the persistent connection cache) intact.
func (r *request) reset() {
	r.uri = ""
	r.method = ""
	r.headers = nil
	r.contentLength = 0
	r.hasUploadBody = false
	r.status = StatusOK
	r.httpResponseCode = 0
	r.toS3Callback = nil
	r.toS3BytesRemaining = 0
	r.fromS3Callback = nil
	r.propertiesCallback = nil
	r.completeCallback = nil
	r.propertiesCallbackMade = false
	r.headersHandler.Reset()
	r.errorParser.Reset()
}

// destroy tears down the handle's connections.
func (r *request) destroy() {
	if r.transport != nil {
		r.transport.CloseIdleConnections()
	}
}

// connectToDialer rewrites dial addresses per a curl-style
// "HOST:PORT:CONNECT-HOST:CONNECT-PORT" override. Empty HOST or PORT
// fields match anything.
func connectToDialer(spec string, base func(ctx context.Context, network, addr string) (net.Conn, error)) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 {
		return nil, errors.Errorf("malformed connect-to override %q", spec)
	}
	matchHost, matchPort, toHost, toPort := parts[0], parts[1], parts[2], parts[3]
	if toHost == "" || toPort == "" {
		return nil, errors.Errorf("malformed connect-to override %q", spec)
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return base(ctx, network, addr)
		}
		if (matchHost == "" || strings.EqualFold(matchHost, host)) &&
			(matchPort == "" || matchPort == port) {
			addr = net.JoinHostPort(toHost, toPort)
		}
		return base(ctx, network, addr)
	}, nil
}

// configure points the handle at the transport settings the request
// needs, building a fresh transport only when the profile changed since
// the handle was last used.
func (r *request) configure(e *Engine, bc *BucketContext, verifyPeer bool) Status {
	scheme := "https"
	if bc.Protocol == ProtocolHTTP {
		scheme = "http"
	}
	profile := transportProfile{
		verifyPeer:        verifyPeer,
		unboundTLSVersion: bc.UnboundTLSVersion,
		forcedHostHeader:  bc.HostHeaderValue,
		connectTo:         bc.ConnectToFullySpecified,
		scheme:            scheme,
	}
	if r.hasProfile && r.profile == profile {
		return StatusOK
	}

	if r.transport != nil {
		r.transport.CloseIdleConnections()
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	dial := dialer.DialContext
	if bc.ConnectToFullySpecified != "" {
		var err error
		dial, err = connectToDialer(bc.ConnectToFullySpecified, dial)
		if err != nil {
			e.logger.WithError(err).Error("connect-to override rejected")
			return StatusFailedToInitializeRequest
		}
		if bc.VerboseLogging {
			e.logger.Debugf("connect-to=%s", bc.ConnectToFullySpecified)
		}
	}

	if bc.VerboseLogging {
		if bc.UnboundTLSVersion {
			e.logger.Debug("TLS 1.2 or newer selected")
		} else {
			e.logger.Debug("TLS pinned to 1.2")
		}
	}

	r.transport = &http.Transport{
		DialContext:           dial,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       e.tlsConfigFor(bc, verifyPeer),
	}
	r.client = &http.Client{
		Transport: newWatchdogRoundTripper(r.transport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	r.profile = profile
	r.hasProfile = true
	return StatusOK
}

// handlePool is a bounded LIFO stack of idle handles. The most recently
// released handle is reused first to maximize the chance of hitting a
// still-warm connection.
type handlePool struct {
	mu    sync.Mutex
	stack []*request
}

func newHandlePool() *handlePool {
	return &handlePool{stack: make([]*request, 0, requestPoolSize)}
}

// acquire pops an idle handle or allocates a fresh one. The reset of a
// reused handle happens outside the lock.
func (p *handlePool) acquire() *request {
	p.mu.Lock()
	var r *request
	if n := len(p.stack); n > 0 {
		r = p.stack[n-1]
		p.stack = p.stack[:n-1]
	}
	p.mu.Unlock()

	if r != nil {
		r.reset()
		return r
	}
	return newRequest()
}

// release returns a handle to the stack, destroying it if the stack is
// full.
func (p *handlePool) release(r *request) {
	p.mu.Lock()
	if len(p.stack) >= requestPoolSize {
		p.mu.Unlock()
		r.destroy()
		return
	}
	p.stack = append(p.stack, r)
	p.mu.Unlock()
}

// drain destroys every idle handle.
func (p *handlePool) drain() {
	p.mu.Lock()
	stack := p.stack
	p.stack = nil
	p.mu.Unlock()

	for _, r := range stack {
		r.destroy()
	}
}

// size reports the current number of idle handles.
func (p *handlePool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stack)
}
