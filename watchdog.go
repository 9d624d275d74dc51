// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

var errTransferStalled = errors.New("transfer stalled below minimum speed")

// Low-speed guard: a transfer is aborted when no body read completes
// within the timeout window. Reads are capped at one chunk; the byte
// rate itself is not measured.
const (
	lowSpeedChunk   = 1024
	lowSpeedTimeout = 15 * time.Second
)

// watchdogRoundTripper cancels a request when neither upload nor
// download makes progress within the timeout. The time between fully
// sending the request and the first response byte is bounded by the same
// timeout.
type watchdogRoundTripper struct {
	rt        http.RoundTripper
	timeout   time.Duration
	chunkSize int
}

var _ http.RoundTripper = &watchdogRoundTripper{}

func newWatchdogRoundTripper(rt http.RoundTripper) *watchdogRoundTripper {
	return &watchdogRoundTripper{rt: rt, timeout: lowSpeedTimeout, chunkSize: lowSpeedChunk}
}

func (w *watchdogRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	timer := time.NewTimer(w.timeout)
	ctx, cancel := context.WithCancel(req.Context())
	timedOut := &atomic.Bool{}

	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			timedOut.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	kick := func() {
		timer.Reset(w.timeout)
	}
	isTimeout := func(err error) bool {
		return timedOut.Load() && errors.Is(err, context.Canceled)
	}

	req = req.Clone(ctx)
	if req.Body != nil {
		req.Body = newWatchdogReadCloser(req.Body, w.chunkSize, kick, nil, isTimeout)
	}

	resp, err := w.rt.RoundTrip(req)
	if err != nil {
		cancel()
		if isTimeout(err) {
			return nil, errTransferStalled
		}
		return nil, err
	}

	resp.Body = newWatchdogReadCloser(resp.Body, w.chunkSize, kick, cancel, isTimeout)
	return resp, nil
}

type watchdogReadCloser struct {
	rc        io.ReadCloser
	chunkSize int
	kick      func()
	close     func()
	isTimeout func(err error) bool
}

var _ io.ReadCloser = &watchdogReadCloser{}

func newWatchdogReadCloser(rc io.ReadCloser, chunkSize int, kick func(), close func(), isTimeout func(err error) bool) *watchdogReadCloser {
	return &watchdogReadCloser{rc: rc, chunkSize: chunkSize, kick: kick, close: close, isTimeout: isTimeout}
}

func (w *watchdogReadCloser) Read(p []byte) (n int, err error) {
	w.kick()

	if len(p) > w.chunkSize {
		p = p[:w.chunkSize]
	}
	n, err = w.rc.Read(p)
	w.kick()

	if err != nil && w.isTimeout(err) {
		err = errTransferStalled
	}
	return n, err
}

func (w *watchdogReadCloser) Close() error {
	if w.close != nil {
		w.close()
	}
	return w.rc.Close()
}
