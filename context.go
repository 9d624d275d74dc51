// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultContextConcurrency bounds how many registered requests run at
// once when a context is executed.
const defaultContextConcurrency = 8

// RequestContext collects requests registered through Perform so they
// can be executed as one batch. Each registered request still runs
// single-threaded end to end and fires its own callbacks; Run returns
// once every request has finished.
type RequestContext struct {
	verifyPeer    bool
	verifyPeerSet bool

	concurrency int

	mu      sync.Mutex
	pending []contextEntry
}

type contextEntry struct {
	engine *Engine
	req    *request
}

// NewRequestContext creates an empty batch context.
func NewRequestContext() *RequestContext {
	return &RequestContext{concurrency: defaultContextConcurrency}
}

// SetVerifyPeer overrides the engine's peer-verification setting for
// requests registered on this context.
func (c *RequestContext) SetVerifyPeer(verify bool) *RequestContext {
	c.verifyPeer = verify
	c.verifyPeerSet = true
	return c
}

// SetConcurrency bounds the number of requests in flight during Run.
func (c *RequestContext) SetConcurrency(n int) *RequestContext {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

func (c *RequestContext) add(e *Engine, r *request) {
	c.mu.Lock()
	c.pending = append(c.pending, contextEntry{engine: e, req: r})
	c.mu.Unlock()
}

// Pending reports the number of registered, not yet executed requests.
func (c *RequestContext) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Run executes every registered request and waits for all of them to
// finish. Results are reported through each request's callbacks; ctx
// cancellation stops requests that have not been started.
func (c *RequestContext) Run(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, entry := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				entry.req.status = StatusConnectionFailed
				entry.engine.finish(entry.req)
				return nil
			}
			entry.engine.dispatch(entry.req)
			return nil
		})
	}

	return g.Wait()
}
