// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var errAbortedByCallback = errors.New("transfer aborted by callback")

// Perform validates params, composes and signs the request, and either
// executes it immediately or registers it on reqCtx for batched
// execution. The complete callback is invoked exactly once in both
// cases; preparation failures surface through it synchronously with a
// nil error detail.
func (e *Engine) Perform(params *RequestParams, reqCtx *RequestContext) {
	fail := func(st Status) {
		params.CompleteCallback(st, nil)
	}

	if st := validateBucketName(params.BucketContext.BucketName, params.BucketContext.URIStyle); st != StatusOK {
		fail(st)
		return
	}

	computed := &requestComputedValues{}

	if st := composeAmzHeaders(params, e.signatureVersion, time.Now(), computed); st != StatusOK {
		fail(st)
		return
	}
	if st := e.composeStandardHeaders(params, computed); st != StatusOK {
		fail(st)
		return
	}
	if st := encodeKey(params, computed); st != StatusOK {
		fail(st)
		return
	}

	if e.signatureVersion == SignatureV2 {
		canonicalizeAmzHeaders(computed)
		computed.canonicalizedResource = canonicalizeResource(
			params.BucketContext.BucketName, params.SubResource, computed.urlEncodedKey)
		if st := composeAuthHeaderV2(params, computed); st != StatusOK {
			fail(st)
			return
		}
	}

	r := e.pool.acquire()

	uri, st := composeURI(&params.BucketContext, e.defaultHostName,
		computed.urlEncodedKey, params.SubResource, params.QueryParams)
	if st != StatusOK {
		r.destroy()
		fail(st)
		return
	}
	r.uri = uri
	r.method = params.HTTPRequestType.Verb()

	verifyPeer := e.verifyPeer
	if reqCtx != nil && reqCtx.verifyPeerSet {
		verifyPeer = reqCtx.verifyPeer
	}
	if st := r.configure(e, &params.BucketContext, verifyPeer); st != StatusOK {
		r.destroy()
		fail(st)
		return
	}

	if st := e.assembleHeaders(r, params, computed); st != StatusOK {
		r.destroy()
		fail(st)
		return
	}

	r.toS3Callback = params.ToS3Callback
	r.toS3BytesRemaining = params.ToS3CallbackTotalSize
	r.fromS3Callback = params.FromS3Callback
	r.propertiesCallback = params.PropertiesCallback
	r.completeCallback = params.CompleteCallback

	switch params.HTTPRequestType {
	case HTTPRequestTypePUT, HTTPRequestTypePOST:
		r.contentLength = int64(params.ToS3CallbackTotalSize)
		r.hasUploadBody = r.contentLength > 0 && r.toS3Callback != nil
	}

	if params.BucketContext.VerboseLogging {
		e.logger.WithFields(logrus.Fields{
			"method": r.method,
			"uri":    r.uri,
		}).Debug("request prepared")
	}

	if reqCtx != nil {
		reqCtx.add(e, r)
		return
	}
	e.dispatch(r)
}

// assembleHeaders builds the outbound header list in a fixed order:
// Content-Length for uploads, the non-empty standard headers, the V2
// Authorization header, every x-amz-* line, and finally the V4
// Authorization header computed over all of the above.
func (e *Engine) assembleHeaders(r *request, params *RequestParams, v *requestComputedValues) Status {
	var headers []string

	switch params.HTTPRequestType {
	case HTTPRequestTypePUT, HTTPRequestTypePOST:
		headers = append(headers,
			"Content-Length: "+strconv.FormatUint(params.ToS3CallbackTotalSize, 10))
	}

	for _, h := range []string{
		v.hostHeader,
		v.cacheControlHeader,
		v.contentTypeHeader,
		v.md5Header,
		v.contentDispositionHeader,
		v.contentEncodingHeader,
		v.expiresHeader,
		v.ifModifiedSinceHeader,
		v.ifUnmodifiedSinceHeader,
		v.ifMatchHeader,
		v.ifNoneMatchHeader,
		v.rangeHeader,
	} {
		if h != "" {
			headers = append(headers, h)
		}
	}

	if e.signatureVersion == SignatureV2 {
		headers = append(headers, v.authorizationHeader)
	}

	headers = append(headers, v.amzHeaders...)

	if e.signatureVersion == SignatureV4 {
		auth, st := composeAuthHeaderV4(params, e.region, r.uri, headers, v)
		if st != StatusOK {
			return st
		}
		headers = append(headers, auth)
	}

	r.headers = headers
	return StatusOK
}

// payloadReader adapts the outbound callback to the HTTP client's body
// reader. Reads are capped at the remaining byte budget; a negative
// callback return aborts the transfer.
type payloadReader struct {
	r *request
}

func (pr *payloadReader) Read(p []byte) (int, error) {
	r := pr.r
	if r.status != StatusOK {
		return 0, errAbortedByCallback
	}
	if r.toS3Callback == nil || r.toS3BytesRemaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > r.toS3BytesRemaining {
		p = p[:r.toS3BytesRemaining]
	}

	n := r.toS3Callback(p)
	if n < 0 {
		r.status = StatusAbortedByCallback
		return 0, errAbortedByCallback
	}
	if uint64(n) > r.toS3BytesRemaining {
		n = int(r.toS3BytesRemaining)
	}
	r.toS3BytesRemaining -= uint64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// dispatch executes a fully prepared request and drives the response
// through the handlers, then finishes it.
func (e *Engine) dispatch(r *request) {
	req, err := http.NewRequest(r.method, r.uri, nil)
	if err != nil {
		r.status = StatusFailedToInitializeRequest
		e.finish(r)
		return
	}

	if r.hasUploadBody {
		req.Body = io.NopCloser(&payloadReader{r})
	}
	req.ContentLength = r.contentLength

	for _, line := range r.headers {
		name := headerName(line)
		value := strings.TrimLeft(headerValue(line), " \t")
		switch {
		case strings.EqualFold(name, "Host"):
			req.Host = value
		case strings.EqualFold(name, "Content-Length"):
			// Carried via req.ContentLength.
		default:
			req.Header.Add(name, value)
		}
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if r.status == StatusOK {
			r.status = transportErrorToStatus(err)
		}
		e.finish(r)
		return
	}

	e.headersDone(r, resp)

	buf := make([]byte, 32*1024)
	for r.status == StatusOK {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			e.writeBody(r, buf[:n])
		}
		if rerr != nil {
			if rerr != io.EOF && r.status == StatusOK {
				r.status = transportErrorToStatus(rerr)
			}
			break
		}
	}
	resp.Body.Close()

	e.finish(r)
}

// headersDone records the HTTP response code, hands the headers to the
// handler and fires the properties callback for 2xx responses. Runs at
// most once per request.
func (e *Engine) headersDone(r *request, resp *http.Response) {
	if r.propertiesCallbackMade {
		return
	}
	r.propertiesCallbackMade = true

	r.httpResponseCode = resp.StatusCode

	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range resp.Header[name] {
			r.headersHandler.Add(name + ": " + value)
		}
	}
	r.headersHandler.Done(r.httpResponseCode)

	if r.propertiesCallback != nil &&
		r.httpResponseCode >= 200 && r.httpResponseCode <= 299 {
		r.status = r.propertiesCallback(r.headersHandler.Properties())
	}
}

// writeBody routes inbound body bytes: error documents on non-2xx, the
// caller's callback on 2xx, and an internal error when data arrives with
// nowhere to go.
func (e *Engine) writeBody(r *request, data []byte) {
	switch {
	case r.httpResponseCode < 200 || r.httpResponseCode > 299:
		r.status = r.errorParser.Add(data)
	case r.fromS3Callback != nil:
		r.status = r.fromS3Callback(data)
	default:
		r.status = StatusInternalError
	}
}

// finish classifies the final status, fires the complete callback
// exactly once and returns the handle to the pool.
func (e *Engine) finish(r *request) {
	if r.status == StatusOK {
		r.errorParser.ConvertStatus(&r.status)
		if r.status == StatusOK &&
			(r.httpResponseCode < 200 || r.httpResponseCode > 299) {
			r.status = httpResponseCodeToStatus(r.httpResponseCode)
		}
	}

	r.completeCallback(r.status, r.errorParser.Details())
	e.pool.release(r)
}
