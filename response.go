// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"strconv"
	"strings"
)

// ResponseHeadersHandler accumulates response header lines and exposes
// the parsed properties once the headers are complete. Add is called
// once per header with a "name: value" line; Done is called exactly once
// with the HTTP response code, after the last Add and before any body
// byte is dispatched.
type ResponseHeadersHandler interface {
	Add(line string)
	Done(httpResponseCode int)
	Properties() *ResponseProperties
	Reset()
}

// responseHeadersHandler is the default ResponseHeadersHandler.
type responseHeadersHandler struct {
	props ResponseProperties
	done  bool
}

func newResponseHeadersHandler() *responseHeadersHandler {
	return &responseHeadersHandler{}
}

func (h *responseHeadersHandler) Reset() {
	h.props = ResponseProperties{ContentLength: -1}
	h.done = false
}

func (h *responseHeadersHandler) Add(line string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return
	}
	name := strings.ToLower(strings.TrimSpace(line[:idx]))
	value := strings.TrimSpace(line[idx+1:])

	switch name {
	case "content-type":
		h.props.ContentType = value
	case "content-length":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			h.props.ContentLength = n
		}
	case "server":
		h.props.Server = value
	case "etag":
		h.props.ETag = value
	case "last-modified":
		h.props.LastModified = value
	case "x-amz-request-id":
		h.props.RequestID = value
	case "x-amz-id-2":
		h.props.RequestID2 = value
	case "x-amz-server-side-encryption":
		h.props.UsesServerSideEncryption = true
	default:
		if meta, ok := strings.CutPrefix(name, metaHeaderPrefix); ok {
			h.props.MetaData = append(h.props.MetaData, NameValue{Name: meta, Value: value})
		}
	}
}

func (h *responseHeadersHandler) Done(httpResponseCode int) {
	h.done = true
}

func (h *responseHeadersHandler) Properties() *ResponseProperties {
	return &h.props
}
