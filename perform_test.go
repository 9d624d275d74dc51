// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers every callback invocation of one request.
type collector struct {
	properties      []*ResponseProperties
	body            bytes.Buffer
	bodyAfterProps  bool
	completeStatus  Status
	completeDetails *ErrorDetails
	completeCount   int
}

func (c *collector) propertiesCallback(props *ResponseProperties) Status {
	c.properties = append(c.properties, props)
	return StatusOK
}

func (c *collector) fromS3Callback(data []byte) Status {
	if len(c.properties) > 0 {
		c.bodyAfterProps = true
	}
	c.body.Write(data)
	return StatusOK
}

func (c *collector) completeCallback(status Status, details *ErrorDetails) {
	c.completeStatus = status
	c.completeDetails = details
	c.completeCount++
}

func testBucketContext(t *testing.T, srvURL string) BucketContext {
	t.Helper()
	u, err := url.Parse(srvURL)
	require.NoError(t, err)
	return BucketContext{
		Protocol:   ProtocolHTTP,
		URIStyle:   URIStylePath,
		HostName:   u.Host,
		BucketName: "testbucket",
	}
}

func TestPerformGET(t *testing.T) {
	var gotAuth, gotDate, gotSHA, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotDate = r.Header.Get("x-amz-date")
		gotSHA = r.Header.Get("x-amz-content-sha256")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("x-amz-request-id", "REQID")
		w.Header().Set("x-amz-meta-color", "blue")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "hello world")
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:    HTTPRequestTypeGET,
		BucketContext:      testBucketContext(t, srv.URL),
		Key:                "some/key",
		FromS3Callback:     c.fromS3Callback,
		PropertiesCallback: c.propertiesCallback,
		CompleteCallback:   c.completeCallback,
	}, nil)

	assert.Equal(t, 1, c.completeCount)
	assert.Equal(t, StatusOK, c.completeStatus)
	assert.Equal(t, "hello world", c.body.String())

	require.Len(t, c.properties, 1)
	assert.True(t, c.bodyAfterProps, "properties callback must precede body bytes")
	assert.Equal(t, `"abc123"`, c.properties[0].ETag)
	assert.Equal(t, "REQID", c.properties[0].RequestID)
	require.Len(t, c.properties[0].MetaData, 1)
	assert.Equal(t, NameValue{Name: "color", Value: "blue"}, c.properties[0].MetaData[0])

	assert.True(t, strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential="), "got %q", gotAuth)
	assert.Contains(t, gotAuth, "SignedHeaders=")
	assert.Contains(t, gotAuth, "Signature=")
	assert.NotEmpty(t, gotDate)
	assert.Equal(t, unsignedPayload, gotSHA)
	assert.Contains(t, gotUA, "s3req")
}

func TestPerformGETV2Authorization(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, false)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:  HTTPRequestTypeGET,
		BucketContext:    testBucketContext(t, srv.URL),
		Key:              "k",
		CompleteCallback: c.completeCallback,
	}, nil)

	assert.Equal(t, StatusOK, c.completeStatus)
	assert.True(t, strings.HasPrefix(gotAuth, "AWS "), "got %q", gotAuth)
}

func TestPerformGETBodyWithoutCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "unexpected body")
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:  HTTPRequestTypeGET,
		BucketContext:    testBucketContext(t, srv.URL),
		Key:              "k",
		CompleteCallback: c.completeCallback,
	}, nil)

	assert.Equal(t, StatusInternalError, c.completeStatus)
}

func TestPerformPUTStreaming(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096) // 64 KiB

	var received []byte
	var gotContentLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentLength = r.ContentLength
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var sent int
	overAsked := false
	toS3 := func(buf []byte) int {
		if len(buf) > len(payload)-sent {
			overAsked = true
		}
		n := copy(buf, payload[sent:])
		sent += n
		return n
	}

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:       HTTPRequestTypePUT,
		BucketContext:         testBucketContext(t, srv.URL),
		Key:                   "upload/key",
		PutProperties:         &PutProperties{ContentType: "application/octet-stream", Expires: -1},
		ToS3Callback:          toS3,
		ToS3CallbackTotalSize: uint64(len(payload)),
		CompleteCallback:      c.completeCallback,
	}, nil)

	assert.Equal(t, StatusOK, c.completeStatus)
	assert.Equal(t, int64(len(payload)), gotContentLength)
	assert.Equal(t, payload, received)
	assert.Equal(t, len(payload), sent, "body accounting: bytes fed equals total size")
	assert.False(t, overAsked, "engine must never ask for more than the remaining bytes")
}

func TestPerformZeroLengthPUT(t *testing.T) {
	var gotContentLength int64
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentLength = r.ContentLength
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	called := false
	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType: HTTPRequestTypePUT,
		BucketContext:   testBucketContext(t, srv.URL),
		Key:             "empty",
		ToS3Callback: func(buf []byte) int {
			called = true
			return 0
		},
		ToS3CallbackTotalSize: 0,
		CompleteCallback:      c.completeCallback,
	}, nil)

	assert.Equal(t, StatusOK, c.completeStatus)
	assert.Zero(t, gotContentLength)
	assert.Empty(t, gotBody)
	assert.False(t, called, "zero-length upload must not invoke the read callback")
}

func TestPerformPreconditionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:    HTTPRequestTypeGET,
		BucketContext:      testBucketContext(t, srv.URL),
		Key:                "k",
		PropertiesCallback: c.propertiesCallback,
		CompleteCallback:   c.completeCallback,
	}, nil)

	assert.Equal(t, StatusErrorPreconditionFailed, c.completeStatus)
	assert.Empty(t, c.properties, "no properties callback on non-2xx")
	assert.Equal(t, 1, c.completeCount)
}

func TestPerformServerErrorXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>AccessDenied</Code><Message>Access Denied</Message><RequestId>REQ1</RequestId></Error>`)
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:  HTTPRequestTypeGET,
		BucketContext:    testBucketContext(t, srv.URL),
		Key:              "k",
		CompleteCallback: c.completeCallback,
	}, nil)

	assert.Equal(t, StatusErrorAccessDenied, c.completeStatus)
	require.NotNil(t, c.completeDetails)
	assert.Equal(t, "AccessDenied", c.completeDetails.Code)
	assert.Equal(t, "Access Denied", c.completeDetails.Message)
	assert.Equal(t, "REQ1", c.completeDetails.RequestID)
}

func TestPerformConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:  HTTPRequestTypeGET,
		BucketContext:    testBucketContext(t, addr),
		Key:              "k",
		CompleteCallback: c.completeCallback,
	}, nil)

	assert.Equal(t, StatusFailedToConnect, c.completeStatus)
}

func TestPerformAbortOutbound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType: HTTPRequestTypePUT,
		BucketContext:   testBucketContext(t, srv.URL),
		Key:             "k",
		ToS3Callback: func(buf []byte) int {
			return -1
		},
		ToS3CallbackTotalSize: 1024,
		CompleteCallback:      c.completeCallback,
	}, nil)

	assert.Equal(t, StatusAbortedByCallback, c.completeStatus)
	assert.Equal(t, 1, c.completeCount)
}

func TestPerformAbortInbound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(bytes.Repeat([]byte("x"), 256<<10))
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType: HTTPRequestTypeGET,
		BucketContext:   testBucketContext(t, srv.URL),
		Key:             "k",
		FromS3Callback: func(data []byte) Status {
			return StatusAbortedByCallback
		},
		CompleteCallback: c.completeCallback,
	}, nil)

	assert.Equal(t, StatusAbortedByCallback, c.completeStatus)
	assert.Equal(t, 1, c.completeCount)
}

func TestPerformPreparationFailure(t *testing.T) {
	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType: HTTPRequestTypePUT,
		BucketContext:   BucketContext{URIStyle: URIStylePath, BucketName: "b-1"},
		Key:             "k",
		PutProperties: &PutProperties{
			Expires:  -1,
			MetaData: []NameValue{{Name: "big", Value: strings.Repeat("v", amzHeadersRawSize)}},
		},
		CompleteCallback: c.completeCallback,
	}, nil)

	assert.Equal(t, StatusMetaDataHeadersTooLong, c.completeStatus)
	assert.Nil(t, c.completeDetails)
	assert.Equal(t, 1, c.completeCount)
}

func TestPerformInvalidBucketName(t *testing.T) {
	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:  HTTPRequestTypeGET,
		BucketContext:    BucketContext{URIStyle: URIStyleVirtualHost, BucketName: "xy"},
		CompleteCallback: c.completeCallback,
	}, nil)

	assert.Equal(t, StatusInvalidBucketNameTooShort, c.completeStatus)
}

func TestPerformReusesPooledHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	for i := 0; i < 5; i++ {
		var c collector
		e.Perform(&RequestParams{
			HTTPRequestType:  HTTPRequestTypeGET,
			BucketContext:    testBucketContext(t, srv.URL),
			Key:              "k",
			CompleteCallback: c.completeCallback,
		}, nil)
		require.Equal(t, StatusOK, c.completeStatus)
	}

	assert.Equal(t, 1, e.pool.size(), "sequential requests share one pooled handle")
}

func TestPerformRangeHeaderOnWire(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, true)
	defer e.Close()

	var c collector
	e.Perform(&RequestParams{
		HTTPRequestType:  HTTPRequestTypeGET,
		BucketContext:    testBucketContext(t, srv.URL),
		Key:              "k",
		StartByte:        100,
		CompleteCallback: c.completeCallback,
	}, nil)

	require.Equal(t, StatusOK, c.completeStatus)
	assert.Equal(t, "bytes=100-", gotRange)
}
