// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXMLErrorParser(t *testing.T) {
	p := newXMLErrorParser()
	p.Reset()

	doc := `<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>NoSuchKey</Code>
  <Message>The specified key does not exist.</Message>
  <Resource>/mybucket/missing.txt</Resource>
  <RequestId>4442587FB7D0A2F9</RequestId>
</Error>`

	// Feed in two chunks, as the engine would.
	require.Equal(t, StatusOK, p.Add([]byte(doc[:40])))
	require.Equal(t, StatusOK, p.Add([]byte(doc[40:])))

	st := StatusOK
	p.ConvertStatus(&st)
	assert.Equal(t, StatusErrorNoSuchKey, st)

	details := p.Details()
	require.NotNil(t, details)
	assert.Equal(t, "NoSuchKey", details.Code)
	assert.Equal(t, "The specified key does not exist.", details.Message)
	assert.Equal(t, "/mybucket/missing.txt", details.Resource)
	assert.Equal(t, "4442587FB7D0A2F9", details.RequestID)
}

func TestXMLErrorParserUnknownCode(t *testing.T) {
	p := newXMLErrorParser()
	p.Reset()
	p.Add([]byte(`<Error><Code>SomethingNew</Code><Message>m</Message></Error>`))

	// Unknown codes leave the status untouched but keep the details.
	st := StatusHttpErrorForbidden
	p.ConvertStatus(&st)
	assert.Equal(t, StatusHttpErrorForbidden, st)
	require.NotNil(t, p.Details())
	assert.Equal(t, "SomethingNew", p.Details().Code)
}

func TestXMLErrorParserGarbage(t *testing.T) {
	p := newXMLErrorParser()
	p.Reset()
	p.Add([]byte("not xml at all"))

	st := StatusOK
	p.ConvertStatus(&st)
	assert.Equal(t, StatusOK, st)
	assert.Nil(t, p.Details())
}

func TestXMLErrorParserReset(t *testing.T) {
	p := newXMLErrorParser()
	p.Reset()
	p.Add([]byte(`<Error><Code>SlowDown</Code></Error>`))
	require.NotNil(t, p.Details())

	p.Reset()
	assert.Nil(t, p.Details())
	st := StatusOK
	p.ConvertStatus(&st)
	assert.Equal(t, StatusOK, st)
}

func TestResponseHeadersHandler(t *testing.T) {
	h := newResponseHeadersHandler()
	h.Reset()

	h.Add("Content-Type: application/xml")
	h.Add("Content-Length: 42")
	h.Add("ETag: \"deadbeef\"")
	h.Add("Last-Modified: Fri, 24 May 2013 00:00:00 GMT")
	h.Add("Server: AmazonS3")
	h.Add("x-amz-request-id: REQ")
	h.Add("x-amz-id-2: ID2")
	h.Add("x-amz-server-side-encryption: AES256")
	h.Add("x-amz-meta-owner: alice")
	h.Done(200)

	props := h.Properties()
	assert.Equal(t, "application/xml", props.ContentType)
	assert.Equal(t, int64(42), props.ContentLength)
	assert.Equal(t, `"deadbeef"`, props.ETag)
	assert.Equal(t, "Fri, 24 May 2013 00:00:00 GMT", props.LastModified)
	assert.Equal(t, "AmazonS3", props.Server)
	assert.Equal(t, "REQ", props.RequestID)
	assert.Equal(t, "ID2", props.RequestID2)
	assert.True(t, props.UsesServerSideEncryption)
	require.Len(t, props.MetaData, 1)
	assert.Equal(t, NameValue{Name: "owner", Value: "alice"}, props.MetaData[0])
}
