// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Buffer caps, sized after the limits the wire formats impose.
const (
	maxMetaDataCount = 2048
	maxKeySize       = 1024
	maxHostNameSize  = 255

	urlEncodedKeySize           = maxKeySize * 3
	compactedMetaDataBufferSize = maxMetaDataCount * len("x-amz-meta-n: v")
	amzHeadersRawSize           = compactedMetaDataBufferSize + 256 + 4096
	canonicalResourceSize       = 1 + maxHostNameSize + 1 + urlEncodedKeySize + 1 + 256 + 1
	standardHeaderSize          = 128
	maxURISize                  = urlEncodedKeySize + 1024
	canonicalRequestSize        = 20480
	signBufferSize              = 17 + 129 + 129 + 1 + amzHeadersRawSize + canonicalResourceSize
)

const (
	metaHeaderPrefix  = "x-amz-meta-"
	taggingDirective  = "s3-tagging"
	taggingHeaderName = "x-amz-tagging"
	unsignedPayload   = "UNSIGNED-PAYLOAD"

	iso8601TimeFormat = "20060102T150405Z"
	expiresTimeFormat = "Mon, 02 Jan 2006 15:04:05 UTC"
)

// requestComputedValues is the per-request scratch space: every composed
// header string, the encoded key, the canonical strings and the signing
// inputs. It lives for a single Perform call.
type requestComputedValues struct {
	// All x-amz-* headers in normalized "name: value" form, lowercase
	// names, in generation order.
	amzHeaders []string
	amzSize    int

	urlEncodedKey string

	canonicalizedAmzHeaders string
	canonicalizedResource   string

	// ISO-8601 timestamp, V4 only.
	timestamp string

	// Semicolon-joined signed header names, V4 only.
	signedHeaders string

	// Payload hash: a precomputed SHA-256 hex digest or UNSIGNED-PAYLOAD.
	payloadHash string

	hostHeader               string
	cacheControlHeader       string
	contentTypeHeader        string
	md5Header                string
	contentDispositionHeader string
	contentEncodingHeader    string
	expiresHeader            string
	ifModifiedSinceHeader    string
	ifUnmodifiedSinceHeader  string
	ifMatchHeader            string
	ifNoneMatchHeader        string
	rangeHeader              string
	authorizationHeader      string

	// Raw trimmed values carried alongside the formatted headers so the
	// V2 signer does not re-parse its own output.
	md5Value         string
	contentTypeValue string
}

// appendAmzHeader normalizes and stores one x-amz-* line, enforcing the
// aggregate size cap. Trailing spaces are stripped; the name is already
// expected lowercase.
func (v *requestComputedValues) appendAmzHeader(name, value string) Status {
	line := strings.TrimRight(name+": "+value, " ")
	v.amzSize += len(line) + 1
	if v.amzSize > amzHeadersRawSize || len(v.amzHeaders) >= maxMetaDataCount+2 {
		return StatusMetaDataHeadersTooLong
	}
	v.amzHeaders = append(v.amzHeaders, line)
	return StatusOK
}

func lowerASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// composeAmzHeaders generates every x-amz-* header for the request: user
// metadata, canned ACL, server-side encryption, the date header (RFC 1123
// under V2, ISO-8601 under V4), the V4 content hash, copy-source headers
// and the security token.
func composeAmzHeaders(params *RequestParams, sigVersion SignatureVersion, now time.Time, v *requestComputedValues) Status {
	props := params.PutProperties

	if props != nil {
		for _, md := range props.MetaData {
			var name string
			if md.Name == taggingDirective {
				name = taggingHeaderName
			} else {
				name = metaHeaderPrefix + lowerASCII(md.Name)
			}
			if len(name) > standardHeaderSize {
				return StatusMetaDataHeadersTooLong
			}
			if st := v.appendAmzHeader(name, md.Value); st != StatusOK {
				return st
			}
		}

		var acl string
		switch props.CannedACL {
		case CannedACLPublicRead:
			acl = "public-read"
		case CannedACLPublicReadWrite:
			acl = "public-read-write"
		case CannedACLAuthenticatedRead:
			acl = "authenticated-read"
		}
		if acl != "" {
			if st := v.appendAmzHeader("x-amz-acl", acl); st != StatusOK {
				return st
			}
		}

		if props.UseServerSideEncryption {
			if st := v.appendAmzHeader("x-amz-server-side-encryption", "AES256"); st != StatusOK {
				return st
			}
		}
	}

	now = now.UTC()
	var date string
	if sigVersion == SignatureV2 {
		date = now.Format("Mon, 02 Jan 2006 15:04:05 GMT")
	} else {
		date = now.Format(iso8601TimeFormat)
		v.timestamp = date
	}
	if st := v.appendAmzHeader("x-amz-date", date); st != StatusOK {
		return st
	}

	if sigVersion == SignatureV4 {
		v.payloadHash = unsignedPayload
		if props != nil && props.PayloadSHA256 != "" {
			v.payloadHash = props.PayloadSHA256
		}
		if st := v.appendAmzHeader("x-amz-content-sha256", v.payloadHash); st != StatusOK {
			return st
		}
	}

	if params.HTTPRequestType == HTTPRequestTypeCOPY {
		if params.CopySourceBucketName != "" && params.CopySourceKey != "" {
			src := "/" + params.CopySourceBucketName + "/" + params.CopySourceKey
			if st := v.appendAmzHeader("x-amz-copy-source", src); st != StatusOK {
				return st
			}
		}
		if params.ByteCount > 0 {
			r := fmt.Sprintf("bytes=%d-%d", params.StartByte, params.StartByte+params.ByteCount)
			if st := v.appendAmzHeader("x-amz-copy-source-range", r); st != StatusOK {
				return st
			}
		}
		if props != nil {
			if st := v.appendAmzHeader("x-amz-metadata-directive", "REPLACE"); st != StatusOK {
				return st
			}
		}
	}

	if params.BucketContext.SecurityToken != "" {
		if st := v.appendAmzHeader("x-amz-security-token", params.BucketContext.SecurityToken); st != StatusOK {
			return st
		}
	}

	return StatusOK
}

// standardHeader left-trims blanks from val and formats "name: val" with
// trailing blanks removed. An all-blank value yields badStatus; an
// overflowing one yields longStatus.
func standardHeader(name, val string, badStatus, longStatus Status) (string, string, Status) {
	if val == "" {
		return "", "", StatusOK
	}
	i := 0
	for i < len(val) && isBlank(val[i]) {
		i++
	}
	val = val[i:]
	if val == "" {
		return "", "", badStatus
	}
	header := strings.TrimRight(name+": "+val, " \t")
	if len(header) >= standardHeaderSize {
		return "", "", longStatus
	}
	return header, strings.TrimRight(val, " \t"), StatusOK
}

// composeStandardHeaders generates the Host, content-*, conditional-GET
// and Range headers. Empty inputs produce empty header strings which are
// skipped when the outbound list is assembled.
func (e *Engine) composeStandardHeaders(params *RequestParams, v *requestComputedValues) Status {
	bc := &params.BucketContext
	props := params.PutProperties
	conds := params.GetConditions

	// Host selection.
	switch {
	case bc.URIStyle == URIStyleVirtualHost:
		host := bc.HostName
		if host == "" {
			host = e.defaultHostName
		}
		h := "Host: " + bc.BucketName + "." + host
		if len(h) >= standardHeaderSize {
			return StatusUriTooLong
		}
		v.hostHeader = strings.TrimRight(h, " \t")
	case bc.HostHeaderValue != "":
		h := "Host: " + bc.HostHeaderValue
		if len(h) >= standardHeaderSize {
			return StatusUriTooLong
		}
		v.hostHeader = strings.TrimRight(h, " \t")
	case e.signatureVersion == SignatureV4:
		host := bc.HostName
		if host == "" {
			host = e.defaultHostName
		}
		v.hostHeader = "Host: " + host
	}

	var st Status

	if props != nil {
		if v.cacheControlHeader, _, st = standardHeader("Cache-Control", props.CacheControl,
			StatusBadCacheControl, StatusCacheControlTooLong); st != StatusOK {
			return st
		}
		if v.contentTypeHeader, v.contentTypeValue, st = standardHeader("Content-Type", props.ContentType,
			StatusBadContentType, StatusContentTypeTooLong); st != StatusOK {
			return st
		}
		if v.md5Header, v.md5Value, st = standardHeader("Content-MD5", props.MD5,
			StatusBadMD5, StatusMD5TooLong); st != StatusOK {
			return st
		}
		if props.ContentDispositionFilename != "" {
			name := strings.TrimLeft(props.ContentDispositionFilename, " \t")
			if name == "" {
				return StatusBadContentDispositionFilename
			}
			h := `Content-Disposition: attachment; filename="` + name + `"`
			if len(h) >= standardHeaderSize {
				return StatusContentDispositionFilenameTooLong
			}
			v.contentDispositionHeader = strings.TrimRight(h, " \t")
		}
		if v.contentEncodingHeader, _, st = standardHeader("Content-Encoding", props.ContentEncoding,
			StatusBadContentEncoding, StatusContentEncodingTooLong); st != StatusOK {
			return st
		}
		if props.Expires >= 0 {
			v.expiresHeader = "Expires: " +
				time.Unix(props.Expires, 0).UTC().Format(expiresTimeFormat)
		}
	}

	if conds != nil {
		if conds.IfModifiedSince >= 0 {
			v.ifModifiedSinceHeader = "If-Modified-Since: " +
				time.Unix(conds.IfModifiedSince, 0).UTC().Format(expiresTimeFormat)
		}
		if conds.IfNotModifiedSince >= 0 {
			v.ifUnmodifiedSinceHeader = "If-Unmodified-Since: " +
				time.Unix(conds.IfNotModifiedSince, 0).UTC().Format(expiresTimeFormat)
		}
		if v.ifMatchHeader, _, st = standardHeader("If-Match", conds.IfMatchETag,
			StatusBadIfMatchETag, StatusIfMatchETagTooLong); st != StatusOK {
			return st
		}
		if v.ifNoneMatchHeader, _, st = standardHeader("If-None-Match", conds.IfNotMatchETag,
			StatusBadIfNotMatchETag, StatusIfNotMatchETagTooLong); st != StatusOK {
			return st
		}
	}

	if params.StartByte > 0 || params.ByteCount > 0 {
		if params.ByteCount > 0 {
			v.rangeHeader = "Range: bytes=" +
				strconv.FormatUint(params.StartByte, 10) + "-" +
				strconv.FormatUint(params.StartByte+params.ByteCount-1, 10)
		} else {
			v.rangeHeader = "Range: bytes=" +
				strconv.FormatUint(params.StartByte, 10) + "-"
		}
	}

	return StatusOK
}

// encodeKey percent-encodes the object key for use in the URI and the
// canonical resource.
func encodeKey(params *RequestParams, v *requestComputedValues) Status {
	if len(params.Key) > maxKeySize {
		return StatusUriTooLong
	}
	v.urlEncodedKey = encodePath(params.Key)
	if len(v.urlEncodedKey) > urlEncodedKeySize {
		return StatusUriTooLong
	}
	return StatusOK
}
