// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// maxPresignExpires is the largest expiration S3 accepts: the number of
// seconds representable by a signed 32-bit integer.
const maxPresignExpires = int64(1)<<31 - 1

// GenerateAuthenticatedQueryString produces a V2 presigned GET URL for
// the given key. expires is an epoch time clamped to [0, 2^31-1];
// negative values mean "no bound" and clamp to the maximum.
func (e *Engine) GenerateAuthenticatedQueryString(bc *BucketContext, key string, expires int64, subResource string) (string, Status) {
	if expires < 0 || expires > maxPresignExpires {
		expires = maxPresignExpires
	}

	if len(key) > maxKeySize {
		return "", StatusUriTooLong
	}
	urlEncodedKey := encodePath(key)

	canonicalizedResource := canonicalizeResource(bc.BucketName, subResource, urlEncodedKey)

	buf := newAppendBuffer(signBufferSize)
	buf.appendString("GET\n")
	buf.appendString("\n") // Content-MD5
	buf.appendString("\n") // Content-Type
	buf.appendString(strconv.FormatInt(expires, 10))
	buf.appendByte('\n')
	buf.appendString(canonicalizedResource)
	if buf.Overflowed() {
		return "", StatusUriTooLong
	}

	mac := makeHMacSHA1([]byte(bc.SecretAccessKey), []byte(buf.String()))
	signature := url.QueryEscape(base64.StdEncoding.EncodeToString(mac))

	queryParams := "AWSAccessKeyId=" + bc.AccessKeyID +
		"&Expires=" + strconv.FormatInt(expires, 10) +
		"&Signature=" + signature

	return composeURI(bc, e.defaultHostName, urlEncodedKey, subResource, queryParams)
}

// PresignedInput is passed to GeneratePresignedURLV4 as a parameter.
type PresignedInput struct {
	Bucket        string
	ObjectKey     string
	Method        string
	Timestamp     time.Time
	ExtraHeaders  map[string]string
	ExpirySeconds int
}

// GeneratePresignedURLV4 creates a V4 presigned URL that authenticates
// through query parameters.
// (https://docs.aws.amazon.com/AmazonS3/latest/API/sigv4-query-string-auth.html)
func (e *Engine) GeneratePresignedURLV4(bc *BucketContext, in PresignedInput) string {
	var (
		nowTime = in.Timestamp.UTC()
		amzdate = nowTime.Format(iso8601TimeFormat)
		scope   = credentialScope(nowTime.Format(shortTimeFormat), e.region)
		cred    = bc.AccessKeyID + "/" + scope
		expiry  = strconv.Itoa(in.ExpirySeconds)
	)

	protocol := "https://"
	if bc.Protocol == ProtocolHTTP {
		protocol = "http://"
	}
	hostName := bc.HostName
	if hostName == "" {
		hostName = e.defaultHostName
	}
	host := fmt.Sprintf("%s.%s", in.Bucket, hostName)

	// The host is always a signed header.
	signedHeaders := map[string]string{"host": host}
	for k, v := range in.ExtraHeaders {
		signedHeaders[strings.ToLower(k)] = v
	}

	queryString := map[string]string{
		"X-Amz-Algorithm":  algorithmV4,
		"X-Amz-Credential": cred,
		"X-Amz-Date":       amzdate,
		"X-Amz-Expires":    expiry,
	}
	if bc.SecurityToken != "" {
		queryString["X-Amz-Security-Token"] = bc.SecurityToken
	}

	sortedQS := make([]string, 0, len(queryString))
	for name := range queryString {
		sortedQS = append(sortedQS, name)
	}
	sort.Strings(sortedQS)

	sortedSH := make([]string, 0, len(signedHeaders))
	for name := range signedHeaders {
		sortedSH = append(sortedSH, name)
	}
	sort.Strings(sortedSH)

	signedHeadersList := strings.Join(sortedSH, ";")

	// Canonical request.
	var c strings.Builder
	fmt.Fprintf(&c, "%s\n", in.Method)
	fmt.Fprintf(&c, "/%s\n", encodePath(in.ObjectKey))
	for _, k := range sortedQS {
		fmt.Fprintf(&c, "%s=%s&", url.QueryEscape(k), url.QueryEscape(queryString[k]))
	}
	fmt.Fprintf(&c, "X-Amz-SignedHeaders=%s\n", url.QueryEscape(signedHeadersList))
	for _, k := range sortedSH {
		fmt.Fprintf(&c, "%s:%s\n", k, strings.TrimSpace(signedHeaders[k]))
	}
	fmt.Fprintf(&c, "\n%s\n%s", signedHeadersList, unsignedPayload)

	// String to sign.
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n%s\n", algorithmV4, amzdate, scope)
	hexBuf := newAppendBuffer(64)
	hexBuf.appendHex(makeSHA256([]byte(c.String())))
	b.WriteString(hexBuf.String())

	sigKey := signKeys(bc.SecretAccessKey, e.region, nowTime.Format(shortTimeFormat))
	sigBuf := newAppendBuffer(64)
	sigBuf.appendHex(makeHMac(sigKey, []byte(b.String())))
	signature := sigBuf.String()

	// Final URL.
	var out strings.Builder
	fmt.Fprintf(&out, "%s%s/%s?", protocol, host, encodePath(in.ObjectKey))
	for _, k := range sortedQS {
		fmt.Fprintf(&out, "%s=%s&", url.QueryEscape(k), url.QueryEscape(queryString[k]))
	}
	fmt.Fprintf(&out, "X-Amz-SignedHeaders=%s", url.QueryEscape(signedHeadersList))
	fmt.Fprintf(&out, "&X-Amz-Signature=%s", signature)

	return out.String()
}
