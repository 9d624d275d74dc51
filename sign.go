// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>
// Copyright (C) 2012 Blake Mizerany
// contains code from: github.com/bmizerany/aws4

package s3req

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
)

const (
	algorithmV4     = "AWS4-HMAC-SHA256"
	serviceName     = "s3"
	shortTimeFormat = "20060102"
)

func makeHMac(key, data []byte) []byte {
	hash := hmac.New(sha256.New, key)
	hash.Write(data)
	return hash.Sum(nil)
}

func makeHMacSHA1(key, data []byte) []byte {
	hash := hmac.New(sha1.New, key)
	hash.Write(data)
	return hash.Sum(nil)
}

func makeSHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// signKeys derives the V4 signing key chain for the given credential
// scope date (YYYYMMDD).
func signKeys(secretKey, region, date string) []byte {
	h := makeHMac([]byte("AWS4"+secretKey), []byte(date))
	h = makeHMac(h, []byte(region))
	h = makeHMac(h, []byte(serviceName))
	return makeHMac(h, []byte("aws4_request"))
}

// composeAuthHeaderV2 builds the V2 Authorization header from the
// computed values. The string-to-sign's date line is intentionally empty
// because x-amz-date supersedes it.
func composeAuthHeaderV2(params *RequestParams, v *requestComputedValues) Status {
	buf := newAppendBuffer(signBufferSize)
	buf.appendString(params.HTTPRequestType.Verb())
	buf.appendByte('\n')
	buf.appendString(v.md5Value)
	buf.appendByte('\n')
	buf.appendString(v.contentTypeValue)
	buf.appendByte('\n')
	buf.appendByte('\n')
	buf.appendString(v.canonicalizedAmzHeaders)
	buf.appendString(v.canonicalizedResource)
	if buf.Overflowed() {
		return StatusHeadersTooLong
	}

	mac := makeHMacSHA1([]byte(params.BucketContext.SecretAccessKey), []byte(buf.String()))
	v.authorizationHeader = "Authorization: AWS " +
		params.BucketContext.AccessKeyID + ":" +
		base64.StdEncoding.EncodeToString(mac)
	return StatusOK
}

// scopeDate returns the YYYYMMDD prefix of the V4 timestamp.
func (v *requestComputedValues) scopeDate() string {
	if len(v.timestamp) < 8 {
		return v.timestamp
	}
	return v.timestamp[:8]
}

// credentialScope is "<YYYYMMDD>/<region>/s3/aws4_request".
func credentialScope(date, region string) string {
	return date + "/" + region + "/" + serviceName + "/aws4_request"
}

// composeAuthHeaderV4 computes the canonical request hash over the final
// outbound header list, assembles the string-to-sign and emits the V4
// Authorization header line.
func composeAuthHeaderV4(params *RequestParams, region, uri string, outbound []string, v *requestComputedValues) (string, Status) {
	reqHash, st := canonicalRequestHash(params.HTTPRequestType.Verb(), uri, outbound, v)
	if st != StatusOK {
		return "", st
	}

	date := v.scopeDate()
	stringToSign := algorithmV4 + "\n" +
		v.timestamp + "\n" +
		credentialScope(date, region) + "\n" +
		reqHash

	key := signKeys(params.BucketContext.SecretAccessKey, region, date)
	sig := makeHMac(key, []byte(stringToSign))

	buf := newAppendBuffer(1024)
	buf.appendString("Authorization: " + algorithmV4 + " Credential=")
	buf.appendString(params.BucketContext.AccessKeyID)
	buf.appendByte('/')
	buf.appendString(credentialScope(date, region))
	buf.appendString(", SignedHeaders=")
	buf.appendString(v.signedHeaders)
	buf.appendString(", Signature=")
	buf.appendHex(sig)
	if buf.Overflowed() {
		return "", StatusHeadersTooLong
	}
	return buf.String(), StatusOK
}
