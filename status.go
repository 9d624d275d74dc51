// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
)

// Status is the single result taxonomy for every request. It covers
// preparation errors (detected before dispatch), transport errors,
// HTTP-level errors and server error codes parsed out of response XML.
type Status int

const (
	StatusOK Status = iota

	StatusInternalError
	StatusOutOfMemory
	StatusInvalidURI
	StatusFailedToInitializeRequest

	// Bucket name validation failures.
	StatusInvalidBucketNameTooLong
	StatusInvalidBucketNameTooShort
	StatusInvalidBucketNameFirstCharacter
	StatusInvalidBucketNameCharacter
	StatusInvalidBucketNameCharacterSequence
	StatusInvalidBucketNameDotQuadNotation

	// Preparation overflow / bad input failures.
	StatusUriTooLong
	StatusKeyTooLong
	StatusQueryParamsTooLong
	StatusHeadersTooLong
	StatusMetaDataHeadersTooLong
	StatusBadMetaData
	StatusBadCacheControl
	StatusCacheControlTooLong
	StatusBadContentType
	StatusContentTypeTooLong
	StatusBadMD5
	StatusMD5TooLong
	StatusBadContentDispositionFilename
	StatusContentDispositionFilenameTooLong
	StatusBadContentEncoding
	StatusContentEncodingTooLong
	StatusBadIfMatchETag
	StatusIfMatchETagTooLong
	StatusBadIfNotMatchETag
	StatusIfNotMatchETagTooLong

	// Transport failures.
	StatusNameLookupError
	StatusFailedToConnect
	StatusConnectionFailed
	StatusServerFailedVerification
	StatusAbortedByCallback

	// Server error codes forwarded through the error parser.
	StatusErrorAccessDenied
	StatusErrorBucketAlreadyExists
	StatusErrorBucketAlreadyOwnedByYou
	StatusErrorBucketNotEmpty
	StatusErrorEntityTooSmall
	StatusErrorEntityTooLarge
	StatusErrorIncompleteBody
	StatusErrorInternalError
	StatusErrorInvalidAccessKeyId
	StatusErrorInvalidArgument
	StatusErrorInvalidBucketName
	StatusErrorInvalidRange
	StatusErrorMalformedXML
	StatusErrorMissingContentLength
	StatusErrorNoSuchBucket
	StatusErrorNoSuchKey
	StatusErrorPermanentRedirect
	StatusErrorPreconditionFailed
	StatusErrorRequestTimeout
	StatusErrorRequestTimeTooSkewed
	StatusErrorSignatureDoesNotMatch
	StatusErrorSlowDown
	StatusErrorNotImplemented
	StatusErrorMethodNotAllowed
	StatusXmlParseFailure

	// HTTP response codes without parsed error XML.
	StatusHttpErrorMovedTemporarily
	StatusHttpErrorBadRequest
	StatusHttpErrorForbidden
	StatusHttpErrorNotFound
	StatusHttpErrorConflict
	StatusHttpErrorUnknown
)

var statusNames = map[Status]string{
	StatusOK:                        "OK",
	StatusInternalError:             "InternalError",
	StatusOutOfMemory:               "OutOfMemory",
	StatusInvalidURI:                "InvalidURI",
	StatusFailedToInitializeRequest: "FailedToInitializeRequest",

	StatusInvalidBucketNameTooLong:           "InvalidBucketNameTooLong",
	StatusInvalidBucketNameTooShort:          "InvalidBucketNameTooShort",
	StatusInvalidBucketNameFirstCharacter:    "InvalidBucketNameFirstCharacter",
	StatusInvalidBucketNameCharacter:         "InvalidBucketNameCharacter",
	StatusInvalidBucketNameCharacterSequence: "InvalidBucketNameCharacterSequence",
	StatusInvalidBucketNameDotQuadNotation:   "InvalidBucketNameDotQuadNotation",

	StatusUriTooLong:                        "UriTooLong",
	StatusKeyTooLong:                        "KeyTooLong",
	StatusQueryParamsTooLong:                "QueryParamsTooLong",
	StatusHeadersTooLong:                    "HeadersTooLong",
	StatusMetaDataHeadersTooLong:            "MetaDataHeadersTooLong",
	StatusBadMetaData:                       "BadMetaData",
	StatusBadCacheControl:                   "BadCacheControl",
	StatusCacheControlTooLong:               "CacheControlTooLong",
	StatusBadContentType:                    "BadContentType",
	StatusContentTypeTooLong:                "ContentTypeTooLong",
	StatusBadMD5:                            "BadMD5",
	StatusMD5TooLong:                        "MD5TooLong",
	StatusBadContentDispositionFilename:     "BadContentDispositionFilename",
	StatusContentDispositionFilenameTooLong: "ContentDispositionFilenameTooLong",
	StatusBadContentEncoding:                "BadContentEncoding",
	StatusContentEncodingTooLong:            "ContentEncodingTooLong",
	StatusBadIfMatchETag:                    "BadIfMatchETag",
	StatusIfMatchETagTooLong:                "IfMatchETagTooLong",
	StatusBadIfNotMatchETag:                 "BadIfNotMatchETag",
	StatusIfNotMatchETagTooLong:             "IfNotMatchETagTooLong",

	StatusNameLookupError:          "NameLookupError",
	StatusFailedToConnect:          "FailedToConnect",
	StatusConnectionFailed:         "ConnectionFailed",
	StatusServerFailedVerification: "ServerFailedVerification",
	StatusAbortedByCallback:        "AbortedByCallback",

	StatusErrorAccessDenied:            "AccessDenied",
	StatusErrorBucketAlreadyExists:     "BucketAlreadyExists",
	StatusErrorBucketAlreadyOwnedByYou: "BucketAlreadyOwnedByYou",
	StatusErrorBucketNotEmpty:          "BucketNotEmpty",
	StatusErrorEntityTooSmall:          "EntityTooSmall",
	StatusErrorEntityTooLarge:          "EntityTooLarge",
	StatusErrorIncompleteBody:          "IncompleteBody",
	StatusErrorInternalError:           "ErrorInternalError",
	StatusErrorInvalidAccessKeyId:      "InvalidAccessKeyId",
	StatusErrorInvalidArgument:         "InvalidArgument",
	StatusErrorInvalidBucketName:       "InvalidBucketName",
	StatusErrorInvalidRange:            "InvalidRange",
	StatusErrorMalformedXML:            "MalformedXML",
	StatusErrorMissingContentLength:    "MissingContentLength",
	StatusErrorNoSuchBucket:            "NoSuchBucket",
	StatusErrorNoSuchKey:               "NoSuchKey",
	StatusErrorPermanentRedirect:       "PermanentRedirect",
	StatusErrorPreconditionFailed:      "PreconditionFailed",
	StatusErrorRequestTimeout:          "RequestTimeout",
	StatusErrorRequestTimeTooSkewed:    "RequestTimeTooSkewed",
	StatusErrorSignatureDoesNotMatch:   "SignatureDoesNotMatch",
	StatusErrorSlowDown:                "SlowDown",
	StatusErrorNotImplemented:          "NotImplemented",
	StatusErrorMethodNotAllowed:        "MethodNotAllowed",
	StatusXmlParseFailure:              "XmlParseFailure",

	StatusHttpErrorMovedTemporarily: "HttpErrorMovedTemporarily",
	StatusHttpErrorBadRequest:       "HttpErrorBadRequest",
	StatusHttpErrorForbidden:        "HttpErrorForbidden",
	StatusHttpErrorNotFound:         "HttpErrorNotFound",
	StatusHttpErrorConflict:         "HttpErrorConflict",
	StatusHttpErrorUnknown:          "HttpErrorUnknown",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// httpResponseCodeToStatus maps a non-2xx HTTP response code to a status,
// used only when no error XML was parsed out of the response body.
func httpResponseCodeToStatus(code int) Status {
	switch code {
	case 0:
		// The request never got any HTTP response headers at all.
		return StatusConnectionFailed
	case 100:
		return StatusOK
	case 301:
		return StatusErrorPermanentRedirect
	case 307:
		return StatusHttpErrorMovedTemporarily
	case 400:
		return StatusHttpErrorBadRequest
	case 403:
		return StatusHttpErrorForbidden
	case 404:
		return StatusHttpErrorNotFound
	case 405:
		return StatusErrorMethodNotAllowed
	case 409:
		return StatusHttpErrorConflict
	case 411:
		return StatusErrorMissingContentLength
	case 412:
		return StatusErrorPreconditionFailed
	case 416:
		return StatusErrorInvalidRange
	case 500:
		return StatusErrorInternalError
	case 501:
		return StatusErrorNotImplemented
	case 503:
		return StatusErrorSlowDown
	default:
		return StatusHttpErrorUnknown
	}
}

// transportErrorToStatus classifies an error returned by the HTTP client
// into the status taxonomy.
func transportErrorToStatus(err error) Status {
	if err == nil {
		return StatusOK
	}

	// Unwrap the url.Error the client wraps around everything.
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	if errors.Is(err, errAbortedByCallback) {
		return StatusAbortedByCallback
	}
	if errors.Is(err, errTransferStalled) {
		return StatusConnectionFailed
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return StatusNameLookupError
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return StatusServerFailedVerification
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return StatusServerFailedVerification
	}
	var unkErr x509.UnknownAuthorityError
	if errors.As(err, &unkErr) {
		return StatusServerFailedVerification
	}
	var invErr x509.CertificateInvalidError
	if errors.As(err, &invErr) {
		return StatusServerFailedVerification
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if opErr.Timeout() {
			return StatusConnectionFailed
		}
		return StatusFailedToConnect
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return StatusConnectionFailed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusConnectionFailed
	}

	// A short body is left to the error parser to refine.
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return StatusOK
	}

	return StatusInternalError
}
