// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"encoding/xml"
	"fmt"
)

// ErrorParser consumes the body of a non-2xx response and converts any
// server error document into a status and detail record.
type ErrorParser interface {
	// Add feeds response body bytes; a non-OK return aborts the read.
	Add(data []byte) Status
	// ConvertStatus replaces *status with the parsed server error code's
	// status, if an error document was successfully parsed.
	ConvertStatus(status *Status)
	// Details returns the parsed error document, or nil.
	Details() *ErrorDetails
	Reset()
}

// s3ErrorDocument is the server error XML shape.
type s3ErrorDocument struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
	HostID    string   `xml:"HostId"`
}

// Error returns a string representation of the parsed error.
func (e s3ErrorDocument) Error() string {
	return fmt.Sprintf("S3 Error: %s - %s", e.Code, e.Message)
}

// errorCodeToStatus maps server error Code strings to statuses.
var errorCodeToStatus = map[string]Status{
	"AccessDenied":            StatusErrorAccessDenied,
	"BucketAlreadyExists":     StatusErrorBucketAlreadyExists,
	"BucketAlreadyOwnedByYou": StatusErrorBucketAlreadyOwnedByYou,
	"BucketNotEmpty":          StatusErrorBucketNotEmpty,
	"EntityTooSmall":          StatusErrorEntityTooSmall,
	"EntityTooLarge":          StatusErrorEntityTooLarge,
	"IncompleteBody":          StatusErrorIncompleteBody,
	"InternalError":           StatusErrorInternalError,
	"InvalidAccessKeyId":      StatusErrorInvalidAccessKeyId,
	"InvalidArgument":         StatusErrorInvalidArgument,
	"InvalidBucketName":       StatusErrorInvalidBucketName,
	"InvalidRange":            StatusErrorInvalidRange,
	"MalformedXML":            StatusErrorMalformedXML,
	"MissingContentLength":    StatusErrorMissingContentLength,
	"NoSuchBucket":            StatusErrorNoSuchBucket,
	"NoSuchKey":               StatusErrorNoSuchKey,
	"PermanentRedirect":       StatusErrorPermanentRedirect,
	"PreconditionFailed":      StatusErrorPreconditionFailed,
	"RequestTimeout":          StatusErrorRequestTimeout,
	"RequestTimeTooSkewed":    StatusErrorRequestTimeTooSkewed,
	"SignatureDoesNotMatch":   StatusErrorSignatureDoesNotMatch,
	"SlowDown":                StatusErrorSlowDown,
	"NotImplemented":          StatusErrorNotImplemented,
	"MethodNotAllowed":        StatusErrorMethodNotAllowed,
	"TemporaryRedirect":       StatusHttpErrorMovedTemporarily,
}

// xmlErrorParser is the default ErrorParser. The body is buffered until
// the request finishes; error documents are small.
type xmlErrorParser struct {
	body    []byte
	details *ErrorDetails
}

func newXMLErrorParser() *xmlErrorParser {
	return &xmlErrorParser{}
}

func (p *xmlErrorParser) Reset() {
	p.body = nil
	p.details = nil
}

func (p *xmlErrorParser) Add(data []byte) Status {
	p.body = append(p.body, data...)
	return StatusOK
}

func (p *xmlErrorParser) parse() {
	if p.details != nil || len(p.body) == 0 {
		return
	}
	var doc s3ErrorDocument
	if err := xml.Unmarshal(p.body, &doc); err != nil {
		return
	}
	p.details = &ErrorDetails{
		Code:      doc.Code,
		Message:   doc.Message,
		Resource:  doc.Resource,
		RequestID: doc.RequestID,
		HostID:    doc.HostID,
	}
}

func (p *xmlErrorParser) ConvertStatus(status *Status) {
	p.parse()
	if p.details == nil {
		return
	}
	if st, ok := errorCodeToStatus[p.details.Code]; ok {
		*status = st
	}
}

func (p *xmlErrorParser) Details() *ErrorDetails {
	p.parse()
	return p.details
}
