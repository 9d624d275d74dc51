// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import "strings"

// HTTPRequestType selects the verb for a request. COPY is carried as a
// distinct type because it changes header composition, but goes out on
// the wire as PUT.
type HTTPRequestType int

const (
	HTTPRequestTypeGET HTTPRequestType = iota
	HTTPRequestTypeHEAD
	HTTPRequestTypePUT
	HTTPRequestTypePOST
	HTTPRequestTypeDELETE
	HTTPRequestTypeCOPY
)

// Verb returns the HTTP verb string sent on the wire.
func (t HTTPRequestType) Verb() string {
	switch t {
	case HTTPRequestTypePOST:
		return "POST"
	case HTTPRequestTypeGET:
		return "GET"
	case HTTPRequestTypeHEAD:
		return "HEAD"
	case HTTPRequestTypePUT, HTTPRequestTypeCOPY:
		return "PUT"
	default:
		return "DELETE"
	}
}

// Protocol selects the URL scheme.
type Protocol int

const (
	ProtocolHTTPS Protocol = iota
	ProtocolHTTP
)

// URIStyle selects between virtual-host and path style addressing.
type URIStyle int

const (
	URIStyleVirtualHost URIStyle = iota
	URIStylePath
)

// CannedACL is the set of canned access control lists S3 understands.
type CannedACL int

const (
	CannedACLPrivate CannedACL = iota
	CannedACLPublicRead
	CannedACLPublicReadWrite
	CannedACLAuthenticatedRead
)

// SignatureVersion selects the request signing scheme.
type SignatureVersion int

const (
	SignatureV2 SignatureVersion = iota
	SignatureV4
)

// BucketContext identifies the bucket a request operates on, the
// credentials used to sign it, and transport-level options.
type BucketContext struct {
	Protocol Protocol
	URIStyle URIStyle

	// HostName overrides the engine's default host when non-empty.
	HostName string

	// HostHeaderValue forces the Host header verbatim. When set together
	// with peer verification, hostname checking switches to the engine's
	// own SAN/CN matching against this value.
	HostHeaderValue string

	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	SecurityToken   string

	// VerboseLogging enables per-request debug logging.
	VerboseLogging bool

	// ConnectToFullySpecified is a "HOST:PORT:CONNECT-HOST:CONNECT-PORT"
	// override; the connection is made to the connect side while the URL
	// and Host header keep the original.
	ConnectToFullySpecified string

	// UnboundTLSVersion permits TLS versions above 1.2. When false the
	// connection is pinned to exactly 1.2.
	UnboundTLSVersion bool
}

// NameValue is a single user metadata entry.
type NameValue struct {
	Name  string
	Value string
}

// PutProperties carries the optional properties of a PUT (or COPY with
// metadata replacement).
type PutProperties struct {
	ContentType string

	// MD5 is the Content-MD5 value. Under V4 signing a precomputed
	// payload SHA-256 hex digest may be carried in PayloadSHA256; when
	// empty the payload goes unsigned (UNSIGNED-PAYLOAD).
	MD5           string
	PayloadSHA256 string

	CacheControl               string
	ContentDispositionFilename string
	ContentEncoding            string

	// Expires is epoch seconds; -1 means unset.
	Expires int64

	CannedACL               CannedACL
	UseServerSideEncryption bool

	MetaData []NameValue
}

// GetConditions carries conditional-GET inputs. The times are epoch
// seconds with -1 meaning unset.
type GetConditions struct {
	IfModifiedSince    int64
	IfNotModifiedSince int64
	IfMatchETag        string
	IfNotMatchETag     string
}

// ResponseProperties is handed to the properties callback once response
// headers are in for a 2xx response.
type ResponseProperties struct {
	RequestID                string
	RequestID2               string
	ContentType              string
	ContentLength            int64
	Server                   string
	ETag                     string
	LastModified             string
	UsesServerSideEncryption bool
	MetaData                 []NameValue
}

// ErrorDetails is the parsed form of a server error XML document.
type ErrorDetails struct {
	Code      string
	Message   string
	Resource  string
	RequestID string
	HostID    string
}

// ToS3Callback supplies outbound payload bytes. It fills at most
// len(buf) bytes and returns the count written; a negative return aborts
// the transfer.
type ToS3Callback func(buf []byte) int

// FromS3Callback receives inbound payload bytes. Any status other than
// StatusOK aborts the transfer.
type FromS3Callback func(data []byte) Status

// PropertiesCallback is invoked once with the parsed response headers
// when the response status is 2xx.
type PropertiesCallback func(props *ResponseProperties) Status

// CompleteCallback is invoked exactly once per request, last. details is
// non-nil only when a server error document was parsed.
type CompleteCallback func(status Status, details *ErrorDetails)

// RequestParams fully describes one request. It is not modified during a
// Perform call.
type RequestParams struct {
	HTTPRequestType HTTPRequestType
	BucketContext   BucketContext

	Key         string
	SubResource string
	QueryParams string

	CopySourceBucketName string
	CopySourceKey        string

	// StartByte/ByteCount select a range; ByteCount 0 means "to the end"
	// when StartByte > 0 and "everything" when both are zero.
	StartByte uint64
	ByteCount uint64

	PutProperties *PutProperties
	GetConditions *GetConditions

	ToS3Callback          ToS3Callback
	ToS3CallbackTotalSize uint64
	FromS3Callback        FromS3Callback
	PropertiesCallback    PropertiesCallback
	CompleteCallback      CompleteCallback
}

// validateBucketName applies the S3 bucket naming rules. Virtual-host
// style is held to the strict DNS-compatible rules; path style permits
// the legacy looser form.
func validateBucketName(name string, style URIStyle) Status {
	if name == "" {
		return StatusOK
	}

	if style == URIStyleVirtualHost {
		if len(name) > 63 {
			return StatusInvalidBucketNameTooLong
		}
	} else if len(name) > 255 {
		return StatusInvalidBucketNameTooLong
	}
	if len(name) < 3 {
		return StatusInvalidBucketNameTooShort
	}

	first := name[0]
	if !(first >= 'a' && first <= 'z') && !(first >= '0' && first <= '9') {
		if style == URIStyleVirtualHost || !(first >= 'A' && first <= 'Z') {
			return StatusInvalidBucketNameFirstCharacter
		}
	}

	allDigitsAndDots := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.':
			if i+1 < len(name) && (name[i+1] == '-' || name[i+1] == '.') {
				return StatusInvalidBucketNameCharacterSequence
			}
		case c >= 'A' && c <= 'Z', c == '_':
			if style == URIStyleVirtualHost {
				return StatusInvalidBucketNameCharacter
			}
		default:
			return StatusInvalidBucketNameCharacter
		}
		if !(c >= '0' && c <= '9') && c != '.' {
			allDigitsAndDots = false
		}
	}
	if name[len(name)-1] == '-' || name[len(name)-1] == '.' {
		return StatusInvalidBucketNameCharacterSequence
	}

	// Reject IP-address-shaped names: they are ambiguous in a URL.
	if allDigitsAndDots && strings.Count(name, ".") == 3 {
		return StatusInvalidBucketNameDotQuadNotation
	}

	return StatusOK
}
