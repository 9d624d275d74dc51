// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

// composeURI assembles the request URL: scheme, authority, slash, the
// encoded key, and the optional subresource and query parameters.
//
// Virtual-host style puts the bucket into the authority unless the
// bucket name contains a dot; dotted buckets fall back to the bare host
// (with the Host header forced to bucket.host elsewhere) so that TLS
// hostname validation can still succeed.
func composeURI(bc *BucketContext, defaultHost, urlEncodedKey, subResource, queryParams string) (string, Status) {
	buf := newAppendBuffer(maxURISize)

	if bc.Protocol == ProtocolHTTP {
		buf.appendString("http://")
	} else {
		buf.appendString("https://")
	}

	host := bc.HostName
	if host == "" {
		host = defaultHost
	}

	switch {
	case bc.BucketName != "" && bc.URIStyle == URIStyleVirtualHost:
		if !containsByte(bc.BucketName, '.') {
			buf.appendString(bc.BucketName)
			buf.appendByte('.')
			buf.appendString(host)
		} else {
			buf.appendString(host)
		}
	case bc.BucketName != "":
		buf.appendString(host)
		buf.appendByte('/')
		buf.appendString(bc.BucketName)
	default:
		buf.appendString(host)
	}

	buf.appendByte('/')
	buf.appendString(urlEncodedKey)

	if subResource != "" {
		buf.appendByte('?')
		buf.appendString(subResource)
	}
	if queryParams != "" {
		if subResource != "" {
			buf.appendByte('&')
		} else {
			buf.appendByte('?')
		}
		buf.appendString(queryParams)
	}

	if buf.Overflowed() {
		return "", StatusUriTooLong
	}
	return buf.String(), StatusOK
}

func containsByte(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}
