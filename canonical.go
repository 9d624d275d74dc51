// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"crypto/sha256"
	"sort"
	"strings"
)

// headerName returns the name portion of a "name: value" line, without
// the colon.
func headerName(line string) string {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		return line[:i]
	}
	return line
}

// headerValue returns the value portion of a "name: value" line with the
// single space after the colon skipped.
func headerValue(line string) string {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return ""
	}
	val := line[i+1:]
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return val
}

// writeFoldedValue copies val into buf, folding any CRLF-plus-whitespace
// continuation. Whitespace already emitted before the fold is backed out;
// sep (if nonzero) is inserted where the fold was.
func writeFoldedValue(buf *appendBuffer, val string, sep byte) {
	for i := 0; i < len(val); {
		if val[i] == '\r' && i+2 < len(val) && val[i+1] == '\n' && isBlank(val[i+2]) {
			i += 3
			for i < len(val) && isBlank(val[i]) {
				i++
			}
			buf.trimTrailingBlanks()
			if sep != 0 {
				buf.appendByte(sep)
			}
			continue
		}
		buf.appendByte(val[i])
		i++
	}
}

// canonicalizeAmzHeaders produces the V2 canonicalized amz headers block:
// lines stable-sorted by header name, duplicate names folded onto one
// line with comma-joined values, continuations unfolded, one newline per
// logical header.
func canonicalizeAmzHeaders(v *requestComputedValues) {
	sorted := append([]string(nil), v.amzHeaders...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return headerName(sorted[i]) < headerName(sorted[j])
	})

	buf := newAppendBuffer(amzHeadersRawSize)
	lastName := ""
	for _, line := range sorted {
		name := headerName(line)
		if lastName != "" && name == lastName {
			buf.replaceLast(',')
		} else {
			buf.appendString(name)
			buf.appendByte(':')
			lastName = name
		}
		writeFoldedValue(buf, headerValue(line), 0)
		buf.appendByte('\n')
	}
	v.canonicalizedAmzHeaders = buf.String()
}

// canonicalizeResource produces the V2 canonicalized resource:
// "/bucket" + "/" + encoded key + "?subResource". An empty bucket leaves
// just the leading slash.
func canonicalizeResource(bucketName, subResource, urlEncodedKey string) string {
	var b strings.Builder
	if bucketName != "" {
		b.WriteByte('/')
		b.WriteString(bucketName)
	}
	b.WriteByte('/')
	if urlEncodedKey != "" {
		b.WriteString(urlEncodedKey)
	}
	if subResource != "" {
		b.WriteByte('?')
		b.WriteString(subResource)
	}
	return b.String()
}

// canonicalizeURI writes the V4 canonical URI (the path of uri, newline
// terminated) followed by the canonical query string.
func canonicalizeURI(buf *appendBuffer, uri string) Status {
	rest, ok := strings.CutPrefix(uri, "http")
	if !ok {
		return StatusInvalidURI
	}
	rest = strings.TrimPrefix(rest, "s")
	rest, ok = strings.CutPrefix(rest, "://")
	if !ok {
		return StatusInvalidURI
	}
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return StatusInvalidURI
	}
	rest = rest[slash:]

	q := strings.IndexByte(rest, '?')
	path := rest
	if q >= 0 {
		path = rest[:q]
	}
	buf.appendString(path)
	buf.appendByte('\n')
	if buf.Overflowed() {
		return StatusUriTooLong
	}

	if q >= 0 {
		return canonicalizeQueryParams(buf, rest[q+1:])
	}
	buf.appendByte('\n')
	if buf.Overflowed() {
		return StatusUriTooLong
	}
	return StatusOK
}

// queryParamName is the comparison prefix of a query parameter: bytes up
// to '=' or '&'.
func queryParamName(param string) string {
	end := len(param)
	for i := 0; i < len(param); i++ {
		if param[i] == '=' || param[i] == '&' {
			end = i
			break
		}
	}
	return param[:end]
}

// canonicalizeQueryParams splits query on '&', stable-sorts the entries
// by parameter name, joins them with '&' (adding '=' to entries without
// a value) and terminates with a newline. An entry that follows an '&'
// must be non-empty and must not start with '='; a leading empty entry
// is not rejected.
func canonicalizeQueryParams(buf *appendBuffer, query string) Status {
	var params []string
	for i := 0; i < len(query); {
		j := strings.IndexByte(query[i:], '&')
		if j < 0 {
			params = append(params, query[i:])
			break
		}
		next := query[i+j+1:]
		if next == "" || next[0] == '&' || next[0] == '=' {
			return StatusBadMetaData
		}
		params = append(params, query[i:i+j])
		i += j + 1
	}
	if len(params) > 1024 {
		return StatusQueryParamsTooLong
	}

	sort.SliceStable(params, func(i, j int) bool {
		return queryParamName(params[i]) < queryParamName(params[j])
	})

	for i, p := range params {
		if i > 0 {
			buf.appendByte('&')
		}
		buf.appendString(p)
		if !strings.Contains(p, "=") {
			buf.appendByte('=')
		}
	}
	buf.appendByte('\n')
	if buf.Overflowed() {
		return StatusQueryParamsTooLong
	}
	return StatusOK
}

// canonicalizeHeaders writes the V4 canonical headers block from the
// outbound header list: case-insensitive stable sort, lowercased names,
// duplicates folded with commas, continuations folded with commas, then
// a blank line and the semicolon-joined signed-headers list. The
// Content-Length header never participates in signing.
func canonicalizeHeaders(buf *appendBuffer, outbound []string, v *requestComputedValues) Status {
	headers := make([]string, 0, len(outbound))
	for _, line := range outbound {
		if strings.EqualFold(headerName(line), "Content-Length") {
			continue
		}
		headers = append(headers, line)
	}

	sort.SliceStable(headers, func(i, j int) bool {
		return lowerASCII(headerName(headers[i])) < lowerASCII(headerName(headers[j]))
	})

	var signed []string
	lastName := ""
	for _, line := range headers {
		name := lowerASCII(headerName(line))
		if lastName != "" && name == lastName {
			buf.replaceLast(',')
		} else {
			buf.appendString(name)
			buf.appendByte(':')
			signed = append(signed, name)
			lastName = name
		}
		val := headerValue(line)
		i := 0
		for i < len(val) && isBlank(val[i]) {
			i++
		}
		writeFoldedValue(buf, val[i:], ',')
		buf.appendByte('\n')
	}

	buf.appendByte('\n')
	v.signedHeaders = strings.Join(signed, ";")
	buf.appendString(v.signedHeaders)
	buf.appendByte('\n')
	if buf.Overflowed() {
		return StatusHeadersTooLong
	}
	return StatusOK
}

// canonicalRequestHash assembles the V4 canonical request (verb, URI,
// query, headers, signed-headers list, payload hash) and returns its
// SHA-256 as lowercase hex.
func canonicalRequestHash(verb, uri string, outbound []string, v *requestComputedValues) (string, Status) {
	buf := newAppendBuffer(canonicalRequestSize)
	buf.appendString(verb)
	buf.appendByte('\n')
	if st := canonicalizeURI(buf, uri); st != StatusOK {
		return "", st
	}
	if st := canonicalizeHeaders(buf, outbound, v); st != StatusOK {
		return "", st
	}
	payload := v.payloadHash
	if payload == "" {
		payload = unsignedPayload
	}
	buf.appendString(payload)
	if buf.Overflowed() {
		return "", StatusHeadersTooLong
	}

	sum := sha256.Sum256([]byte(buf.String()))
	out := newAppendBuffer(sha256.Size * 2)
	out.appendHex(sum[:])
	return out.String(), StatusOK
}
