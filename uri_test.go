// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeURI(t *testing.T) {
	tests := []struct {
		name        string
		bc          BucketContext
		key         string
		subResource string
		queryParams string
		want        string
	}{
		{
			name: "virtual host style",
			bc:   BucketContext{URIStyle: URIStyleVirtualHost, BucketName: "bucket"},
			key:  "key",
			want: "https://bucket.s3.amazonaws.com/key",
		},
		{
			name: "dotted bucket keeps bare host",
			bc:   BucketContext{URIStyle: URIStyleVirtualHost, BucketName: "my.bucket"},
			key:  "key",
			want: "https://s3.amazonaws.com/key",
		},
		{
			name: "path style",
			bc:   BucketContext{URIStyle: URIStylePath, BucketName: "bucket"},
			key:  "key",
			want: "https://s3.amazonaws.com/bucket/key",
		},
		{
			name: "empty bucket",
			bc:   BucketContext{URIStyle: URIStylePath},
			key:  "key",
			want: "https://s3.amazonaws.com/key",
		},
		{
			name: "plain http",
			bc:   BucketContext{Protocol: ProtocolHTTP, URIStyle: URIStylePath, BucketName: "b"},
			key:  "k",
			want: "http://s3.amazonaws.com/b/k",
		},
		{
			name:        "subresource",
			bc:          BucketContext{URIStyle: URIStylePath, BucketName: "b"},
			key:         "k",
			subResource: "acl",
			want:        "https://s3.amazonaws.com/b/k?acl",
		},
		{
			name:        "subresource and query params",
			bc:          BucketContext{URIStyle: URIStylePath, BucketName: "b"},
			key:         "k",
			subResource: "uploads",
			queryParams: "max-parts=10",
			want:        "https://s3.amazonaws.com/b/k?uploads&max-parts=10",
		},
		{
			name:        "query params only",
			bc:          BucketContext{URIStyle: URIStylePath, BucketName: "b"},
			queryParams: "prefix=a",
			want:        "https://s3.amazonaws.com/b/?prefix=a",
		},
		{
			name: "custom host",
			bc:   BucketContext{URIStyle: URIStyleVirtualHost, BucketName: "b", HostName: "storage.example.com"},
			key:  "k",
			want: "https://b.storage.example.com/k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, st := composeURI(&tt.bc, defaultHostNameValue,
				encodePath(tt.key), tt.subResource, tt.queryParams)
			require.Equal(t, StatusOK, st)
			assert.Equal(t, tt.want, uri)
		})
	}
}

func TestComposeURIDottedBucketNeverInAuthority(t *testing.T) {
	bc := BucketContext{URIStyle: URIStyleVirtualHost, BucketName: "a.b.c"}
	uri, st := composeURI(&bc, defaultHostNameValue, "k", "", "")
	require.Equal(t, StatusOK, st)
	assert.False(t, strings.HasPrefix(uri, "https://a.b.c."))
}

func TestComposeURITooLong(t *testing.T) {
	bc := BucketContext{URIStyle: URIStylePath, BucketName: "b"}
	_, st := composeURI(&bc, defaultHostNameValue, "k", "", strings.Repeat("q", maxURISize))
	assert.Equal(t, StatusUriTooLong, st)
}
