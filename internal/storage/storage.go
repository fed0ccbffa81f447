// Package storage holds the object-store transports for artifact URLs that
// are not plain HTTP: s3://bucket/key and azblob://container/blob.
package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// SplitObjectURL returns the bucket (URL host) and object key (URL path
// without the leading slash) of an object-store URL with the given scheme.
func SplitObjectURL(u *url.URL, scheme string) (bucket, key string, err error) {
	if !strings.EqualFold(u.Scheme, scheme) {
		return "", "", fmt.Errorf("unsupported scheme %q (want %s)", u.Scheme, scheme)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%s URL %q has no bucket", scheme, u.Redacted())
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%s URL %q has no object key", scheme, u.Redacted())
	}
	return bucket, key, nil
}
