package s3fetch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidURI indicates a malformed s3:// URI.
var ErrInvalidURI = errors.New("invalid S3 URI")

const scheme = "s3://"

// IsS3URI reports whether path names an S3 object.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, scheme)
}

// ParseS3URI parses an S3 URI (s3://bucket/key) into bucket and key
// components. Both must be non-empty.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", fmt.Errorf("%w %q: must start with %s", ErrInvalidURI, uri, scheme)
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, scheme), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w %q: missing bucket name", ErrInvalidURI, uri)
	}
	if key == "" {
		return "", "", fmt.Errorf("%w %q: missing object key", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}
