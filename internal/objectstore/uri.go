// Package objectstore provides the gateway to the S3-compatible object store
// backing both the source-document bucket and the vector store location.
// It covers exactly the operations the ingestion pipeline and vector store
// lifecycle need: paged listing, bulk deletion, existence checks, and object
// reads/writes. The gateway never retries — transport errors propagate to the
// caller, and any retry policy belongs to the job runner.
package objectstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrScheme is returned when a location URI does not use the s3:// scheme.
// It is a configuration error and fatal at startup.
var ErrScheme = errors.New("objectstore: not an s3 URI")

// URI identifies a bucket and key (or key prefix) in the object store.
// String() reconstructs the original s3://bucket/key form losslessly.
type URI struct {
	// Bucket is the bucket name.
	Bucket string
	// Key is the object key or key prefix. May be empty for a whole bucket.
	Key string
}

// ParseURI parses an s3://bucket/key URI. Any other scheme is rejected with
// ErrScheme.
func ParseURI(raw string) (URI, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("objectstore: parse %q: %w", raw, err)
	}
	if parsed.Scheme != "s3" {
		return URI{}, fmt.Errorf("%w: %q", ErrScheme, raw)
	}
	if parsed.Host == "" {
		return URI{}, fmt.Errorf("objectstore: %q has no bucket", raw)
	}
	return URI{
		Bucket: parsed.Host,
		Key:    strings.TrimPrefix(parsed.Path, "/"),
	}, nil
}

// String reconstructs the s3:// form of the URI.
func (u URI) String() string {
	if u.Key == "" {
		return "s3://" + u.Bucket
	}
	return "s3://" + u.Bucket + "/" + u.Key
}

// Join returns a URI for a key underneath this URI's prefix.
func (u URI) Join(elem string) URI {
	key := u.Key
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return URI{Bucket: u.Bucket, Key: key + elem}
}
