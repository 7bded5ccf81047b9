// Package publish copies the written index to a remote or local destination.
package publish

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/3leaps/expindex/pkg/provider"
)

// DefaultKey is used when a destination names only a bucket or directory.
const DefaultKey = "experiments.json"

// Destination parsing errors.
var (
	// ErrInvalidURI indicates the destination could not be parsed.
	ErrInvalidURI = errors.New("invalid destination URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates an s3 URI without a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")

	// ErrPublishFailed wraps every failure to open or write a destination.
	ErrPublishFailed = errors.New("publish failed")
)

// Destination is a parsed publish target.
//
// Examples:
//   - s3://bucket/site/experiments.json
//   - s3://bucket/site/            (key defaults to DefaultKey)
//   - file:///srv/www/experiments.json
type Destination struct {
	Provider provider.ProviderType

	// Bucket is the S3 bucket, or the local directory for file destinations.
	Bucket string

	// Key is the object key within Bucket.
	Key string
}

// String returns the URI in canonical form.
func (d *Destination) String() string {
	if d.Provider == provider.ProviderFile {
		return "file://" + path.Join(d.Bucket, d.Key)
	}
	return fmt.Sprintf("%s://%s/%s", d.Provider, d.Bucket, d.Key)
}

// ParseDestination parses a publish URI.
func ParseDestination(uri string) (*Destination, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3:// or file://)", ErrInvalidURI)
	}

	scheme := provider.ProviderType(strings.ToLower(uri[:schemeEnd]))
	remainder := uri[schemeEnd+3:]

	switch scheme {
	case provider.ProviderS3:
		return parseS3(uri, remainder)
	case provider.ProviderFile:
		return parseFile(uri, remainder)
	default:
		return nil, fmt.Errorf("%w: %s (supported: s3, file)", ErrUnsupportedProvider, scheme)
	}
}

func parseS3(uri, remainder string) (*Destination, error) {
	bucket, key, _ := strings.Cut(remainder, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}
	if _, err := url.Parse("s3://" + bucket + "/"); err != nil || strings.ContainsAny(bucket, " ?#") {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	if key == "" || strings.HasSuffix(key, "/") {
		key += DefaultKey
	}
	return &Destination{Provider: provider.ProviderS3, Bucket: bucket, Key: key}, nil
}

func parseFile(uri, remainder string) (*Destination, error) {
	if !strings.HasPrefix(remainder, "/") {
		return nil, fmt.Errorf("%w: file destination must be absolute (file:///path): %s", ErrInvalidURI, uri)
	}

	p := remainder
	if strings.HasSuffix(p, "/") {
		p += DefaultKey
	}
	p = path.Clean(p)

	dir, key := path.Split(p)
	if key == "" {
		return nil, fmt.Errorf("%w: missing file name in %s", ErrInvalidURI, uri)
	}
	return &Destination{Provider: provider.ProviderFile, Bucket: dir, Key: key}, nil
}
