// Package provider defines the object storage surface used to write and
// publish the experiment index.
//
// Only writes are modelled: the index is produced locally and then put to
// one or more destinations. Authentication uses SDK default credential
// chains; providers should not implement custom auth logic.
package provider

import (
	"context"
	"io"
)

// ObjectPutter can create/overwrite objects.
//
// Implementations must either write the whole body or leave any
// previous object at key untouched.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error

	// Close releases any resources held by the provider.
	Close() error
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents the local filesystem.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
