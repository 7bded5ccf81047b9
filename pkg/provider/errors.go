package provider

import (
	"errors"
	"fmt"
	"path"
)

// Sentinel errors for provider operations.
var (
	// ErrInvalidKey indicates an empty key or one that escapes the provider root.
	ErrInvalidKey = errors.New("invalid object key")

	ErrAccessDenied        = errors.New("access denied")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrThrottled           = errors.New("request throttled")
)

// Reason is the coarse cause of a failed put, derived from the sentinel
// in an error chain.
type Reason string

const (
	ReasonUnknown        Reason = ""
	ReasonInvalidKey     Reason = "invalid_key"
	ReasonAccessDenied   Reason = "access_denied"
	ReasonBucketNotFound Reason = "bucket_not_found"
	ReasonCredentials    Reason = "invalid_credentials"
	ReasonUnavailable    Reason = "unavailable"
	ReasonThrottled      Reason = "throttled"
)

var sentinelReasons = []struct {
	err    error
	reason Reason
}{
	{ErrInvalidKey, ReasonInvalidKey},
	{ErrAccessDenied, ReasonAccessDenied},
	{ErrBucketNotFound, ReasonBucketNotFound},
	{ErrInvalidCredentials, ReasonCredentials},
	{ErrProviderUnavailable, ReasonUnavailable},
	{ErrThrottled, ReasonThrottled},
}

// ReasonOf returns the Reason for the first provider sentinel found in
// err's chain, or ReasonUnknown.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	for _, sr := range sentinelReasons {
		if errors.Is(err, sr.err) {
			return sr.reason
		}
	}
	return ReasonUnknown
}

// Transient reports whether rerunning unchanged may succeed. Nothing in
// this module retries; the flag is surfaced to whoever runs the tool.
func (r Reason) Transient() bool {
	return r == ReasonUnavailable || r == ReasonThrottled
}

// ProviderError records which put failed and where.
type ProviderError struct {
	Op       string
	Provider ProviderType

	// Bucket is the S3 bucket, or the base directory of a file provider.
	Bucket string
	Key    string

	Err error
}

func (e *ProviderError) Error() string {
	target := path.Join(e.Bucket, e.Key)
	if target == "." || target == "" {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Provider, e.Op, target, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Reason classifies the underlying error.
func (e *ProviderError) Reason() Reason {
	return ReasonOf(e.Err)
}
