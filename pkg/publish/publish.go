package publish

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/3leaps/expindex/pkg/provider"
	"github.com/3leaps/expindex/pkg/provider/file"
	"github.com/3leaps/expindex/pkg/provider/s3"
)

// DefaultTimeout bounds a single publish.
const DefaultTimeout = 2 * time.Minute

// Options configures remote access. Fields other than Timeout only apply
// to s3 destinations.
type Options struct {
	Region         string
	Endpoint       string
	Profile        string
	ForcePathStyle bool
	Timeout        time.Duration
}

// Open returns a putter for dest.
func Open(ctx context.Context, dest *Destination, opts Options) (provider.ObjectPutter, error) {
	switch dest.Provider {
	case provider.ProviderFile:
		p, err := file.New(file.Config{BaseDir: dest.Bucket})
		if err != nil {
			return nil, err
		}
		return p, nil
	case provider.ProviderS3:
		p, err := s3.New(ctx, s3.Config{
			Bucket:         dest.Bucket,
			Region:         opts.Region,
			Endpoint:       opts.Endpoint,
			Profile:        opts.Profile,
			ForcePathStyle: opts.ForcePathStyle,
			ContentType:    s3.DefaultContentType,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, dest.Provider)
	}
}

// Publish uploads data to dest.Key through putter.
func Publish(ctx context.Context, putter provider.ObjectPutter, dest *Destination, data []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := putter.PutObject(ctx, dest.Key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, dest, err)
	}
	return nil
}

// To opens dest, uploads data and closes the putter.
func To(ctx context.Context, dest *Destination, data []byte, opts Options) error {
	putter, err := Open(ctx, dest, opts)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", ErrPublishFailed, dest, err)
	}
	defer func() { _ = putter.Close() }()

	return Publish(ctx, putter, dest, data, opts.Timeout)
}
