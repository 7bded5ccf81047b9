package output

import (
	"context"
	"errors"

	"github.com/3leaps/expindex/pkg/discovery"
	"github.com/3leaps/expindex/pkg/index"
	"github.com/3leaps/expindex/pkg/metadata"
	"github.com/3leaps/expindex/pkg/provider"
	"github.com/3leaps/expindex/pkg/publish"
	"github.com/3leaps/expindex/pkg/schema"
)

// ErrorRecordFor classifies an operational error.
func ErrorRecordFor(err error) *ErrorRecord {
	rec := &ErrorRecord{Code: ErrCodeInternal, Message: err.Error()}

	reason := provider.ReasonOf(err)
	if reason != provider.ReasonUnknown {
		rec.Reason = string(reason)
		rec.Transient = reason.Transient()
	}

	var parseErr *metadata.ParseError
	var patternErr *discovery.PatternError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rec.Code = ErrCodeCanceled
	case errors.As(err, &parseErr):
		rec.Code = ErrCodeInvalidYAML
		rec.File = parseErr.File
	case errors.Is(err, schema.ErrSchemaNotFound),
		errors.Is(err, schema.ErrSchemaInvalid),
		errors.Is(err, schema.ErrCompileFailed):
		rec.Code = ErrCodeSchema
	case errors.As(err, &patternErr), errors.Is(err, discovery.ErrNoPattern):
		rec.Code = ErrCodeDiscovery
	case reason == provider.ReasonAccessDenied:
		rec.Code = ErrCodeAccessDenied
	case errors.Is(err, publish.ErrPublishFailed):
		rec.Code = ErrCodePublish
	case errors.Is(err, index.ErrWriteFailed):
		rec.Code = ErrCodeWrite
	}
	return rec
}
