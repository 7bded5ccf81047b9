package cmd

import (
	"errors"

	"go.uber.org/zap"

	"github.com/3leaps/expindex/pkg/provider"
	"github.com/3leaps/expindex/pkg/validate"
)

// Process exit codes. Every failure, validation or operational, exits 1.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// ExitError carries the exit code and log message for a failed command.
type ExitError struct {
	Code int
	Msg  string
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(msg string, err error) error {
	return &ExitError{Code: ExitFailure, Msg: msg, Err: err}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) && ee.Code != ExitSuccess {
		return ee.Code
	}
	return ExitFailure
}

// reportError logs err once. Validation failures are skipped: the
// pipeline has already logged the full report.
func reportError(logger *zap.Logger, err error) {
	if errors.Is(err, validate.ErrValidationFailed) {
		return
	}

	fields := []zap.Field{zap.Error(err)}
	if r := provider.ReasonOf(err); r != provider.ReasonUnknown {
		fields = append(fields, zap.String("reason", string(r)), zap.Bool("transient", r.Transient()))
	}

	msg := "Command failed"
	var ee *ExitError
	if errors.As(err, &ee) {
		msg = ee.Msg
		fields[0] = zap.Error(ee.Err)
	}
	logger.Error(msg, fields...)
}
