package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// unwrapEnvelope returns the envelope carried by err, if any, and the
// underlying error to report.
func unwrapEnvelope(err error) (*errors.ErrorEnvelope, error) {
	envelope, ok := err.(*errors.ErrorEnvelope)
	if !ok {
		return nil, err
	}
	if original, ok := envelope.Original.(error); ok && original != nil {
		return envelope, original
	}
	return envelope, err
}

// ExitWithCode logs msg and err with the foundry exit code metadata, then
// exits with that code. A nil logger writes to stderr instead.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	envelope, cause := unwrapEnvelope(err)
	if envelope != nil {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
	}
	fields = append(fields, zap.Error(cause))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr writes msg and err to stderr and exits. Use it before
// the logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	envelope, cause := unwrapEnvelope(err)
	switch {
	case envelope != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s\n", msg, envelope.Code, envelope.Message)
		if cause != nil && cause != err {
			fmt.Fprintf(os.Stderr, "Underlying error: %v\n", cause)
		}
	case err != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}
