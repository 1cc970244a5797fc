package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind partitions pipeline failures so operators can tell infrastructure
// problems from prompt/model-quality problems from bad input.
type ErrorKind string

const (
	ErrExtraction            ErrorKind = "ExtractionError"
	ErrUnsupportedAttachment ErrorKind = "UnsupportedAttachmentFormat"
	ErrMalformedModelOutput  ErrorKind = "MalformedModelOutput"
	ErrModelUnavailable      ErrorKind = "ModelUnavailable"
	ErrGenericProcessing     ErrorKind = "GenericProcessingError"
)

// ProcessingError is the structured failure value every pipeline stage
// reduces to. The pipeline never lets any other error escape to its caller.
type ProcessingError struct {
	Kind    ErrorKind
	Message string
	// Raw holds the cleaned model output when Kind is ErrMalformedModelOutput,
	// so the response that failed to parse is never silently discarded.
	Raw string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *ProcessingError {
	return &ProcessingError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error: structured pipeline errors report their own
// kind, everything else is a generic processing fault.
func KindOf(err error) ErrorKind {
	var perr *ProcessingError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ErrGenericProcessing
}

// AsProcessingError converts err to a ProcessingError, wrapping unknown
// errors as generic processing faults carrying the underlying message.
func AsProcessingError(err error) *ProcessingError {
	var perr *ProcessingError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProcessingError{Kind: ErrGenericProcessing, Message: err.Error()}
}
