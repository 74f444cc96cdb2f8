package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAdmissionBusy  = errors.New("render job already active")
	ErrValidation     = errors.New("validation error")
	ErrExternalTool   = errors.New("external tool error")
	ErrOutputNotFound = errors.New("output not found")
	ErrCancelled      = errors.New("cancelled")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTransient      = errors.New("transient failure")
)

var markers = []error{
	ErrAdmissionBusy,
	ErrValidation,
	ErrExternalTool,
	ErrOutputNotFound,
	ErrCancelled,
	ErrConfiguration,
	ErrNotFound,
	ErrTransient,
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the classified view of a failure used for status fields.
type ErrorDetails struct {
	Kind    string
	Message string
	Cause   string
}

// Details classifies err by its marker. Message is the text after the marker
// prefix; Cause is the full error string.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	full := strings.TrimSpace(err.Error())
	details := ErrorDetails{Kind: "unknown", Message: full, Cause: full}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			details.Kind = marker.Error()
			details.Message = strings.TrimSpace(strings.TrimPrefix(full, marker.Error()+":"))
			break
		}
	}
	if errors.Is(err, context.Canceled) && details.Kind == "unknown" {
		details.Kind = ErrCancelled.Error()
	}
	return details
}

// IsCancellation reports whether err represents a cooperative cancellation
// rather than a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
