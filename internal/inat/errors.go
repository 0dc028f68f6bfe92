package inat

import (
	"fmt"
)

// NotFoundError means a name search returned no usable results.
type NotFoundError struct {
	Kind string // "taxon" or "place"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// TransportError wraps a failed request: a network error, a non-2xx
// status, or a body that is not valid JSON.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("request %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FetchAbortedError is returned when pagination stops on a transport failure.
// LastPage is the last page fetched successfully (0 if none).
type FetchAbortedError struct {
	LastPage int
	Err      error
}

func (e *FetchAbortedError) Error() string {
	return fmt.Sprintf("fetch aborted after page %d: %v", e.LastPage, e.Err)
}

func (e *FetchAbortedError) Unwrap() error {
	return e.Err
}

// MalformedRecordError marks a single observation that cannot be normalized.
type MalformedRecordError struct {
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return "malformed observation: " + e.Reason
}
