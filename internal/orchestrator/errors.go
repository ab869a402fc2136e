package orchestrator

import "fmt"

// UnrecognizedTargetError marks a URL that matches none of the three known
// page families. It is never retried.
type UnrecognizedTargetError struct {
	URL string
}

func (e *UnrecognizedTargetError) Error() string {
	return fmt.Sprintf("unrecognized target url %q", e.URL)
}

// FetchError records a failed fetch attempt: either a non-2xx response or a
// transport-level failure (StatusCode == StatusTransportError).
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ExtractionError marks a page that fetched fine but could not be parsed
// into a fact.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// ReferentialLookupError is raised when a review ID resolves to zero or to
// more than one owning user. Both are defects and are never silently
// resolved.
type ReferentialLookupError struct {
	ReviewID string
	Matches  int
}

func (e *ReferentialLookupError) Error() string {
	return fmt.Sprintf("review id %q matched %d owners, want exactly 1", e.ReviewID, e.Matches)
}

// BatchError is the aggregate failure a batch operation returns after
// attempting every item. Individual failures never abort sibling items.
type BatchError struct {
	Op     string
	Failed int
	Errs   []error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d item(s) failed", e.Op, e.Failed)
}

// Unwrap exposes the per-item errors to errors.Is/As.
func (e *BatchError) Unwrap() []error { return e.Errs }
