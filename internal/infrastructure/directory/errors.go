package directory

import "fmt"

// TransientError marks a fetch failure worth retrying: network faults,
// timeouts, rate limiting, 5xx responses.
type TransientError struct {
	Page int
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("directory page %d: transient: %v", e.Page, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a response that violates the expected schema. The page
// is skipped without retry; remaining pages are unaffected.
type FatalError struct {
	Page int
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("directory page %d: malformed response: %v", e.Page, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
