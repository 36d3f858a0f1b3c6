package status

import "errors"

var (
	// ErrScopeInvalid is a caller error: the tenant/server identifiers do
	// not form a valid service scope. Not retryable.
	ErrScopeInvalid = errors.New("scope: invalid service scope")

	// ErrConflict is a transient allocation collision: another writer took
	// the ticket number first. Retry from the read-max step.
	ErrConflict = errors.New("allocate: ticket number conflict")

	// ErrAllocationFailed is returned after the conflict retries are
	// exhausted.
	ErrAllocationFailed = errors.New("allocate: allocation failed after retries")

	// ErrTicketNotFound marks a lookup for a (scope, period, number) that
	// was never issued.
	ErrTicketNotFound = errors.New("store: ticket not found")

	// ErrTicketNotCancellable marks a cancel attempt on a ticket that is
	// no longer waiting.
	ErrTicketNotCancellable = errors.New("store: ticket not cancellable")

	// ErrSubscriberClosed is returned by a sink whose connection is gone.
	ErrSubscriberClosed = errors.New("hub: subscriber closed")

	// ErrRateLimited marks a request rejected by the per-client limiter.
	ErrRateLimited = errors.New("security: rate limit exceeded")

	// ErrBoardKeyInvalid marks a display board key that did not match any
	// configured hash.
	ErrBoardKeyInvalid = errors.New("security: invalid board key")
)
