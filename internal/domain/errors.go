package domain

import "errors"

// ErrBackendUnavailable is returned by interactive operations when the
// capability gate is closed. It is recoverable and meant to be shown to the
// user, never to crash the caller.
var ErrBackendUnavailable = errors.New("backend unavailable")

// ErrProfileNotFound is returned by GetProfile when the user has no profile
// document yet.
var ErrProfileNotFound = errors.New("profile not found")

// AuthError reports a rejected credential. It causes no local state change.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// WriteError reports a rejected document write. The caller keeps its input
// and may resubmit.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// SubscriptionError reports a failed live query. The feed stays at its
// last-known snapshot; there is no automatic retry beyond the stream's own
// reconnect loop.
type SubscriptionError struct {
	Filter FeedFilter
	Err    error
}

func (e *SubscriptionError) Error() string {
	return "subscription " + e.Filter.Key() + ": " + e.Err.Error()
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
