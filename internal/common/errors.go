// Package common defines shared constants and sentinel errors used across
// the client core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks local persistence failures. A mutation that fails
	// with ErrStorage has not been applied; callers must keep the item
	// dirty so the write is retried.
	ErrStorage = errors.New("storage failure")

	// ErrTransport marks network-level failures (connection refused,
	// timeout, 5xx). Transport errors abort the whole sync cycle and are
	// retried with backoff.
	ErrTransport = errors.New("transport failure")

	// Session errors.
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSessionExpired = errors.New("session expired")

	// ErrTokenInvalid is returned when the server rejects the supplied
	// sync token. It triggers a full resync, never a process failure.
	ErrTokenInvalid = errors.New("sync token invalid")

	// ErrAuthenticationFailed marks a payload integrity check failure
	// (GCM tag mismatch). It is not retriable and never a transport
	// fault; the affected item is surfaced as unreadable.
	ErrAuthenticationFailed = errors.New("authentication failed")
)
