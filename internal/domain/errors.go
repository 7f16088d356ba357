package domain

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these
// (optionally wrapped) so callers can branch on the fact rather than on
// message text.
var (
	// ErrRunInProgress rejects a sync trigger for a source whose previous
	// run has not reached a terminal state.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrNotFound marks a missing entity in a store.
	ErrNotFound = errors.New("not found")

	// ErrUnknownSource marks a source name outside the supported set.
	ErrUnknownSource = errors.New("unknown source")

	// ErrSourceUnavailable covers network failure, timeouts and connection
	// refusal; the run retries on the next scheduled trigger.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceFormatChanged marks payloads the adapter no longer
	// understands.
	ErrSourceFormatChanged = errors.New("source format changed")

	// ErrSourceBlocked marks an active rejection (challenge page, 403/429)
	// from a hostile source, as opposed to an empty result.
	ErrSourceBlocked = errors.New("source blocked")

	// ErrUnauthorized rejects a trigger before any pipeline work begins.
	ErrUnauthorized = errors.New("unauthorized")
)
