package banking

import "errors"

// Error kinds surfaced by the aggregation core. Callers match them with errors.Is.
var (
	// ErrProviderUnavailable covers network failures, timeouts, non-2xx answers
	// and payloads that could not be decoded.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrConsentPending means the provider accepted the consent request but
	// has not approved it yet.
	ErrConsentPending = errors.New("consent pending approval")

	// ErrAccountNotFound means no linked account matches the id for this user.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidFilter marks a malformed date range, pagination window or provider list.
	ErrInvalidFilter = errors.New("invalid filter")
)
