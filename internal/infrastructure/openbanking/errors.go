package openbanking

import (
	"fmt"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
)

// ProviderError describes a failed provider call. It matches
// banking.ErrProviderUnavailable (or banking.ErrConsentPending) with errors.Is.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	kind := e.Kind
	if kind == nil {
		kind = banking.ErrProviderUnavailable
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}
