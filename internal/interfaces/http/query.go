package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	"github.com/Shawndas06/bank-aggregator/internal/shared/identity"
)

const dateLayout = "2006-01-02"

// providerFilter parses an optional provider list and narrows it to what the
// caller's tier allows.
func providerFilter(r *http.Request, param string, registry *provider.Registry, id identity.Identity) ([]provider.ID, error) {
	requested, err := provider.ParseIDList(r.URL.Query().Get(param))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", banking.ErrInvalidFilter, param, err)
	}
	return registry.Allowed(requested, id.Unlimited), nil
}

// requiredProvider parses a single mandatory provider id.
func requiredProvider(raw string, registry *provider.Registry, id identity.Identity) (provider.ID, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("%w: client_id is required", banking.ErrInvalidFilter)
	}
	pid, err := provider.ParseID(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: client_id: %w", banking.ErrInvalidFilter, err)
	}
	return pid, checkAllowed(pid, registry, id)
}

func checkAllowed(pid provider.ID, registry *provider.Registry, id identity.Identity) error {
	if !pid.Valid() {
		return fmt.Errorf("%w: %w: %d", banking.ErrInvalidFilter, provider.ErrUnknownProvider, pid)
	}
	if len(registry.Allowed([]provider.ID{pid}, id.Unlimited)) == 0 {
		return fmt.Errorf("%w: %s is not available on your plan", banking.ErrInvalidFilter, pid.Name())
	}
	return nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(r *http.Request, param string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(param))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", banking.ErrInvalidFilter, param)
	}
	return &t, nil
}

func parseInt(r *http.Request, param string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(param))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", banking.ErrInvalidFilter, param)
	}
	return n, nil
}

func parseDateRange(r *http.Request) (start, end *time.Time, err error) {
	if start, err = parseDate(r, "start_date"); err != nil {
		return nil, nil, err
	}
	if end, err = parseDate(r, "end_date"); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}
