package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Shawndas06/bank-aggregator/internal/domain/analytics"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

// AnalyticsService is satisfied by *analytics.Engine.
type AnalyticsService interface {
	GetOverview(ctx context.Context, userID int64, providerIDs []provider.ID) (analytics.Overview, error)
	GetCategoryBreakdown(ctx context.Context, userID int64, providerIDs []provider.ID, start, end *time.Time) ([]analytics.CategoryTotal, error)
}

type AnalyticsHandler struct {
	engine   AnalyticsService
	registry *provider.Registry
}

func NewAnalyticsHandler(engine AnalyticsService, registry *provider.Registry) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine, registry: registry}
}

// HandleOverview returns balances and this month's spending summary.
func (h *AnalyticsHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	providers, err := providerFilter(r, "client_ids", h.registry, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	overview, err := h.engine.GetOverview(r.Context(), id.UserID, providers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// HandleCategories returns spending per category for a date range.
func (h *AnalyticsHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	providers, err := providerFilter(r, "client_ids", h.registry, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	totals, err := h.engine.GetCategoryBreakdown(r.Context(), id.UserID, providers, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if totals == nil {
		totals = []analytics.CategoryTotal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": totals})
}
