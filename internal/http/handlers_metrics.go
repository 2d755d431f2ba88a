package http

import (
	"net/http"
	"time"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/equivalents"
	"aetherflow/internal/services"
)

type groupResponse struct {
	Group           string  `json:"group"`
	Emissions       float64 `json:"emissions"`
	Count           int     `json:"count"`
	FractionOfTotal float64 `json:"fraction_of_total"`
}

type summaryResponse struct {
	ID               string                   `json:"id"`
	Label            string                   `json:"label"`
	Year             int                      `json:"year"`
	Month            int                      `json:"month"`
	Start            time.Time                `json:"start"`
	EmissionsTotal   float64                  `json:"emissions_total"`
	TransactionCount int                      `json:"transaction_count"`
	Equivalents      []equivalents.Equivalent `json:"equivalents"`
	Groups           []groupResponse          `json:"groups"`
}

// toSummaryResponse always lists the four groups in display order.
func toSummaryResponse(m core.MonthlySummary) summaryResponse {
	groups := make([]groupResponse, 0, 4)
	for _, g := range emissions.Groups() {
		b, _ := m.Breakdown(g)
		groups = append(groups, groupResponse{
			Group:           g.String(),
			Emissions:       b.Emissions,
			Count:           b.Count,
			FractionOfTotal: b.FractionOfTotal,
		})
	}
	return summaryResponse{
		ID:               m.ID,
		Label:            m.Label,
		Year:             m.Year,
		Month:            int(m.Month),
		Start:            m.Start,
		EmissionsTotal:   m.EmissionsTotal,
		TransactionCount: m.TransactionCount,
		Equivalents:      equivalents.Annotate(m.Equivalents),
		Groups:           groups,
	}
}

func toSummaryResponses(in []core.MonthlySummary) []summaryResponse {
	out := make([]summaryResponse, 0, len(in))
	for _, m := range in {
		out = append(out, toSummaryResponse(m))
	}
	return out
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	summaries, err := s.deps.Metrics.Summaries(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, "list summaries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": toSummaryResponses(summaries)})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	n, err := queryInt(r.URL.Query(), "n", services.DefaultTrendMonths, 1, 24)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	trend, err := s.deps.Metrics.Trend(r.Context(), owner, n)
	if err != nil {
		writeServiceError(w, r, "trend", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trend": toSummaryResponses(trend)})
}

type reloadResponse struct {
	OwnerID    string `json:"owner_id"`
	Rebuilt    bool   `json:"rebuilt"`
	Months     int    `json:"months"`
	DurationMs int64  `json:"duration_ms"`
	Shared     bool   `json:"shared"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	force, err := queryBool(r.URL.Query(), "force")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	res, err := s.deps.Metrics.Reload(r.Context(), owner, force)
	if err != nil {
		writeServiceError(w, r, "reload", err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{
		OwnerID:    res.OwnerID,
		Rebuilt:    res.Rebuilt,
		Months:     res.Months,
		DurationMs: res.Duration.Milliseconds(),
		Shared:     res.Shared,
	})
}

func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	snap, err := s.deps.Metrics.Widget(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, "widget", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetWidget(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	if err := s.deps.Metrics.ResetWidget(r.Context(), owner); err != nil {
		writeServiceError(w, r, "reset widget", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
