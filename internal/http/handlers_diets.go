package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"aetherflow/internal/challenges"
	"aetherflow/internal/core"
)

type dietResponse struct {
	ID         string    `json:"id"`
	Challenge  string    `json:"challenge"`
	StartedAt  time.Time `json:"started_at"`
	IsComplete bool      `json:"is_complete"`
}

func toDietResponse(d core.Diet) dietResponse {
	return dietResponse{ID: d.ID, Challenge: d.Challenge, StartedAt: d.Timestamp, IsComplete: d.IsComplete}
}

func (s *Server) handleListDiets(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	diets, err := s.deps.Diets.List(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, "list diets", err)
		return
	}
	out := make([]dietResponse, 0, len(diets))
	for _, d := range diets {
		out = append(out, toDietResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"diets": out})
}

func (s *Server) handleStartDiet(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	var req dietRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	d, err := s.deps.Diets.Start(r.Context(), owner, sanitizeInput(req.Challenge))
	if err != nil {
		writeServiceError(w, r, "start diet", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDietResponse(d))
}

func (s *Server) handleCompleteDiet(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	d, err := s.deps.Diets.Complete(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, "complete diet", err)
		return
	}
	writeJSON(w, http.StatusOK, toDietResponse(d))
}

func (s *Server) handleDietCounts(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	counts, err := s.deps.Diets.Counts(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, "diet counts", err)
		return
	}
	if counts == nil {
		counts = []challenges.ChallengeCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}
