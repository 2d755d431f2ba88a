package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"aetherflow/internal/core"
	"aetherflow/internal/equivalents"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ownerID returns the {owner} path segment, or writes a 422 and "" when blank.
func ownerID(w http.ResponseWriter, r *http.Request) string {
	owner := strings.TrimSpace(mux.Vars(r)["owner"])
	if owner == "" {
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, core.ErrEmptyOwner.Error())
	}
	return owner
}

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Diets.Catalog(r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, r, "list challenges", err)
		return
	}
	if list == nil {
		list = []core.Challenge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": list})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	phrase := strings.TrimSpace(r.URL.Query().Get("phrase"))
	if phrase == "" {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "phrase is required")
		return
	}
	writeJSON(w, http.StatusOK, equivalents.Annotate([]string{phrase})[0])
}
