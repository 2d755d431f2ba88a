package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"aetherflow/internal/core"
	"aetherflow/internal/equivalents"
)

type transactionResponse struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Category    string                   `json:"category"`
	Group       string                   `json:"group"`
	Price       string                   `json:"price"`
	PriceCents  int64                    `json:"price_cents"`
	KgCO2e      float64                  `json:"kg_co2e"`
	MtCO2e      float64                  `json:"mt_co2e"`
	Equivalents []equivalents.Equivalent `json:"equivalents"`
	Date        time.Time                `json:"date"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	group := ""
	if g, ok := t.Category.Group(); ok {
		group = g.String()
	}
	return transactionResponse{
		ID:          t.ID,
		Name:        t.Name,
		Category:    string(t.Category),
		Group:       group,
		Price:       t.Price.String(),
		PriceCents:  t.Price.Cents,
		KgCO2e:      t.KgCO2e,
		MtCO2e:      t.MtCO2e,
		Equivalents: equivalents.Annotate(t.Equivalents),
		Date:        t.Timestamp,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	txns, err := s.deps.Transactions.List(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, "list transactions", err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	sub, err := req.submission(s.now())
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, err.Error())
		return
	}

	t, err := s.deps.Transactions.Submit(r.Context(), owner, sub)
	if err != nil {
		writeServiceError(w, r, "submit transaction", err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+t.ID)
	writeJSON(w, http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}
	if err := s.deps.Transactions.Delete(r.Context(), owner, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, "delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
