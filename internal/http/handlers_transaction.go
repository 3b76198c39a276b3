package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := req.toTransaction(userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateUser(userID)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		log.FieldTransactionID, created.ID,
		log.FieldUserID, userID,
		log.FieldAmountCents, created.Amount.Cents,
		log.FieldCategory, string(created.Category))
	writeJSON(w, http.StatusCreated, transactionResponse(created))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Listing an unknown user is a 404, not an empty list.
	if _, err := s.users.GetUser(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	ts, err := s.reader.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactionListResponse(ts),
		"count":        len(ts),
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := s.transactionIDs(w, r)
	if !ok {
		return
	}

	t, err := s.reader.GetTransaction(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := s.transactionIDs(w, r)
	if !ok {
		return
	}

	var req updateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd, err := req.toUpdate()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	updated, err := s.ledger.UpdateTransaction(r.Context(), userID, id, upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateUser(userID)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction updated",
		log.FieldTransactionID, id,
		log.FieldUserID, userID)
	writeJSON(w, http.StatusOK, transactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := s.transactionIDs(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteTransaction(r.Context(), userID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateUser(userID)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted",
		log.FieldTransactionID, id,
		log.FieldUserID, userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := s.transactionIDs(w, r)
	if !ok {
		return
	}

	completed, err := s.ledger.CompleteTransaction(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateUser(userID)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction completed",
		log.FieldTransactionID, id,
		log.FieldUserID, userID,
		log.FieldAmountCents, completed.SignedAmount().Cents)
	writeJSON(w, http.StatusOK, transactionResponse(completed))
}

func (s *Server) handleRecomputeBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.users.GetUser(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	balance, err := s.ledger.RecomputeBalance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateUser(userID)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Balance recomputed",
		log.FieldUserID, userID,
		log.FieldAmountCents, balance.Cents)
	writeJSON(w, http.StatusOK, map[string]core.Money{"balance": balance})
}

func (s *Server) transactionIDs(w http.ResponseWriter, r *http.Request) (userID, id int64, ok bool) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	id, err = pathID(r, "txID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return userID, id, true
}
