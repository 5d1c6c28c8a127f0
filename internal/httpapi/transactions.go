package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kasirinaja/backoffice/internal/domain"
)

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.ListTransactions(r.Context(), parseListQuery(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.CreateTransaction(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCompleteTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.CompleteTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.CancelTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleReopenTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.ReopenTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleAddLineItem(w http.ResponseWriter, r *http.Request) {
	var req domain.LineItemInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.AddLineItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"line_item": item})
}

func (a *API) handleUpdateLineItem(w http.ResponseWriter, r *http.Request) {
	var req domain.LineItemUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.UpdateLineItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productID"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleRemoveLineItem(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.RemoveLineItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}
