package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kasirinaja/backoffice/internal/domain"
)

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.ListPayments(r.Context(), parseListQuery(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payment, err := a.service.CreatePayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
}

func (a *API) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
}

func (a *API) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeletePayment(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payment, err := a.service.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
}

func (a *API) handleAddInstallment(w http.ResponseWriter, r *http.Request) {
	var req domain.InstallmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payment, err := a.service.AddInstallment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
}
