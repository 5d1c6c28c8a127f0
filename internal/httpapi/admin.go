package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kasirinaja/backoffice/internal/domain"
)

func (a *API) handleGetStock(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("product_id")
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id is required"))
		return
	}

	stock, err := a.service.GetStock(r.Context(), strings.Split(raw, ","))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": stock})
}

func (a *API) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	productID := chi.URLParam(r, "productID")
	if err := a.service.SetStock(r.Context(), productID, req.Qty); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": strings.ToUpper(strings.TrimSpace(productID)), "qty": req.Qty})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), entityID, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleObservers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"observers": a.service.ObserverNames()})
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"report": a.service.AnalyticsReport(r.Context())})
}

func (a *API) handleDailyAnalytics(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	report, err := a.service.DailyAnalyticsReport(r.Context(), day)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format("2006-01-02"), "report": report})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}
