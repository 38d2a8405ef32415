package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/export"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := a.service.ListStockBatches(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleAddIncomingStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockIntakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.authorizeOverride(w, r, req.OverrideFundsCheck, req.ManagerPIN) {
		return
	}

	result, err := a.service.AddIncomingStock(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req domain.RestockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.authorizeOverride(w, r, req.OverrideFundsCheck, req.ManagerPIN) {
		return
	}

	result, err := a.service.Restock(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req domain.PricingUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	batch, err := a.service.UpdateProductPricing(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (a *API) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	refund := false
	if raw := strings.TrimSpace(r.URL.Query().Get("refund")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("refund: %w", err))
			return
		}
		refund = parsed
	}

	if err := a.service.DeleteBatch(r.Context(), chi.URLParam(r, "id"), refund); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStockConsistency(w http.ResponseWriter, r *http.Request) {
	mismatches, err := a.service.VerifyStockConsistency(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consistent": len(mismatches) == 0,
		"mismatches": mismatches,
	})
}

func (a *API) handleExportStock(w http.ResponseWriter, r *http.Request) {
	batches, err := a.service.ListStockBatches(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	buf, err := export.StockWorkbook(batches)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeWorkbook(w, "stock_batches.xlsx", buf)
}

func (a *API) handleConsumeStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Qty int `json:"qty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	allocations, err := a.service.ConsumeStockForSale(r.Context(), chi.URLParam(r, "id"), req.Qty)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allocations": allocations})
}

func (a *API) handleProcessTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.ProcessTransaction(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sales, err := a.service.ListTransactions(r.Context(), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": sales})
}

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	cash, err := a.service.CashBalance(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	transfer, err := a.service.TransferBalance(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cash_cents":     cash,
		"transfer_cents": transfer,
	})
}

func (a *API) handleCashAvailability(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("amount")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("amount must be an integer number of cents"))
		return
	}

	available, err := a.service.CheckCashAvailability(r.Context(), amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amount_cents": amount,
		"available":    available,
	})
}

func (a *API) handleListFlows(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entries, err := a.service.ListFlows(r.Context(), query.Get("method"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	limit := parsePositiveLimit(query.Get("limit"), 200, 1000)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleAddCashFlow(w http.ResponseWriter, r *http.Request) {
	var req domain.FlowEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := a.service.AddCashFlow(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleCashFlowSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	summary, err := a.service.CashFlowSummary(r.Context(), query.Get("start"), query.Get("end"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleExportCashFlowSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	summary, err := a.service.CashFlowSummary(r.Context(), query.Get("start"), query.Get("end"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	buf, err := export.CashFlowWorkbook(summary)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeWorkbook(w, fmt.Sprintf("cashflow_%s_%s.xlsx", summary.StartDate, summary.EndDate), buf)
}

func (a *API) handleLastMonthBalance(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	year, err := strconv.Atoi(strings.TrimSpace(query.Get("year")))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("year must be an integer"))
		return
	}
	month, err := strconv.Atoi(strings.TrimSpace(query.Get("month")))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("month must be an integer"))
		return
	}

	balance, err := a.service.LastMonthBalance(r.Context(), year, time.Month(month))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleRecomputeMonth(w http.ResponseWriter, r *http.Request) {
	row, err := a.service.RecomputeMonth(r.Context(), chi.URLParam(r, "month"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (a *API) handleCloseMonth(w http.ResponseWriter, r *http.Request) {
	row, err := a.service.CloseMonth(r.Context(), chi.URLParam(r, "month"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func writeWorkbook(w http.ResponseWriter, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
