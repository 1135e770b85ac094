package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bestsv/db"
)

type createEvaluationInput struct {
	OrderID int    `json:"orderId"`
	Rate    int    `json:"rate"`
	Comment string `json:"comment"`
}

// CreateEvaluationHandler сохраняет оценку покупателя по завершенному
// заказу (POST /api/user/evaluations). Одна оценка на заказ, без правок.
func (h *Handler) CreateEvaluationHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	var input createEvaluationInput
	if err := json.Unmarshal(body, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	if input.OrderID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid orderId")
		return
	}
	// Шкала оценок: от 0 до 50 с шагом 5
	if input.Rate < 0 || input.Rate > 50 {
		writeError(w, http.StatusBadRequest, "rate must be between 0 and 50")
		return
	}
	if input.Rate%5 != 0 {
		writeError(w, http.StatusBadRequest, "rate must be a multiple of 5")
		return
	}

	order, err := h.Store.GetOrder(r.Context(), input.OrderID)
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order.IsDeleted {
		writeError(w, http.StatusLocked, "order is deleted")
		return
	}
	if order.ProcessStatusID != db.StatusCompleted {
		writeError(w, http.StatusLocked, "only completed orders can be evaluated")
		return
	}
	if order.AccountID != p.AccountID {
		writeError(w, http.StatusForbidden, "only the order owner can evaluate it")
		return
	}

	exists, err := h.Store.EvaluationExists(r.Context(), input.OrderID, db.EvalBuyerRatesSupplier)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check evaluation")
		return
	}
	if exists {
		writeError(w, http.StatusForbidden, "order is already evaluated")
		return
	}

	eval := &db.OrderEvaluation{
		OrderID:  input.OrderID,
		EvalType: db.EvalBuyerRatesSupplier,
		Rate:     input.Rate,
		Comment:  input.Comment,
	}
	if err := h.Store.CreateOrderEvaluation(r.Context(), eval); err != nil {
		if db.IsConflict(err) {
			writeError(w, http.StatusForbidden, "order is already evaluated")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create evaluation")
		return
	}

	writeJSON(w, http.StatusCreated, eval)
}

// GetEvaluationHandler возвращает оценку по заказу
// (GET /api/public/evaluations/{orderId}/{evalType})
func (h *Handler) GetEvaluationHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	evalType, err := strconv.ParseBool(chi.URLParam(r, "evalType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid evalType")
		return
	}

	eval, err := h.Store.GetOrderEvaluation(r.Context(), orderID, evalType)
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "evaluation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get evaluation")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

type rateStatsResponse struct {
	AverageRate *float64 `json:"averageRate"`
	Count       int      `json:"count"`
}

func (h *Handler) rateStats(w http.ResponseWriter, r *http.Request, asSupplier bool) {
	accountID := chi.URLParam(r, "accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing accountId")
		return
	}

	stats, err := h.Store.RateStats(r.Context(), accountID, asSupplier)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get rate statistics")
		return
	}

	// Без оценок среднего не существует, отдаем null вместо нуля
	resp := rateStatsResponse{Count: stats.Count}
	if stats.Count > 0 {
		resp.AverageRate = &stats.AverageRate
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAccountRateStatsHandler - средняя оценка аккаунта как покупателя
// (GET /api/public/evaluations/accounts/{accountId})
func (h *Handler) GetAccountRateStatsHandler(w http.ResponseWriter, r *http.Request) {
	h.rateStats(w, r, false)
}

// GetSupplierRateStatsHandler - средняя оценка аккаунта как продавца
// (GET /api/public/evaluations/suppliers/{accountId})
func (h *Handler) GetSupplierRateStatsHandler(w http.ResponseWriter, r *http.Request) {
	h.rateStats(w, r, true)
}
