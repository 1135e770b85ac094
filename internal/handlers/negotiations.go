package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"bestsv/db"
)

// FullNegotiation - предложение продавца по заказу целиком вместе со
// строчными предложениями
type FullNegotiation struct {
	Negotiation        *db.Negotiation        `json:"negotiation,omitempty"`
	NegotiationDetails []db.NegotiationDetail `json:"negotiationDetails"`
}

// negotiationGuards выполняет общие проверки заказа перед подачей
// предложения. Возвращает заказ либо пишет ошибку и nil.
func (h *Handler) negotiationGuards(w http.ResponseWriter, r *http.Request, orderID int, supplierID string) *db.Order {
	order, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "order not found")
			return nil
		}
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return nil
	}
	if order.IsDeleted {
		writeError(w, http.StatusLocked, "order is deleted")
		return nil
	}
	if order.ProcessStatusID > db.StatusNegotiating {
		writeError(w, http.StatusLocked, "order is already accepted, negotiation is closed")
		return nil
	}
	if order.AccountID == supplierID {
		writeError(w, http.StatusForbidden, "cannot negotiate your own order")
		return nil
	}
	// Предназначенный заказ торгует только назначенный продавец
	if order.SupplierID != "" && order.SupplierID != supplierID {
		writeError(w, http.StatusForbidden, "order is reserved for another supplier")
		return nil
	}
	if !order.Expired.After(time.Now().UTC()) {
		writeError(w, http.StatusRequestTimeout, "order listing is expired")
		return nil
	}
	return order
}

// GetNegotiationHandler возвращает активное предложение продавца по
// заказу (GET /api/business/negotiations/{orderId})
func (h *Handler) GetNegotiationHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order.IsDeleted || order.ProcessStatusID == db.StatusFailed {
		writeError(w, http.StatusLocked, "order is not available")
		return
	}

	n, err := h.Store.GetNegotiation(r.Context(), orderID, p.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get negotiation")
		return
	}
	details, err := h.Store.GetNegotiationDetails(r.Context(), orderID, p.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get negotiation details")
		return
	}

	writeJSON(w, http.StatusOK, FullNegotiation{Negotiation: n, NegotiationDetails: details})
}

type putNegotiationInput struct {
	OrderID                   int       `json:"orderId"`
	OrderMaxDurationByMinutes int       `json:"orderMaxDurationByMinutes"`
	OrderLimitEdit            int       `json:"orderLimitEdit"`
	Expired                   time.Time `json:"expired"`
}

// PutNegotiationHandler подает или заменяет предложение продавца по
// заказу целиком (PUT /api/business/negotiations). Повторная подача
// перезаписывает прежнюю.
func (h *Handler) PutNegotiationHandler(w http.ResponseWriter, r *http.Request) {
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

	var input putNegotiationInput
	if err := json.Unmarshal(body, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	if input.OrderID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid orderId")
		return
	}
	if input.OrderMaxDurationByMinutes < db.MinCompletionMinutes || input.OrderMaxDurationByMinutes > db.MaxCompletionMinutes {
		writeError(w, http.StatusBadRequest, "orderMaxDurationByMinutes out of range",
			"completion window is from 3 hours to 7 days")
		return
	}
	if input.OrderLimitEdit < 0 {
		writeError(w, http.StatusBadRequest, "orderLimitEdit must not be negative")
		return
	}
	if !input.Expired.After(time.Now().UTC()) {
		writeError(w, http.StatusBadRequest, "expired must be in the future")
		return
	}

	order := h.negotiationGuards(w, r, input.OrderID, p.AccountID)
	if order == nil {
		return
	}

	n := &db.Negotiation{
		OrderID:                   input.OrderID,
		SupplierID:                p.AccountID,
		OrderMaxDurationByMinutes: input.OrderMaxDurationByMinutes,
		OrderLimitEdit:            input.OrderLimitEdit,
		Expired:                   input.Expired.UTC(),
	}
	if err := h.Store.UpsertNegotiation(r.Context(), n); err != nil {
		if db.IsConflict(err) {
			writeError(w, http.StatusConflict, "negotiation conflicts with existing data")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save negotiation")
		return
	}

	go h.Mail.NotifyNewNegotiation(order.AccountID, input.OrderID)
	w.WriteHeader(http.StatusNoContent)
}

type negotiationDetailInput struct {
	OrderDetailID        int     `json:"orderDetailId"`
	OrderDetailQuantity  int     `json:"orderDetailQuantity"`
	OrderDetailUnitPrice float64 `json:"orderDetailUnitPrice"`
}

type putNegotiationDetailsInput struct {
	OrderID int                      `json:"orderId"`
	Expired time.Time                `json:"expired"`
	Details []negotiationDetailInput `json:"details"`
}

// PutNegotiationDetailsHandler подает пакет строчных предложений
// (PUT /api/business/negotiations/details). Пакет делит один срок
// действия и пишется целиком либо никак.
func (h *Handler) PutNegotiationDetailsHandler(w http.ResponseWriter, r *http.Request) {
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

	var input putNegotiationDetailsInput
	if err := json.Unmarshal(body, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	if input.OrderID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid orderId")
		return
	}
	if len(input.Details) == 0 {
		writeError(w, http.StatusBadRequest, "details must not be empty")
		return
	}
	if !input.Expired.After(time.Now().UTC()) {
		writeError(w, http.StatusBadRequest, "expired must be in the future")
		return
	}
	for _, d := range input.Details {
		if d.OrderDetailQuantity <= 0 {
			writeError(w, http.StatusBadRequest, "orderDetailQuantity must be positive")
			return
		}
		if d.OrderDetailUnitPrice < 0 {
			writeError(w, http.StatusBadRequest, "orderDetailUnitPrice must not be negative")
			return
		}
	}

	order := h.negotiationGuards(w, r, input.OrderID, p.AccountID)
	if order == nil {
		return
	}

	// Каждая строка предложения должна принадлежать этому заказу
	orderDetails, err := h.Store.GetOrderDetails(r.Context(), input.OrderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get order details")
		return
	}
	known := map[int]bool{}
	for _, d := range orderDetails {
		known[d.OrderDetailID] = true
	}
	items := make([]db.NegotiationDetail, len(input.Details))
	for i, d := range input.Details {
		if !known[d.OrderDetailID] {
			writeError(w, http.StatusNotFound, "order detail does not belong to this order")
			return
		}
		items[i] = db.NegotiationDetail{
			OrderDetailID:        d.OrderDetailID,
			OrderDetailQuantity:  d.OrderDetailQuantity,
			OrderDetailUnitPrice: d.OrderDetailUnitPrice,
		}
	}

	if err := h.Store.UpsertNegotiationDetails(r.Context(), input.OrderID, p.AccountID, input.Expired.UTC(), items); err != nil {
		if db.IsConflict(err) {
			writeError(w, http.StatusConflict, "negotiation conflicts with existing data")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save negotiation details")
		return
	}

	go h.Mail.NotifyNewNegotiation(order.AccountID, input.OrderID)
	w.WriteHeader(http.StatusNoContent)
}

// ResolveNegotiationHandler закрывает торг решением покупателя
// (DELETE /api/user/negotiations/{orderId}/{supplierId}?isAccept=).
// Просроченное предложение не закрывается и не удаляется: продавец
// может подать его заново.
func (h *Handler) ResolveNegotiationHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	supplierID := strings.ToLower(chi.URLParam(r, "supplierId"))
	if supplierID == "" {
		writeError(w, http.StatusBadRequest, "invalid supplierId")
		return
	}
	isAccept, err := strconv.ParseBool(r.URL.Query().Get("isAccept"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "isAccept must be true or false")
		return
	}

	n, err := h.Store.GetNegotiation(r.Context(), orderID, supplierID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get negotiation")
		return
	}
	details, err := h.Store.GetNegotiationDetails(r.Context(), orderID, supplierID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get negotiation details")
		return
	}
	if n == nil && len(details) == 0 {
		writeError(w, http.StatusNotFound, "no negotiation from this supplier")
		return
	}

	now := time.Now().UTC()
	if (n != nil && !n.Expired.After(now)) ||
		(len(details) > 0 && !details[0].Expired.After(now)) {
		writeError(w, http.StatusRequestTimeout, "negotiation offer is expired",
			"the supplier can submit a fresh offer")
		return
	}

	order, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order.IsDeleted || order.ProcessStatusID == db.StatusFailed {
		writeError(w, http.StatusLocked, "order is not available")
		return
	}
	if order.ProcessStatusID > db.StatusNegotiating {
		writeError(w, http.StatusLocked, "order is already accepted")
		return
	}
	if !order.Expired.After(now) {
		writeError(w, http.StatusRequestTimeout, "order listing is expired")
		return
	}
	if order.AccountID != p.AccountID {
		writeError(w, http.StatusForbidden, "only the order owner can resolve negotiations")
		return
	}

	if err := h.Store.ResolveNegotiation(r.Context(), orderID, supplierID, isAccept); err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "no negotiation from this supplier")
			return
		}
		if db.IsConflict(err) {
			writeError(w, http.StatusConflict, "concurrent change, try again")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve negotiation")
		return
	}

	if isAccept {
		go h.Mail.NotifyOrderReceived(supplierID, orderID)
	}
	w.WriteHeader(http.StatusNoContent)
}
