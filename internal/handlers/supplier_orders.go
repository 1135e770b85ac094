package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"bestsv/db"
	"bestsv/internal/cloud"
)

// GetSupplierOrdersHandler возвращает заказы в работе у продавца
// (GET /api/business/orders)
func (h *Handler) GetSupplierOrdersHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	params := parsePaginationParams(r)

	filter := db.OrderFilter{
		SupplierID: p.AccountID,
		Limit:      params.Limit,
		Offset:     params.Offset,
	}
	var bad bool
	filter.FromDay, bad = parseDayParam(r, "fromDay")
	if bad {
		writeError(w, http.StatusBadRequest, "invalid fromDay")
		return
	}
	filter.ToDay, bad = parseDayParam(r, "toDay")
	if bad {
		writeError(w, http.StatusBadRequest, "invalid toDay")
		return
	}

	orders, err := h.Store.GetOrders(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get orders")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// ClaimOrderHandler принимает заказ в работу (PATCH /api/business/orders/{orderId}).
// При гонке двух продавцов выигрывает ровно один, проигравший получает 423.
func (h *Handler) ClaimOrderHandler(w http.ResponseWriter, r *http.Request) {
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
	if order.IsDeleted {
		writeError(w, http.StatusLocked, "order is deleted")
		return
	}
	if order.AccountID == p.AccountID {
		writeError(w, http.StatusForbidden, "cannot claim your own order")
		return
	}
	if !order.Expired.After(time.Now().UTC()) {
		writeError(w, http.StatusRequestTimeout, "order listing is expired")
		return
	}
	if order.ProcessStatusID == db.StatusNegotiating {
		writeError(w, http.StatusMethodNotAllowed, "order is being negotiated",
			"resolve the negotiation instead of claiming directly")
		return
	}
	if order.ProcessStatusID > db.StatusAssignedNegotiable ||
		(order.ProcessStatusID == db.StatusAssignedNegotiable && order.SupplierID != p.AccountID) {
		writeError(w, http.StatusLocked, "order is not available for claiming")
		return
	}

	if err := h.Store.ClaimOrder(r.Context(), orderID, p.AccountID); err != nil {
		if errors.Is(err, db.ErrStateConflict) {
			// Другой продавец успел раньше
			writeError(w, http.StatusLocked, "order was just taken by another supplier")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to claim order")
		return
	}

	go h.Mail.NotifyOrderReceived(order.AccountID, orderID)
	w.WriteHeader(http.StatusNoContent)
}

// UploadDeliverableHandler принимает результат работы по строке заказа
// (PATCH /api/business/orders/details/{orderDetailId}). Подпись считается
// ключом назначенного продавца; после загрузки заказ уходит на проверку.
func (h *Handler) UploadDeliverableHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	orderDetailID, err := strconv.Atoi(chi.URLParam(r, "orderDetailId"))
	if err != nil || orderDetailID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid orderDetailId")
		return
	}

	detail, err := h.Store.GetOrderDetail(r.Context(), orderDetailID)
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "order detail not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get order detail")
		return
	}
	if detail.IsAccepted {
		writeError(w, http.StatusForbidden, "deliverable is already accepted")
		return
	}

	order, err := h.Store.GetOrder(r.Context(), detail.OrderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order.IsDeleted {
		writeError(w, http.StatusLocked, "order is deleted")
		return
	}
	if order.ProcessStatusID < db.StatusAccepted || order.ProcessStatusID > db.StatusRevisionRequested {
		writeError(w, http.StatusLocked, "order does not accept deliverables in its current status")
		return
	}
	if order.SupplierID != p.AccountID {
		writeError(w, http.StatusForbidden, "only the assigned supplier can upload deliverables")
		return
	}

	account, err := h.Store.GetAccount(r.Context(), order.SupplierID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	fileName, data, ok := decodeSignedFile(w, r, account.SecretKey)
	if !ok {
		return
	}

	ref, err := h.Files.Upload(fileName, data, cloud.AttachFolder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	uploadedAt := time.Now().UTC()
	if err := h.Store.SetOrderDetailFile(r.Context(), orderDetailID, detail.OrderID, ref, uploadedAt); err != nil {
		h.Files.Delete(ref)
		writeError(w, http.StatusInternalServerError, "failed to save deliverable")
		return
	}
	if detail.FileURI != "" {
		h.Files.Delete(detail.FileURI)
	}

	go h.Mail.NotifyDeliverableUpdated(order.AccountID, detail.OrderID, orderDetailID)
	writeJSON(w, http.StatusCreated, map[string]string{"fileName": fileName})
}

// DownloadDescriptionFileHandler отдает файл описания заказа
// (GET /api/business/orders/{orderId}/description). Приватный файл
// доступен только назначенному продавцу.
func (h *Handler) DownloadDescriptionFileHandler(w http.ResponseWriter, r *http.Request) {
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
	if order.IsDeleted {
		writeError(w, http.StatusLocked, "order is deleted")
		return
	}
	if order.ProcessStatusID == db.StatusFailed {
		writeError(w, http.StatusLocked, "order is failed")
		return
	}
	if order.DescriptionFileURI == "" {
		writeError(w, http.StatusNotFound, "order has no description file")
		return
	}
	if order.IsDescriptionFilePrivate && order.SupplierID != p.AccountID {
		writeError(w, http.StatusForbidden, "description file is private",
			"the file becomes available to the supplier assigned to the order")
		return
	}

	data, err := h.Files.Download(order.DescriptionFileURI)
	if err != nil {
		if errors.Is(err, cloud.ErrFileNotFound) {
			writeError(w, http.StatusNotFound, "description file is missing from storage")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to download file")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
