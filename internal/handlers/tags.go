package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"bestsv/db"
)

// Теги хранятся в нижнем регистре; допустимы латиница, цифры, - и _
var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// tagGuards проверяет заказ и права владельца перед операцией с тегами
func (h *Handler) tagGuards(w http.ResponseWriter, r *http.Request, orderID int, accountID string) bool {
	order, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "order not found")
			return false
		}
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return false
	}
	if order.AccountID != accountID {
		writeError(w, http.StatusForbidden, "only the order owner can manage tags")
		return false
	}
	return true
}

// GetOrderTagsHandler возвращает теги заказа (GET /api/user/tags/{orderId})
func (h *Handler) GetOrderTagsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	if !h.tagGuards(w, r, orderID, p.AccountID) {
		return
	}

	tags, err := h.Store.GetOrderTags(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get tags")
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// AddOrderTagHandler помечает заказ тегом (POST /api/user/tags/{orderId}/{tagId}).
// Несуществующий тег создается на месте.
func (h *Handler) AddOrderTagHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	tag := chi.URLParam(r, "tagId")
	if !tagPattern.MatchString(tag) {
		writeError(w, http.StatusBadRequest, "invalid tag",
			"tags are letters, digits, - and _ without spaces")
		return
	}
	tag = strings.ToLower(tag)

	if !h.tagGuards(w, r, orderID, p.AccountID) {
		return
	}

	exists, err := h.Store.OrderTagExists(r.Context(), orderID, tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check tag")
		return
	}
	if exists {
		writeError(w, http.StatusForbidden, "order already has this tag")
		return
	}

	if err := h.Store.AttachOrderTag(r.Context(), orderID, tag); err != nil {
		if db.IsConflict(err) {
			writeError(w, http.StatusForbidden, "order already has this tag")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to attach tag")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"orderId": orderID, "tagId": tag})
}

// RemoveOrderTagHandler снимает тег с заказа (DELETE /api/user/tags/{orderId}/{tagId})
func (h *Handler) RemoveOrderTagHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	tag := strings.ToLower(chi.URLParam(r, "tagId"))

	if !h.tagGuards(w, r, orderID, p.AccountID) {
		return
	}

	if err := h.Store.DetachOrderTag(r.Context(), orderID, tag); err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "order does not have this tag")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to detach tag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
