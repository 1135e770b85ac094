package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"bestsv/db"
	"bestsv/internal/cloud"
	"bestsv/internal/integrity"
)

type orderDetailInput struct {
	CategoryID  int     `json:"categoryId"`
	Quantity    int     `json:"quantity"`
	ProductName string  `json:"productName"`
	UnitPrice   float64 `json:"unitPrice"`
	Note        string  `json:"note"`
}

type createOrderInput struct {
	SupplierID               string             `json:"supplierId"`
	Expired                  time.Time          `json:"expired"`
	MaxDurationByMinutes     int                `json:"maxDurationByMinutes"`
	LimitEdit                int                `json:"limitEdit"`
	IsDescriptionFilePrivate bool               `json:"isDescriptionFilePrivate"`
	DescriptionText          string             `json:"descriptionText"`
	CommissionPercent        *float64           `json:"commissionPercent"`
	Tip                      *float64           `json:"tip"`
	OrderDetails             []orderDetailInput `json:"orderDetails"`
}

// CreateOrderHandler обрабатывает POST /api/user/orders запрос
func (h *Handler) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
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

	var input createOrderInput
	if err := json.Unmarshal(body, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}

	now := time.Now().UTC()
	if !input.Expired.After(now) {
		writeError(w, http.StatusBadRequest, "expired must be in the future")
		return
	}
	if input.MaxDurationByMinutes < db.MinCompletionMinutes || input.MaxDurationByMinutes > db.MaxCompletionMinutes {
		writeError(w, http.StatusBadRequest, "maxDurationByMinutes out of range",
			"completion window is from 3 hours to 7 days")
		return
	}
	if input.LimitEdit < 0 {
		writeError(w, http.StatusBadRequest, "limitEdit must not be negative")
		return
	}
	if len(input.OrderDetails) == 0 {
		writeError(w, http.StatusBadRequest, "order must contain at least one detail line")
		return
	}
	for _, d := range input.OrderDetails {
		if d.ProductName == "" {
			writeError(w, http.StatusBadRequest, "productName is required")
			return
		}
		if d.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "quantity must be positive")
			return
		}
		if d.UnitPrice < 0 {
			writeError(w, http.StatusBadRequest, "unitPrice must not be negative")
			return
		}
	}

	// Категории строк должны быть листовыми; одинаковые проверяются один раз
	checked := map[int]bool{}
	for _, d := range input.OrderDetails {
		if checked[d.CategoryID] {
			continue
		}
		checked[d.CategoryID] = true
		hasChildren, err := h.Store.CategoryHasChildren(r.Context(), d.CategoryID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check category")
			return
		}
		if hasChildren {
			writeError(w, http.StatusBadRequest, "category is not a leaf",
				"pick a category without subcategories")
			return
		}
	}

	status := db.StatusPending
	if input.SupplierID != "" {
		if p.AccountID == strings.ToLower(input.SupplierID) {
			writeError(w, http.StatusForbidden, "cannot assign the order to yourself")
			return
		}
		exists, err := h.Store.SupplierExists(r.Context(), input.SupplierID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check supplier")
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "supplier not found")
			return
		}
		status = db.StatusAssignedNegotiable
	}

	commission := db.DefaultCommission
	if input.CommissionPercent != nil {
		if *input.CommissionPercent < 0 || *input.CommissionPercent > 100 {
			writeError(w, http.StatusBadRequest, "commissionPercent out of range")
			return
		}
		commission = *input.CommissionPercent
	}

	order := &db.Order{
		AccountID:                p.AccountID,
		SupplierID:               strings.ToLower(input.SupplierID),
		ProcessStatusID:          status,
		CreatedAt:                now,
		Expired:                  input.Expired.UTC(),
		MaxDurationByMinutes:     input.MaxDurationByMinutes,
		LimitEdit:                input.LimitEdit,
		IsDescriptionFilePrivate: input.IsDescriptionFilePrivate,
		DescriptionText:          input.DescriptionText,
		CommissionPercent:        commission,
		Tip:                      input.Tip,
	}
	details := make([]db.OrderDetail, len(input.OrderDetails))
	for i, d := range input.OrderDetails {
		details[i] = db.OrderDetail{
			CategoryID:  d.CategoryID,
			Quantity:    d.Quantity,
			ProductName: d.ProductName,
			UnitPrice:   d.UnitPrice,
			Note:        d.Note,
		}
	}

	if err := h.Store.CreateOrderWithDetails(r.Context(), order, details); err != nil {
		if db.IsConflict(err) {
			writeError(w, http.StatusConflict, "order conflicts with existing data")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	if order.SupplierID != "" {
		go h.Mail.NotifyOrderReceived(order.SupplierID, order.OrderID)
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetUserOrdersHandler возвращает заказы покупателя (GET /api/user/orders)
func (h *Handler) GetUserOrdersHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	params := parsePaginationParams(r)

	filter := db.OrderFilter{
		AccountID: p.AccountID,
		Limit:     params.Limit,
		Offset:    params.Offset,
	}
	if r.URL.Query().Get("isPending") == "true" {
		filter.OnlyPending = true
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

// GetPublicOrdersHandler возвращает открытые заказы каталога
// (GET /api/public/orders) с фильтрами по поддереву категории и тегу
func (h *Handler) GetPublicOrdersHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	filter := db.OrderFilter{
		OnlyPending: true,
		Limit:       params.Limit,
		Offset:      params.Offset,
	}
	if r.URL.Query().Get("isPending") == "false" {
		filter.OnlyPending = false
	}

	if categoryStr := r.URL.Query().Get("categoryId"); categoryStr != "" {
		categoryID, err := strconv.Atoi(categoryStr)
		if err != nil || categoryID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid categoryId")
			return
		}
		// Фильтр по категории покрывает всё её поддерево
		descendants, err := h.Store.CategoryDescendants(r.Context(), categoryID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to expand category")
			return
		}
		filter.CategoryIDs = append([]int{categoryID}, descendants...)
	}
	if tag := r.URL.Query().Get("tagId"); tag != "" {
		if !tagPattern.MatchString(tag) {
			writeError(w, http.StatusBadRequest, "invalid tagId")
			return
		}
		filter.Tag = strings.ToLower(tag)
	}

	orders, err := h.Store.GetOrders(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get orders")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetPublicOrderHandler возвращает один заказ со строками
// (GET /api/public/orders/{orderId})
func (h *Handler) GetPublicOrderHandler(w http.ResponseWriter, r *http.Request) {
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

	details, err := h.Store.GetOrderDetails(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get order details")
		return
	}
	order.OrderDetails = details

	writeJSON(w, http.StatusOK, order)
}

// GetOrdersCountHandler возвращает число заказов аккаунта
// (GET /api/public/orders/count?accountId=&type=), type: 0 покупатель, 1 продавец
func (h *Handler) GetOrdersCountHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing accountId")
		return
	}
	typeStr := r.URL.Query().Get("type")
	if typeStr != "0" && typeStr != "1" {
		writeError(w, http.StatusBadRequest, "type must be 0 or 1")
		return
	}
	asSupplier := typeStr == "1"

	if asSupplier {
		exists, err := h.Store.SupplierExists(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check supplier")
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "supplier not found")
			return
		}
	} else {
		if _, err := h.Store.GetAccount(r.Context(), accountID); err != nil {
			if db.IsNotFound(err) {
				writeError(w, http.StatusNotFound, "account not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to check account")
			return
		}
	}

	count, err := h.Store.CountOrders(r.Context(), accountID, asSupplier)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// WithdrawOrderHandler снимает заказ с размещения (DELETE /api/user/orders/{orderId}).
// Удаление мягкое, заказ остается в истории.
func (h *Handler) WithdrawOrderHandler(w http.ResponseWriter, r *http.Request) {
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
	if order.AccountID != p.AccountID {
		writeError(w, http.StatusForbidden, "only the order owner can withdraw it")
		return
	}
	if order.IsDeleted {
		writeError(w, http.StatusLocked, "order is already deleted")
		return
	}
	if order.ProcessStatusID > db.StatusAssignedNegotiable {
		writeError(w, http.StatusLocked, "order is already in progress",
			"withdrawal is possible before a supplier accepts the order")
		return
	}

	if err := h.Store.SoftDeleteOrder(r.Context(), orderID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to withdraw order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attachFileInput struct {
	FileName  string `json:"fileName"`
	Data      string `json:"data"` // base64
	Signature string `json:"signature"`
}

// decodeSignedFile читает подписанное файловое вложение из тела запроса
// и проверяет подпись HMAC-SHA256 ключом secretKey.
func decodeSignedFile(w http.ResponseWriter, r *http.Request, secretKey string) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return "", nil, false
	}
	defer r.Body.Close()

	var input attachFileInput
	if err := json.Unmarshal(body, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return "", nil, false
	}
	if input.FileName == "" {
		writeError(w, http.StatusBadRequest, "fileName is required")
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(input.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "data must be base64")
		return "", nil, false
	}
	if !integrity.New(secretKey).Verify(data, input.Signature) {
		writeError(w, http.StatusBadRequest, "signature mismatch",
			"sign the raw file bytes with your secret key using HMAC-SHA256")
		return "", nil, false
	}
	return input.FileName, data, true
}

// AttachDescriptionFileHandler прикрепляет файл описания к заказу
// (PATCH /api/user/orders/{orderId}/description). Повторная загрузка
// заменяет прежний файл.
func (h *Handler) AttachDescriptionFileHandler(w http.ResponseWriter, r *http.Request) {
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
	if order.AccountID != p.AccountID {
		writeError(w, http.StatusForbidden, "only the order owner can attach a description file")
		return
	}
	if order.IsDeleted {
		writeError(w, http.StatusLocked, "order is deleted")
		return
	}
	if order.ProcessStatusID >= db.StatusCompleted {
		writeError(w, http.StatusLocked, "order is finished")
		return
	}

	account, err := h.Store.GetAccount(r.Context(), p.AccountID)
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
	if err := h.Store.SetOrderDescriptionFile(r.Context(), orderID, ref); err != nil {
		h.Files.Delete(ref)
		writeError(w, http.StatusInternalServerError, "failed to attach file")
		return
	}
	// Прежний файл больше недоступен, чистим без гарантий
	if order.DescriptionFileURI != "" {
		h.Files.Delete(order.DescriptionFileURI)
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReviewOrderDetailHandler фиксирует решение покупателя по загруженному
// результату строки (PATCH /api/user/orders/details/{orderDetailId}).
// Отказ без требования не принимается.
func (h *Handler) ReviewOrderDetailHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	orderDetailID, err := strconv.Atoi(chi.URLParam(r, "orderDetailId"))
	if err != nil || orderDetailID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid orderDetailId")
		return
	}
	isAcceptStr := r.URL.Query().Get("isAccept")
	isAccept, err := strconv.ParseBool(isAcceptStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "isAccept must be true or false")
		return
	}
	requirement := r.URL.Query().Get("requirement")
	if !isAccept && requirement == "" {
		writeError(w, http.StatusPreconditionFailed, "requirement is required to reject a deliverable")
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
	if detail.FileURI == "" {
		writeError(w, http.StatusNotFound, "no deliverable uploaded for this detail")
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
	if order.ProcessStatusID != db.StatusUnderReview && order.ProcessStatusID != db.StatusRevisionRequested {
		writeError(w, http.StatusLocked, "order is not under review")
		return
	}
	if order.AccountID != p.AccountID {
		writeError(w, http.StatusForbidden, "only the order owner can review deliverables")
		return
	}

	edited, err := h.Store.CountDetailEdits(r.Context(), orderDetailID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count edits")
		return
	}
	if edited >= order.LimitEdit {
		writeError(w, http.StatusForbidden, "revision budget is exhausted")
		return
	}

	status, err := h.Store.ApplyReviewDecision(r.Context(), orderDetailID, detail.OrderID, isAccept, requirement, order.LimitEdit)
	if err != nil {
		if db.IsConflict(err) {
			writeError(w, http.StatusConflict, "concurrent review, try again")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to apply review decision")
		return
	}

	if status == db.StatusCompleted && order.SupplierID != "" {
		go h.Mail.NotifyOrderCompleted(order.SupplierID, order.OrderID)
	}

	writeJSON(w, http.StatusOK, map[string]int{"processStatusId": status})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	orderID, err := strconv.Atoi(chi.URLParam(r, "orderId"))
	if err != nil || orderID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid orderId")
		return 0, false
	}
	return orderID, true
}

func parseDayParam(r *http.Request, name string) (*time.Time, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Допускаем и короткую форму без времени
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil, true
		}
	}
	return &t, false
}
