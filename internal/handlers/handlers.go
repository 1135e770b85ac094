package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"bestsv/internal/cloud"
	"bestsv/internal/mail"
	appmw "bestsv/internal/middleware"
)

// Handler оборачивает Storage и внешние зависимости (файлы, почта)
type Handler struct {
	Store StorageInterface
	Files cloud.FileStore
	Mail  mail.OrderMailer
}

// NewHandler создает новый Handler
func NewHandler(store StorageInterface, files cloud.FileStore, mailer mail.OrderMailer) *Handler {
	return &Handler{Store: store, Files: files, Mail: mailer}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// StatusError - единый формат тела ошибки API
type StatusError struct {
	StatusCode   int      `json:"statusCode"`
	Message      string   `json:"message"`
	RepairGuides []string `json:"repairGuides,omitempty"`
	SupportURL   string   `json:"supportUrl"`
}

// Write сериализует ошибку в ответ. Если SupportURL не задан, ссылка
// ведет на справку MDN по коду статуса.
func (e StatusError) Write(w http.ResponseWriter) {
	if e.SupportURL == "" {
		e.SupportURL = fmt.Sprintf("https://developer.mozilla.org/en-US/docs/Web/HTTP/Status/%d", e.StatusCode)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(e)
}

func writeError(w http.ResponseWriter, statusCode int, message string, repairGuides ...string) {
	StatusError{StatusCode: statusCode, Message: message, RepairGuides: repairGuides}.Write(w)
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams парсит limit и offset из query, с дефолтами и ограничениями
func parsePaginationParams(r *http.Request) PaginationParams {
	var params PaginationParams
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	params.Limit = 5 // дефолт
	params.Offset = 0

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 50 {
			params.Limit = l
		}
	}
	if offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}

// principal достает аутентифицированного пользователя из контекста.
// При отсутствии (маршрут без Authorize) пишет 401 и возвращает false.
func principal(w http.ResponseWriter, r *http.Request) (appmw.Principal, bool) {
	p, ok := appmw.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return appmw.Principal{}, false
	}
	return p, true
}
