package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// GetCategoriesHandler возвращает справочник категорий
// (GET /api/public/categories)
func (h *Handler) GetCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Store.GetCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get categories")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// GetCategoryDescendantsHandler возвращает идентификаторы всего
// поддерева категории (GET /api/public/categories/{categoryId}/descendants)
func (h *Handler) GetCategoryDescendantsHandler(w http.ResponseWriter, r *http.Request) {
	categoryID, err := strconv.Atoi(chi.URLParam(r, "categoryId"))
	if err != nil || categoryID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid categoryId")
		return
	}

	descendants, err := h.Store.CategoryDescendants(r.Context(), categoryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get category descendants")
		return
	}
	writeJSON(w, http.StatusOK, descendants)
}
