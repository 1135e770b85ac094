package handlers_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bestsv/db"
	"bestsv/internal/handlers/testutils"
)

func TestGetOrderTagsHandler(t *testing.T) {
	mockStore := &MockStorage{
		order: &db.Order{OrderID: 1, AccountID: "buyer", Expired: futureTime()},
		tags:  []string{"urgent", "office"},
	}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/user/tags/1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1"})
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.GetOrderTagsHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "urgent")
}

func TestAddOrderTagHandler(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{OrderID: 1, AccountID: "buyer", Expired: futureTime()}}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/user/tags/1/Urgent", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "tagId": "Urgent"})
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.AddOrderTagHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	// Тег нормализуется к нижнему регистру
	require.Contains(t, string(body), `"tagId":"urgent"`)
	require.Equal(t, "urgent", mockStore.attachedTag)
}

func TestAddOrderTagHandlerInvalid(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{OrderID: 1, AccountID: "buyer", Expired: futureTime()}}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/user/tags/1/bad%20tag", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "tagId": "bad tag"})
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.AddOrderTagHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	require.Empty(t, mockStore.attachedTag)
}

func TestAddOrderTagHandlerDuplicate(t *testing.T) {
	mockStore := &MockStorage{
		order:     &db.Order{OrderID: 1, AccountID: "buyer", Expired: futureTime()},
		tagExists: true,
	}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/user/tags/1/urgent", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "tagId": "urgent"})
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.AddOrderTagHandler(w, req)

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
}

func TestAddOrderTagHandlerNotOwner(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{OrderID: 1, AccountID: "buyer", Expired: futureTime()}}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/user/tags/1/urgent", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "tagId": "urgent"})
	req = authed(req, "stranger")
	w := httptest.NewRecorder()

	handler.AddOrderTagHandler(w, req)

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
}

func TestRemoveOrderTagHandlerMissing(t *testing.T) {
	mockStore := &MockStorage{
		order:     &db.Order{OrderID: 1, AccountID: "buyer", Expired: futureTime()},
		detachErr: db.ErrNotFound,
	}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodDelete, "/api/user/tags/1/urgent", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "tagId": "urgent"})
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.RemoveOrderTagHandler(w, req)

	require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}
