package handlers_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bestsv/db"
	"bestsv/internal/handlers/testutils"
)

func TestCreateEvaluationHandler(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{
		OrderID: 1, AccountID: "buyer", SupplierID: "seller",
		ProcessStatusID: db.StatusCompleted, Expired: futureTime(),
	}}
	handler, _ := newTestHandler(mockStore)

	reqBody := `{"orderId": 1, "rate": 45, "comment": "fast and accurate"}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/evaluations", strings.NewReader(reqBody))
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.CreateEvaluationHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, string(body), "fast and accurate")
	require.NotNil(t, mockStore.createdEval)
	require.Equal(t, 45, mockStore.createdEval.Rate)
}

func TestCreateEvaluationHandlerRateNotMultiple(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{
		OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusCompleted, Expired: futureTime(),
	}}
	handler, _ := newTestHandler(mockStore)

	reqBody := `{"orderId": 1, "rate": 47}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/evaluations", strings.NewReader(reqBody))
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.CreateEvaluationHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	require.Nil(t, mockStore.createdEval)
}

func TestCreateEvaluationHandlerRateTooHigh(t *testing.T) {
	mockStore := &MockStorage{}
	handler, _ := newTestHandler(mockStore)

	reqBody := `{"orderId": 1, "rate": 55}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/evaluations", strings.NewReader(reqBody))
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.CreateEvaluationHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestCreateEvaluationHandlerDuplicate(t *testing.T) {
	mockStore := &MockStorage{
		order: &db.Order{
			OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusCompleted, Expired: futureTime(),
		},
		evalExists: true,
	}
	handler, _ := newTestHandler(mockStore)

	reqBody := `{"orderId": 1, "rate": 40}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/evaluations", strings.NewReader(reqBody))
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.CreateEvaluationHandler(w, req)

	// Одна оценка на заказ, переоценки нет
	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	require.Nil(t, mockStore.createdEval)
}

func TestCreateEvaluationHandlerNotCompleted(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{
		OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusUnderReview, Expired: futureTime(),
	}}
	handler, _ := newTestHandler(mockStore)

	reqBody := `{"orderId": 1, "rate": 40}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/evaluations", strings.NewReader(reqBody))
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.CreateEvaluationHandler(w, req)

	require.Equal(t, http.StatusLocked, w.Result().StatusCode)
}

func TestGetSupplierRateStatsHandler(t *testing.T) {
	mockStore := &MockStorage{stats: db.RateStatistics{AverageRate: 42.5, Count: 4}}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/public/evaluations/suppliers/seller", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"accountId": "seller"})
	w := httptest.NewRecorder()

	handler.GetSupplierRateStatsHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `"averageRate":42.5`)
	require.Contains(t, string(body), `"count":4`)
}

func TestGetSupplierRateStatsHandlerNoData(t *testing.T) {
	mockStore := &MockStorage{}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/public/evaluations/suppliers/seller", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"accountId": "seller"})
	w := httptest.NewRecorder()

	handler.GetSupplierRateStatsHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	// Без оценок среднее отсутствует, а не равно нулю
	require.Contains(t, string(body), `"averageRate":null`)
}

func TestGetEvaluationHandlerNotFound(t *testing.T) {
	mockStore := &MockStorage{}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/public/evaluations/1/false", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "evalType": "false"})
	w := httptest.NewRecorder()

	handler.GetEvaluationHandler(w, req)

	require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}
