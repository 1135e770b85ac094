package handlers_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bestsv/db"
	"bestsv/internal/handlers/testutils"
)

func TestPutNegotiationHandler(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{
		OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusPending, Expired: futureTime(),
	}}
	handler, _ := newTestHandler(mockStore)

	input := map[string]interface{}{
		"orderId":                   1,
		"orderMaxDurationByMinutes": 300,
		"orderLimitEdit":            2,
		"expired":                   futureTime(),
	}
	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPut, "/api/business/negotiations", strings.NewReader(string(body)))
	req = authed(req, "seller")
	w := httptest.NewRecorder()

	handler.PutNegotiationHandler(w, req)

	require.Equal(t, http.StatusNoContent, w.Result().StatusCode)
	require.NotNil(t, mockStore.upsertedNeg)
	require.Equal(t, "seller", mockStore.upsertedNeg.SupplierID)
	require.Equal(t, 300, mockStore.upsertedNeg.OrderMaxDurationByMinutes)
}

func TestPutNegotiationHandlerDurationOutOfRange(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{
		OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusPending, Expired: futureTime(),
	}}
	handler, _ := newTestHandler(mockStore)

	input := map[string]interface{}{
		"orderId":                   1,
		"orderMaxDurationByMinutes": 30,
		"expired":                   futureTime(),
	}
	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPut, "/api/business/negotiations", strings.NewReader(string(body)))
	req = authed(req, "seller")
	w := httptest.NewRecorder()

	handler.PutNegotiationHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	require.Nil(t, mockStore.upsertedNeg)
}

func TestPutNegotiationHandlerReservedForOther(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{
		OrderID: 1, AccountID: "buyer", SupplierID: "other",
		ProcessStatusID: db.StatusAssignedNegotiable, Expired: futureTime(),
	}}
	handler, _ := newTestHandler(mockStore)

	input := map[string]interface{}{
		"orderId":                   1,
		"orderMaxDurationByMinutes": 300,
		"expired":                   futureTime(),
	}
	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPut, "/api/business/negotiations", strings.NewReader(string(body)))
	req = authed(req, "seller")
	w := httptest.NewRecorder()

	handler.PutNegotiationHandler(w, req)

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
}

func TestPutNegotiationDetailsHandler(t *testing.T) {
	mockStore := &MockStorage{
		order: &db.Order{
			OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusPending, Expired: futureTime(),
		},
		details: []db.OrderDetail{{OrderDetailID: 9, OrderID: 1}, {OrderDetailID: 10, OrderID: 1}},
	}
	handler, _ := newTestHandler(mockStore)

	input := map[string]interface{}{
		"orderId": 1,
		"expired": futureTime(),
		"details": []map[string]interface{}{
			{"orderDetailId": 9, "orderDetailQuantity": 2, "orderDetailUnitPrice": 80},
			{"orderDetailId": 10, "orderDetailQuantity": 1, "orderDetailUnitPrice": 120},
		},
	}
	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPut, "/api/business/negotiations/details", strings.NewReader(string(body)))
	req = authed(req, "seller")
	w := httptest.NewRecorder()

	handler.PutNegotiationDetailsHandler(w, req)

	require.Equal(t, http.StatusNoContent, w.Result().StatusCode)
	require.Len(t, mockStore.upsertedItems, 2)
}

func TestPutNegotiationDetailsHandlerForeignDetail(t *testing.T) {
	mockStore := &MockStorage{
		order: &db.Order{
			OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusPending, Expired: futureTime(),
		},
		details: []db.OrderDetail{{OrderDetailID: 9, OrderID: 1}},
	}
	handler, _ := newTestHandler(mockStore)

	input := map[string]interface{}{
		"orderId": 1,
		"expired": futureTime(),
		"details": []map[string]interface{}{
			{"orderDetailId": 77, "orderDetailQuantity": 2, "orderDetailUnitPrice": 80},
		},
	}
	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPut, "/api/business/negotiations/details", strings.NewReader(string(body)))
	req = authed(req, "seller")
	w := httptest.NewRecorder()

	handler.PutNegotiationDetailsHandler(w, req)

	require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
	require.Nil(t, mockStore.upsertedItems)
}

func TestGetNegotiationHandler(t *testing.T) {
	mockStore := &MockStorage{
		order: &db.Order{
			OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusNegotiating, Expired: futureTime(),
		},
		negotiation: &db.Negotiation{
			OrderID: 1, SupplierID: "seller", OrderMaxDurationByMinutes: 300, Expired: futureTime(),
		},
		negDetails: []db.NegotiationDetail{
			{OrderDetailID: 9, SupplierID: "seller", OrderDetailQuantity: 2, OrderDetailUnitPrice: 80, Expired: futureTime()},
		},
	}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/business/negotiations/1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1"})
	req = authed(req, "seller")
	w := httptest.NewRecorder()

	handler.GetNegotiationHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `"negotiation"`)
	require.Contains(t, string(body), `"negotiationDetails"`)
}

func TestResolveNegotiationHandlerAccept(t *testing.T) {
	mockStore := &MockStorage{
		order: &db.Order{
			OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusNegotiating, Expired: futureTime(),
		},
		negotiation: &db.Negotiation{
			OrderID: 1, SupplierID: "seller", OrderMaxDurationByMinutes: 300, Expired: futureTime(),
		},
	}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodDelete, "/api/user/negotiations/1/seller?isAccept=true", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "supplierId": "seller"})
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.ResolveNegotiationHandler(w, req)

	require.Equal(t, http.StatusNoContent, w.Result().StatusCode)
	require.True(t, mockStore.resolveCalled)
	require.True(t, mockStore.resolveAccept)
}

func TestResolveNegotiationHandlerExpiredOffer(t *testing.T) {
	mockStore := &MockStorage{
		order: &db.Order{
			OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusNegotiating, Expired: futureTime(),
		},
		negotiation: &db.Negotiation{
			OrderID: 1, SupplierID: "seller", Expired: time.Now().UTC().Add(-time.Minute),
		},
	}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodDelete, "/api/user/negotiations/1/seller?isAccept=true", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "supplierId": "seller"})
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.ResolveNegotiationHandler(w, req)

	// Просроченное предложение не закрывается и остается продавцу на переподачу
	require.Equal(t, http.StatusRequestTimeout, w.Result().StatusCode)
	require.False(t, mockStore.resolveCalled)
}

func TestResolveNegotiationHandlerNone(t *testing.T) {
	mockStore := &MockStorage{order: &db.Order{
		OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusPending, Expired: futureTime(),
	}}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodDelete, "/api/user/negotiations/1/seller?isAccept=false", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "supplierId": "seller"})
	req = authed(req, "buyer")
	w := httptest.NewRecorder()

	handler.ResolveNegotiationHandler(w, req)

	require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}

func TestResolveNegotiationHandlerNotOwner(t *testing.T) {
	mockStore := &MockStorage{
		order: &db.Order{
			OrderID: 1, AccountID: "buyer", ProcessStatusID: db.StatusNegotiating, Expired: futureTime(),
		},
		negotiation: &db.Negotiation{OrderID: 1, SupplierID: "seller", Expired: futureTime()},
	}
	handler, _ := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodDelete, "/api/user/negotiations/1/seller?isAccept=true", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "1", "supplierId": "seller"})
	req = authed(req, "stranger")
	w := httptest.NewRecorder()

	handler.ResolveNegotiationHandler(w, req)

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	require.False(t, mockStore.resolveCalled)
}
