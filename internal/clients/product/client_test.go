package product_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linemk/order-service/internal/clients/product"
	"github.com/linemk/order-service/internal/lib/circuitbreaker"
	"github.com/linemk/order-service/internal/lib/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, h http.HandlerFunc, maxFailures int) (*product.Client, *metrics.Metrics) {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	m := metrics.New(prometheus.NewRegistry())
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "product-service",
		MaxFailures: maxFailures,
		Timeout:     time.Minute,
	}, discardLogger())

	return product.New(discardLogger(), srv.URL+"/api/", time.Second, breaker, m), m
}

func TestGetProduct_Success(t *testing.T) {
	client, m := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/products/p1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"p1","name":"Apple","price":"100.00","stock":5,"unit":"kg","imageUrl":"a.png","isActive":true}}`))
	}, 5)

	p, err := client.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "Apple", p.Name)
	assert.True(t, decimal.NewFromInt(100).Equal(p.Price))
	assert.Equal(t, 5, p.Stock)
	require.NotNil(t, p.Image)
	assert.Equal(t, "a.png", *p.Image)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientCalls.WithLabelValues("product", "get_product", "success")))
}

func TestGetProduct_NumericPrice(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"p1","name":"Apple","price":12.5,"stock":1}}`))
	}, 5)

	p, err := client.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.5").Equal(p.Price))
	assert.Empty(t, p.Unit)
}

func TestGetProduct_NotFound(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"404": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"message":"Product not found"}`))
		},
		"400 invalid id": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		},
		"success false": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false}`))
		},
		"null data": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"data":null}`))
		},
	}

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newClient(t, h, 1)

			p, err := client.GetProduct(context.Background(), "missing")
			assert.ErrorIs(t, err, product.ErrNotFound)
			assert.Nil(t, p)

			// not found не открывает выключатель
			_, err = client.GetProduct(context.Background(), "missing")
			assert.ErrorIs(t, err, product.ErrNotFound)
		})
	}
}

func TestGetProduct_Unavailable(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 5)

	p, err := client.GetProduct(context.Background(), "p1")
	assert.ErrorIs(t, err, product.ErrUnavailable)
	assert.NotErrorIs(t, err, product.ErrNotFound)
	assert.Nil(t, p)
}

func TestGetProduct_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "p", MaxFailures: 5}, discardLogger())
	client := product.New(discardLogger(), srv.URL, time.Second, breaker, metrics.New(prometheus.NewRegistry()))

	_, err := client.GetProduct(context.Background(), "p1")
	assert.ErrorIs(t, err, product.ErrUnavailable)
}

func TestGetProduct_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	client, m := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)

	for i := 0; i < 2; i++ {
		_, err := client.GetProduct(context.Background(), "p1")
		assert.ErrorIs(t, err, product.ErrUnavailable)
	}

	_, err := client.GetProduct(context.Background(), "p1")
	assert.ErrorIs(t, err, product.ErrUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, int32(2), calls.Load())

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ClientCalls.WithLabelValues("product", "get_product", "failure")))
}

func TestAdjustStock_SendsOperation(t *testing.T) {
	client, m := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/products/p1/stock", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(3), body["quantity"])
		assert.Equal(t, "subtract", body["operation"])

		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"p1","name":"Apple","price":"100","stock":2},"message":"Stock updated successfully"}`))
	}, 5)

	p, err := client.AdjustStock(context.Background(), "p1", 3, product.StockSubtract)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientCalls.WithLabelValues("product", "adjust_stock_subtract", "success")))
}

func TestAdjustStock_InvalidOperation(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	}, 5)

	_, err := client.AdjustStock(context.Background(), "p1", 1, product.StockOperation("multiply"))
	assert.Error(t, err)
}

func TestAdjustStock_NotFound(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 5)

	_, err := client.AdjustStock(context.Background(), "p1", 1, product.StockAdd)
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestStockOperation_Valid(t *testing.T) {
	assert.True(t, product.StockAdd.Valid())
	assert.True(t, product.StockSubtract.Valid())
	assert.True(t, product.StockSet.Valid())
	assert.False(t, product.StockOperation("").Valid())
}
