package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBook struct {
	top   *orderbook.TopOfBook
	state orderbook.State
}

func (s stubBook) Latest() (orderbook.TopOfBook, bool) {
	if s.top == nil {
		return orderbook.TopOfBook{}, false
	}
	return *s.top, true
}

func (s stubBook) State() orderbook.State { return s.state }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBookTop(t *testing.T) {
	r := newRouter("btcusd", stubBook{state: orderbook.Synced}, prometheus.NewRegistry())
	assert.Equal(t, http.StatusNotFound, get(t, r, "/book/top").Code)

	top := orderbook.TopOfBook{
		Symbol:   "btcusd",
		Bid:      &orderbook.Quote{Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2)},
		Sequence: 5,
	}
	r = newRouter("btcusd", stubBook{top: &top, state: orderbook.Synced}, prometheus.NewRegistry())
	rec := get(t, r, "/book/top")
	require.Equal(t, http.StatusOK, rec.Code)

	var got orderbook.TopOfBook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Equal(top))
	assert.Nil(t, got.Ask)
	assert.Equal(t, uint64(5), got.Sequence)
}

func TestReadiness(t *testing.T) {
	r := newRouter("btcusd", stubBook{state: orderbook.Resyncing}, prometheus.NewRegistry())
	assert.Equal(t, http.StatusOK, get(t, r, "/healthz").Code)
	rec := get(t, r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "resyncing")

	r = newRouter("btcusd", stubBook{state: orderbook.Synced}, prometheus.NewRegistry())
	assert.Equal(t, http.StatusOK, get(t, r, "/readyz").Code)
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := get(t, newRouter("btcusd", stubBook{}, reg), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_total 1")
}
