package main

import (
	"encoding/json"
	"net/http"
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/joripage/bookfeed/pkg/metrics"
	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type bookReader interface {
	Latest() (orderbook.TopOfBook, bool)
	State() orderbook.State
}

type statusResponse struct {
	Symbol string `json:"symbol"`
	State  string `json:"state"`
}

func newRouter(symbol string, book bookReader, reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Symbol: symbol, State: book.State().String()})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		code := http.StatusOK
		if book.State() != orderbook.Synced {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, statusResponse{Symbol: symbol, State: book.State().String()})
	}).Methods(http.MethodGet)
	r.HandleFunc("/book/top", func(w http.ResponseWriter, _ *http.Request) {
		top, ok := book.Latest()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no top of book emitted yet"})
			return
		}
		writeJSON(w, http.StatusOK, top)
	}).Methods(http.MethodGet)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Debugf("write response: %v", err)
	}
}
