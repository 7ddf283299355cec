package main

import (
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mcclellann/airbersih/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server holds the ledger instance.
type Server struct {
	ledger      *ledger.Ledger
	logger      *zap.Logger
	limiter     *rate.Limiter
	pages       *template.Template
	router      *mux.Router
	metricsPath string
	handler     http.Handler
}

type ServerOptions struct {
	WriteRateLimit float64 // POST requests per second; 0 disables
	MetricsPath    string  // empty disables /metrics
}

func NewServer(l *ledger.Ledger, logger *zap.Logger, opts ServerOptions) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		ledger:      l,
		logger:      logger,
		limiter:     newWriteLimiter(opts.WriteRateLimit),
		pages:       parsePages(),
		router:      mux.NewRouter(),
		metricsPath: opts.MetricsPath,
	}
	srv.routes()
	srv.handler = srv.instrument(srv.router)
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/", s.dashboardPage).Methods("GET")
	r.HandleFunc("/forms/readings", limitWrites(s.limiter, s.readingForm)).Methods("POST")
	r.HandleFunc("/forms/customers", limitWrites(s.limiter, s.customerForm)).Methods("POST")
	r.HandleFunc("/refresh", s.refreshForm).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")
	api.HandleFunc("/rows", s.listRowsHandler).Methods("GET")
	api.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	api.HandleFunc("/customers", limitWrites(s.limiter, s.registerCustomerHandler)).Methods("POST")
	api.HandleFunc("/customers/{code}", s.getCustomerHandler).Methods("GET")
	api.HandleFunc("/readings", limitWrites(s.limiter, s.recordReadingHandler)).Methods("POST")
	api.HandleFunc("/refresh", s.refreshHandler).Methods("POST")
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "not_found", "not found")
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, promhttp.Handler()).Methods("GET")
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
