package main

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/airbersih/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-Id"

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(p)
}

// instrument assigns a request id, recovers panics, and records the access log and
// request metrics. It wraps the whole router so unmatched paths are counted too.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, reqID))

		rr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if rec := recover(); rec != nil {
				if !rr.wroteHeader {
					if strings.HasPrefix(r.URL.Path, "/api") {
						writeAPIError(rr, http.StatusInternalServerError, "internal_error", "internal error")
					} else {
						http.Error(rr, "internal error", http.StatusInternalServerError)
					}
				}
				rr.status = http.StatusInternalServerError
				s.logger.Error("Panic handling request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", reqID),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
			}

			dur := time.Since(start)
			route := routeLabel(s.router, r)
			metrics.ObserveHTTPRequest(route, r.Method, rr.status, dur)

			// Keep health checks and the metrics endpoint quiet.
			if r.URL.Path == "/healthz" || r.URL.Path == s.metricsPath {
				return
			}
			s.logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", rr.status),
				zap.Duration("duration", dur),
				zap.String("request_id", reqID),
			)
		}()

		next.ServeHTTP(rr, r)
	})
}

// routeLabel keeps metric cardinality bounded: path variables stay as templates.
func routeLabel(router *mux.Router, r *http.Request) string {
	var match mux.RouteMatch
	if router != nil && router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// limitWrites rejects requests beyond the configured rate. A nil limiter allows everything.
func limitWrites(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			if strings.HasPrefix(r.URL.Path, "/api") {
				writeAPIError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, please try again later")
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func newWriteLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
