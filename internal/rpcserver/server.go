package rpcserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
	"github.com/crosslogic/payment-orchestrator/internal/webhookingress"
	"github.com/crosslogic/payment-orchestrator/pkg/database"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_http_requests_total",
			Help: "Count of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "payment_http_request_duration_seconds",
			Help: "HTTP request latency by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
)

// Server exposes the payment use cases and provider webhooks over HTTP,
// following the teacher's internal/gateway.Gateway: a single struct owning
// the chi router, constructed once, wired with its middleware stack in
// NewServer.
type Server struct {
	service *payment.Service
	db      *database.Database
	webhook *webhookingress.Handler
	logger  *zap.Logger
	router  *chi.Mux
}

// NewServer builds the router and registers every route (spec §4.4, §4.5).
func NewServer(service *payment.Service, db *database.Database, webhook *webhookingress.Handler, logger *zap.Logger) *Server {
	s := &Server{
		service: service,
		db:      db,
		webhook: webhook,
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	securityConfig := DefaultSecurityConfig()
	s.router.Use(SecurityMiddleware(securityConfig))
	s.router.Use(APISecurityMiddleware())
	s.router.Use(RequestSizeLimitMiddleware(1 * 1024 * 1024))

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestIDResponseMiddleware)
	s.router.Use(s.loggerMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://*.crosslogic.ai"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)

	s.router.Post("/api/webhooks/stripe", s.webhook.HandleStripe)
	s.router.Post("/api/webhooks/paypal", s.webhook.HandlePayPal)
	s.router.Post("/api/webhooks/razorpay", s.webhook.HandleRazorpay)

	s.router.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/", s.handleCreatePayment)
		r.Post("/resolve", s.handleResolvePayment)
		r.Post("/cancel", s.handleCancelPayment)
	})
}

// Middleware implementations, following the teacher's gateway.go.

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

func (s *Server) requestIDResponseMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(ww.Status())

		routePath := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				routePath = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, routePath, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePath, status).Observe(duration)
	})
}

// Handlers.

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Health(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createPaymentBody struct {
	UserID     string `json:"userId"`
	OrderID    string `json:"orderId"`
	Provider   string `json:"provider"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var body createPaymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.CreatePayment(r.Context(), payment.CreatePaymentRequest{
		UserID:         body.UserID,
		OrderID:        body.OrderID,
		Provider:       payment.Provider(body.Provider),
		SuccessURL:     body.SuccessURL,
		CancelURL:      body.CancelURL,
		IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type resolvePaymentBody struct {
	Provider          string `json:"provider"`
	ProviderOrderID   string `json:"providerOrderId"`
	RazorpayPaymentID string `json:"razorpayPaymentId,omitempty"`
	RazorpaySignature string `json:"razorpaySignature,omitempty"`
}

func (s *Server) handleResolvePayment(w http.ResponseWriter, r *http.Request) {
	var body resolvePaymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.ResolvePayment(r.Context(), payment.ResolvePaymentRequest{
		Provider:          payment.Provider(body.Provider),
		ProviderOrderID:   body.ProviderOrderID,
		RazorpayPaymentID: body.RazorpayPaymentID,
		RazorpaySignature: body.RazorpaySignature,
		IdempotencyKey:    r.Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type cancelPaymentBody struct {
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"providerOrderId"`
	Reason          string `json:"reason"`
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	var body cancelPaymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.CancelPayment(r.Context(), payment.CancelPaymentRequest{
		Provider:        payment.Provider(body.Provider),
		ProviderOrderID: body.ProviderOrderID,
		Reason:          body.Reason,
		IdempotencyKey:  r.Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}
