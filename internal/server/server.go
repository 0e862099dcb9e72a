// Package server is the order backend's HTTP surface: credential issuance,
// the product catalog and purchase intake under /auth.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/safar/mute-store/internal/config"
	"github.com/safar/mute-store/internal/logger"
	"github.com/safar/mute-store/internal/metrics"
	"github.com/safar/mute-store/internal/models"
	"github.com/safar/mute-store/internal/store"
)

// Repository is the persistence the handlers need. *store.Postgres
// implements it.
type Repository interface {
	CreateCustomer(ctx context.Context, nc store.NewCustomer) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	UpsertProviderCustomer(ctx context.Context, externalID, email, name string) (*models.Customer, bool, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreatePurchase(ctx context.Context, order models.Order) (*models.Purchase, error)
	ListPurchasesByEmail(ctx context.Context, email, cursor string, limit int) (*store.PurchasePage, error)
	Ping(ctx context.Context) error
}

type Server struct {
	repo           Repository
	jwt            config.JWTConfig
	log            *logger.Logger
	metrics        *metrics.HTTPMetrics
	metricsHandler http.Handler
	now            func() time.Time
}

type Option func(*Server)

func WithLogger(log *logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records request metrics into m and serves handler on /metrics.
func WithMetrics(m *metrics.HTTPMetrics, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsHandler = handler
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo Repository, jwtCfg config.JWTConfig, opts ...Option) *Server {
	s := &Server{
		repo: repo,
		jwt:  jwtCfg,
		log:  logger.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		recoverer(s.log),
		requestID(s.log),
		accessLog(s.log, s.metrics),
	)

	r.Get("/healthz", s.handleHealth())
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister())
		r.Post("/login", s.handleLogin())
		r.Get("/user", s.handleProfile())
		r.Post("/clerk", s.handleProviderUser())
		r.Get("/productos", s.handleProducts())
		r.Post("/comprar", s.handlePurchase())
		r.Get("/purchase", s.handlePurchaseHistory())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(r.Context(), s.log, w, http.StatusNotFound, errorBody{Detail: "Not Found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(r.Context(), s.log, w, http.StatusMethodNotAllowed, errorBody{Detail: "Method Not Allowed"})
	})
	return r
}
