package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/httpapi/authn"
	"github.com/coderTtxi12/loan-system/internal/httpapi/middleware"
	"github.com/coderTtxi12/loan-system/internal/hub"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
	"github.com/coderTtxi12/loan-system/internal/platform/metrics"
	"github.com/coderTtxi12/loan-system/internal/service"
)

// Handlers bundles the dependencies every endpoint needs.
type Handlers struct {
	service       *service.Service
	loans         *loanstore.Store
	hub           *hub.Hub
	db            pinger
	webhookSecret string
	log           *logrus.Logger
}

// Config is the set of wires Router needs beyond the service itself.
type Config struct {
	Service       *service.Service
	Loans         *loanstore.Store
	Hub           *hub.Hub
	DB            *sql.DB
	WebhookSecret string
	JWTSecret     string
	Log           *logrus.Logger
}

// NewRouter builds the chi-routed mux for the whole HTTP surface (spec
// §6), layering request logging, panic recovery, CORS and JWT
// authentication around it the way the teacher's NewService layers
// wrapWithAuth/wrapWithAudit/wrapWithCORS/metrics.InstrumentHandler —
// order matters here too: CORS must short-circuit preflight OPTIONS
// before auth ever sees the request.
func NewRouter(cfg Config) http.Handler {
	h := &Handlers{
		service:       cfg.Service,
		loans:         cfg.Loans,
		hub:           cfg.Hub,
		webhookSecret: cfg.WebhookSecret,
		log:           cfg.Log,
	}
	if cfg.DB != nil {
		h.db = cfg.DB
	}

	validator := authn.New(cfg.JWTSecret)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer(cfg.Log))
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(middleware.CORS)
	r.Use(metrics.InstrumentHandler)
	r.Use(authn.Middleware(validator))

	r.Get("/health", h.health)
	r.Get("/health/ready", h.healthReady)
	r.Get("/loans/ws", h.loansWebSocket)
	r.Handle("/metrics", metrics.Handler())

	limiter := middleware.NewRateLimiter(20, 40)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(limiter.Handler)
		api.Route("/loans", func(loans chi.Router) {
			loans.Post("/", h.createLoan)
			loans.Get("/", h.listLoans)
			loans.Get("/statistics", h.getStatistics)
			loans.Get("/{id}", h.getLoan)
			loans.Get("/{id}/history", h.getHistory)
			loans.Patch("/{id}/status", h.transitionStatus)
		})
		api.Route("/webhooks", func(wh chi.Router) {
			wh.Post("/banking/{country}", h.bankingWebhook)
			wh.Get("/events", h.listWebhookEvents)
		})
	})

	return r
}
