/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for frontend
  5. WriteLimiter: Token bucket on POST/PUT/DELETE (429 when exhausted)

ROUTE GROUPS:
  /api/accounts/*      Chart of accounts and balances
  /api/periods/*       Fiscal period lifecycle and carry-forward
  /api/transactions/*  Write path
  /api/reports/*       Journal, ledger, trial balance, statements
  /api/audit           Audit trail
  /api/scenarios/*     Demo data

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Options tunes the router. The zero value allows no cross-origin callers
// and does not rate-limit.
type Options struct {
	AllowedOrigins []string

	// WriteRateLimit is the sustained rate of mutating requests per second
	// across all clients. Zero disables the limiter.
	WriteRateLimit float64
	WriteBurst     int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))
	r.Use(WriteLimiter(opts.WriteRateLimit, opts.WriteBurst))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Put("/{id}", h.UpdateAccount)
			r.Get("/{id}/balance", h.GetAccountBalance)
		})

		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Post("/", h.CreatePeriod)
			r.Get("/{id}", h.GetPeriod)
			r.Put("/{id}", h.UpdatePeriod)
			r.Delete("/{id}", h.DeletePeriod)
			r.Post("/{id}/close", h.ClosePeriod)
			r.Post("/{id}/carry-forward", h.CarryForward)
			r.Get("/{id}/balances", h.CompareBalances)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
			r.Post("/{id}/details", h.AddDetails)
			r.Put("/{id}/details", h.ReplaceDetails)
			r.Delete("/{id}/details", h.DeleteDetails)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/journal", h.Journal)
			r.Get("/general-ledger", h.GeneralLedger)
			r.Get("/trial-balance", h.TrialBalance)
			r.Get("/balance-sheet", h.BalanceSheet)
			r.Get("/income-statement", h.IncomeStatement)
		})

		r.Get("/audit", h.ListAudit)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// WriteLimiter throttles mutating requests with a shared token bucket.
// Reads are never limited. A non-positive limit returns a pass-through.
func WriteLimiter(perSecond float64, burst int) func(http.Handler) http.Handler {
	if perSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				if !limiter.Allow() {
					w.Header().Set("Retry-After", "1")
					writeError(w, http.StatusTooManyRequests, "Too many write requests", nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
