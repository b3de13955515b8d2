/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (logrus)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/accounts/*     Accounts, card statements, invoice payment
  /api/balances       Settled position
  /api/entries/*      Entries and settlement
  /api/series/*       Series deletion
  /api/transfers      Paired transfers
  /api/loans/*        Loan plans and installments
  /api/anticipation   Settlement price preview
  /api/projection     Forward balance projection
  /api/import         Bank statement import
  /api/categories/*   Category learning and suggestion
  /api/preferences    Presentation preferences
  /api/scenarios/*    Demo scenarios

OWNER:
  Every request acts for the owner named in the X-Owner-ID header, or the
  configured default owner.

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - commands/serve.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         logrus.FieldLogger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	logger := opts.Logger
	if logger == nil {
		logger = h.logger
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OwnerHeader},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.SaveAccount)
			r.Get("/{id}/statement", h.GetStatement)
			r.Post("/{id}/invoice/pay", h.PayInvoice)
		})
		r.Get("/balances", h.GetBalances)

		// Entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntries)
			r.Post("/{id}/settle", h.SettleEntry)
		})
		r.Delete("/series/{id}", h.DeleteSeries)
		r.Post("/transfers", h.CreateTransfer)

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.Post("/", h.CreateLoan)
			r.Get("/{id}", h.GetLoan)
			r.Put("/{id}", h.ReplaceLoan)
			r.Post("/{id}/installments/{seq}/settle", h.SettleInstallment)
			r.Post("/{id}/recalculate", h.RecalculateLoan)
		})

		// Calculators
		r.Post("/anticipation", h.PreviewAnticipation)
		r.Get("/projection", h.GetProjection)

		r.Post("/import", h.ImportStatement)

		// Category routes
		r.Route("/categories", func(r chi.Router) {
			r.Post("/learn", h.LearnCategory)
			r.Get("/suggest", h.SuggestCategory)
		})

		r.Get("/preferences", h.GetPreferences)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Cash-Flow Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Cash-Flow Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/accounts">/api/accounts</a> - List accounts</li>
<li><a href="/api/balances">/api/balances</a> - Settled balances</li>
<li><a href="/api/projection">/api/projection</a> - Balance projection</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := logrus.Fields{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      ww.Status(),
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
					"request_id":  middleware.GetReqID(r.Context()),
				}
				entry := logger.WithFields(fields)
				switch {
				case ww.Status() >= http.StatusInternalServerError:
					entry.Error("request failed")
				default:
					entry.Info("request handled")
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
