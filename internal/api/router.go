package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/meterly/datagate/internal/api/httpx"
	"github.com/meterly/datagate/internal/api/validate"
	"github.com/meterly/datagate/internal/config"
	"github.com/meterly/datagate/internal/metrics"
	"github.com/meterly/datagate/internal/middleware"
	"github.com/meterly/datagate/internal/services"
)

func NewRouter(cfg config.Config, accounts *services.AccountService, gateway *services.GatewayService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.RateLimit(cfg.RateRPS), middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	// ---------- provisioning (admin) ----------
	r.With(middleware.AdminAuth(cfg.AdminToken)).Post("/accounts", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			InitialCredits int64 `json:"initial_credits"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid body", nil)
			return
		}
		if ef := validate.MinInt("initial_credits", req.InitialCredits, 0); ef != nil {
			errs := validate.Errs{*ef}
			httpx.WriteError(w, http.StatusBadRequest, "bad_request", errs.Error(), errs)
			return
		}
		key, err := accounts.Create(r.Context(), req.InitialCredits)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "create_failed", err.Error(), nil)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"key":             key,
			"initial_credits": req.InitialCredits,
		})
	})

	// ---------- billed reads ----------
	r.Get("/data", func(w http.ResponseWriter, r *http.Request) {
		country := r.URL.Query().Get("country")
		if country == "" {
			httpx.WriteError(w, http.StatusBadRequest, "bad_request", "country is required", nil)
			return
		}
		apiKey := r.Header.Get("X-Api-Key")

		res, err := gateway.FetchData(r.Context(), apiKey, country)
		if err != nil {
			writeFetchError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"rows":              res.Rows,
			"remaining_credits": res.Remaining,
		})
	})

	return r
}

func writeFetchError(w http.ResponseWriter, err error) {
	var quota *services.QuotaExceededError
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_api_key", "invalid api key", nil)
	case errors.As(err, &quota):
		httpx.WriteError(w, http.StatusPaymentRequired, "quota_exceeded", "insufficient credits",
			map[string]int64{"balance": quota.Balance})
	case errors.Is(err, services.ErrServiceUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "service unavailable", nil)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "query_failed", "query failed", nil)
	}
}
