/**
 * @description
 * HTTP router setup for the batch ledger using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the settings the router needs besides the handler.
type RouterConfig struct {
	JWTSecret      string
	JWTIssuer      string
	InternalAPIKey string
	Metrics        http.Handler
}

// NewRouter creates a new Chi router and registers the ledger routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Batch ledger is healthy"))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Get("/batches/current", h.handleGetCurrentBatch)
	r.Get("/batches/{batchID}", h.handleGetBatch)
	r.Get("/batches/{batchID}/participants", h.handleListParticipants)
	r.Get("/batches/{batchID}/participants/{address}", h.handleGetParticipant)
	r.Get("/batches/{batchID}/participants/{address}/can-pay", h.handleCanStillPay)
	r.Get("/batches/{batchID}/paid", h.handleAllParticipantsPaid)
	r.Get("/batches/{batchID}/events", h.handleListBatchEvents)
	r.Get("/discount-codes/{code}", h.handleGetDiscountCode)

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/slashing/run", h.handleRunSlashingSweep)
	})

	r.Group(func(r chi.Router) {
		r.Use(WalletAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))

		r.Post("/batches/join", h.handleJoinBatch)
		r.Post("/batches/{batchID}/balance", h.handlePayBalance)
		r.Put("/batches/{batchID}/commitment", h.handleStoreCommitment)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminOnlyMiddleware(h.service.IsAdmin))

			r.Post("/batches/{batchID}/transition", h.handleTransitionBatch)
			r.Post("/batches/{batchID}/participants/{address}/slash", h.handleSlashParticipant)
			r.Delete("/batches/{batchID}/participants/{address}", h.handleRemoveParticipant)
			r.Put("/batches/{batchID}/balance-price", h.handleSetBalancePrice)
			r.Put("/batches/{batchID}/max-size", h.handleSetBatchMaxSize)
			r.Put("/pricing/deposit", h.handleSetDepositPrice)
			r.Put("/pricing/default-batch-size", h.handleSetDefaultBatchSize)
			r.Post("/discount-codes", h.handleRegisterDiscountCode)
			r.Delete("/discount-codes/{code}", h.handleDeactivateDiscountCode)
			r.Get("/funds", h.handleGetFunds)
			r.Post("/funds/withdraw", h.handleWithdrawFunds)
			r.Post("/funds/slashed/withdraw", h.handleWithdrawSlashedFunds)
			r.Post("/pause", h.handlePause)
			r.Post("/unpause", h.handleUnpause)
			r.Put("/roles/{address}", h.handleGrantAdmin)
			r.Delete("/roles/{address}", h.handleRevokeAdmin)
		})
	})

	return r
}
