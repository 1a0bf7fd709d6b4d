package api

import (
	"github.com/go-chi/chi"
)

func (a *Server) SetupRoutes(r *chi.Mux) {
	handlers := a.handlers
	r.Get("/healthcheck", registerHandler(handlers.HealthCheck))

	r.Post("/v1/recovery", registerHandler(handlers.RegisterRecovery))
	r.Post("/v1/recovery/approve", registerHandler(handlers.SubmitApproval))
	r.Get("/v1/recovery/status", registerHandler(handlers.GetRecoveryStatus))
	r.Get("/v1/wallets/frozen", registerHandler(handlers.GetFrozenWallet))
	r.Get("/v1/wallets/deprecated", registerHandler(handlers.GetDeprecatedWallet))
	r.Get("/v1/wallets/recovered", registerHandler(handlers.GetRecoveredWallet))
}
