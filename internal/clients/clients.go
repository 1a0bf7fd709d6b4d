package clients

import (
	"github.com/novavault/recovery-orchestrator/internal/clients/balance"
	"github.com/novavault/recovery-orchestrator/internal/clients/naming"
	"github.com/novavault/recovery-orchestrator/internal/clients/policy"
	"github.com/novavault/recovery-orchestrator/internal/clients/router"
	"github.com/novavault/recovery-orchestrator/internal/config"
)

// Clients aggregates the four external collaborators the saga drives.
// Policy is nil when no policy gateway is configured; the saga treats the
// gateway as an optional defense-in-depth layer.
type Clients struct {
	Balance balance.BalanceClientInterface
	Router  router.RouterClientInterface
	Naming  naming.NamingClientInterface
	Policy  policy.PolicyClientInterface
}

func New(cfg *config.Config) *Clients {
	balanceClient := balance.NewBalanceClient(cfg.Clients.Balance, cfg.Chains.Asset)
	routerClient := router.NewRouterClient(cfg.Clients.Router, cfg.Chains.Asset)
	namingClient := naming.NewNamingClient(cfg.Clients.Naming)

	clients := &Clients{
		Balance: balanceClient,
		Router:  routerClient,
		Naming:  namingClient,
	}
	if cfg.Clients.Policy != nil {
		clients.Policy = policy.NewPolicyClient(cfg.Clients.Policy)
	}
	return clients
}
