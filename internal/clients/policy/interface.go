package policy

import (
	"context"
	"net/http"

	"github.com/novavault/recovery-orchestrator/internal/types"
)

// PolicyRequest scopes a policy to one recovery: the amount cap is the
// observed balance at policy-creation time and the allow-list contains only
// the declared new owner.
type PolicyRequest struct {
	AmountCap         uint64   `json:"amount_cap"`
	AllowedRecipients []string `json:"allowed_recipients"`
	RequiredApprovals uint64   `json:"required_approvals"`
}

type PolicyClientInterface interface {
	GetBaseURL() string
	GetDefaultRequestTimeout() int
	GetHttpClient() *http.Client
	// CreatePolicy registers a named policy with the gateway and returns its id.
	CreatePolicy(ctx context.Context, name string, req PolicyRequest) (string, *types.Error)
}
