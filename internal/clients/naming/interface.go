package naming

import (
	"context"
	"net/http"

	"github.com/novavault/recovery-orchestrator/internal/types"
)

type NamingClientInterface interface {
	GetBaseURL() string
	GetDefaultRequestTimeout() int
	GetHttpClient() *http.Client
	// UpdateNameBinding rewrites the address bound to a human-readable
	// identity and returns an update reference.
	UpdateNameBinding(ctx context.Context, identity, newAddress string) (string, *types.Error)
}
