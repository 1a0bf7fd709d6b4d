package naming

import (
	"context"
	"net/http"
	"time"

	baseclient "github.com/novavault/recovery-orchestrator/internal/clients/base"
	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/types"
)

type NamingClient struct {
	config     *config.ExternalClientConfig
	httpClient *http.Client
}

type updateBindingRequest struct {
	Identity   string `json:"identity"`
	NewAddress string `json:"new_address"`
}

type updateBindingResponse struct {
	UpdateRef string `json:"update_ref"`
}

func NewNamingClient(cfg *config.ExternalClientConfig) *NamingClient {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
	}
	return &NamingClient{
		config:     cfg,
		httpClient: httpClient,
	}
}

func (c *NamingClient) GetBaseURL() string {
	return c.config.Host
}

func (c *NamingClient) GetDefaultRequestTimeout() int {
	return c.config.Timeout
}

func (c *NamingClient) GetHttpClient() *http.Client {
	return c.httpClient
}

func (c *NamingClient) UpdateNameBinding(ctx context.Context, identity, newAddress string) (string, *types.Error) {
	input := &updateBindingRequest{
		Identity:   identity,
		NewAddress: newAddress,
	}
	opts := &baseclient.BaseClientOptions{
		Path: "/v1/bindings",
	}

	resp, err := baseclient.SendRequest[updateBindingRequest, updateBindingResponse](ctx, c, http.MethodPut, opts, input)
	if err != nil {
		return "", err
	}
	return resp.UpdateRef, nil
}
