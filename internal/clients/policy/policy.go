package policy

import (
	"context"
	"net/http"
	"time"

	baseclient "github.com/novavault/recovery-orchestrator/internal/clients/base"
	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/types"
)

type PolicyClient struct {
	config     *config.ExternalClientConfig
	httpClient *http.Client
}

type createPolicyRequest struct {
	Name              string   `json:"name"`
	AmountCap         uint64   `json:"amount_cap"`
	AllowedRecipients []string `json:"allowed_recipients"`
	RequiredApprovals uint64   `json:"required_approvals"`
}

type createPolicyResponse struct {
	PolicyId string `json:"policy_id"`
}

func NewPolicyClient(cfg *config.ExternalClientConfig) *PolicyClient {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
	}
	return &PolicyClient{
		config:     cfg,
		httpClient: httpClient,
	}
}

func (c *PolicyClient) GetBaseURL() string {
	return c.config.Host
}

func (c *PolicyClient) GetDefaultRequestTimeout() int {
	return c.config.Timeout
}

func (c *PolicyClient) GetHttpClient() *http.Client {
	return c.httpClient
}

func (c *PolicyClient) CreatePolicy(ctx context.Context, name string, req PolicyRequest) (string, *types.Error) {
	input := &createPolicyRequest{
		Name:              name,
		AmountCap:         req.AmountCap,
		AllowedRecipients: req.AllowedRecipients,
		RequiredApprovals: req.RequiredApprovals,
	}
	opts := &baseclient.BaseClientOptions{
		Path: "/v1/policies",
	}

	resp, err := baseclient.SendRequest[createPolicyRequest, createPolicyResponse](ctx, c, http.MethodPost, opts, input)
	if err != nil {
		return "", err
	}
	return resp.PolicyId, nil
}
