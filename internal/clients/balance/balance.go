package balance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	baseclient "github.com/novavault/recovery-orchestrator/internal/clients/base"
	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/types"
)

type BalanceClient struct {
	config     *config.ExternalClientConfig
	asset      string
	httpClient *http.Client
}

type balanceResponse struct {
	WalletRef string `json:"wallet_ref"`
	Chain     string `json:"chain"`
	Asset     string `json:"asset"`
	Amount    uint64 `json:"amount"`
}

func NewBalanceClient(cfg *config.ExternalClientConfig, asset string) *BalanceClient {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
	}
	return &BalanceClient{
		config:     cfg,
		asset:      asset,
		httpClient: httpClient,
	}
}

func (c *BalanceClient) GetBaseURL() string {
	return c.config.Host
}

func (c *BalanceClient) GetDefaultRequestTimeout() int {
	return c.config.Timeout
}

func (c *BalanceClient) GetHttpClient() *http.Client {
	return c.httpClient
}

func (c *BalanceClient) GetBalance(ctx context.Context, walletRef, chain string) (uint64, *types.Error) {
	path := fmt.Sprintf(
		"/v1/balances?wallet=%s&chain=%s&asset=%s",
		url.QueryEscape(walletRef), url.QueryEscape(chain), url.QueryEscape(c.asset),
	)
	opts := &baseclient.BaseClientOptions{
		Path: path,
	}

	resp, err := baseclient.SendRequest[any, balanceResponse](ctx, c, http.MethodGet, opts, nil)
	if err != nil {
		return 0, err
	}
	return resp.Amount, nil
}
