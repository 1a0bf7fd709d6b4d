package router

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	baseclient "github.com/novavault/recovery-orchestrator/internal/clients/base"
	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/types"
)

type RouterClient struct {
	config     *config.ExternalClientConfig
	asset      string
	httpClient *http.Client
}

type transferRequest struct {
	WalletRef      string `json:"wallet_ref"`
	Recipient      string `json:"recipient"`
	FromChain      string `json:"from_chain"`
	ToChain        string `json:"to_chain"`
	Asset          string `json:"asset"`
	Amount         uint64 `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transferResponse struct {
	TransferRef string `json:"transfer_ref"`
	State       string `json:"state"`
}

func NewRouterClient(cfg *config.ExternalClientConfig, asset string) *RouterClient {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
	}
	return &RouterClient{
		config:     cfg,
		asset:      asset,
		httpClient: httpClient,
	}
}

func (c *RouterClient) GetBaseURL() string {
	return c.config.Host
}

func (c *RouterClient) GetDefaultRequestTimeout() int {
	return c.config.Timeout
}

func (c *RouterClient) GetHttpClient() *http.Client {
	return c.httpClient
}

func (c *RouterClient) Transfer(
	ctx context.Context, walletRef, recipient, fromChain, toChain string, amount uint64,
) (string, *types.Error) {
	input := &transferRequest{
		WalletRef:      walletRef,
		Recipient:      recipient,
		FromChain:      fromChain,
		ToChain:        toChain,
		Asset:          c.asset,
		Amount:         amount,
		IdempotencyKey: uuid.NewString(),
	}
	opts := &baseclient.BaseClientOptions{
		Path: "/v1/transfers",
	}

	resp, err := baseclient.SendRequest[transferRequest, transferResponse](ctx, c, http.MethodPost, opts, input)
	if err != nil {
		return "", err
	}
	return resp.TransferRef, nil
}

func (c *RouterClient) GetTransferState(ctx context.Context, transferRef string) (TransferState, *types.Error) {
	opts := &baseclient.BaseClientOptions{
		Path: fmt.Sprintf("/v1/transfers/%s", url.PathEscape(transferRef)),
	}

	resp, err := baseclient.SendRequest[any, transferResponse](ctx, c, http.MethodGet, opts, nil)
	if err != nil {
		return "", err
	}

	switch resp.State {
	case string(TransferPending), string(TransferConfirmed), string(TransferFailed):
		return TransferState(resp.State), nil
	default:
		return "", types.NewErrorWithMsg(
			http.StatusInternalServerError,
			types.InternalServiceError,
			fmt.Sprintf("unknown transfer state %q for ref %s", resp.State, transferRef),
		)
	}
}
