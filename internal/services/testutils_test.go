package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/novavault/recovery-orchestrator/internal/clients"
	"github.com/novavault/recovery-orchestrator/internal/clients/policy"
	"github.com/novavault/recovery-orchestrator/internal/clients/router"
	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/db"
	"github.com/novavault/recovery-orchestrator/internal/db/model"
	"github.com/novavault/recovery-orchestrator/internal/observability/metrics"
	queueClient "github.com/novavault/recovery-orchestrator/internal/queue/client"
	"github.com/novavault/recovery-orchestrator/internal/types"
	"github.com/novavault/recovery-orchestrator/internal/utils"
)

var metricsOnce sync.Once

const (
	testIdentity  = "alice.eth"
	testOldWallet = "wallet-1234"
	testNewOwner  = "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
)

var testGuardians = []string{
	"0x1111111111111111111111111111111111111111",
	"0x2222222222222222222222222222222222222222",
	"0x3333333333333333333333333333333333333333",
	"0x4444444444444444444444444444444444444444",
	"0x5555555555555555555555555555555555555555",
}

func testConfig() *config.Config {
	return &config.Config{
		Chains: config.ChainsConfig{
			Asset:      "USDC",
			Supported:  []string{"ETH-SEPOLIA", "MATIC-AMOY", "AVAX-FUJI"},
			Settlement: "ETH-SEPOLIA",
		},
		Saga: config.SagaConfig{
			Collaborator: config.RetryConfig{MaxAttempts: 2, IntervalMs: 1, BackoffFactor: 1},
			Confirmation: config.RetryConfig{MaxAttempts: 3, IntervalMs: 1, BackoffFactor: 1},
		},
	}
}

type testEnv struct {
	services *Services
	db       *fakeDB
	balance  *fakeBalanceClient
	router   *fakeRouterClient
	naming   *fakeNamingClient
	policy   *fakePolicyClient
	emitter  *fakeEmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	metricsOnce.Do(func() { metrics.Init(0) })
	utils.SetSleepFunc(func(d time.Duration) {})
	t.Cleanup(utils.ResetSleepFunc)

	fdb := newFakeDB()
	balanceClient := &fakeBalanceClient{balances: map[string]uint64{}}
	routerClient := &fakeRouterClient{states: map[string]router.TransferState{}}
	namingClient := &fakeNamingClient{}
	policyClient := &fakePolicyClient{}
	emitter := &fakeEmitter{}

	svc := &Services{
		DbClient: fdb,
		Clients: &clients.Clients{
			Balance: balanceClient,
			Router:  routerClient,
			Naming:  namingClient,
			Policy:  policyClient,
		},
		cfg:     testConfig(),
		emitter: emitter,
	}
	return &testEnv{
		services: svc,
		db:       fdb,
		balance:  balanceClient,
		router:   routerClient,
		naming:   namingClient,
		policy:   policyClient,
		emitter:  emitter,
	}
}

// registerApproved registers a request and drives it across the approval
// threshold.
func (e *testEnv) registerApproved(t *testing.T, threshold uint64) string {
	t.Helper()
	recovery, err := e.services.RegisterRecovery(
		context.Background(), testIdentity, testOldWallet, testNewOwner, testGuardians, threshold,
	)
	if err != nil {
		t.Fatalf("RegisterRecovery failed: %v", err)
	}
	for i := uint64(0); i < threshold; i++ {
		if _, approveErr := e.services.SubmitApproval(context.Background(), recovery.RequestId, testGuardians[i]); approveErr != nil {
			t.Fatalf("SubmitApproval failed: %v", approveErr)
		}
	}
	return recovery.RequestId
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []queueClient.RecoveryApprovedEvent
	err    error
}

func (f *fakeEmitter) EmitRecoveryApprovedEvent(ctx context.Context, event queueClient.RecoveryApprovedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmitter) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeDB is an in-memory DBClient with the same atomicity guarantees the
// mongo implementation provides: per-document serialization of approval
// appends, filtered state transitions and a one-shot saga start lock.
type fakeDB struct {
	mu            sync.Mutex
	requests      map[string]*model.RecoveryRequestDocument
	executions    map[string]*model.SagaExecutionDocument
	locks         map[string]bool
	frozen        map[string]*model.FrozenWalletDocument
	deprecated    map[string]*model.DeprecatedWalletDocument
	recovered     map[string]*model.RecoveredWalletDocument
	unprocessable []model.UnprocessableMessageDocument

	freezeCalls int

	freezeWalletErr    error
	createExecutionErr error
	updateMetaErr      error
}

var _ db.DBClient = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	return &fakeDB{
		requests:   make(map[string]*model.RecoveryRequestDocument),
		executions: make(map[string]*model.SagaExecutionDocument),
		locks:      make(map[string]bool),
		frozen:     make(map[string]*model.FrozenWalletDocument),
		deprecated: make(map[string]*model.DeprecatedWalletDocument),
		recovered:  make(map[string]*model.RecoveredWalletDocument),
	}
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }

func (f *fakeDB) SaveRecoveryRequest(
	ctx context.Context, requestId, identity, oldWalletRef, newOwnerAddress string,
	guardians []string, threshold uint64,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.requests[requestId]; ok && existing.Status != types.RecoveryFailed {
		return &db.DuplicateKeyError{Key: requestId, Message: "recovery request already exists"}
	}
	f.requests[requestId] = &model.RecoveryRequestDocument{
		RequestId:       requestId,
		Identity:        identity,
		OldWalletRef:    oldWalletRef,
		NewOwnerAddress: newOwnerAddress,
		Guardians:       append([]string(nil), guardians...),
		Threshold:       threshold,
		Approvals:       []string{},
		Status:          types.RecoveryPending,
		CreatedAt:       time.Now().UTC(),
	}
	f.locks[requestId] = false
	return nil
}

func (f *fakeDB) FindRecoveryRequestById(ctx context.Context, requestId string) (*model.RecoveryRequestDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[requestId]
	if !ok {
		return nil, &db.NotFoundError{Key: requestId, Message: "recovery request not found"}
	}
	return copyRequest(request), nil
}

func (f *fakeDB) AddApproval(ctx context.Context, requestId, guardianAddress string) (*model.RecoveryRequestDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[requestId]
	if !ok {
		return nil, &db.NotFoundError{Key: requestId, Message: "recovery request not found"}
	}
	if utils.Contains(request.Approvals, guardianAddress) {
		return nil, &db.AlreadyApprovedError{Key: guardianAddress, Message: "guardian has already approved"}
	}
	request.Approvals = append(request.Approvals, guardianAddress)
	return copyRequest(request), nil
}

func (f *fakeDB) TransitionRecoveryStatus(
	ctx context.Context, requestId string, newStatus types.RecoveryStatus,
	eligiblePreviousStatuses []types.RecoveryStatus,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[requestId]
	if !ok || !utils.Contains(eligiblePreviousStatuses, request.Status) {
		return &db.NotFoundError{Key: requestId, Message: "no eligible recovery request to transition"}
	}
	request.Status = newStatus
	return nil
}

// CreateSagaExecution is all-or-nothing like the transactional store: an
// injected fault fails the whole call and leaves the lock unconsumed.
func (f *fakeDB) CreateSagaExecution(ctx context.Context, execution *model.SagaExecutionDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createExecutionErr != nil {
		err := f.createExecutionErr
		f.createExecutionErr = nil
		return err
	}
	if f.locks[execution.RequestId] {
		return &db.NotFoundError{Key: execution.RequestId, Message: "saga already started"}
	}
	f.locks[execution.RequestId] = true
	f.executions[execution.ExecutionId] = copyExecution(execution)
	return nil
}

func (f *fakeDB) FindSagaExecutionById(ctx context.Context, executionId string) (*model.SagaExecutionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	execution, ok := f.executions[executionId]
	if !ok {
		return nil, &db.NotFoundError{Key: executionId, Message: "saga execution not found"}
	}
	return copyExecution(execution), nil
}

func (f *fakeDB) FindActiveSagaExecutionByRequestId(ctx context.Context, requestId string) (*model.SagaExecutionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, execution := range f.executions {
		if execution.RequestId == requestId && execution.Active {
			return copyExecution(execution), nil
		}
	}
	return nil, &db.NotFoundError{Key: requestId, Message: "no active saga execution"}
}

func (f *fakeDB) FindLatestSagaExecutionByRequestId(ctx context.Context, requestId string) (*model.SagaExecutionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.SagaExecutionDocument
	for _, execution := range f.executions {
		if execution.RequestId != requestId {
			continue
		}
		if latest == nil || execution.StartedAt.After(latest.StartedAt) {
			latest = execution
		}
	}
	if latest == nil {
		return nil, &db.NotFoundError{Key: requestId, Message: "no saga execution"}
	}
	return copyExecution(latest), nil
}

func (f *fakeDB) SavePhaseResult(
	ctx context.Context, executionId string, phase types.PhaseName, result model.PhaseResultDocument,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	execution, ok := f.executions[executionId]
	if !ok {
		return &db.NotFoundError{Key: executionId, Message: "saga execution not found"}
	}
	execution.PhaseResults[phase.ToString()] = result
	return nil
}

func (f *fakeDB) TransitionSagaState(
	ctx context.Context, executionId string, newState types.SagaState,
	eligiblePreviousStates []types.SagaState,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	execution, ok := f.executions[executionId]
	if !ok || !utils.Contains(eligiblePreviousStates, execution.State) {
		return &db.NotFoundError{Key: executionId, Message: "no eligible saga execution to transition"}
	}
	execution.State = newState
	return nil
}

func (f *fakeDB) UpdateSagaMetadata(ctx context.Context, executionId string, metadata model.SagaMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateMetaErr != nil {
		err := f.updateMetaErr
		f.updateMetaErr = nil
		return err
	}
	execution, ok := f.executions[executionId]
	if !ok {
		return &db.NotFoundError{Key: executionId, Message: "saga execution not found"}
	}
	execution.Metadata = metadata
	return nil
}

func (f *fakeDB) MarkSagaCompleted(ctx context.Context, executionId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	execution, ok := f.executions[executionId]
	if !ok {
		return &db.NotFoundError{Key: executionId, Message: "saga execution not found"}
	}
	now := time.Now().UTC()
	execution.State = types.SagaCompleted
	execution.Active = false
	execution.CompletedAt = &now
	return nil
}

func (f *fakeDB) MarkSagaFailed(ctx context.Context, executionId, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	execution, ok := f.executions[executionId]
	if !ok {
		return &db.NotFoundError{Key: executionId, Message: "saga execution not found"}
	}
	now := time.Now().UTC()
	execution.State = types.SagaFailed
	execution.Active = false
	execution.CompletedAt = &now
	execution.Error = errMsg
	execution.Metadata.TransferRefs = []string{}
	return nil
}

func (f *fakeDB) FreezeWallet(ctx context.Context, walletRef, requestId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freezeCalls++
	if f.freezeWalletErr != nil {
		return f.freezeWalletErr
	}
	if _, ok := f.frozen[walletRef]; !ok {
		f.frozen[walletRef] = &model.FrozenWalletDocument{
			WalletRef: walletRef,
			RequestId: requestId,
			FrozenAt:  time.Now().UTC(),
		}
	}
	return nil
}

func (f *fakeDB) FindFrozenWallet(ctx context.Context, walletRef string) (*model.FrozenWalletDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	frozen, ok := f.frozen[walletRef]
	if !ok {
		return nil, &db.NotFoundError{Key: walletRef, Message: "wallet is not frozen"}
	}
	copied := *frozen
	return &copied, nil
}

func (f *fakeDB) FinalizeWalletRecovery(ctx context.Context, oldWalletRef, newOwnerAddress, executionId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	if _, ok := f.deprecated[oldWalletRef]; !ok {
		f.deprecated[oldWalletRef] = &model.DeprecatedWalletDocument{
			OldWalletRef:    oldWalletRef,
			NewOwnerAddress: newOwnerAddress,
			ExecutionId:     executionId,
			DeprecatedAt:    now,
		}
	}
	if _, ok := f.recovered[newOwnerAddress]; !ok {
		f.recovered[newOwnerAddress] = &model.RecoveredWalletDocument{
			NewOwnerAddress: newOwnerAddress,
			OldWalletRef:    oldWalletRef,
			ExecutionId:     executionId,
			RecoveredAt:     now,
		}
	}
	return nil
}

func (f *fakeDB) FindDeprecatedWallet(ctx context.Context, oldWalletRef string) (*model.DeprecatedWalletDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deprecated, ok := f.deprecated[oldWalletRef]
	if !ok {
		return nil, &db.NotFoundError{Key: oldWalletRef, Message: "wallet has not been deprecated"}
	}
	copied := *deprecated
	return &copied, nil
}

func (f *fakeDB) FindRecoveredWallet(ctx context.Context, newOwnerAddress string) (*model.RecoveredWalletDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recovered, ok := f.recovered[newOwnerAddress]
	if !ok {
		return nil, &db.NotFoundError{Key: newOwnerAddress, Message: "no recovery recorded"}
	}
	copied := *recovered
	return &copied, nil
}

func (f *fakeDB) SaveUnprocessableMessage(ctx context.Context, messageBody, receipt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unprocessable = append(f.unprocessable, *model.NewUnprocessableMessageDocument(messageBody, receipt))
	return nil
}

func (f *fakeDB) FindUnprocessableMessages(ctx context.Context) ([]model.UnprocessableMessageDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.UnprocessableMessageDocument(nil), f.unprocessable...), nil
}

func (f *fakeDB) DeleteUnprocessableMessage(ctx context.Context, receipt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var remaining []model.UnprocessableMessageDocument
	for _, msg := range f.unprocessable {
		if msg.Receipt != receipt {
			remaining = append(remaining, msg)
		}
	}
	f.unprocessable = remaining
	return nil
}

func (f *fakeDB) executionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executions)
}

func copyRequest(request *model.RecoveryRequestDocument) *model.RecoveryRequestDocument {
	copied := *request
	copied.Guardians = append([]string(nil), request.Guardians...)
	copied.Approvals = append([]string(nil), request.Approvals...)
	return &copied
}

func copyExecution(execution *model.SagaExecutionDocument) *model.SagaExecutionDocument {
	copied := *execution
	copied.PhaseResults = make(map[string]model.PhaseResultDocument, len(execution.PhaseResults))
	for phase, result := range execution.PhaseResults {
		copied.PhaseResults[phase] = result
	}
	copied.Metadata.TransferRefs = append([]string(nil), execution.Metadata.TransferRefs...)
	return &copied
}

type fakeBalanceClient struct {
	mu       sync.Mutex
	balances map[string]uint64
	errs     map[string]*types.Error
}

func (f *fakeBalanceClient) GetBaseURL() string { return "http://balance.test" }
func (f *fakeBalanceClient) GetDefaultRequestTimeout() int { return 1000 }
func (f *fakeBalanceClient) GetHttpClient() *http.Client { return http.DefaultClient }

func (f *fakeBalanceClient) GetBalance(ctx context.Context, walletRef, chain string) (uint64, *types.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[chain]; ok {
		return 0, err
	}
	return f.balances[chain], nil
}

type recordedTransfer struct {
	walletRef string
	recipient string
	fromChain string
	toChain   string
	amount    uint64
}

type fakeRouterClient struct {
	mu          sync.Mutex
	transfers   []recordedTransfer
	transferErr *types.Error
	states      map[string]router.TransferState
}

func (f *fakeRouterClient) GetBaseURL() string { return "http://router.test" }
func (f *fakeRouterClient) GetDefaultRequestTimeout() int { return 1000 }
func (f *fakeRouterClient) GetHttpClient() *http.Client { return http.DefaultClient }

func (f *fakeRouterClient) Transfer(
	ctx context.Context, walletRef, recipient, fromChain, toChain string, amount uint64,
) (string, *types.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transfers = append(f.transfers, recordedTransfer{walletRef, recipient, fromChain, toChain, amount})
	return fmt.Sprintf("transfer-%d", len(f.transfers)), nil
}

func (f *fakeRouterClient) GetTransferState(ctx context.Context, transferRef string) (router.TransferState, *types.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state, ok := f.states[transferRef]; ok {
		return state, nil
	}
	return router.TransferConfirmed, nil
}

func (f *fakeRouterClient) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

type recordedBinding struct {
	identity string
	address  string
}

type fakeNamingClient struct {
	mu       sync.Mutex
	bindings []recordedBinding
	err      *types.Error
}

func (f *fakeNamingClient) GetBaseURL() string { return "http://naming.test" }
func (f *fakeNamingClient) GetDefaultRequestTimeout() int { return 1000 }
func (f *fakeNamingClient) GetHttpClient() *http.Client { return http.DefaultClient }

func (f *fakeNamingClient) UpdateNameBinding(ctx context.Context, identity, newAddress string) (string, *types.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.bindings = append(f.bindings, recordedBinding{identity, newAddress})
	return fmt.Sprintf("binding-%d", len(f.bindings)), nil
}

func (f *fakeNamingClient) bindingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bindings)
}

type recordedPolicy struct {
	name    string
	request policy.PolicyRequest
}

type fakePolicyClient struct {
	mu       sync.Mutex
	policies []recordedPolicy
	err      *types.Error
}

func (f *fakePolicyClient) GetBaseURL() string { return "http://policy.test" }
func (f *fakePolicyClient) GetDefaultRequestTimeout() int { return 1000 }
func (f *fakePolicyClient) GetHttpClient() *http.Client { return http.DefaultClient }

func (f *fakePolicyClient) CreatePolicy(ctx context.Context, name string, req policy.PolicyRequest) (string, *types.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.policies = append(f.policies, recordedPolicy{name, req})
	return fmt.Sprintf("policy-%d", len(f.policies)), nil
}
