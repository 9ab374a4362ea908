package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	domainRepos "stablepay.backend/internal/domain/repositories"
	"stablepay.backend/pkg/jwt"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
	"stablepay.backend/pkg/utils"
)

// ErrConfirmationPending means a swap was submitted but its output has not
// been observed yet; confirming again resumes the wait without swapping twice.
var ErrConfirmationPending = errors.New("swap output not observed yet")

// FlowLocker serializes work on a single flow across instances
type FlowLocker interface {
	Acquire(ctx context.Context, flowID, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, flowID, token string) error
	Extend(ctx context.Context, flowID, token string, ttl time.Duration) (bool, error)
}

// FlowTokenIssuer issues the bearer token bound to a flow and its payer
type FlowTokenIssuer interface {
	IssueFlowToken(flowID uuid.UUID, holder string) (*jwt.FlowToken, error)
}

// FlowSettings tunes flow bookkeeping. The flow lock is renewed every
// LockRefresh while a step runs, so LockTTL only bounds how long a crashed
// instance keeps a flow blocked.
type FlowSettings struct {
	LockTTL     time.Duration
	LockRefresh time.Duration
	ConfirmTTL  time.Duration
	ExpiryBatch int
}

type PaymentFlowUsecase struct {
	flowRepo  domainRepos.SettlementFlowRepository
	eventRepo domainRepos.FlowEventRepository
	uow       domainRepos.UnitOfWork
	engine    *SettlementEngine
	codec     *PaymentPayloadCodec
	locker    FlowLocker
	tokens    FlowTokenIssuer
	metrics   metrics.Recorder
	settings  FlowSettings
	now       func() time.Time
}

func NewPaymentFlowUsecase(
	flowRepo domainRepos.SettlementFlowRepository,
	eventRepo domainRepos.FlowEventRepository,
	uow domainRepos.UnitOfWork,
	engine *SettlementEngine,
	codec *PaymentPayloadCodec,
	locker FlowLocker,
	tokens FlowTokenIssuer,
	recorder metrics.Recorder,
	settings FlowSettings,
) *PaymentFlowUsecase {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = 5 * time.Minute
	}
	if settings.LockRefresh <= 0 || settings.LockRefresh >= settings.LockTTL {
		settings.LockRefresh = settings.LockTTL / 3
	}
	if settings.ConfirmTTL <= 0 {
		settings.ConfirmTTL = 15 * time.Minute
	}
	if settings.ExpiryBatch <= 0 {
		settings.ExpiryBatch = 100
	}
	return &PaymentFlowUsecase{
		flowRepo:  flowRepo,
		eventRepo: eventRepo,
		uow:       uow,
		engine:    engine,
		codec:     codec,
		locker:    locker,
		tokens:    tokens,
		metrics:   recorder,
		settings:  settings,
		now:       time.Now,
	}
}

type StartFlowInput struct {
	Holder  string
	Payload string
}

type StartFlowOutput struct {
	Flow  *entities.SettlementFlow `json:"flow"`
	Token *jwt.FlowToken           `json:"token"`
}

type FlowView struct {
	Flow   *entities.SettlementFlow `json:"flow"`
	Events []*entities.FlowEvent    `json:"events"`
}

type FlowListOutput struct {
	Items []*entities.SettlementFlow `json:"items"`
	Meta  utils.PaginationMeta       `json:"meta"`
}

// Start decodes a scanned payload and opens a flow in SCANNED for holder.
// A malformed payload creates nothing.
func (uc *PaymentFlowUsecase) Start(ctx context.Context, input StartFlowInput) (*StartFlowOutput, error) {
	if !common.IsHexAddress(input.Holder) {
		return nil, domainerrors.BadRequest("invalid holder address")
	}
	req, err := uc.codec.Decode(input.Payload)
	if err != nil {
		return nil, err
	}

	flow := &entities.SettlementFlow{
		HolderAddress: common.HexToAddress(input.Holder).Hex(),
		Request:       req,
		State:         entities.FlowStateScanned,
	}
	err = uc.uow.Do(ctx, func(txCtx context.Context) error {
		if err := uc.flowRepo.Create(txCtx, flow); err != nil {
			return err
		}
		return uc.eventRepo.Create(txCtx, &entities.FlowEvent{
			FlowID:    flow.ID,
			EventType: entities.FlowEventTypeScanned,
			State:     entities.FlowStateScanned,
			Detail:    fmt.Sprintf("%s %s to %s", req.Amount.String(), req.CurrencyCode, req.MerchantAddress),
		})
	})
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}

	token, err := uc.tokens.IssueFlowToken(flow.ID, flow.HolderAddress)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}

	uc.metrics.IncCounter(metrics.FlowsTotal, map[string]string{"kind": "started", "result": "ok"})
	logger.Info(logger.WithFlowID(ctx, flow.ID.String()), "Settlement flow started",
		zap.String("holder", flow.HolderAddress),
		zap.String("currency", req.CurrencyCode),
		zap.String("amount", req.Amount.String()),
	)
	return &StartFlowOutput{Flow: flow, Token: token}, nil
}

// Get returns a flow with its audit trail
func (uc *PaymentFlowUsecase) Get(ctx context.Context, id uuid.UUID) (*FlowView, error) {
	flow, err := uc.flowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := uc.eventRepo.GetByFlowID(ctx, id)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	return &FlowView{Flow: flow, Events: events}, nil
}

// List returns flows, optionally filtered by state, newest first
func (uc *PaymentFlowUsecase) List(ctx context.Context, state entities.FlowState, page, limit int) (*FlowListOutput, error) {
	params := utils.GetPaginationParams(page, limit)
	flows, total, err := uc.flowRepo.ListByState(ctx, state, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	return &FlowListOutput{
		Items: flows,
		Meta:  utils.CalculateMeta(total, params.Page, params.Limit),
	}, nil
}

// Decide reads the payer's balances and chooses a plan. Direct plans are
// settled immediately; fallback and swap plans wait in CONFIRM.
func (uc *PaymentFlowUsecase) Decide(ctx context.Context, id uuid.UUID, holder string) (*entities.SettlementFlow, error) {
	release, err := uc.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	flow, err := uc.load(ctx, id, holder)
	if err != nil {
		return nil, err
	}
	if flow.State != entities.FlowStateScanned {
		return flow, invalidTransition(flow.State, entities.FlowStateDecided)
	}
	ctx = logger.WithFlowID(ctx, id.String())

	balances, err := uc.engine.Balances.ReadAll(ctx, flow.HolderAddress)
	if err != nil {
		return uc.fail(ctx, flow, err)
	}
	plan, err := uc.engine.Router.Decide(ctx, flow.Request, balances)
	if err != nil {
		return uc.fail(ctx, flow, err)
	}

	now := uc.now()
	flow.Plan = &plan
	flow.DecidedAt = &now
	flow.ApprovalTxHash = null.String{}
	flow.SwapTxHash = null.String{}
	flow.ConfirmThreshold = nil
	flow.PriorTargetBalance = nil
	flow.LastErrorKind = null.String{}
	flow.LastErrorDetail = null.String{}
	if err := uc.persist(ctx, flow, entities.FlowStateDecided, event(entities.FlowEventTypeDecided, "", describePlan(plan))); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Settlement plan decided", zap.String("plan", string(plan.Kind)), zap.String("amount", plan.Amount.String()), zap.String("token", plan.Token.CurrencyCode))

	if !plan.NeedsConfirmation() {
		return uc.settle(ctx, flow, plan.Token, plan.Amount)
	}
	if err := uc.persist(ctx, flow, entities.FlowStateConfirm, event(entities.FlowEventTypeConfirmWait, "", "awaiting payer confirmation")); err != nil {
		return nil, err
	}
	return flow, nil
}

// Confirm executes a fallback or swap plan the payer has accepted.
func (uc *PaymentFlowUsecase) Confirm(ctx context.Context, id uuid.UUID, holder string) (*entities.SettlementFlow, error) {
	release, err := uc.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	flow, err := uc.load(ctx, id, holder)
	if err != nil {
		return nil, err
	}
	if flow.State != entities.FlowStateConfirm || flow.Plan == nil {
		return flow, invalidTransition(flow.State, entities.FlowStateDone)
	}
	ctx = logger.WithFlowID(ctx, id.String())

	switch flow.Plan.Kind {
	case entities.PlanKindFallback:
		return uc.settle(ctx, flow, flow.Plan.Token, flow.Plan.Amount)
	case entities.PlanKindSwapThenTransfer:
		return uc.swapAndSettle(ctx, flow)
	}
	return flow, invalidTransition(flow.State, entities.FlowStateDone)
}

// Abandon moves a live flow to ABANDONED. Broadcast transactions are not recalled.
func (uc *PaymentFlowUsecase) Abandon(ctx context.Context, id uuid.UUID, holder string) (*entities.SettlementFlow, error) {
	release, err := uc.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	flow, err := uc.load(ctx, id, holder)
	if err != nil {
		return nil, err
	}
	if flow.State.IsTerminal() {
		return flow, invalidTransition(flow.State, entities.FlowStateAbandoned)
	}
	if err := uc.persist(ctx, flow, entities.FlowStateAbandoned, event(entities.FlowEventTypeAbandoned, "", "abandoned by payer")); err != nil {
		return nil, err
	}
	uc.metrics.IncCounter(metrics.FlowsTotal, map[string]string{"kind": planKind(flow), "result": "abandoned"})
	logger.Info(logger.WithFlowID(ctx, id.String()), "Settlement flow abandoned")
	return flow, nil
}

// ExpireStale abandons flows left in DECIDED or CONFIRM longer than the
// confirm TTL. Flows currently locked by a confirm are skipped.
func (uc *PaymentFlowUsecase) ExpireStale(ctx context.Context) (int, error) {
	before := uc.now().Add(-uc.settings.ConfirmTTL)
	stale, err := uc.flowRepo.GetStale(ctx, []entities.FlowState{entities.FlowStateDecided, entities.FlowStateConfirm}, before, uc.settings.ExpiryBatch)
	if err != nil {
		return 0, err
	}

	var ids []uuid.UUID
	var releases []func()
	defer func() {
		for _, release := range releases {
			release()
		}
	}()
	for _, flow := range stale {
		release, err := uc.lock(ctx, flow.ID)
		if err != nil {
			continue
		}
		releases = append(releases, release)
		ids = append(ids, flow.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = uc.uow.Do(ctx, func(txCtx context.Context) error {
		if err := uc.flowRepo.MarkAbandoned(txCtx, ids); err != nil {
			return err
		}
		for _, id := range ids {
			if err := uc.eventRepo.Create(txCtx, &entities.FlowEvent{
				FlowID:    id,
				EventType: entities.FlowEventTypeAbandoned,
				State:     entities.FlowStateAbandoned,
				Detail:    "confirmation window expired",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for range ids {
		uc.metrics.IncCounter(metrics.FlowsTotal, map[string]string{"kind": "expired", "result": "abandoned"})
	}
	return len(ids), nil
}

func (uc *PaymentFlowUsecase) swapAndSettle(ctx context.Context, flow *entities.SettlementFlow) (*entities.SettlementFlow, error) {
	plan := flow.Plan
	if plan.Quote == nil {
		return uc.fail(ctx, flow, fmt.Errorf("%w: swap plan without quote", domainerrors.ErrInvalidInput))
	}
	quote := plan.Quote

	if !flow.SwapTxHash.Valid {
		prior, err := uc.engine.Balances.BalanceOf(ctx, quote.TargetToken, flow.HolderAddress)
		if err != nil {
			return uc.fail(ctx, flow, err)
		}
		receipt, err := uc.engine.Swaps.Swap(ctx, quote.SourceToken, quote.TargetToken, quote.SourceAmount, plan.SlippageBps, flow.HolderAddress)
		if err != nil {
			if receipt.ApprovalTxHash != "" {
				flow.ApprovalTxHash = null.StringFrom(receipt.ApprovalTxHash)
			}
			return uc.fail(ctx, flow, err)
		}

		threshold := prior.Add(receipt.MinOut)
		flow.ApprovalTxHash = null.StringFrom(receipt.ApprovalTxHash)
		flow.SwapTxHash = null.StringFrom(receipt.TxHash)
		flow.ConfirmThreshold = &threshold
		flow.PriorTargetBalance = &prior
		if err := uc.persist(ctx, flow, entities.FlowStateConfirm,
			event(entities.FlowEventTypeApprovalTx, receipt.ApprovalTxHash, "allowance increased for "+quote.SourceToken.CurrencyCode),
			event(entities.FlowEventTypeSwapTx, receipt.TxHash, fmt.Sprintf("expected %s %s, min %s", receipt.ExpectedOut, quote.TargetToken.CurrencyCode, receipt.MinOut)),
		); err != nil {
			return nil, err
		}
	}

	threshold := plan.Amount
	if flow.ConfirmThreshold != nil {
		threshold = *flow.ConfirmThreshold
	}
	result, err := uc.engine.Confirmer.AwaitBalanceAtLeast(ctx, quote.TargetToken, flow.HolderAddress, threshold, uc.engine.Settings.ConfirmTimeout, uc.engine.Settings.ConfirmInterval)
	if err != nil {
		return flow, err
	}
	if !result.Met {
		detail := fmt.Sprintf("observed %s of %s %s", result.Observed, threshold, quote.TargetToken.CurrencyCode)
		if err := uc.persist(ctx, flow, entities.FlowStateConfirm, event(entities.FlowEventTypeConfirmWait, flow.SwapTxHash.String, detail)); err != nil {
			return nil, err
		}
		return flow, ErrConfirmationPending
	}

	amount := decimal.Min(plan.Amount, result.Observed)
	if flow.PriorTargetBalance != nil {
		amount = decimal.Min(plan.Amount, result.Observed.Sub(*flow.PriorTargetBalance))
	}
	return uc.settle(ctx, flow, quote.TargetToken, amount)
}

// settle pays the merchant and the platform fee, then closes the flow. Once
// the merchant transfer has landed the flow completes even if the fee leg fails.
func (uc *PaymentFlowUsecase) settle(ctx context.Context, flow *entities.SettlementFlow, token entities.TokenDescriptor, amount decimal.Decimal) (*entities.SettlementFlow, error) {
	settlement, err := uc.engine.Fees.Settle(ctx, token, flow.Request.MerchantAddress, amount, flow.HolderAddress)
	var feeErr *FeeError
	if err != nil && !errors.As(err, &feeErr) {
		return uc.fail(ctx, flow, err)
	}

	events := []*entities.FlowEvent{
		event(entities.FlowEventTypeTransferTx, settlement.MerchantTxHash, fmt.Sprintf("%s %s to merchant", settlement.ToMerchant, token.CurrencyCode)),
	}
	switch {
	case feeErr != nil:
		flow.LastErrorKind = null.StringFrom(string(domainerrors.KindTransferFailed))
		flow.LastErrorDetail = null.StringFrom(feeErr.Error())
		events = append(events, event(entities.FlowEventTypeFeeTx, "", "fee transfer failed: "+feeErr.Err.Error()))
		logger.Error(ctx, "Platform fee transfer failed after merchant payment", zap.String("merchant_tx", settlement.MerchantTxHash), zap.Error(feeErr.Err))
	case settlement.FeeTxHash != "":
		events = append(events, event(entities.FlowEventTypeFeeTx, settlement.FeeTxHash, fmt.Sprintf("%s %s platform fee", settlement.FeeTransferred, token.CurrencyCode)))
	}
	events = append(events, event(entities.FlowEventTypeCompleted, settlement.MerchantTxHash, ""))

	outcome := settlement.Outcome()
	now := uc.now()
	flow.Outcome = &outcome
	flow.CompletedAt = &now
	if err := uc.persist(ctx, flow, entities.FlowStateDone, events...); err != nil {
		return nil, err
	}

	uc.metrics.IncCounter(metrics.FlowsTotal, map[string]string{"kind": planKind(flow), "result": "done"})
	logger.Info(ctx, "Settlement flow completed",
		zap.String("tx_hash", outcome.TxHash),
		zap.String("settled", outcome.SettledAmount.String()),
		zap.String("fee", outcome.FeeAmount.String()),
	)
	return flow, nil
}

// fail records a classified error and sends the flow back to SCANNED. The
// original error is returned for the caller to surface.
func (uc *PaymentFlowUsecase) fail(ctx context.Context, flow *entities.SettlementFlow, cause error) (*entities.SettlementFlow, error) {
	kind := domainerrors.Classify(cause)
	flow.LastErrorKind = null.StringFrom(string(kind))
	flow.LastErrorDetail = null.StringFrom(domainerrors.UserMessage(cause))

	if err := uc.persist(ctx, flow, entities.FlowStateScanned, event(entities.FlowEventTypeFailed, "", string(kind)+": "+cause.Error())); err != nil {
		logger.Error(ctx, "Failed to record flow failure", zap.Error(err))
	}
	uc.metrics.IncCounter(metrics.FlowsTotal, map[string]string{"kind": planKind(flow), "result": strings.ToLower(string(kind))})
	logger.Warn(ctx, "Settlement step failed", zap.String("kind", string(kind)), zap.Error(cause))
	return flow, cause
}

// persist moves flow to state and appends events in one transaction. The row
// is re-read under lock so a concurrent expiry cannot be overwritten.
func (uc *PaymentFlowUsecase) persist(ctx context.Context, flow *entities.SettlementFlow, to entities.FlowState, events ...*entities.FlowEvent) error {
	from := flow.State
	if from != to && !entities.CanTransition(from, to) {
		return invalidTransition(from, to)
	}
	return uc.uow.Do(ctx, func(txCtx context.Context) error {
		current, err := uc.flowRepo.GetByID(uc.uow.WithLock(txCtx), flow.ID)
		if err != nil {
			return err
		}
		if current.State != from {
			return invalidTransition(current.State, to)
		}
		flow.State = to
		if err := uc.flowRepo.Update(txCtx, flow); err != nil {
			flow.State = from
			return err
		}
		for _, e := range events {
			e.FlowID = flow.ID
			e.State = to
			if err := uc.eventRepo.Create(txCtx, e); err != nil {
				flow.State = from
				return err
			}
		}
		return nil
	})
}

func (uc *PaymentFlowUsecase) load(ctx context.Context, id uuid.UUID, holder string) (*entities.SettlementFlow, error) {
	flow, err := uc.flowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(flow.HolderAddress, holder) {
		return nil, domainerrors.Forbidden("flow belongs to another wallet")
	}
	return flow, nil
}

func (uc *PaymentFlowUsecase) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := uc.locker.Acquire(ctx, id.String(), token, uc.settings.LockTTL)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	if !ok {
		return nil, domainerrors.Conflict("flow is already being processed")
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go uc.keepLock(ctx, id.String(), token, stop, stopped)

	return func() {
		close(stop)
		<-stopped
		if err := uc.locker.Release(context.Background(), id.String(), token); err != nil {
			logger.Warn(ctx, "Failed to release flow lock", zap.String("flow_id", id.String()), zap.Error(err))
		}
	}, nil
}

// keepLock renews the flow lock every LockRefresh until stop is closed.
func (uc *PaymentFlowUsecase) keepLock(ctx context.Context, flowID, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(uc.settings.LockRefresh)
	defer ticker.Stop()

	renewCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			extendCtx, cancel := context.WithTimeout(renewCtx, uc.settings.LockRefresh)
			ok, err := uc.locker.Extend(extendCtx, flowID, token, uc.settings.LockTTL)
			cancel()
			if err != nil {
				logger.Warn(ctx, "Failed to extend flow lock", zap.String("flow_id", flowID), zap.Error(err))
				continue
			}
			if !ok {
				logger.Error(ctx, "Flow lock lost while a step was running", zap.String("flow_id", flowID))
				return
			}
		}
	}
}

func event(eventType entities.FlowEventType, txHash, detail string) *entities.FlowEvent {
	e := &entities.FlowEvent{EventType: eventType, Detail: detail}
	if txHash != "" {
		e.TxHash = null.StringFrom(txHash)
	}
	return e
}

func invalidTransition(from, to entities.FlowState) error {
	return fmt.Errorf("%w: %s -> %s", domainerrors.ErrInvalidTransition, from, to)
}

func planKind(flow *entities.SettlementFlow) string {
	if flow.Plan == nil {
		return "none"
	}
	return string(flow.Plan.Kind)
}

func describePlan(plan entities.SettlementPlan) string {
	switch plan.Kind {
	case entities.PlanKindFallback:
		return fmt.Sprintf("pay %s %s in place of %s %s", plan.Amount, plan.Token.CurrencyCode, plan.Quote.TargetAmount, plan.Quote.TargetToken.CurrencyCode)
	case entities.PlanKindSwapThenTransfer:
		return fmt.Sprintf("swap %s %s into %s %s (%d bps)", plan.Quote.SourceAmount, plan.Quote.SourceToken.CurrencyCode, plan.Amount, plan.Token.CurrencyCode, plan.SlippageBps)
	}
	return fmt.Sprintf("pay %s %s directly", plan.Amount, plan.Token.CurrencyCode)
}
