package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
)

const (
	usdAddr    = "0x765DE816845861e75A25fCA122bb6898B8B1282a"
	copAddr    = "0x8A567e2aE79CA692Bd748aB832081C45de4041eA"
	kesAddr    = "0x456a3D042C0DbD3db53D5489e98dFb038553B0d0"
	usdcAddr   = "0xcebA9300f2b948710d2653dD7B07f33A8B32118C"
	routerAddr = "0x777A8255cA72412f0d706dc03C9D1987306B4CaD"
	feeAddr    = "0x00000000000000000000000000000000000fee01"
	payerAddr  = "0x00000000000000000000000000000000000000a1"
	shopAddr   = "0x00000000000000000000000000000000000000b2"
)

var (
	usdToken = entities.TokenDescriptor{CurrencyCode: "USD", ContractAddress: usdAddr, Decimals: 18}
	copToken = entities.TokenDescriptor{CurrencyCode: "COP", ContractAddress: copAddr, Decimals: 18}
	kesToken  = entities.TokenDescriptor{CurrencyCode: "KES", ContractAddress: kesAddr, Decimals: 18}
	usdcToken = entities.TokenDescriptor{CurrencyCode: "USDC", ContractAddress: usdcAddr, Decimals: 6}
)

func testTokens() []entities.TokenDescriptor {
	return []entities.TokenDescriptor{usdToken, copToken, kesToken}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func raw(amount string) *big.Int {
	return dec(amount).Shift(18).BigInt()
}

func rawUnits(amount string, decimals int32) *big.Int {
	return dec(amount).Shift(decimals).BigInt()
}

type pendingOp struct {
	kind  string
	apply func() error
}

// fakeChain is an in-memory ledger implementing every chain-facing port of
// the settlement engine.
type fakeChain struct {
	mu         sync.Mutex
	balances   map[string]*big.Int
	allowances map[string]*big.Int
	rates      map[string]decimal.Decimal
	decimals   map[string]int32
	oracleDown map[string]bool
	failures   map[string][]error
	balanceErr error
	holdSwaps  bool
	held       []func()
	onSubmit   func(kind string)
	ops        map[string]pendingOp
	submitted  []string
	seq        int
}

func newFakeChain() *fakeChain {
	c := &fakeChain{
		balances:   map[string]*big.Int{},
		allowances: map[string]*big.Int{},
		rates:      map[string]decimal.Decimal{},
		decimals:   map[string]int32{},
		oracleDown: map[string]bool{},
		failures:   map[string][]error{},
		ops:        map[string]pendingOp{},
	}
	c.setRate(usdAddr, copAddr, "4000")
	c.setRate(copAddr, usdAddr, "0.00025")
	c.setRate(usdAddr, kesAddr, "130")
	c.setRate(kesAddr, usdAddr, "0.0076923")
	return c
}

func key(a, b string) string {
	return strings.ToLower(a) + "|" + strings.ToLower(b)
}

func (c *fakeChain) setRate(sell, buy, rate string) {
	c.rates[key(sell, buy)] = dec(rate)
}

// setDecimals records a token precision other than 18. Rates stay in raw
// units, so a pair across precisions needs a scaled rate.
func (c *fakeChain) setDecimals(token string, decimals int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decimals[strings.ToLower(token)] = decimals
}

func (c *fakeChain) precision(token string) int32 {
	if d, ok := c.decimals[strings.ToLower(token)]; ok {
		return d
	}
	return 18
}

func (c *fakeChain) fund(token, holder, amount string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(token, holder, rawUnits(amount, c.precision(token)))
}

func (c *fakeChain) balance(token, holder string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return decimal.NewFromBigInt(c.rawBalance(token, holder), -c.precision(token))
}

func (c *fakeChain) rawBalanceOf(token, holder string) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rawBalance(token, holder)
}

func (c *fakeChain) setOracleDown(sell, buy string, down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oracleDown[key(sell, buy)] = down
}

// failNext queues submission results per kind; a nil entry lets that call through.
func (c *fakeChain) failNext(kind string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[kind] = append(c.failures[kind], errs...)
}

func (c *fakeChain) releaseSwaps() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, credit := range c.held {
		credit()
	}
	c.held = nil
	c.holdSwaps = false
}

func (c *fakeChain) submittedKinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.submitted...)
}

func (c *fakeChain) rawBalance(token, holder string) *big.Int {
	if v, ok := c.balances[key(token, holder)]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (c *fakeChain) credit(token, holder string, amount *big.Int) {
	c.balances[key(token, holder)] = new(big.Int).Add(c.rawBalance(token, holder), amount)
}

func (c *fakeChain) debit(token, holder string, amount *big.Int) error {
	current := c.rawBalance(token, holder)
	if current.Cmp(amount) < 0 {
		return errors.New("execution reverted: transfer amount exceeds balance")
	}
	c.balances[key(token, holder)] = current.Sub(current, amount)
	return nil
}

func (c *fakeChain) GetTokenBalance(_ context.Context, token, owner string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balanceErr != nil {
		return nil, c.balanceErr
	}
	return c.rawBalance(token, owner), nil
}

func (c *fakeChain) FindPair(_ context.Context, sell, buy string) (entities.TradingPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rates[key(sell, buy)]; !ok {
		return entities.TradingPair{}, fmt.Errorf("%w: %s/%s", domainerrors.ErrPairNotFound, sell, buy)
	}
	return entities.TradingPair{ExchangeProvider: "0x0000000000000000000000000000000000000e01", Assets: []string{sell, buy}}, nil
}

func (c *fakeChain) GetAmountOut(_ context.Context, _ entities.TradingPair, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.amountOut(tokenIn, tokenOut, amountIn)
}

func (c *fakeChain) GetAmountIn(_ context.Context, _ entities.TradingPair, tokenIn, tokenOut string, amountOut *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oracleDown[key(tokenIn, tokenOut)] {
		return nil, errors.New("execution reverted: no valid median")
	}
	rate := c.rates[key(tokenIn, tokenOut)]
	return decimal.NewFromBigInt(amountOut, 0).Div(rate).Ceil().BigInt(), nil
}

func (c *fakeChain) amountOut(tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	if c.oracleDown[key(tokenIn, tokenOut)] {
		return nil, errors.New("execution reverted: no valid median")
	}
	rate := c.rates[key(tokenIn, tokenOut)]
	return decimal.NewFromBigInt(amountIn, 0).Mul(rate).Truncate(0).BigInt(), nil
}

func (c *fakeChain) Address() string { return routerAddr }

func (c *fakeChain) register(kind, from, to string, apply func() error) entities.BuiltTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.ops[id] = pendingOp{kind: kind, apply: apply}
	return entities.BuiltTx{From: from, To: to, Data: []byte(id)}
}

func (c *fakeChain) BuildSwapIn(from string, _ entities.TradingPair, tokenIn, tokenOut string, amountIn, minOut *big.Int) (entities.BuiltTx, error) {
	return c.register("swap", from, routerAddr, func() error {
		allowance := c.allowances[key(tokenIn, from)]
		if allowance == nil || allowance.Cmp(amountIn) < 0 {
			return errors.New("execution reverted: insufficient allowance")
		}
		out, err := c.amountOut(tokenIn, tokenOut, amountIn)
		if err != nil {
			return err
		}
		if out.Cmp(minOut) < 0 {
			return errors.New("execution reverted: amountOutMin not met")
		}
		if err := c.debit(tokenIn, from, amountIn); err != nil {
			return err
		}
		c.allowances[key(tokenIn, from)] = new(big.Int).Sub(allowance, amountIn)
		credit := func() { c.credit(tokenOut, from, out) }
		if c.holdSwaps {
			c.held = append(c.held, credit)
			return nil
		}
		credit()
		return nil
	}), nil
}

func (c *fakeChain) BuildIncreaseAllowance(from, token, spender string, amount *big.Int) (entities.BuiltTx, error) {
	return c.register("approval", from, token, func() error {
		current := c.allowances[key(token, from)]
		if current == nil {
			current = big.NewInt(0)
		}
		c.allowances[key(token, from)] = new(big.Int).Add(current, amount)
		return nil
	}), nil
}

func (c *fakeChain) BuildTransfer(from, token, to string, amount *big.Int) (entities.BuiltTx, error) {
	return c.register("transfer", from, token, func() error {
		if err := c.debit(token, from, amount); err != nil {
			return err
		}
		c.credit(token, to, amount)
		return nil
	}), nil
}

func (c *fakeChain) Submit(_ context.Context, tx entities.BuiltTx) (string, error) {
	c.mu.Lock()
	hook := c.onSubmit
	op, ok := c.ops[string(tx.Data)]
	c.mu.Unlock()
	if ok && hook != nil {
		hook(op.kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok = c.ops[string(tx.Data)]
	if !ok {
		return "", errors.New("unknown transaction")
	}
	c.seq++
	c.submitted = append(c.submitted, op.kind)
	if queued := c.failures[op.kind]; len(queued) > 0 {
		c.failures[op.kind] = queued[1:]
		if queued[0] != nil {
			return "", queued[0]
		}
	}
	if err := op.apply(); err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%s%04d", op.kind, c.seq), nil
}

func testEngineSettings(feeRate string) EngineSettings {
	return EngineSettings{
		PlatformFeeRate:     dec(feeRate),
		PlatformFeeAddress:  feeAddr,
		SlippageBps:         100,
		SwapMaxAttempts:     3,
		TransferMaxAttempts: 5,
		ConfirmTimeout:      40 * time.Millisecond,
		ConfirmInterval:     5 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, chain *fakeChain, feeRate string) *SettlementEngine {
	t.Helper()
	return newTestEngineWith(t, chain, testTokens(), "USD", testEngineSettings(feeRate))
}

func newTestEngineWith(t *testing.T, chain *fakeChain, tokens []entities.TokenDescriptor, fallback string, settings EngineSettings) *SettlementEngine {
	t.Helper()
	registry, err := NewTokenRegistry(tokens, fallback)
	require.NoError(t, err)
	engine, err := NewSettlementEngine(registry, EnginePorts{
		Balances:  chain,
		Router:    chain,
		Tokens:    chain,
		Submitter: chain,
	}, settings)
	require.NoError(t, err)
	engine.Quotes.Attach(chain)
	return engine
}

// memFlowRepo and memEventRepo keep flows and events in memory
type memFlowRepo struct {
	mu    sync.Mutex
	flows map[uuid.UUID]entities.SettlementFlow
	err   error
}

func newMemFlowRepo() *memFlowRepo {
	return &memFlowRepo{flows: map[uuid.UUID]entities.SettlementFlow{}}
}

func (r *memFlowRepo) Create(_ context.Context, flow *entities.SettlementFlow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if flow.ID == uuid.Nil {
		flow.ID = uuid.New()
	}
	now := time.Now()
	flow.CreatedAt, flow.UpdatedAt = now, now
	r.flows[flow.ID] = *flow
	return nil
}

func (r *memFlowRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.SettlementFlow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow, ok := r.flows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return &flow, nil
}

func (r *memFlowRepo) Update(_ context.Context, flow *entities.SettlementFlow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.flows[flow.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	flow.UpdatedAt = time.Now()
	r.flows[flow.ID] = *flow
	return nil
}

func (r *memFlowRepo) ListByState(_ context.Context, state entities.FlowState, limit, offset int) ([]*entities.SettlementFlow, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.SettlementFlow
	for _, flow := range r.flows {
		if state == "" || flow.State == state {
			f := flow
			out = append(out, &f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if offset >= len(out) {
		return []*entities.SettlementFlow{}, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *memFlowRepo) GetStale(_ context.Context, states []entities.FlowState, before time.Time, limit int) ([]*entities.SettlementFlow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.SettlementFlow
	for _, flow := range r.flows {
		for _, s := range states {
			if flow.State == s && flow.UpdatedAt.Before(before) {
				f := flow
				out = append(out, &f)
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memFlowRepo) MarkAbandoned(_ context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		flow := r.flows[id]
		flow.State = entities.FlowStateAbandoned
		r.flows[id] = flow
	}
	return nil
}

func (r *memFlowRepo) backdate(id uuid.UUID, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow := r.flows[id]
	flow.UpdatedAt = flow.UpdatedAt.Add(-d)
	r.flows[id] = flow
}

type memEventRepo struct {
	mu     sync.Mutex
	events []*entities.FlowEvent
}

func (r *memEventRepo) Create(_ context.Context, event *entities.FlowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()
	r.events = append(r.events, event)
	return nil
}

func (r *memEventRepo) GetByFlowID(_ context.Context, flowID uuid.UUID) ([]*entities.FlowEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.FlowEvent
	for _, e := range r.events {
		if e.FlowID == flowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) types(flowID uuid.UUID) []entities.FlowEventType {
	events, _ := r.GetByFlowID(context.Background(), flowID)
	out := make([]entities.FlowEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

type passUnitOfWork struct{}

func (passUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passUnitOfWork) WithLock(ctx context.Context) context.Context { return ctx }

// memLocker honours ttl like the redis store. Entries written straight into
// held never expire.
type memLocker struct {
	mu         sync.Mutex
	held       map[string]string
	expires    map[string]time.Time
	calls      int
	extensions int
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]string{}, expires: map[string]time.Time{}}
}

func (l *memLocker) live(flowID string) bool {
	if _, ok := l.held[flowID]; !ok {
		return false
	}
	exp, ok := l.expires[flowID]
	return !ok || time.Now().Before(exp)
}

func (l *memLocker) Acquire(_ context.Context, flowID, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.live(flowID) {
		return false, nil
	}
	l.held[flowID] = token
	l.expires[flowID] = time.Now().Add(ttl)
	return true, nil
}

func (l *memLocker) Release(_ context.Context, flowID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[flowID] == token {
		delete(l.held, flowID)
		delete(l.expires, flowID)
	}
	return nil
}

func (l *memLocker) Extend(_ context.Context, flowID, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.live(flowID) || l.held[flowID] != token {
		return false, nil
	}
	l.expires[flowID] = time.Now().Add(ttl)
	l.extensions++
	return true, nil
}

func (l *memLocker) extended() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extensions
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters []string
}

func (m *recordingMetrics) IncCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, name+":"+labels["kind"]+":"+labels["result"])
}

func (m *recordingMetrics) ObserveLatency(string, time.Duration, map[string]string) {}
