package dex_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/cache"
	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/dex"
	"github.com/suimax/sui-bot/internal/retry"
	"github.com/suimax/sui-bot/internal/suiaddr"
)

var (
	testPkg   = suiaddr.MustNormalize("0x5eab")
	testOwner = suiaddr.MustNormalize("0xfeed")

	coinSUI  = "0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI"
	coinUSDC = "0x00000000000000000000000000000000000000000000000000000000000000ab::usdc::USDC"
)

// fakeClient — управляемая замена chain.Client для тестов адаптера.
type fakeClient struct {
	mu          sync.Mutex
	events      []chain.EventRecord
	eventsErr   error
	objects     map[suiaddr.Address]*chain.ObjectData
	queryCalls  int
	objectCalls int
}

func (f *fakeClient) GetObject(_ context.Context, id suiaddr.Address) (*chain.ObjectData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objectCalls++
	obj, ok := f.objects[id]
	if !ok {
		return nil, chain.NewError(chain.KindNotFound, "sui_getObject", errors.New("object not found"))
	}
	return obj, nil
}

func (f *fakeClient) QueryEvents(_ context.Context, _ string, _ int, _ bool) ([]chain.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeClient) GetCoins(context.Context, suiaddr.Address, string) ([]chain.CoinObject, error) {
	return nil, nil
}

func (f *fakeClient) GetAllBalances(context.Context, suiaddr.Address) ([]chain.Balance, error) {
	return nil, nil
}

func (f *fakeClient) GetNormalizedModules(context.Context, suiaddr.Address) (map[string]json.RawMessage, error) {
	return map[string]json.RawMessage{"clmm": json.RawMessage(`{}`)}, nil
}

func (f *fakeClient) DryRun(context.Context, []byte) (*chain.DryRunResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) ExecuteTransaction(context.Context, []byte, []string, chain.WaitMode) (*chain.ExecutionResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) ReferenceGasPrice(context.Context) (uint64, error) { return 1000, nil }

func (f *fakeClient) Close() {}

func poolEvent(poolID string, feeTier float64) chain.EventRecord {
	return chain.EventRecord{
		TxDigest: "digest-" + poolID,
		Type:     string(testPkg) + "::clmm::PoolCreated",
		ParsedJSON: map[string]interface{}{
			"pool_id":  poolID,
			"coin_a":   coinSUI,
			"coin_b":   coinUSDC,
			"fee_tier": feeTier,
		},
		TimestampMs: chain.U64(1_700_000_000_000),
	}
}

func poolObject(id suiaddr.Address, totalLiquidity string) *chain.ObjectData {
	return &chain.ObjectData{
		ObjectID: id,
		Type:     string(testPkg) + "::clmm::Pool",
		Fields: map[string]interface{}{
			"total_liquidity": totalLiquidity,
			"sqrt_price":      "2",
			"current_tick":    "100",
			"fee_tier":        "30",
			"reserve_a":       "1000",
			"reserve_b":       "2000",
		},
	}
}

func newTestAdapter(t *testing.T, client chain.Client) dex.Adapter {
	t.Helper()
	inv := retry.NewInvoker(zap.NewNop(),
		retry.WithRand(rand.NewSource(1)),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	a := dex.NewCetus(testPkg, dex.Deps{
		Client:  client,
		Cache:   cache.New(zap.NewNop()),
		Invoker: inv,
		Logger:  zap.NewNop(),
		Owner:   testOwner,
	})
	require.NoError(t, a.Initialize(context.Background()))
	return a
}

func TestSwapSelectsHighestLiquidityPool(t *testing.T) {
	p1 := suiaddr.MustNormalize("0x1")
	p2 := suiaddr.MustNormalize("0x2")
	p3 := suiaddr.MustNormalize("0x3")
	client := &fakeClient{
		events: []chain.EventRecord{
			poolEvent("0x1", 30),
			poolEvent("0x2", 30),
			poolEvent("0x3", 100),
		},
		objects: map[suiaddr.Address]*chain.ObjectData{
			p1: poolObject(p1, "10"),
			p2: poolObject(p2, "50"),
			p3: poolObject(p3, "5"),
		},
	}
	a := newTestAdapter(t, client)

	step, err := a.Swap(context.Background(), dex.SwapRequest{
		CoinTypeIn:  coinSUI,
		CoinTypeOut: coinUSDC,
		Amount:      1_000_000,
		Slippage:    1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, p2, step.PoolID, "должен выбираться пул с максимальной ликвидностью")
	assert.Equal(t, uint64(150), step.SlippageBps)
	assert.Equal(t, string(testPkg)+"::clmm::swap", step.Call.Target)
	require.Len(t, step.Call.Arguments, 5)
	assert.Equal(t, suiaddr.ClockObject, step.Call.Arguments[4].Object)
}

func TestSwapNoCandidatesReturnsPoolNotFound(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})

	_, err := a.Swap(context.Background(), dex.SwapRequest{
		CoinTypeIn:  coinSUI,
		CoinTypeOut: coinUSDC,
		Amount:      100,
		Slippage:    1,
	})
	assert.ErrorIs(t, err, dex.ErrPoolNotFound)
}

func TestSwapExplicitPoolSkipsSelection(t *testing.T) {
	client := &fakeClient{}
	a := newTestAdapter(t, client)

	explicit := suiaddr.MustNormalize("0xbeef")
	step, err := a.Swap(context.Background(), dex.SwapRequest{
		CoinTypeIn:  coinSUI,
		CoinTypeOut: coinUSDC,
		Amount:      100,
		Slippage:    0,
		PoolID:      explicit,
	})
	require.NoError(t, err)
	assert.Equal(t, explicit, step.PoolID)
	assert.Zero(t, client.queryCalls, "явный pool id не должен запускать выбор пула")
	assert.Zero(t, client.objectCalls)
}

func TestSwapValidation(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	ctx := context.Background()

	_, err := a.Swap(ctx, dex.SwapRequest{CoinTypeIn: coinSUI, CoinTypeOut: coinUSDC, Amount: 0, Slippage: 1})
	assert.ErrorContains(t, err, "amount")

	_, err = a.Swap(ctx, dex.SwapRequest{CoinTypeIn: coinSUI, CoinTypeOut: coinUSDC, Amount: 1, Slippage: 101})
	assert.ErrorContains(t, err, "slippage")

	_, err = a.Swap(ctx, dex.SwapRequest{CoinTypeIn: "not-hex!!", CoinTypeOut: coinUSDC, Amount: 1, Slippage: 1})
	assert.ErrorIs(t, err, suiaddr.ErrInvalidAddress)
}

func TestSlippageBasisPoints(t *testing.T) {
	cases := []struct {
		slippage float64
		want     uint64
	}{
		{1.5, 150},
		{0, 0},
		{100, 10000},
		{0.333, 33},
	}
	for _, tc := range cases {
		req := dex.SwapRequest{Slippage: tc.slippage}
		assert.Equal(t, tc.want, req.SlippageBps(), "slippage %v", tc.slippage)
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	inv := retry.NewInvoker(zap.NewNop(), retry.WithRand(rand.NewSource(1)))
	a := dex.NewCetus(testPkg, dex.Deps{
		Client:  &fakeClient{},
		Cache:   cache.New(zap.NewNop()),
		Invoker: inv,
		Logger:  zap.NewNop(),
		Owner:   testOwner,
	})

	ctx := context.Background()
	_, err := a.Swap(ctx, dex.SwapRequest{CoinTypeIn: coinSUI, CoinTypeOut: coinUSDC, Amount: 1, Slippage: 1})
	assert.ErrorIs(t, err, dex.ErrNotInitialized)

	_, err = a.GetPoolLiquidity(ctx, suiaddr.MustNormalize("0x1"))
	assert.ErrorIs(t, err, dex.ErrNotInitialized)
}

func TestInitializeIdempotent(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	// Повторный вызов после успеха — no-op.
	assert.NoError(t, a.Initialize(context.Background()))
}

func TestAddLiquidityTickOrdering(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})

	_, err := a.AddLiquidity(context.Background(), dex.AddLiquidityParams{
		PoolID:    suiaddr.MustNormalize("0x1"),
		CoinTypeA: coinSUI,
		CoinTypeB: coinUSDC,
		AmountA:   100,
		AmountB:   100,
		LowerTick: 500,
		UpperTick: 100,
	})
	assert.ErrorContains(t, err, "tick")
}

func TestRemoveLiquidityValidation(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})

	_, err := a.RemoveLiquidity(context.Background(), dex.RemoveLiquidityParams{
		PoolID:   suiaddr.MustNormalize("0x1"),
		LPAmount: 0,
	})
	assert.ErrorContains(t, err, "lp amount")
}

func TestMonitorNewPoolsDegradesToEmpty(t *testing.T) {
	client := &fakeClient{
		eventsErr: chain.NewError(chain.KindValidation, "suix_queryEvents", errors.New("bad filter")),
	}
	a := newTestAdapter(t, client)

	pools := a.MonitorNewPools(context.Background())
	assert.Empty(t, pools)
	assert.NotNil(t, pools, "мониторинг возвращает пустой срез, не nil")
}

func TestGetPoolLiquidityNotFound(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})

	_, err := a.GetPoolLiquidity(context.Background(), suiaddr.MustNormalize("0xdead"))
	assert.ErrorIs(t, err, dex.ErrPoolNotFound)
}

func TestGetPoolPriceDerivation(t *testing.T) {
	id := suiaddr.MustNormalize("0x7")
	client := &fakeClient{
		objects: map[suiaddr.Address]*chain.ObjectData{
			id: poolObject(id, "100"),
		},
	}
	a := newTestAdapter(t, client)

	quote, err := a.GetPoolPrice(context.Background(), id)
	require.NoError(t, err)
	// sqrt_price = 2 → price = 4; fee_tier = 30 bps → 0.003.
	assert.Equal(t, "4", quote.Price.String())
	assert.Equal(t, "0.003", quote.FeeRate.String())
	assert.True(t, quote.PriceImpact.IsZero())
	assert.True(t, quote.MinimumReceived.IsZero())
}

func TestQuoteWithSize(t *testing.T) {
	id := suiaddr.MustNormalize("0x7")
	client := &fakeClient{
		objects: map[suiaddr.Address]*chain.ObjectData{
			id: poolObject(id, "100"),
		},
	}
	a := newTestAdapter(t, client)

	snap, err := a.GetPoolLiquidity(context.Background(), id)
	require.NoError(t, err)

	// price = 4, вход 1000, 150 bps → минимум 4000 × 0.985 = 3940.
	quote := dex.QuoteWithSize(snap, 1000, 150)
	assert.Equal(t, "3940", quote.MinimumReceived.String())
	assert.Equal(t, "1000", quote.MaximumSpent.String())
}

func TestQuoteWithSizeClampsExcessiveSlippage(t *testing.T) {
	id := suiaddr.MustNormalize("0x7")
	client := &fakeClient{
		objects: map[suiaddr.Address]*chain.ObjectData{
			id: poolObject(id, "100"),
		},
	}
	a := newTestAdapter(t, client)

	snap, err := a.GetPoolLiquidity(context.Background(), id)
	require.NoError(t, err)

	// Сверх 10000 бп срезается до полного проскальзывания, без переполнения.
	quote := dex.QuoteWithSize(snap, 1000, 12000)
	assert.True(t, quote.MinimumReceived.IsZero())
	assert.Equal(t, "1000", quote.MaximumSpent.String())
}

func TestRPCRetryOverrideLimitsAttempts(t *testing.T) {
	client := &fakeClient{
		eventsErr: chain.NewError(chain.KindRateLimit, "suix_queryEvents", errors.New("too many requests")),
	}
	inv := retry.NewInvoker(zap.NewNop(),
		retry.WithRand(rand.NewSource(1)),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	a := dex.NewCetus(testPkg, dex.Deps{
		Client:  client,
		Cache:   cache.New(zap.NewNop()),
		Invoker: inv,
		Logger:  zap.NewNop(),
		Owner:   testOwner,
		// Переопределение из конфигурации: две попытки вместо пяти пресетных.
		RPCRetry: retry.Policy{MaxAttempts: 2},
	})
	require.NoError(t, a.Initialize(context.Background()))

	pools := a.MonitorNewPools(context.Background())
	assert.Empty(t, pools)
	assert.Equal(t, 2, client.queryCalls, "лимит попыток берётся из внедрённой политики")
}
