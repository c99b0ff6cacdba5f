// ======================================
// File: internal/dex/base_adapter.go
// ======================================
package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suimax/sui-bot/internal/cache"
	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/events"
	"github.com/suimax/sui-bot/internal/retry"
	"github.com/suimax/sui-bot/internal/suiaddr"
	"github.com/suimax/sui-bot/internal/tx"
)

// newPoolsWindow — сколько последних событий создания пулов запрашивается
// за один проход мониторинга.
const newPoolsWindow = 20

// baseAdapter несёт весь контракт Adapter; варианты задают только форму
// вызовов своей программы через ProgramConfig.
type baseAdapter struct {
	cfg       ProgramConfig
	deps      Deps
	logger    *zap.Logger
	rpcPolicy retry.Policy

	initMu      sync.Mutex
	initialized bool
}

func newBaseAdapter(cfg ProgramConfig, deps Deps) *baseAdapter {
	rpcPolicy := deps.RPCRetry
	if rpcPolicy.MaxAttempts == 0 {
		rpcPolicy = retry.RPCPolicy()
	}
	return &baseAdapter{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger.Named(cfg.Name),
		rpcPolicy: rpcPolicy,
	}
}

func (a *baseAdapter) Name() string { return a.cfg.Name }

func (a *baseAdapter) PackageID() suiaddr.Address { return a.cfg.PackageID }

func (a *baseAdapter) target(fn string) string {
	return fmt.Sprintf("%s::%s::%s", a.cfg.PackageID, a.cfg.Module, fn)
}

// PoolCreatedEvent возвращает Move-тип события создания пула этой программы.
func (a *baseAdapter) PoolCreatedEvent() string {
	return fmt.Sprintf("%s::%s::PoolCreated", a.cfg.PackageID, a.cfg.Module)
}

// Initialize проверяет существование программы on-chain через запрос её
// нормализованных модулей. Проверка идёт через политику ретраев чтения;
// повторный вызов после успеха — no-op.
func (a *baseAdapter) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if a.initialized {
		return nil
	}

	modules, err := retry.Do(ctx, a.deps.Invoker, a.rpcPolicy, a.cfg.Name+".initialize",
		func(ctx context.Context) (map[string]json.RawMessage, error) {
			return a.deps.Client.GetNormalizedModules(ctx, a.cfg.PackageID)
		})
	if err != nil {
		return &InitError{DEX: a.cfg.Name, Err: err}
	}
	if len(modules) == 0 {
		return &InitError{DEX: a.cfg.Name, Err: fmt.Errorf("package %s has no modules", a.cfg.PackageID.Shorten(0))}
	}

	a.initialized = true
	a.logger.Info("Адаптер инициализирован",
		zap.String("package", a.cfg.PackageID.Shorten(0)),
		zap.Int("modules", len(modules)))
	return nil
}

func (a *baseAdapter) requireInit() error {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if !a.initialized {
		return fmt.Errorf("%s: %w", a.cfg.Name, ErrNotInitialized)
	}
	return nil
}

// Swap конструирует шаг обмена: пул берётся из запроса либо выбирается
// лучший по ликвидности; проскальзывание переводится в базисные пункты,
// получатель по умолчанию — владелец. Шаг ничего не отправляет.
func (a *baseAdapter) Swap(ctx context.Context, req SwapRequest) (*TransactionStep, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s swap: %w", a.cfg.Name, err)
	}

	poolID := req.PoolID
	if poolID == "" {
		pool, err := a.bestPool(ctx, req.CoinTypeIn, req.CoinTypeOut)
		if err != nil {
			return nil, err
		}
		poolID = pool.ID
	}

	recipient := req.Recipient
	if recipient == "" {
		recipient = a.deps.Owner
	}
	bps := req.SlippageBps()

	step := &TransactionStep{
		Operation:   OpSwap,
		DEX:         a.cfg.Name,
		PoolID:      poolID,
		CoinTypeIn:  req.CoinTypeIn,
		CoinTypeOut: req.CoinTypeOut,
		AmountIn:    req.Amount,
		SlippageBps: bps,
		Call: tx.MoveCall{
			Target:        a.target(a.cfg.SwapFn),
			TypeArguments: []string{req.CoinTypeIn, req.CoinTypeOut},
			Arguments: []tx.Arg{
				tx.Object(poolID),
				tx.Pure(req.Amount),
				tx.Pure(bps),
				tx.Pure(recipient),
				tx.Object(suiaddr.ClockObject),
			},
		},
	}

	events.Emit(a.deps.Sink, events.SwapConfigured, events.Fields{
		"dex":      a.cfg.Name,
		"pool":     string(poolID),
		"coin_in":  req.CoinTypeIn,
		"coin_out": req.CoinTypeOut,
		"amount":   req.Amount,
		"bps":      bps,
	})
	a.logger.Debug("Сконфигурирован обмен",
		zap.String("pool", poolID.Shorten(0)),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("slippage_bps", bps))
	return step, nil
}

// MonitorNewPools возвращает последние созданные пулы программы.
// Обнаружение пулов — best-effort: любая ошибка запроса логируется,
// вызывающему отдаётся пустой срез, чтобы циклы мониторинга жили дальше.
func (a *baseAdapter) MonitorNewPools(ctx context.Context) []Pool {
	records, err := retry.Do(ctx, a.deps.Invoker, a.rpcPolicy, a.cfg.Name+".monitor_new_pools",
		func(ctx context.Context) ([]chain.EventRecord, error) {
			return a.deps.Client.QueryEvents(ctx, a.PoolCreatedEvent(), newPoolsWindow, true)
		})
	if err != nil {
		a.logger.Warn("Мониторинг новых пулов не удался", zap.Error(err))
		return []Pool{}
	}

	pools := make([]Pool, 0, len(records))
	for _, rec := range records {
		pool, err := a.poolFromEvent(rec)
		if err != nil {
			a.logger.Debug("Пропущено нечитаемое событие пула",
				zap.String("tx", rec.TxDigest), zap.Error(err))
			continue
		}
		pools = append(pools, pool)
		events.Emit(a.deps.Sink, events.PoolDiscovered, events.Fields{
			"dex":    a.cfg.Name,
			"pool":   string(pool.ID),
			"coin_a": pool.CoinTypeA,
			"coin_b": pool.CoinTypeB,
		})
	}
	return pools
}

// poolFromEvent разбирает поля события PoolCreated в запись Pool.
func (a *baseAdapter) poolFromEvent(rec chain.EventRecord) (Pool, error) {
	poolID, err := suiaddr.Normalize(stringField(rec.ParsedJSON, "pool_id"))
	if err != nil {
		return Pool{}, fmt.Errorf("pool_id: %w", err)
	}
	coinA, err := suiaddr.NormalizeType(stringField(rec.ParsedJSON, "coin_a"))
	if err != nil {
		return Pool{}, fmt.Errorf("coin_a: %w", err)
	}
	coinB, err := suiaddr.NormalizeType(stringField(rec.ParsedJSON, "coin_b"))
	if err != nil {
		return Pool{}, fmt.Errorf("coin_b: %w", err)
	}
	return Pool{
		ID:         poolID,
		DEX:        a.cfg.Name,
		CoinTypeA:  coinA,
		CoinTypeB:  coinB,
		FeeTierBps: uint64Field(rec.ParsedJSON, "fee_tier"),
		CreatedAt:  time.UnixMilli(int64(rec.TimestampMs)),
	}, nil
}

// GetPoolLiquidity возвращает снимок состояния пула через кеш;
// свежий снимок читается с ноды через политику ретраев чтения.
func (a *baseAdapter) GetPoolLiquidity(ctx context.Context, poolID suiaddr.Address) (*LiquiditySnapshot, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	return cache.GetOrPopulate(ctx, a.deps.Cache, cache.NSLiquidity, string(poolID), 0,
		func(ctx context.Context) (*LiquiditySnapshot, error) {
			return a.fetchLiquidity(ctx, poolID)
		})
}

func (a *baseAdapter) fetchLiquidity(ctx context.Context, poolID suiaddr.Address) (*LiquiditySnapshot, error) {
	obj, err := retry.Do(ctx, a.deps.Invoker, a.rpcPolicy, a.cfg.Name+".get_pool_liquidity",
		func(ctx context.Context) (*chain.ObjectData, error) {
			return a.deps.Client.GetObject(ctx, poolID)
		})
	if err != nil {
		if chain.KindOf(err) == chain.KindNotFound {
			return nil, fmt.Errorf("%s: %w", poolID.Shorten(0), ErrPoolNotFound)
		}
		return nil, &LiquidityError{PoolID: poolID, Err: err}
	}
	if obj == nil || len(obj.Fields) == 0 {
		return nil, fmt.Errorf("%s: %w", poolID.Shorten(0), ErrPoolNotFound)
	}

	return &LiquiditySnapshot{
		PoolID:         poolID,
		TotalLiquidity: decimalField(obj.Fields, "total_liquidity"),
		SqrtPrice:      decimalField(obj.Fields, "sqrt_price"),
		CurrentTick:    int64(uint64Field(obj.Fields, "current_tick")),
		FeeTierBps:     uint64Field(obj.Fields, "fee_tier"),
		ReserveA:       decimalField(obj.Fields, "reserve_a"),
		ReserveB:       decimalField(obj.Fields, "reserve_b"),
		DecimalsA:      int(uint64Field(obj.Fields, "decimals_a")),
		DecimalsB:      int(uint64Field(obj.Fields, "decimals_b")),
		TVL:            decimalField(obj.Fields, "tvl"),
		FetchedAt:      time.Now(),
	}, nil
}

// GetPoolPrice выводит цену из снимка ликвидности: price = sqrtPrice²,
// fee = feeTier/10000. Поля под размер сделки остаются нулевыми —
// см. QuoteWithSize.
func (a *baseAdapter) GetPoolPrice(ctx context.Context, poolID suiaddr.Address) (*PriceQuote, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	return cache.GetOrPopulate(ctx, a.deps.Cache, cache.NSPrice, string(poolID), 0,
		func(ctx context.Context) (*PriceQuote, error) {
			snap, err := a.GetPoolLiquidity(ctx, poolID)
			if err != nil {
				return nil, err
			}
			return &PriceQuote{
				PoolID:  poolID,
				Price:   snap.SqrtPrice.Mul(snap.SqrtPrice),
				FeeRate: decimal.NewFromUint64(snap.FeeTierBps).Div(decimal.NewFromInt(10000)),
			}, nil
		})
}

// AddLiquidity конструирует шаг добавления ликвидности. Никогда не отправляет.
func (a *baseAdapter) AddLiquidity(ctx context.Context, params AddLiquidityParams) (*TransactionStep, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%s add liquidity: %w", a.cfg.Name, err)
	}

	poolID := params.PoolID
	if poolID == "" {
		pool, err := a.bestPool(ctx, params.CoinTypeA, params.CoinTypeB)
		if err != nil {
			return nil, err
		}
		poolID = pool.ID
	}

	return &TransactionStep{
		Operation:   OpAddLiquidity,
		DEX:         a.cfg.Name,
		PoolID:      poolID,
		CoinTypeIn:  params.CoinTypeA,
		CoinTypeOut: params.CoinTypeB,
		AmountIn:    params.AmountA,
		Call: tx.MoveCall{
			Target:        a.target(a.cfg.AddLiqFn),
			TypeArguments: []string{params.CoinTypeA, params.CoinTypeB},
			Arguments: []tx.Arg{
				tx.Object(poolID),
				tx.Pure(params.AmountA),
				tx.Pure(params.AmountB),
				tx.Pure(params.LowerTick),
				tx.Pure(params.UpperTick),
				tx.Object(suiaddr.ClockObject),
			},
		},
	}, nil
}

// RemoveLiquidity конструирует шаг вывода ликвидности. Никогда не отправляет.
func (a *baseAdapter) RemoveLiquidity(ctx context.Context, params RemoveLiquidityParams) (*TransactionStep, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%s remove liquidity: %w", a.cfg.Name, err)
	}

	return &TransactionStep{
		Operation: OpRemoveLiquidity,
		DEX:       a.cfg.Name,
		PoolID:    params.PoolID,
		AmountIn:  params.LPAmount,
		Call: tx.MoveCall{
			Target: a.target(a.cfg.RemoveLiqFn),
			Arguments: []tx.Arg{
				tx.Object(params.PoolID),
				tx.Pure(params.LPAmount),
				tx.Pure(params.MinAmountA),
				tx.Pure(params.MinAmountB),
				tx.Object(suiaddr.ClockObject),
			},
		},
	}, nil
}

// bestPool выбирает пул с максимальной общей ликвидностью среди кандидатов
// пары. Кандидаты берутся из последних событий создания пулов; ликвидность
// каждого читается через кеш параллельно. O(n) запросов без раннего выхода:
// наборы кандидатов на пару малы, и это осознанная граница масштабирования.
func (a *baseAdapter) bestPool(ctx context.Context, coinA, coinB string) (*Pool, error) {
	candidates := make([]Pool, 0, 4)
	for _, pool := range a.MonitorNewPools(ctx) {
		if pool.HasPair(coinA, coinB) {
			candidates = append(candidates, pool)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: no pools for pair %s / %s: %w", a.cfg.Name, coinA, coinB, ErrPoolNotFound)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		pool := &candidates[i]
		g.Go(func() error {
			snap, err := a.GetPoolLiquidity(gctx, pool.ID)
			if err != nil {
				// Недоступный кандидат выбывает из выбора, остальные живут.
				a.logger.Warn("Кандидат пула недоступен",
					zap.String("pool", pool.ID.Shorten(0)), zap.Error(err))
				mu.Lock()
				pool.TotalLiquidity = decimal.NewFromInt(-1)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			pool.TotalLiquidity = snap.TotalLiquidity
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := -1
	for i := range candidates {
		if candidates[i].TotalLiquidity.IsNegative() {
			continue
		}
		if best < 0 || candidates[i].TotalLiquidity.GreaterThan(candidates[best].TotalLiquidity) {
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("%s: all pool candidates for %s / %s are unreadable: %w", a.cfg.Name, coinA, coinB, ErrPoolNotFound)
	}
	return &candidates[best], nil
}

// stringField достаёт строковое поле из разобранного JSON-объекта.
func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// uint64Field достаёт числовое поле; нода присылает то число, то строку.
func uint64Field(fields map[string]interface{}, key string) uint64 {
	switch v := fields[key].(type) {
	case float64:
		return uint64(v)
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return 0
		}
		return uint64(d.IntPart())
	default:
		return 0
	}
}

// decimalField достаёт поле как decimal; нечитаемое значение — ноль.
func decimalField(fields map[string]interface{}, key string) decimal.Decimal {
	switch v := fields[key].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
