// ==============================
// File: internal/dex/adapter.go
// ==============================
package dex

import (
	"context"

	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/cache"
	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/events"
	"github.com/suimax/sui-bot/internal/retry"
	"github.com/suimax/sui-bot/internal/suiaddr"
)

// Adapter — единый контракт поверх разнородных DEX-программ: обнаружение
// пулов, выбор лучшего пула, запросы ликвидности и цены, конструирование
// шагов транзакций. Адаптер никогда ничего не отправляет в сеть на запись.
type Adapter interface {
	// Name возвращает имя биржи.
	Name() string

	// PackageID возвращает идентификатор on-chain программы.
	PackageID() suiaddr.Address

	// PoolCreatedEvent возвращает Move-тип события создания пула программы,
	// пригодный для фильтров QueryEvents и WebSocket-подписок.
	PoolCreatedEvent() string

	// Initialize проверяет существование программы on-chain. Идемпотентен:
	// повторный вызов после успеха — no-op.
	Initialize(ctx context.Context) error

	// Swap конструирует шаг обмена. Ничего не отправляет.
	Swap(ctx context.Context, req SwapRequest) (*TransactionStep, error)

	// MonitorNewPools возвращает до 20 последних созданных пулов программы.
	// Best-effort: при ошибке запроса логирует и возвращает пустой срез.
	MonitorNewPools(ctx context.Context) []Pool

	// GetPoolLiquidity возвращает снимок состояния пула.
	GetPoolLiquidity(ctx context.Context, poolID suiaddr.Address) (*LiquiditySnapshot, error)

	// GetPoolPrice возвращает производные цены пула.
	GetPoolPrice(ctx context.Context, poolID suiaddr.Address) (*PriceQuote, error)

	// AddLiquidity конструирует шаг добавления ликвидности.
	AddLiquidity(ctx context.Context, params AddLiquidityParams) (*TransactionStep, error)

	// RemoveLiquidity конструирует шаг вывода ликвидности.
	RemoveLiquidity(ctx context.Context, params RemoveLiquidityParams) (*TransactionStep, error)
}

// ProgramConfig описывает форму вызовов одной DEX-программы.
type ProgramConfig struct {
	Name        string
	PackageID   suiaddr.Address
	Module      string
	SwapFn      string
	AddLiqFn    string
	RemoveLiqFn string
}

// Deps — зависимости адаптера, общие для всех вариантов.
type Deps struct {
	Client  chain.Client
	Cache   *cache.Cache
	Invoker *retry.Invoker
	Logger  *zap.Logger
	Sink    events.Sink
	// Owner — адрес подписанта; получатель обмена по умолчанию.
	Owner suiaddr.Address
	// RPCRetry — политика ретраев read-вызовов; нулевая означает
	// пресет retry.RPCPolicy. Переопределения из конфигурации
	// накладываются здесь один раз при старте.
	RPCRetry retry.Policy
}
