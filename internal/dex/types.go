// ==============================
// File: internal/dex/types.go
// ==============================
package dex

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suimax/sui-bot/internal/suiaddr"
	"github.com/suimax/sui-bot/internal/tx"
)

// Operation — вид операции адаптера.
type Operation string

const (
	OpSwap            Operation = "swap"
	OpAddLiquidity    Operation = "add_liquidity"
	OpRemoveLiquidity Operation = "remove_liquidity"
)

// Pool — пул ликвидности на одной DEX. Создаётся только из on-chain событий;
// идентичность неизменна, ликвидность и объём — снимки на момент запроса.
type Pool struct {
	ID             suiaddr.Address
	DEX            string
	CoinTypeA      string
	CoinTypeB      string
	FeeTierBps     uint64
	CreatedAt      time.Time
	TotalLiquidity decimal.Decimal
	Volume24h      decimal.Decimal
}

// HasPair сообщает, торгует ли пул заданной парой (в любом порядке).
// Оба типа должны быть нормализованы.
func (p Pool) HasPair(coinA, coinB string) bool {
	return (p.CoinTypeA == coinA && p.CoinTypeB == coinB) ||
		(p.CoinTypeA == coinB && p.CoinTypeB == coinA)
}

// LiquiditySnapshot — снимок состояния пула. Точен на момент FetchedAt,
// дальше устаревает и переживается только в кеше со своим TTL.
type LiquiditySnapshot struct {
	PoolID         suiaddr.Address
	TotalLiquidity decimal.Decimal
	SqrtPrice      decimal.Decimal
	CurrentTick    int64
	FeeTierBps     uint64
	ReserveA       decimal.Decimal
	ReserveB       decimal.Decimal
	DecimalsA      int
	DecimalsB      int
	TVL            decimal.Decimal
	FetchedAt      time.Time
}

// PriceQuote — производные цены пула. PriceImpact, MinimumReceived и
// MaximumSpent остаются нулевыми, пока не задан размер сделки: без него эти
// величины не определены, и нули здесь — явный контракт, а не недосчёт.
type PriceQuote struct {
	PoolID          suiaddr.Address
	Price           decimal.Decimal
	FeeRate         decimal.Decimal
	PriceImpact     decimal.Decimal
	MinimumReceived decimal.Decimal
	MaximumSpent    decimal.Decimal
}

// QuoteWithSize дополняет котировку расчётом под конкретный размер сделки:
// ожидаемый выход по текущей цене и минимум к получению после вычета
// проскальзывания в базисных пунктах. Проскальзывание сверх 10000 бп
// срезается до полного: минимум к получению — ноль, не переполнение.
func QuoteWithSize(snap *LiquiditySnapshot, amountIn uint64, slippageBps uint64) PriceQuote {
	if slippageBps > 10000 {
		slippageBps = 10000
	}
	price := snap.SqrtPrice.Mul(snap.SqrtPrice)
	in := decimal.NewFromUint64(amountIn)
	expectedOut := price.Mul(in)
	keep := decimal.NewFromUint64(10000 - slippageBps).Div(decimal.NewFromInt(10000))
	return PriceQuote{
		PoolID:          snap.PoolID,
		Price:           price,
		FeeRate:         decimal.NewFromUint64(snap.FeeTierBps).Div(decimal.NewFromInt(10000)),
		MinimumReceived: expectedOut.Mul(keep),
		MaximumSpent:    in,
	}
}

// SwapRequest — намерение обмена. Slippage — проценты в диапазоне [0, 100].
type SwapRequest struct {
	CoinTypeIn  string
	CoinTypeOut string
	Amount      uint64
	Slippage    float64
	PoolID      suiaddr.Address // пусто — выбрать лучший пул
	Recipient   suiaddr.Address // пусто — адрес подписанта
}

// SlippageBps переводит проценты в базисные пункты с округлением вниз.
func (r SwapRequest) SlippageBps() uint64 {
	return uint64(math.Floor(r.Slippage * 100))
}

// Validate проверяет запрос и нормализует типы монет на месте.
// Ошибки валидации не повторяются — это ошибки построения, не сети.
func (r *SwapRequest) Validate() error {
	if r.Amount == 0 {
		return fmt.Errorf("swap amount must be positive")
	}
	if r.Slippage < 0 || r.Slippage > 100 {
		return fmt.Errorf("slippage %.2f is out of range [0, 100]", r.Slippage)
	}
	in, err := suiaddr.NormalizeType(r.CoinTypeIn)
	if err != nil {
		return fmt.Errorf("coin in: %w", err)
	}
	out, err := suiaddr.NormalizeType(r.CoinTypeOut)
	if err != nil {
		return fmt.Errorf("coin out: %w", err)
	}
	r.CoinTypeIn, r.CoinTypeOut = in, out
	return nil
}

// AddLiquidityParams — параметры добавления ликвидности в тиковый диапазон.
type AddLiquidityParams struct {
	PoolID    suiaddr.Address // пусто — выбрать лучший пул
	CoinTypeA string
	CoinTypeB string
	AmountA   uint64
	AmountB   uint64
	LowerTick int64
	UpperTick int64
}

// Validate проверяет параметры и нормализует типы монет на месте.
func (p *AddLiquidityParams) Validate() error {
	if p.AmountA == 0 || p.AmountB == 0 {
		return fmt.Errorf("liquidity amounts must be positive")
	}
	if p.LowerTick >= p.UpperTick {
		return fmt.Errorf("lower tick %d must be below upper tick %d", p.LowerTick, p.UpperTick)
	}
	a, err := suiaddr.NormalizeType(p.CoinTypeA)
	if err != nil {
		return fmt.Errorf("coin a: %w", err)
	}
	b, err := suiaddr.NormalizeType(p.CoinTypeB)
	if err != nil {
		return fmt.Errorf("coin b: %w", err)
	}
	p.CoinTypeA, p.CoinTypeB = a, b
	return nil
}

// RemoveLiquidityParams — параметры вывода ликвидности.
type RemoveLiquidityParams struct {
	PoolID     suiaddr.Address
	LPAmount   uint64
	MinAmountA uint64
	MinAmountB uint64
}

// Validate проверяет параметры вывода.
func (p *RemoveLiquidityParams) Validate() error {
	if p.PoolID == "" {
		return fmt.Errorf("pool id is required")
	}
	if p.LPAmount == 0 {
		return fmt.Errorf("lp amount must be positive")
	}
	return nil
}

// TransactionStep — атомарная единица сборки: один сконструированный
// Move-вызов с его контекстом. Шаг ничего не отправляет; политика складывает
// шаги в одну транзакцию через исполнительный конвейер.
type TransactionStep struct {
	Operation   Operation
	DEX         string
	PoolID      suiaddr.Address
	CoinTypeIn  string
	CoinTypeOut string
	AmountIn    uint64
	SlippageBps uint64
	Call        tx.MoveCall
}

// AppendTo добавляет вызов шага в собираемую транзакцию и возвращает его индекс.
func (s *TransactionStep) AppendTo(b *tx.Builder) int {
	return b.MoveCall(s.Call.Target, s.Call.TypeArguments, s.Call.Arguments...)
}
