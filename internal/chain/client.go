// internal/chain/client.go
package chain

import (
	"context"
	"encoding/json"

	"github.com/suimax/sui-bot/internal/suiaddr"
)

// Client — граница RPC полной ноды Sui. Ядро рассматривает её как непрозрачный
// асинхронный сервис; весь обмен классифицирует ошибки в chain.Error.
type Client interface {
	// GetObject возвращает состояние объекта с разобранным содержимым.
	GetObject(ctx context.Context, id suiaddr.Address) (*ObjectData, error)

	// QueryEvents возвращает события заданного Move-типа.
	QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]EventRecord, error)

	// GetCoins возвращает coin-объекты владельца указанного типа.
	GetCoins(ctx context.Context, owner suiaddr.Address, coinType string) ([]CoinObject, error)

	// GetAllBalances возвращает агрегированные балансы владельца по всем типам монет.
	GetAllBalances(ctx context.Context, owner suiaddr.Address) ([]Balance, error)

	// GetNormalizedModules проверяет существование пакета on-chain и
	// возвращает его модули.
	GetNormalizedModules(ctx context.Context, pkg suiaddr.Address) (map[string]json.RawMessage, error)

	// DryRun симулирует транзакцию без фиксации.
	DryRun(ctx context.Context, txBytes []byte) (*DryRunResult, error)

	// ExecuteTransaction отправляет подписанную транзакцию и ждёт результата
	// в соответствии с режимом ожидания.
	ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string, wait WaitMode) (*ExecutionResult, error)

	// ReferenceGasPrice возвращает текущую референсную цену газа.
	ReferenceGasPrice(ctx context.Context) (uint64, error)

	// Close освобождает транспортные ресурсы.
	Close()
}
