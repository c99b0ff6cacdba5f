// internal/chain/types.go
package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/suimax/sui-bot/internal/suiaddr"
)

// U64 — uint64, который нода сериализует то числом, то десятичной строкой.
type U64 uint64

func (u *U64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %q: %w", data, err)
	}
	*u = U64(v)
	return nil
}

func (u U64) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}

// WaitMode — режим ожидания результата исполнения транзакции.
type WaitMode string

const (
	WaitLocalExecution WaitMode = "WaitForLocalExecution"
	WaitEffectsCert    WaitMode = "WaitForEffectsCert"
	WaitFullBlock      WaitMode = "WaitForTransactionBlock"
)

// ObjectData — состояние on-chain объекта с разобранным содержимым.
type ObjectData struct {
	ObjectID suiaddr.Address        `json:"objectId"`
	Version  U64                    `json:"version"`
	Digest   string                 `json:"digest"`
	Type     string                 `json:"type"`
	Fields   map[string]interface{} `json:"fields"`
}

// EventRecord — одно событие Move-программы.
type EventRecord struct {
	TxDigest    string                 `json:"txDigest"`
	EventSeq    string                 `json:"eventSeq"`
	Type        string                 `json:"type"`
	PackageID   suiaddr.Address        `json:"packageId"`
	Sender      suiaddr.Address        `json:"sender"`
	ParsedJSON  map[string]interface{} `json:"parsedJson"`
	TimestampMs U64                    `json:"timestampMs"`
}

// CoinObject — один coin-объект во владении адреса.
type CoinObject struct {
	CoinObjectID suiaddr.Address `json:"coinObjectId"`
	CoinType     string          `json:"coinType"`
	Balance      U64             `json:"balance"`
	Version      U64             `json:"version"`
	Digest       string          `json:"digest"`
}

// Balance — агрегированный баланс по типу монеты.
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    U64    `json:"totalBalance"`
}

// GasUsed — стоимость исполнения по данным effects.
type GasUsed struct {
	ComputationCost U64 `json:"computationCost"`
	StorageCost     U64 `json:"storageCost"`
	StorageRebate   U64 `json:"storageRebate"`
}

// Total возвращает computation + storage; rebate — справочный.
func (g GasUsed) Total() uint64 {
	return uint64(g.ComputationCost) + uint64(g.StorageCost)
}

// ExecStatus — вердикт сети по транзакции. Отличен от успеха самой отправки.
type ExecStatus struct {
	Status string `json:"status"` // "success" | "failure"
	Error  string `json:"error,omitempty"`
}

// Success сообщает, что effects зафиксировали успешное исполнение.
func (s ExecStatus) Success() bool {
	return s.Status == "success"
}

// TransactionEffects — итог исполнения транзакции.
type TransactionEffects struct {
	Status  ExecStatus `json:"status"`
	GasUsed GasUsed    `json:"gasUsed"`
}

// BalanceChange — изменение баланса, зафиксированное транзакцией.
type BalanceChange struct {
	Owner    json.RawMessage `json:"owner"`
	CoinType string          `json:"coinType"`
	Amount   string          `json:"amount"` // signed decimal string
}

// ExecutionResult — каноническая запись того, что произошло on-chain.
// После создания не изменяется.
type ExecutionResult struct {
	Digest         string              `json:"digest"`
	Effects        *TransactionEffects `json:"effects"`
	Events         []EventRecord       `json:"events"`
	BalanceChanges []BalanceChange     `json:"balanceChanges"`
}

// DryRunResult — результат симуляции транзакции без фиксации.
type DryRunResult struct {
	Effects *TransactionEffects `json:"effects"`
}
