// internal/tx/builder.go
package tx

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/suimax/sui-bot/internal/suiaddr"
)

// Arg — один аргумент Move-вызова: либо чистое значение, либо ссылка на объект.
type Arg struct {
	Kind   string          `json:"kind"` // "pure" | "object"
	Object suiaddr.Address `json:"object,omitempty"`
	Pure   json.RawMessage `json:"pure,omitempty"`
}

// Pure создаёт аргумент-значение.
func Pure(v interface{}) Arg {
	raw, err := json.Marshal(v)
	if err != nil {
		// Все значения, которые строят адаптеры, сериализуемы; сюда можно
		// попасть только с программной ошибкой.
		panic(fmt.Sprintf("tx: unserializable pure arg: %v", err))
	}
	return Arg{Kind: "pure", Pure: raw}
}

// Object создаёт аргумент-ссылку на on-chain объект.
func Object(id suiaddr.Address) Arg {
	return Arg{Kind: "object", Object: id}
}

// MoveCall — один вызов Move-функции в составе транзакции.
type MoveCall struct {
	Target        string   `json:"target"` // "<pkg>::<module>::<function>"
	TypeArguments []string `json:"typeArguments,omitempty"`
	Arguments     []Arg    `json:"arguments"`
}

// Builder собирает транзакцию из упорядоченных Move-вызовов. Изменяем до
// Build; шаги конструируются последовательно, так как поздние шаги могут
// зависеть от данных ранних.
type Builder struct {
	calls     []MoveCall
	sender    suiaddr.Address
	gasBudget uint64
	gasPrice  uint64
}

// NewBuilder создаёт пустой builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// MoveCall добавляет вызов и возвращает его индекс в транзакции.
func (b *Builder) MoveCall(target string, typeArgs []string, args ...Arg) int {
	b.calls = append(b.calls, MoveCall{
		Target:        target,
		TypeArguments: typeArgs,
		Arguments:     args,
	})
	return len(b.calls) - 1
}

// SetSender задаёт отправителя (он же плательщик газа).
func (b *Builder) SetSender(sender suiaddr.Address) *Builder {
	b.sender = sender
	return b
}

// SetGasBudget задаёт бюджет газа на всю транзакцию.
func (b *Builder) SetGasBudget(budget uint64) *Builder {
	b.gasBudget = budget
	return b
}

// SetGasPrice задаёт цену газа.
func (b *Builder) SetGasPrice(price uint64) *Builder {
	b.gasPrice = price
	return b
}

// Len возвращает число добавленных вызовов.
func (b *Builder) Len() int {
	return len(b.calls)
}

// Sender возвращает текущего отправителя.
func (b *Builder) Sender() suiaddr.Address {
	return b.sender
}

// Transaction — зафиксированная транзакция. После Build не изменяется;
// подписывающий не удерживает её после отправки.
type Transaction struct {
	Sender    suiaddr.Address `json:"sender"`
	GasBudget uint64          `json:"gasBudget"`
	GasPrice  uint64          `json:"gasPrice"`
	Calls     []MoveCall      `json:"calls"`
}

// Build фиксирует собранную транзакцию.
func (b *Builder) Build() (*Transaction, error) {
	if len(b.calls) == 0 {
		return nil, errors.New("tx: no calls added")
	}
	if b.sender == "" {
		return nil, errors.New("tx: sender not set")
	}
	calls := make([]MoveCall, len(b.calls))
	copy(calls, b.calls)
	return &Transaction{
		Sender:    b.sender,
		GasBudget: b.gasBudget,
		GasPrice:  b.gasPrice,
		Calls:     calls,
	}, nil
}

// Encode сериализует транзакцию в байты для подписи и отправки.
// Каноническое BCS-кодирование — обязанность нижележащего SDK; здесь
// используется детерминированный JSON того же содержимого.
func (t *Transaction) Encode() ([]byte, error) {
	return json.Marshal(t)
}
