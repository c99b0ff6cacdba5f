// internal/events/types.go
package events

import (
	"time"
)

// Type — тип структурного события торгового ядра.
type Type string

const (
	// SwapConfigured — swap-шаг добавлен в собираемую транзакцию.
	SwapConfigured Type = "swap_configured"
	// TransactionExecuted — транзакция отправлена, получен результат исполнения.
	TransactionExecuted Type = "transaction_executed"
	// PoolDiscovered — обнаружен новый пул ликвидности.
	PoolDiscovered Type = "pool_discovered"
	// CacheLookup — обращение к кешу (hit/miss в полях).
	CacheLookup Type = "cache_lookup"
	// RetryAttempt — повтор сетевой операции после ошибки.
	RetryAttempt Type = "retry_attempt"
)

// Fields — произвольные структурные поля события.
type Fields map[string]interface{}

// Event — одно событие. Боковой канал наблюдаемости: события никогда не
// являются частью контракта возвращаемых значений.
type Event struct {
	ID     string
	Type   Type
	Time   time.Time
	Fields Fields
}

// Sink принимает события. Внедряется в компоненты при создании;
// реализации обязаны не блокировать вызывающего.
type Sink interface {
	Emit(e Event)
}

// Emit — nil-безопасная отправка события в sink.
func Emit(s Sink, t Type, fields Fields) {
	if s == nil {
		return
	}
	s.Emit(Event{Type: t, Time: time.Now(), Fields: fields})
}

// Handler обрабатывает события, доставленные шиной.
type Handler interface {
	Handle(e Event)
}

// HandlerFunc — адаптер функции к Handler.
type HandlerFunc func(e Event)

// Handle реализует Handler.
func (f HandlerFunc) Handle(e Event) {
	f(e)
}
