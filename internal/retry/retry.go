// internal/retry/retry.go
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/events"
	"github.com/suimax/sui-bot/internal/metrics"
)

// Policy настраивает повтор одной сетевой операции.
type Policy struct {
	// MaxAttempts — общее число попыток, включая первую.
	MaxAttempts int
	// BaseDelay — задержка перед второй попыткой.
	BaseDelay time.Duration
	// MaxDelay — верхняя граница задержки.
	MaxDelay time.Duration
	// Multiplier — множитель экспоненциального роста задержки.
	Multiplier float64
	// NoJitter отключает случайный разброс ±25% от вычисленной задержки.
	// Нулевая политика держит джиттер включённым.
	NoJitter bool
	// ShouldRetry решает по классификации ошибки, имеет ли смысл повтор.
	// Никогда не разбирает текст ошибки.
	ShouldRetry func(error) bool
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = retryOnKinds(chain.KindRateLimit, chain.KindTimeout, chain.KindNetwork)
	}
	return p
}

// RPCPolicy — пресет для read-вызовов RPC: пять попыток, короткая база,
// повторяем только перегрузку и сетевые сбои.
func RPCPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
		ShouldRetry: retryOnKinds(chain.KindRateLimit, chain.KindTimeout, chain.KindNetwork),
	}
}

// SubmitPolicy — пресет для отправки транзакций: меньше попыток, длиннее база.
// Слепой повтор отклонённой транзакции может продублировать намерение, поэтому
// повторяем только газ/версию объекта/перегрузку сети — никогда нехватку
// средств или ошибки валидации.
func SubmitPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    15 * time.Second,
		Multiplier:  2,
		ShouldRetry: retryOnKinds(chain.KindGasEstimation, chain.KindNonce, chain.KindCongestion),
	}
}

func retryOnKinds(kinds ...chain.Kind) func(error) bool {
	set := make(map[chain.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(err error) bool {
		_, ok := set[chain.KindOf(err)]
		return ok
	}
}

// ExhaustedError сообщает, что все попытки исчерпаны; оборачивает последнюю ошибку.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Invoker исполняет операции с повторами. Источник случайности и функция сна
// внедряются, поэтому расписание задержек детерминировано при фиксированном seed.
type Invoker struct {
	logger  *zap.Logger
	sink    events.Sink
	metrics *metrics.Collector

	mu  sync.Mutex
	rnd *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// Option настраивает Invoker.
type Option func(*Invoker)

// WithRand задаёт источник случайности для джиттера.
func WithRand(src rand.Source) Option {
	return func(inv *Invoker) { inv.rnd = rand.New(src) }
}

// WithSink задаёт sink для событий retry_attempt.
func WithSink(s events.Sink) Option {
	return func(inv *Invoker) { inv.sink = s }
}

// WithMetrics задаёт коллектор метрик.
func WithMetrics(mc *metrics.Collector) Option {
	return func(inv *Invoker) { inv.metrics = mc }
}

// WithSleep подменяет функцию сна (для тестов).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(inv *Invoker) { inv.sleep = fn }
}

// NewInvoker создаёт Invoker.
func NewInvoker(logger *zap.Logger, opts ...Option) *Invoker {
	inv := &Invoker{
		logger: logger.Named("retry"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay вычисляет задержку перед повтором после попытки attempt (с единицы):
// min(BaseDelay × Multiplier^(attempt-1) × jitterFactor, MaxDelay).
func (inv *Invoker) Delay(p Policy, attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if !p.NoJitter {
		inv.mu.Lock()
		factor := 0.75 + inv.rnd.Float64()*0.5
		inv.mu.Unlock()
		d *= factor
	}
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	return time.Duration(d)
}

// Do исполняет op с повторами по политике p. Возвращает результат первой
// успешной попытки; невозобновляемую ошибку — как есть; после исчерпания
// попыток — ExhaustedError с последней ошибкой. Между попытками операцию
// можно отменить через ctx.
func Do[T any](ctx context.Context, inv *Invoker, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				inv.metrics.RecordRetry(name, "succeeded")
			}
			return v, nil
		}
		lastErr = err

		if !p.ShouldRetry(err) {
			inv.metrics.RecordRetry(name, "gave_up")
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := inv.Delay(p, attempt)
		inv.logger.Warn("Повтор операции после ошибки",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		events.Emit(inv.sink, events.RetryAttempt, events.Fields{
			"operation": name,
			"attempt":   attempt,
			"backoff":   delay.String(),
			"error":     err.Error(),
		})
		inv.metrics.RecordRetry(name, "retried")

		if serr := inv.sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}

	inv.metrics.RecordRetry(name, "exhausted")
	return zero, &ExhaustedError{Attempts: p.MaxAttempts, LastErr: lastErr}
}
