// =====================================
// File: internal/executor/pipeline.go
// =====================================
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/dex"
	"github.com/suimax/sui-bot/internal/events"
	"github.com/suimax/sui-bot/internal/logger"
	"github.com/suimax/sui-bot/internal/metrics"
	"github.com/suimax/sui-bot/internal/retry"
	"github.com/suimax/sui-bot/internal/tx"
	"github.com/suimax/sui-bot/internal/wallet"
)

// StepFunc конструирует один шаг транзакции. Шаги вычисляются
// последовательно: поздние могут зависеть от данных ранних.
type StepFunc func(ctx context.Context) (*dex.TransactionStep, error)

// Options — параметры одного исполнения.
type Options struct {
	GasBudget   uint64
	GasPrice    uint64
	Wait        chain.WaitMode
	EstimateGas bool // уточнить бюджет симуляцией перед отправкой
}

// Pipeline складывает шаги одного или нескольких адаптеров в одну транзакцию
// с единым бюджетом газа и отдаёт её кошельку. Сборка всё-или-ничего:
// сбой любого шага прерывает исполнение до отправки, частично собранные
// транзакции не подписываются.
type Pipeline struct {
	wallet  *wallet.Wallet
	invoker *retry.Invoker
	log     *logger.Logger
	sink    events.Sink
	metrics *metrics.Collector

	submitPolicy     retry.Policy
	defaultGasBudget uint64
}

// New создаёт конвейер с пресетом отправки по умолчанию.
func New(w *wallet.Wallet, inv *retry.Invoker, log *logger.Logger, sink events.Sink, mc *metrics.Collector) *Pipeline {
	return &Pipeline{
		wallet:       w,
		invoker:      inv,
		log:          log,
		sink:         sink,
		metrics:      mc,
		submitPolicy: retry.SubmitPolicy(),
	}
}

// WithSubmitPolicy задаёт политику ретраев отправки (переопределения из
// конфигурации накладываются здесь один раз при старте).
func (p *Pipeline) WithSubmitPolicy(policy retry.Policy) *Pipeline {
	p.submitPolicy = policy
	return p
}

// WithDefaultGasBudget задаёт бюджет газа для исполнений, не указавших свой.
func (p *Pipeline) WithDefaultGasBudget(budget uint64) *Pipeline {
	p.defaultGasBudget = budget
	return p
}

// Execute конструирует все шаги, финализирует транзакцию и отправляет её
// через пресет ретраев отправки. On-chain неуспех (ExecutionError) не
// повторяется: состояние пулов могло уйти, пересборка — решение политики.
func (p *Pipeline) Execute(ctx context.Context, steps []StepFunc, opts Options) (*chain.ExecutionResult, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("executor: no steps to execute")
	}
	defer p.log.TrackPerformance("pipeline.execute")()
	start := time.Now()

	b := tx.NewBuilder()
	operation, dexName := "composite", "multi"
	for i, step := range steps {
		st, err := step(ctx)
		if err != nil {
			p.metrics.RecordTransaction(operation, dexName, time.Since(start), false)
			return nil, fmt.Errorf("executor: step %d: %w", i, err)
		}
		st.AppendTo(b)
		if len(steps) == 1 {
			operation, dexName = string(st.Operation), st.DEX
		}
	}

	gasBudget := opts.GasBudget
	if opts.EstimateGas && gasBudget == 0 {
		if est := p.wallet.EstimateGas(ctx, b); est > 0 {
			// Полуторакратный запас над симуляцией.
			gasBudget = est + est/2
		}
	}
	if gasBudget == 0 {
		gasBudget = p.defaultGasBudget
	}

	res, err := retry.Do(ctx, p.invoker, p.submitPolicy, "executor.submit",
		func(ctx context.Context) (*chain.ExecutionResult, error) {
			return p.wallet.FinalizeAndSubmit(ctx, b, wallet.SubmitOptions{
				GasBudget: gasBudget,
				GasPrice:  opts.GasPrice,
				Wait:      opts.Wait,
			})
		})

	elapsed := time.Since(start)
	p.metrics.RecordTransaction(operation, dexName, elapsed, err == nil)

	fields := events.Fields{
		"operation": operation,
		"dex":       dexName,
		"steps":     len(steps),
		"elapsed":   elapsed.String(),
		"success":   err == nil,
	}
	if res != nil {
		fields["digest"] = res.Digest
	}
	events.Emit(p.sink, events.TransactionExecuted, fields)

	if err != nil {
		p.log.LogError("Исполнение транзакции не удалось", err,
			zap.String("operation", operation),
			zap.Int("steps", len(steps)))
		return nil, err
	}

	p.log.WithTransaction(res.Digest).Info("Транзакция исполнена конвейером",
		zap.String("operation", operation),
		zap.Duration("elapsed", elapsed))
	return res, nil
}
