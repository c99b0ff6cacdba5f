// ==============================
// File: internal/bot/sniper.go
// ==============================
package bot

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/config"
	"github.com/suimax/sui-bot/internal/dex"
	"github.com/suimax/sui-bot/internal/executor"
	"github.com/suimax/sui-bot/internal/logger"
	"github.com/suimax/sui-bot/internal/suiaddr"
)

// Sniper — тонкий слой политики поверх ядра: опрашивает адаптеры на новые
// пулы и покупает встречную монету свежего пула базовой монетой. Оценка
// доходности сюда не входит — фильтрация только по спискам.
type Sniper struct {
	registry *dex.Registry
	pipeline *executor.Pipeline
	cfg      config.SniperConfig
	logger   *zap.Logger
	journal  *logger.Journal

	baseCoin  string
	blacklist map[string]struct{}
	whitelist map[string]struct{}
	seen      map[suiaddr.Address]struct{}
}

// NewSniper создаёт снайпер. Типы монет в списках нормализуются сразу;
// нечитаемые записи отбрасываются с записью в лог.
func NewSniper(registry *dex.Registry, pipeline *executor.Pipeline, cfg config.SniperConfig, logger *zap.Logger) *Sniper {
	s := &Sniper{
		registry:  registry,
		pipeline:  pipeline,
		cfg:       cfg,
		logger:    logger.Named("sniper"),
		blacklist: normalizeSet(cfg.Blacklist, logger),
		whitelist: normalizeSet(cfg.Whitelist, logger),
		seen:      make(map[suiaddr.Address]struct{}),
	}
	if base, err := suiaddr.NormalizeType(cfg.BaseCoin); err == nil {
		s.baseCoin = base
	} else {
		s.logger.Error("Нечитаемая базовая монета", zap.String("coin", cfg.BaseCoin), zap.Error(err))
	}
	return s
}

// WithJournal подключает CSV-журнал сделок. Без журнала снайпер работает
// как прежде, фиксируя исходы только в логе.
func (s *Sniper) WithJournal(j *logger.Journal) *Sniper {
	s.journal = j
	return s
}

func normalizeSet(coins []string, logger *zap.Logger) map[string]struct{} {
	out := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		t, err := suiaddr.NormalizeType(c)
		if err != nil {
			logger.Warn("Пропущена нечитаемая запись списка", zap.String("coin", c), zap.Error(err))
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

// InitializeAdapters инициализирует все адаптеры реестра; каждый — с
// экспоненциальным повтором поверх внутренних RPC-ретраев, чтобы пережить
// холодный старт ноды.
func (s *Sniper) InitializeAdapters(ctx context.Context) error {
	for _, adapter := range s.registry.All() {
		adapter := adapter

		backoffPolicy := backoff.NewExponentialBackOff()
		backoffPolicy.InitialInterval = 2 * time.Second
		backoffPolicy.MaxInterval = 30 * time.Second

		notify := func(err error, duration time.Duration) {
			s.logger.Info("Повтор инициализации адаптера",
				zap.String("dex", adapter.Name()), zap.Error(err), zap.Duration("backoff", duration))
		}

		operation := func() (struct{}, error) {
			return struct{}{}, adapter.Initialize(ctx)
		}

		if _, err := backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoffPolicy),
			backoff.WithMaxTries(5),
			backoff.WithNotify(notify)); err != nil {
			s.logger.Error("Адаптер не инициализировался", zap.String("dex", adapter.Name()), zap.Error(err))
			return err
		}
	}
	return nil
}

// Run опрашивает новые пулы с заданным интервалом до отмены контекста.
func (s *Sniper) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.PollIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Снайпер запущен",
		zap.String("base_coin", s.baseCoin),
		zap.Duration("poll_interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Снайпер остановлен")
			return ctx.Err()
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Sniper) poll(ctx context.Context) {
	for _, adapter := range s.registry.All() {
		for _, pool := range adapter.MonitorNewPools(ctx) {
			if _, ok := s.seen[pool.ID]; ok {
				continue
			}
			s.seen[pool.ID] = struct{}{}
			s.consider(ctx, adapter, pool)
		}
	}
}

// consider решает, снайпить ли пул, и исполняет покупку через конвейер.
func (s *Sniper) consider(ctx context.Context, adapter dex.Adapter, pool dex.Pool) {
	target, ok := s.targetCoin(pool)
	if !ok {
		return
	}

	s.logger.Info("Новый пул под снайп",
		zap.String("dex", adapter.Name()),
		zap.String("pool", pool.ID.Shorten(0)),
		zap.String("target", target))

	step := func(ctx context.Context) (*dex.TransactionStep, error) {
		return adapter.Swap(ctx, dex.SwapRequest{
			CoinTypeIn:  s.baseCoin,
			CoinTypeOut: target,
			Amount:      s.cfg.Amount,
			Slippage:    s.cfg.Slippage,
			PoolID:      pool.ID,
		})
	}

	res, err := s.pipeline.Execute(ctx, []executor.StepFunc{step}, executor.Options{})
	s.journalTrade(adapter.Name(), pool, target, res, err)
	if err != nil {
		s.logger.Error("Снайп не удался",
			zap.String("pool", pool.ID.Shorten(0)), zap.Error(err))
		return
	}
	s.logger.Info("Снайп исполнен",
		zap.String("pool", pool.ID.Shorten(0)),
		zap.String("digest", res.Digest))
}

func (s *Sniper) journalTrade(dexName string, pool dex.Pool, target string, res *chain.ExecutionResult, execErr error) {
	if s.journal == nil {
		return
	}
	rec := logger.TradeRecord{
		DEX:       dexName,
		Operation: string(dex.OpSwap),
		PoolID:    pool.ID.String(),
		CoinIn:    s.baseCoin,
		CoinOut:   target,
		AmountIn:  s.cfg.Amount,
		Success:   execErr == nil,
	}
	if res != nil {
		rec.Digest = res.Digest
	}
	if err := s.journal.Record(rec); err != nil {
		s.logger.Warn("Запись в журнал сделок не удалась", zap.Error(err))
	}
}

// targetCoin возвращает встречную монету пула, если пул проходит фильтры:
// одна из сторон — базовая монета, встречная не в чёрном списке и,
// при непустом белом списке, присутствует в нём.
func (s *Sniper) targetCoin(pool dex.Pool) (string, bool) {
	var target string
	switch s.baseCoin {
	case pool.CoinTypeA:
		target = pool.CoinTypeB
	case pool.CoinTypeB:
		target = pool.CoinTypeA
	default:
		return "", false
	}

	if _, banned := s.blacklist[target]; banned {
		s.logger.Debug("Монета в чёрном списке", zap.String("coin", target))
		return "", false
	}
	if len(s.whitelist) > 0 {
		if _, allowed := s.whitelist[target]; !allowed {
			return "", false
		}
	}
	return target, true
}
