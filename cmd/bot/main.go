// ==============================
// File: cmd/bot/main.go
// ==============================
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/bot"
	"github.com/suimax/sui-bot/internal/cache"
	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/config"
	"github.com/suimax/sui-bot/internal/dex"
	"github.com/suimax/sui-bot/internal/eventlistener"
	"github.com/suimax/sui-bot/internal/events"
	"github.com/suimax/sui-bot/internal/executor"
	"github.com/suimax/sui-bot/internal/logger"
	"github.com/suimax/sui-bot/internal/metrics"
	"github.com/suimax/sui-bot/internal/retry"
	"github.com/suimax/sui-bot/internal/suiaddr"
	"github.com/suimax/sui-bot/internal/wallet"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback, _ := zap.NewDevelopment()
		fallback.Fatal("Конфигурация не загрузилась", zap.Error(err))
	}

	log, err := logger.New(&logger.Config{
		LogFile:     "bot.log",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      7,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck
	log.Info("Запуск sui-bot")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && err != context.Canceled {
		log.Fatal("Бот завершился с ошибкой", zap.Error(err))
	}
	log.Info("Остановка завершена")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	mc := metrics.NewCollector()

	// Эндпоинт /metrics живёт отдельным сервером всё время работы.
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Info("Метрики доступны", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("Сервер метрик остановился", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
		defer stop()
		metricsSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	bus := events.NewBus(log.Logger, 256)
	defer bus.Shutdown(context.Background()) //nolint:errcheck
	bus.SubscribeAll(events.LogHandler(log.WithComponent("events")))

	client, err := chain.Dial(ctx, cfg.RPCURL, log.Logger, mc)
	if err != nil {
		return err
	}
	defer client.Close()

	w, err := wallet.New(cfg.PrivateKey, client, log.Logger)
	if err != nil {
		return err
	}

	invoker := retry.NewInvoker(log.Logger,
		retry.WithSink(bus),
		retry.WithMetrics(mc),
	)
	store := cache.New(log.Logger,
		cache.WithTTLOverrides(cfg.TTLOverrides()),
		cache.WithSink(bus),
		cache.WithMetrics(mc),
	)

	registry := dex.NewRegistry()
	deps := dex.Deps{
		Client:   client,
		Cache:    store,
		Invoker:  invoker,
		Logger:   log.Logger,
		Sink:     bus,
		Owner:    w.Address(),
		RPCRetry: cfg.RPCPolicy(),
	}
	for name, rawPkg := range cfg.Dexes {
		pkg, err := suiaddr.Normalize(rawPkg)
		if err != nil {
			return err
		}
		var adapter dex.Adapter
		switch name {
		case "cetus":
			adapter = dex.NewCetus(pkg, deps)
		case "turbos":
			adapter = dex.NewTurbos(pkg, deps)
		case "momentum":
			adapter = dex.NewMomentum(pkg, deps)
		default:
			log.Warn("Неизвестная DEX в конфигурации", zap.String("dex", name))
			continue
		}
		if err := registry.Register(adapter); err != nil {
			return err
		}
	}

	pipeline := executor.New(w, invoker, log, bus, mc).
		WithSubmitPolicy(cfg.SubmitPolicy()).
		WithDefaultGasBudget(cfg.GasBudget)

	// WS-подписки на создание пулов — best-effort дополнение к опросу.
	if cfg.WebSocketURL != "" {
		for _, adapter := range registry.All() {
			adapter := adapter
			l := eventlistener.New(cfg.WebSocketURL, log.Logger)
			err := l.Subscribe(ctx, adapter.PoolCreatedEvent(), func(rec chain.EventRecord) {
				events.Emit(bus, events.PoolDiscovered, events.Fields{
					"dex":    adapter.Name(),
					"source": "ws",
					"tx":     rec.TxDigest,
					"pool":   rec.ParsedJSON["pool_id"],
				})
			})
			if err != nil {
				log.Warn("WS-подписка недоступна, остаёмся на опросе",
					zap.String("dex", adapter.Name()), zap.Error(err))
				continue
			}
			defer l.Close() //nolint:errcheck
			go func() {
				select {
				case <-l.Done():
					log.Warn("WS-подписка завершилась, обнаружение продолжит опрос",
						zap.String("dex", adapter.Name()))
				case <-ctx.Done():
				}
			}()
		}
	}

	if !cfg.Sniper.Enabled {
		log.Info("Снайпер выключен; процесс обслуживает только метрики")
		<-ctx.Done()
		return ctx.Err()
	}

	sniper := bot.NewSniper(registry, pipeline, cfg.Sniper, log.Logger)
	if cfg.Sniper.JournalFile != "" {
		journal, err := logger.NewJournal(cfg.Sniper.JournalFile, 5*time.Second, log.Logger)
		if err != nil {
			return err
		}
		defer journal.Close() //nolint:errcheck
		sniper.WithJournal(journal)
	}
	if err := sniper.InitializeAdapters(ctx); err != nil {
		return err
	}
	return sniper.Run(ctx)
}
