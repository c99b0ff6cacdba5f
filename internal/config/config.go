// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/suimax/sui-bot/internal/cache"
	"github.com/suimax/sui-bot/internal/retry"
	"github.com/suimax/sui-bot/internal/suiaddr"
)

// Config загружается один раз на старте процесса и дальше только читается.
type Config struct {
	RPCURL          string            `mapstructure:"rpc_url"`
	WebSocketURL    string            `mapstructure:"websocket_url"`
	PrivateKey      string            `mapstructure:"private_key"`
	GasBudget       uint64            `mapstructure:"gas_budget"`
	DefaultSlippage float64           `mapstructure:"default_slippage"`
	MetricsAddr     string            `mapstructure:"metrics_addr"`
	DebugLogging    bool              `mapstructure:"debug_logging"`
	Dexes           map[string]string `mapstructure:"dexes"` // имя → package id
	Cache           CacheConfig       `mapstructure:"cache"`
	Retry           RetryConfig       `mapstructure:"retry"`
	Sniper          SniperConfig      `mapstructure:"sniper"`
}

// CacheConfig — переопределения TTL кеша, секунды на namespace.
type CacheConfig struct {
	TTLSeconds map[string]int `mapstructure:"ttl_seconds"`
}

// RetryPreset — переопределение одного пресета ретраев; нулевые поля
// оставляют значения пресета по умолчанию.
type RetryPreset struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// RetryConfig — переопределения обоих пресетов.
type RetryConfig struct {
	RPC    RetryPreset `mapstructure:"rpc"`
	Submit RetryPreset `mapstructure:"submit"`
}

// SniperConfig — стратегия снайпинга новых пулов.
type SniperConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	BaseCoin       string   `mapstructure:"base_coin"`
	Amount         uint64   `mapstructure:"amount"`
	Slippage       float64  `mapstructure:"slippage"`
	PollIntervalMs int      `mapstructure:"poll_interval_ms"`
	Blacklist      []string `mapstructure:"blacklist"`
	Whitelist      []string `mapstructure:"whitelist"`
	// JournalFile — путь CSV-журнала сделок; пустая строка отключает журнал.
	JournalFile string `mapstructure:"journal_file"`
}

const (
	DefaultGasBudget      = 10_000_000
	DefaultSlippagePct    = 1.0
	DefaultMetricsAddr    = ":9090"
	DefaultPollIntervalMs = 1000
	DefaultJournalFile    = "trades.csv"
)

// Load читает конфигурацию из файла и окружения (префикс SUI_BOT).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"gas_budget":              DefaultGasBudget,
		"default_slippage":        DefaultSlippagePct,
		"metrics_addr":            DefaultMetricsAddr,
		"sniper.poll_interval_ms": DefaultPollIntervalMs,
		"sniper.journal_file":     DefaultJournalFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	// Снайпер без своего проскальзывания наследует общий дефолт.
	if cfg.Sniper.Slippage == 0 {
		cfg.Sniper.Slippage = cfg.DefaultSlippage
	}

	return &cfg, Validate(&cfg)
}

// loadEnvironmentVariables накладывает переменные окружения поверх файла.
// Приватный ключ в файле конфигурации жить не обязан.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("SUI_BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if key := v.GetString("PRIVATE_KEY"); key != "" {
		cfg.PrivateKey = key
	}
	if rpc := v.GetString("RPC_URL"); rpc != "" {
		cfg.RPCURL = rpc
	}
	if ws := v.GetString("WEBSOCKET_URL"); ws != "" {
		cfg.WebSocketURL = ws
	}
}

// Validate проверяет конфигурацию до старта остальных компонентов.
func Validate(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	}
	if cfg.PrivateKey == "" {
		return errors.New("private_key is required (file or SUI_BOT_PRIVATE_KEY)")
	}
	if cfg.GasBudget == 0 {
		return errors.New("gas_budget must be positive")
	}
	if cfg.DefaultSlippage < 0 || cfg.DefaultSlippage > 100 {
		return errors.New("default_slippage must be within [0, 100]")
	}
	if len(cfg.Dexes) == 0 {
		return errors.New("at least one dex package id is required")
	}
	for name, pkg := range cfg.Dexes {
		if _, err := suiaddr.Normalize(pkg); err != nil {
			return fmt.Errorf("dex %s: %w", name, err)
		}
	}
	if cfg.Sniper.Enabled {
		if cfg.Sniper.BaseCoin == "" {
			return errors.New("sniper.base_coin is required")
		}
		if cfg.Sniper.Amount == 0 {
			return errors.New("sniper.amount must be positive")
		}
		if cfg.Sniper.Slippage < 0 || cfg.Sniper.Slippage > 100 {
			return errors.New("sniper.slippage must be within [0, 100]")
		}
		if cfg.Sniper.PollIntervalMs <= 0 {
			return errors.New("sniper.poll_interval_ms must be positive")
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// TTLOverrides переводит секунды конфигурации в переопределения TTL кеша.
func (c *Config) TTLOverrides() map[cache.Namespace]time.Duration {
	out := make(map[cache.Namespace]time.Duration, len(c.Cache.TTLSeconds))
	for ns, seconds := range c.Cache.TTLSeconds {
		if seconds > 0 {
			out[cache.Namespace(ns)] = time.Duration(seconds) * time.Second
		}
	}
	return out
}

// Apply накладывает ненулевые поля пресета на политику ретраев.
func (p RetryPreset) Apply(base retry.Policy) retry.Policy {
	if p.MaxAttempts > 0 {
		base.MaxAttempts = p.MaxAttempts
	}
	if p.BaseDelayMs > 0 {
		base.BaseDelay = time.Duration(p.BaseDelayMs) * time.Millisecond
	}
	if p.MaxDelayMs > 0 {
		base.MaxDelay = time.Duration(p.MaxDelayMs) * time.Millisecond
	}
	return base
}

// RPCPolicy возвращает RPC-пресет с наложенными переопределениями.
func (c *Config) RPCPolicy() retry.Policy {
	return c.Retry.RPC.Apply(retry.RPCPolicy())
}

// SubmitPolicy возвращает пресет отправки с наложенными переопределениями.
func (c *Config) SubmitPolicy() retry.Policy {
	return c.Retry.Submit.Apply(retry.SubmitPolicy())
}
