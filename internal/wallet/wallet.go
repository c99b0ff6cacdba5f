// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/suiaddr"
	"github.com/suimax/sui-bot/internal/tx"
)

// DefaultGasBudget — бюджет газа, когда вызывающий не задал свой.
const DefaultGasBudget = 10_000_000

// ed25519Flag — байт схемы подписи в сериализации Sui.
const ed25519Flag byte = 0x00

// ErrInvalidKeyFormat — ключевой материал не распознан ни в одной из
// поддерживаемых кодировок.
var ErrInvalidKeyFormat = errors.New("invalid private key format")

// ErrInsufficientBalance — ни один coin-объект не покрывает требуемую сумму.
var ErrInsufficientBalance = errors.New("insufficient balance")

// SubmitError — сбой подписи или отправки; транзакция могла не дойти до сети.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return fmt.Sprintf("submission failed: %v", e.Err) }

func (e *SubmitError) Unwrap() error { return e.Err }

// ExecutionError — сеть приняла транзакцию и зафиксировала неуспех.
// Никогда не повторяется автоматически: повторная отправка логически той же
// транзакции после on-chain отказа меняет исход и остаётся решением политики.
type ExecutionError struct {
	Digest string
	Reason string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("transaction %s failed on-chain: %s", e.Digest, e.Reason)
}

// Wallet — единственная ключевая пара процесса. После конструирования
// неизменен; все операции идут от его адреса.
type Wallet struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address suiaddr.Address

	client chain.Client
	logger *zap.Logger
}

// New создаёт кошелёк из приватного ключа. Распознаются: hex c префиксом 0x
// (32-байтовый seed), стандартный base64 (32 байта) и base58 (32 или 64
// байта). Всё прочее — ErrInvalidKeyFormat.
func New(privateKey string, client chain.Client, logger *zap.Logger) (*Wallet, error) {
	priv, err := decodeKey(privateKey)
	if err != nil {
		return nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)

	w := &Wallet{
		priv:    priv,
		pub:     pub,
		address: deriveAddress(pub),
		client:  client,
		logger:  logger.Named("wallet"),
	}
	w.logger.Info("Кошелёк готов", zap.String("address", w.address.Shorten(0)))
	return w, nil
}

func decodeKey(raw string) (ed25519.PrivateKey, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKeyFormat)
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hex.DecodeString(s[2:])
		if err != nil || len(b) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: hex key must be %d bytes", ErrInvalidKeyFormat, ed25519.SeedSize)
		}
		return ed25519.NewKeyFromSeed(b), nil
	}

	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(b), nil
	}

	if b, err := base58.Decode(s); err == nil {
		switch len(b) {
		case ed25519.SeedSize:
			return ed25519.NewKeyFromSeed(b), nil
		case ed25519.PrivateKeySize:
			return ed25519.NewKeyFromSeed(b[:ed25519.SeedSize]), nil
		}
	}

	return nil, fmt.Errorf("%w: expected 0x-hex, base64 or base58 key material", ErrInvalidKeyFormat)
}

// deriveAddress вычисляет адрес Sui: blake2b-256 от байта схемы и публичного
// ключа.
func deriveAddress(pub ed25519.PublicKey) suiaddr.Address {
	payload := make([]byte, 0, 1+len(pub))
	payload = append(payload, ed25519Flag)
	payload = append(payload, pub...)
	sum := blake2b.Sum256(payload)
	return suiaddr.MustNormalize("0x" + hex.EncodeToString(sum[:]))
}

// Address возвращает адрес кошелька.
func (w *Wallet) Address() suiaddr.Address { return w.address }

// PublicKey возвращает копию публичного ключа.
func (w *Wallet) PublicKey() []byte {
	out := make([]byte, len(w.pub))
	copy(out, w.pub)
	return out
}

// Balance возвращает агрегированный баланс по типу монеты. Best-effort:
// при сбое RPC — ноль с записью в лог, чтобы циклы чтения жили дальше.
func (w *Wallet) Balance(ctx context.Context, coinType string) uint64 {
	balances, err := w.client.GetAllBalances(ctx, w.address)
	if err != nil {
		w.logger.Warn("Чтение баланса не удалось", zap.String("coin", coinType), zap.Error(err))
		return 0
	}
	normalized, err := suiaddr.NormalizeType(coinType)
	if err != nil {
		w.logger.Warn("Нечитаемый тип монеты", zap.String("coin", coinType), zap.Error(err))
		return 0
	}
	for _, b := range balances {
		if t, err := suiaddr.NormalizeType(b.CoinType); err == nil && t == normalized {
			return uint64(b.TotalBalance)
		}
	}
	return 0
}

// AllBalances возвращает балансы по всем типам монет; при сбое — пустой срез.
func (w *Wallet) AllBalances(ctx context.Context) []chain.Balance {
	balances, err := w.client.GetAllBalances(ctx, w.address)
	if err != nil {
		w.logger.Warn("Чтение балансов не удалось", zap.Error(err))
		return []chain.Balance{}
	}
	return balances
}

// CoinObjects возвращает coin-объекты кошелька указанного типа. Ошибка
// пробрасывается: по этим данным выбираются входы для трат.
func (w *Wallet) CoinObjects(ctx context.Context, coinType string) ([]chain.CoinObject, error) {
	return w.client.GetCoins(ctx, w.address, coinType)
}

// SubmitOptions — параметры финализации и отправки.
type SubmitOptions struct {
	GasBudget uint64
	GasPrice  uint64 // 0 — взять референсную цену сети
	Wait      chain.WaitMode
}

func (o SubmitOptions) withDefaults() SubmitOptions {
	if o.GasBudget == 0 {
		o.GasBudget = DefaultGasBudget
	}
	if o.Wait == "" {
		o.Wait = chain.WaitLocalExecution
	}
	return o
}

// FinalizeAndSubmit назначает отправителя и газ, подписывает и отправляет
// транзакцию, дожидаясь результата в заданном режиме. Сбой подписи или
// отправки — SubmitError; зафиксированный сетью неуспех — ExecutionError.
// Ретраи отправки навешивает внешний конвейер, не кошелёк.
func (w *Wallet) FinalizeAndSubmit(ctx context.Context, b *tx.Builder, opts SubmitOptions) (*chain.ExecutionResult, error) {
	opts = opts.withDefaults()

	gasPrice := opts.GasPrice
	if gasPrice == 0 {
		p, err := w.client.ReferenceGasPrice(ctx)
		if err != nil {
			w.logger.Warn("Референсная цена газа недоступна", zap.Error(err))
		} else {
			gasPrice = p
		}
	}

	txn, err := b.SetSender(w.address).SetGasBudget(opts.GasBudget).SetGasPrice(gasPrice).Build()
	if err != nil {
		return nil, &SubmitError{Err: err}
	}
	txBytes, err := txn.Encode()
	if err != nil {
		return nil, &SubmitError{Err: err}
	}

	res, err := w.client.ExecuteTransaction(ctx, txBytes, []string{w.sign(txBytes)}, opts.Wait)
	if err != nil {
		return nil, &SubmitError{Err: err}
	}
	if res.Effects != nil && !res.Effects.Status.Success() {
		return nil, &ExecutionError{Digest: res.Digest, Reason: res.Effects.Status.Error}
	}

	var gasUsed uint64
	if res.Effects != nil {
		gasUsed = res.Effects.GasUsed.Total()
	}
	w.logger.Info("Транзакция исполнена",
		zap.String("digest", res.Digest),
		zap.Uint64("gas_used", gasUsed))
	return res, nil
}

// sign подписывает blake2b-дайджест интента и сериализует подпись по схеме
// Sui: флаг схемы, подпись, публичный ключ — в base64.
func (w *Wallet) sign(txBytes []byte) string {
	// Интент TransactionData: scope, version, app — все нули.
	msg := make([]byte, 0, 3+len(txBytes))
	msg = append(msg, 0, 0, 0)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := ed25519.Sign(w.priv, digest[:])
	serialized := make([]byte, 0, 1+len(sig)+len(w.pub))
	serialized = append(serialized, ed25519Flag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, w.pub...)
	return base64.StdEncoding.EncodeToString(serialized)
}

// EstimateGas симулирует транзакцию и возвращает computation + storage.
// Оценка газа совещательная: при сбое — ноль с записью в лог.
func (w *Wallet) EstimateGas(ctx context.Context, b *tx.Builder) uint64 {
	txn, err := b.SetSender(w.address).Build()
	if err != nil {
		w.logger.Warn("Оценка газа: транзакция не собралась", zap.Error(err))
		return 0
	}
	txBytes, err := txn.Encode()
	if err != nil {
		w.logger.Warn("Оценка газа: транзакция не сериализовалась", zap.Error(err))
		return 0
	}
	res, err := w.client.DryRun(ctx, txBytes)
	if err != nil || res == nil || res.Effects == nil {
		w.logger.Warn("Оценка газа не удалась", zap.Error(err))
		return 0
	}
	return res.Effects.GasUsed.Total()
}

// selectCoin выбирает первый coin-объект с балансом не меньше суммы.
// Выбор first-fit, не оптимальный: фрагментацию монет он не минимизирует.
func (w *Wallet) selectCoin(ctx context.Context, amount uint64, coinType string) (*chain.CoinObject, error) {
	coins, err := w.CoinObjects(ctx, coinType)
	if err != nil {
		return nil, &SubmitError{Err: err}
	}
	for i := range coins {
		if uint64(coins[i].Balance) >= amount {
			return &coins[i], nil
		}
	}
	return nil, fmt.Errorf("%w: need %d of %s", ErrInsufficientBalance, amount, coinType)
}

// SplitCoins отделяет amount от подходящего coin-объекта отдельной транзакцией.
func (w *Wallet) SplitCoins(ctx context.Context, amount uint64, coinType string) (*chain.ExecutionResult, error) {
	coin, err := w.selectCoin(ctx, amount, coinType)
	if err != nil {
		return nil, err
	}

	b := tx.NewBuilder()
	b.MoveCall("0x2::pay::split", []string{coinType},
		tx.Object(coin.CoinObjectID),
		tx.Pure(amount),
	)
	return w.FinalizeAndSubmit(ctx, b, SubmitOptions{})
}

// TransferCoins переводит amount монет получателю отдельной транзакцией.
func (w *Wallet) TransferCoins(ctx context.Context, recipient suiaddr.Address, amount uint64, coinType string) (*chain.ExecutionResult, error) {
	coin, err := w.selectCoin(ctx, amount, coinType)
	if err != nil {
		return nil, err
	}

	b := tx.NewBuilder()
	b.MoveCall("0x2::pay::pay", []string{coinType},
		tx.Object(coin.CoinObjectID),
		tx.Pure(amount),
		tx.Pure(recipient),
	)
	return w.FinalizeAndSubmit(ctx, b, SubmitOptions{})
}
