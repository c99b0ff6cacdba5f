package wallet_test

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/chain"
	"github.com/suimax/sui-bot/internal/suiaddr"
	"github.com/suimax/sui-bot/internal/tx"
	"github.com/suimax/sui-bot/internal/wallet"
)

func testSeed() []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

// fakeClient — управляемая замена chain.Client.
type fakeClient struct {
	coins       []chain.CoinObject
	coinsErr    error
	balances    []chain.Balance
	balancesErr error
	dryRun      *chain.DryRunResult
	dryRunErr   error
	execResult  *chain.ExecutionResult
	execErr     error
	gotTxBytes  []byte
	gotSigs     []string
	gotWait     chain.WaitMode
	execCalls   int
	gasPrice    uint64
	gasPriceErr error
}

func (f *fakeClient) GetObject(context.Context, suiaddr.Address) (*chain.ObjectData, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) QueryEvents(context.Context, string, int, bool) ([]chain.EventRecord, error) {
	return nil, nil
}

func (f *fakeClient) GetCoins(context.Context, suiaddr.Address, string) ([]chain.CoinObject, error) {
	return f.coins, f.coinsErr
}

func (f *fakeClient) GetAllBalances(context.Context, suiaddr.Address) ([]chain.Balance, error) {
	return f.balances, f.balancesErr
}

func (f *fakeClient) GetNormalizedModules(context.Context, suiaddr.Address) (map[string]json.RawMessage, error) {
	return nil, nil
}

func (f *fakeClient) DryRun(context.Context, []byte) (*chain.DryRunResult, error) {
	return f.dryRun, f.dryRunErr
}

func (f *fakeClient) ExecuteTransaction(_ context.Context, txBytes []byte, sigs []string, wait chain.WaitMode) (*chain.ExecutionResult, error) {
	f.execCalls++
	f.gotTxBytes = txBytes
	f.gotSigs = sigs
	f.gotWait = wait
	return f.execResult, f.execErr
}

func (f *fakeClient) ReferenceGasPrice(context.Context) (uint64, error) {
	return f.gasPrice, f.gasPriceErr
}

func (f *fakeClient) Close() {}

func successResult() *chain.ExecutionResult {
	return &chain.ExecutionResult{
		Digest: "ABCDigest",
		Effects: &chain.TransactionEffects{
			Status:  chain.ExecStatus{Status: "success"},
			GasUsed: chain.GasUsed{ComputationCost: 700, StorageCost: 300, StorageRebate: 50},
		},
	}
}

func TestKeyFormatsYieldSameAddress(t *testing.T) {
	seed := testSeed()
	priv := ed25519.NewKeyFromSeed(seed)

	encodings := map[string]string{
		"hex":      "0x" + hex.EncodeToString(seed),
		"base64":   base64.StdEncoding.EncodeToString(seed),
		"base58":   base58.Encode(seed),
		"base58_64": base58.Encode(priv),
	}

	var addresses []suiaddr.Address
	for name, key := range encodings {
		w, err := wallet.New(key, &fakeClient{}, zap.NewNop())
		require.NoError(t, err, "format %s", name)
		addresses = append(addresses, w.Address())
	}
	for _, addr := range addresses[1:] {
		assert.Equal(t, addresses[0], addr, "все кодировки одного seed дают один адрес")
	}
	assert.Len(t, addresses[0].String(), 66)
}

func TestInvalidKeyFormats(t *testing.T) {
	for _, key := range []string{"", "0xdeadbeef", "not-a-key!!", "0x" + "zz"} {
		_, err := wallet.New(key, &fakeClient{}, zap.NewNop())
		assert.ErrorIs(t, err, wallet.ErrInvalidKeyFormat, "key %q", key)
	}
}

func newTestWallet(t *testing.T, client chain.Client) *wallet.Wallet {
	t.Helper()
	w, err := wallet.New("0x"+hex.EncodeToString(testSeed()), client, zap.NewNop())
	require.NoError(t, err)
	return w
}

func TestBalanceDegradesToZero(t *testing.T) {
	w := newTestWallet(t, &fakeClient{balancesErr: errors.New("rpc down")})
	assert.Zero(t, w.Balance(context.Background(), "0x2::sui::SUI"))
	assert.Empty(t, w.AllBalances(context.Background()))
}

func TestBalanceMatchesNormalizedCoinType(t *testing.T) {
	client := &fakeClient{balances: []chain.Balance{
		{CoinType: "0x2::sui::SUI", TotalBalance: 12345},
	}}
	w := newTestWallet(t, client)

	// Запрос с ненормализованным адресом находит нормализованную запись.
	got := w.Balance(context.Background(), "0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI")
	assert.Equal(t, uint64(12345), got)
}

func TestCoinObjectsPropagatesError(t *testing.T) {
	boom := errors.New("rpc down")
	w := newTestWallet(t, &fakeClient{coinsErr: boom})
	_, err := w.CoinObjects(context.Background(), "0x2::sui::SUI")
	assert.ErrorIs(t, err, boom)
}

func TestFinalizeAndSubmitSuccess(t *testing.T) {
	client := &fakeClient{execResult: successResult(), gasPrice: 750}
	w := newTestWallet(t, client)

	b := tx.NewBuilder()
	b.MoveCall("0x2::coin::zero", nil)

	res, err := w.FinalizeAndSubmit(context.Background(), b, wallet.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ABCDigest", res.Digest)
	assert.Equal(t, chain.WaitLocalExecution, client.gotWait)
	require.Len(t, client.gotSigs, 1)
	assert.NotEmpty(t, client.gotSigs[0])

	// Отправитель и газ проставлены из кошелька и сети.
	var sent tx.Transaction
	require.NoError(t, json.Unmarshal(client.gotTxBytes, &sent))
	assert.Equal(t, w.Address(), sent.Sender)
	assert.Equal(t, uint64(wallet.DefaultGasBudget), sent.GasBudget)
	assert.Equal(t, uint64(750), sent.GasPrice)
}

func TestFinalizeAndSubmitFailedEffects(t *testing.T) {
	client := &fakeClient{execResult: &chain.ExecutionResult{
		Digest: "BadDigest",
		Effects: &chain.TransactionEffects{
			Status: chain.ExecStatus{Status: "failure", Error: "MoveAbort(7)"},
		},
	}}
	w := newTestWallet(t, client)

	b := tx.NewBuilder()
	b.MoveCall("0x2::coin::zero", nil)

	_, err := w.FinalizeAndSubmit(context.Background(), b, wallet.SubmitOptions{})
	var execErr *wallet.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "BadDigest", execErr.Digest)
	assert.Contains(t, execErr.Reason, "MoveAbort")
	assert.Equal(t, 1, client.execCalls, "on-chain неуспех не повторяется")
}

func TestFinalizeAndSubmitTransportError(t *testing.T) {
	client := &fakeClient{execErr: errors.New("connection reset")}
	w := newTestWallet(t, client)

	b := tx.NewBuilder()
	b.MoveCall("0x2::coin::zero", nil)

	_, err := w.FinalizeAndSubmit(context.Background(), b, wallet.SubmitOptions{})
	var submitErr *wallet.SubmitError
	assert.ErrorAs(t, err, &submitErr)
}

func TestEstimateGas(t *testing.T) {
	client := &fakeClient{dryRun: &chain.DryRunResult{
		Effects: &chain.TransactionEffects{
			GasUsed: chain.GasUsed{ComputationCost: 400, StorageCost: 100},
		},
	}}
	w := newTestWallet(t, client)

	b := tx.NewBuilder()
	b.MoveCall("0x2::coin::zero", nil)
	assert.Equal(t, uint64(500), w.EstimateGas(context.Background(), b))
}

func TestEstimateGasDegradesToZero(t *testing.T) {
	w := newTestWallet(t, &fakeClient{dryRunErr: errors.New("simulation unavailable")})

	b := tx.NewBuilder()
	b.MoveCall("0x2::coin::zero", nil)
	assert.Zero(t, w.EstimateGas(context.Background(), b))
}

func TestSplitCoinsFirstFit(t *testing.T) {
	small := suiaddr.MustNormalize("0xa")
	big := suiaddr.MustNormalize("0xb")
	client := &fakeClient{
		coins: []chain.CoinObject{
			{CoinObjectID: small, CoinType: "0x2::sui::SUI", Balance: 50},
			{CoinObjectID: big, CoinType: "0x2::sui::SUI", Balance: 5000},
		},
		execResult: successResult(),
	}
	w := newTestWallet(t, client)

	_, err := w.SplitCoins(context.Background(), 1000, "0x2::sui::SUI")
	require.NoError(t, err)

	// Первый подходящий по балансу объект, не оптимальный.
	var sent tx.Transaction
	require.NoError(t, json.Unmarshal(client.gotTxBytes, &sent))
	require.Len(t, sent.Calls, 1)
	assert.Equal(t, big, sent.Calls[0].Arguments[0].Object)
}

func TestSplitCoinsInsufficientBalance(t *testing.T) {
	client := &fakeClient{coins: []chain.CoinObject{
		{CoinObjectID: suiaddr.MustNormalize("0xa"), Balance: 10},
	}}
	w := newTestWallet(t, client)

	_, err := w.SplitCoins(context.Background(), 1000, "0x2::sui::SUI")
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Zero(t, client.execCalls)
}

func TestTransferCoinsInsufficientBalance(t *testing.T) {
	w := newTestWallet(t, &fakeClient{})
	_, err := w.TransferCoins(context.Background(), suiaddr.MustNormalize("0xdead"), 5, "0x2::sui::SUI")
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
}
