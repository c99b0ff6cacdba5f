// internal/chain/rpc.go
package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/metrics"
	"github.com/suimax/sui-bot/internal/suiaddr"
)

// RPCClient реализует Client поверх JSON-RPC 2.0 полной ноды Sui.
type RPCClient struct {
	rpc     *gethrpc.Client
	url     string
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Dial устанавливает соединение с нодой. Collector может быть nil.
func Dial(ctx context.Context, url string, logger *zap.Logger, mc *metrics.Collector) (*RPCClient, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, NewError(KindNetwork, "dial", err)
	}
	logger.Info("Подключение к Sui RPC установлено", zap.String("url", url))
	return &RPCClient{rpc: c, url: url, logger: logger.Named("sui_rpc"), metrics: mc}, nil
}

// Close освобождает транспорт.
func (c *RPCClient) Close() {
	c.rpc.Close()
}

// call — единая точка вызова: таймер, классификация ошибки, метрика латентности.
func (c *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	if c.metrics != nil {
		c.metrics.RecordRPCLatency(method, c.url, time.Since(start))
	}
	if err != nil {
		kind := classify(err)
		c.logger.Debug("RPC вызов завершился ошибкой",
			zap.String("method", method),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return NewError(kind, method, err)
	}
	return nil
}

// objectResponse — обёртка sui_getObject.
type objectResponse struct {
	Data *struct {
		ObjectID suiaddr.Address `json:"objectId"`
		Version  U64             `json:"version"`
		Digest   string          `json:"digest"`
		Type     string          `json:"type"`
		Content  *struct {
			DataType string                 `json:"dataType"`
			Type     string                 `json:"type"`
			Fields   map[string]interface{} `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code     string `json:"code"`
		ObjectID string `json:"object_id"`
	} `json:"error"`
}

func (c *RPCClient) GetObject(ctx context.Context, id suiaddr.Address) (*ObjectData, error) {
	var resp objectResponse
	opts := map[string]bool{"showContent": true, "showType": true}
	if err := c.call(ctx, &resp, "sui_getObject", id, opts); err != nil {
		return nil, err
	}
	if resp.Error != nil || resp.Data == nil {
		return nil, NewError(KindNotFound, "sui_getObject",
			fmt.Errorf("object %s not found", id.Shorten(8)))
	}

	obj := &ObjectData{
		ObjectID: resp.Data.ObjectID,
		Version:  resp.Data.Version,
		Digest:   resp.Data.Digest,
		Type:     resp.Data.Type,
	}
	if resp.Data.Content != nil {
		if obj.Type == "" {
			obj.Type = resp.Data.Content.Type
		}
		obj.Fields = resp.Data.Content.Fields
	}
	return obj, nil
}

// eventPage — страница suix_queryEvents.
type eventPage struct {
	Data        []EventRecord   `json:"data"`
	NextCursor  json.RawMessage `json:"nextCursor"`
	HasNextPage bool            `json:"hasNextPage"`
}

func (c *RPCClient) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]EventRecord, error) {
	var page eventPage
	query := map[string]interface{}{"MoveEventType": eventType}
	if err := c.call(ctx, &page, "suix_queryEvents", query, nil, limit, descending); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// coinPage — страница suix_getCoins.
type coinPage struct {
	Data        []CoinObject    `json:"data"`
	NextCursor  json.RawMessage `json:"nextCursor"`
	HasNextPage bool            `json:"hasNextPage"`
}

func (c *RPCClient) GetCoins(ctx context.Context, owner suiaddr.Address, coinType string) ([]CoinObject, error) {
	var (
		out    []CoinObject
		cursor json.RawMessage
	)
	// Выбираем все страницы: coin-объектов у активного кошелька может быть много.
	for {
		var page coinPage
		if err := c.call(ctx, &page, "suix_getCoins", owner, coinType, cursor, nil); err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if !page.HasNextPage {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func (c *RPCClient) GetAllBalances(ctx context.Context, owner suiaddr.Address) ([]Balance, error) {
	var balances []Balance
	if err := c.call(ctx, &balances, "suix_getAllBalances", owner); err != nil {
		return nil, err
	}
	return balances, nil
}

func (c *RPCClient) GetNormalizedModules(ctx context.Context, pkg suiaddr.Address) (map[string]json.RawMessage, error) {
	var modules map[string]json.RawMessage
	if err := c.call(ctx, &modules, "sui_getNormalizedMoveModulesByPackage", pkg); err != nil {
		return nil, err
	}
	return modules, nil
}

func (c *RPCClient) DryRun(ctx context.Context, txBytes []byte) (*DryRunResult, error) {
	var result DryRunResult
	encoded := base64.StdEncoding.EncodeToString(txBytes)
	if err := c.call(ctx, &result, "sui_dryRunTransactionBlock", encoded); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RPCClient) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string, wait WaitMode) (*ExecutionResult, error) {
	if wait == "" {
		wait = WaitLocalExecution
	}
	var result ExecutionResult
	encoded := base64.StdEncoding.EncodeToString(txBytes)
	opts := map[string]bool{
		"showEffects":        true,
		"showEvents":         true,
		"showBalanceChanges": true,
	}
	if err := c.call(ctx, &result, "sui_executeTransactionBlock", encoded, signatures, opts, string(wait)); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RPCClient) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price U64
	if err := c.call(ctx, &price, "suix_getReferenceGasPrice"); err != nil {
		return 0, err
	}
	return uint64(price), nil
}
