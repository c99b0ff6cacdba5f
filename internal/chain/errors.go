// internal/chain/errors.go
package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Kind — классификация ошибки RPC-границы. Классификация выполняется один раз,
// в момент возникновения ошибки; политики повторов смотрят только на Kind.
type Kind string

const (
	KindRateLimit         Kind = "rate_limit"
	KindTimeout           Kind = "timeout"
	KindNetwork           Kind = "network"
	KindCongestion        Kind = "congestion"
	KindGasEstimation     Kind = "gas_estimation"
	KindNonce             Kind = "nonce"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindExecution         Kind = "execution"
	KindUnknown           Kind = "unknown"
)

// Error — ошибка RPC с классификацией и контекстом вызова.
type Error struct {
	Kind   Kind
	Method string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error [%s] %s: %v", e.Method, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError создаёт классифицированную ошибку RPC.
func NewError(kind Kind, method string, err error) error {
	return &Error{Kind: kind, Method: method, Err: err}
}

// KindOf извлекает классификацию из цепочки ошибок.
// Для ошибок вне RPC-границы возвращает KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// classify сопоставляет сырую транспортную ошибку с Kind.
// Единственное место в системе, где допустим разбор содержимого ошибки.
func classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return KindRateLimit
		case httpErr.StatusCode >= 500:
			return KindNetwork
		default:
			return KindValidation
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return classifyNodeError(rpcErr.Error())
	}

	return KindNetwork
}

// classifyNodeError разбирает сообщения, которые полная нода Sui возвращает
// внутри JSON-RPC error. Стабильных кодов у них нет, поэтому сопоставляем
// по известным маркерам статуса исполнения.
func classifyNodeError(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficientgas"), strings.Contains(lower, "insufficient gas"):
		return KindGasEstimation
	case strings.Contains(lower, "insufficientcoinbalance"), strings.Contains(lower, "insufficient funds"):
		return KindInsufficientFunds
	case strings.Contains(lower, "objectsequencenumbertoooldorfresh"), strings.Contains(lower, "object version"):
		return KindNonce
	case strings.Contains(lower, "congest"), strings.Contains(lower, "quorum"):
		return KindCongestion
	case strings.Contains(lower, "too many requests"):
		return KindRateLimit
	case strings.Contains(lower, "not found"), strings.Contains(lower, "notexists"):
		return KindNotFound
	default:
		return KindValidation
	}
}
