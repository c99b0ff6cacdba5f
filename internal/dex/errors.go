// ==============================
// File: internal/dex/errors.go
// ==============================
package dex

import (
	"errors"
	"fmt"

	"github.com/suimax/sui-bot/internal/suiaddr"
)

// ErrPoolNotFound — для пары или id не существует пригодного пула.
var ErrPoolNotFound = errors.New("pool not found")

// ErrNotInitialized — операция вызвана до успешного Initialize.
var ErrNotInitialized = errors.New("adapter is not initialized")

// InitError — программа DEX не найдена on-chain или проверка не пережила ретраи.
type InitError struct {
	DEX string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: initialization failed: %v", e.DEX, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// LiquidityError — состояние пула не удалось получить или разобрать.
type LiquidityError struct {
	PoolID suiaddr.Address
	Err    error
}

func (e *LiquidityError) Error() string {
	return fmt.Sprintf("liquidity fetch for pool %s failed: %v", e.PoolID.Shorten(0), e.Err)
}

func (e *LiquidityError) Unwrap() error { return e.Err }
