// ==============================
// File: internal/dex/turbos.go
// ==============================
package dex

import "github.com/suimax/sui-bot/internal/suiaddr"

// NewTurbos создаёт адаптер Turbos Finance; модуль pool, та же форма
// вызовов, что у Cetus, но своя программа и свои события.
func NewTurbos(packageID suiaddr.Address, deps Deps) Adapter {
	return newBaseAdapter(ProgramConfig{
		Name:        "turbos",
		PackageID:   packageID,
		Module:      "pool",
		SwapFn:      "swap",
		AddLiqFn:    "add_liquidity",
		RemoveLiqFn: "remove_liquidity",
	}, deps)
}
