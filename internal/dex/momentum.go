// ==============================
// File: internal/dex/momentum.go
// ==============================
package dex

import "github.com/suimax/sui-bot/internal/suiaddr"

// NewMomentum создаёт адаптер Momentum; модуль mmt.
func NewMomentum(packageID suiaddr.Address, deps Deps) Adapter {
	return newBaseAdapter(ProgramConfig{
		Name:        "momentum",
		PackageID:   packageID,
		Module:      "mmt",
		SwapFn:      "swap",
		AddLiqFn:    "add_liquidity",
		RemoveLiqFn: "remove_liquidity",
	}, deps)
}
