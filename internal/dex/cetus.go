// ==============================
// File: internal/dex/cetus.go
// ==============================
package dex

import "github.com/suimax/sui-bot/internal/suiaddr"

// NewCetus создаёт адаптер Cetus CLMM. Концентрированная ликвидность,
// модуль clmm.
func NewCetus(packageID suiaddr.Address, deps Deps) Adapter {
	return newBaseAdapter(ProgramConfig{
		Name:        "cetus",
		PackageID:   packageID,
		Module:      "clmm",
		SwapFn:      "swap",
		AddLiqFn:    "add_liquidity",
		RemoveLiqFn: "remove_liquidity",
	}, deps)
}
