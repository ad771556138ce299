// Package trader implements the Entry Executor, Exit Optimizer, and Risk
// & Emergency Layer (spec.md §4.7-4.9) — the Position Lifecycle Manager.
package trader

import (
	"github.com/shopspring/decimal"

	"ApexCore/store"
)

// Adaptive parameter keys (spec.md §3 "Adaptive Parameters", §4.10). The
// Entry Executor reads the stop-loss and take-profit percentages; the
// Adaptive Optimizer writes position_size_multiplier. min_hold_minutes
// and position_size_multiplier are not read by the entry or exit paths.
const (
	ParamTypeStopLossPct    = "stop_loss_pct"
	ParamTypeTakeProfitPct  = "take_profit_pct"
	ParamTypeMinHoldMinutes = "min_hold_minutes"
	ParamTypeSizeMultiplier = "position_size_multiplier"

	ParamKeyLong  = "long"
	ParamKeyShort = "short"
)

// defaultParams is the built-in fallback used when the adaptive_params
// table has no row yet (fresh deployment).
var defaultParams = map[string]decimal.Decimal{
	ParamTypeStopLossPct + "|" + ParamKeyLong:    decimal.NewFromFloat(1.0),
	ParamTypeStopLossPct + "|" + ParamKeyShort:   decimal.NewFromFloat(1.0),
	ParamTypeTakeProfitPct + "|" + ParamKeyLong:  decimal.NewFromFloat(2.0),
	ParamTypeTakeProfitPct + "|" + ParamKeyShort: decimal.NewFromFloat(2.0),
	ParamTypeMinHoldMinutes + "|" + ParamKeyLong:  decimal.NewFromInt(30),
	ParamTypeMinHoldMinutes + "|" + ParamKeyShort: decimal.NewFromInt(30),
	ParamTypeSizeMultiplier + "|" + ParamKeyLong:  decimal.NewFromInt(1),
	ParamTypeSizeMultiplier + "|" + ParamKeyShort: decimal.NewFromInt(1),
}

func paramOrDefault(snapshot map[string]decimal.Decimal, paramType string, side store.Side) decimal.Decimal {
	key := paramType + "|" + sideKey(side)
	if v, ok := snapshot[key]; ok {
		return v
	}
	return defaultParams[key]
}

func sideKey(side store.Side) string {
	if side == store.Long {
		return ParamKeyLong
	}
	return ParamKeyShort
}

const (
	defaultPositionSizeUSDT = 400
	defaultLeverage         = 5
	regimeAgreeMultiplier   = 1.2
	regimeNeutralMultiplier = 1.0
	minResidualMarginUSDT   = 10
	stopWidenOnHighVol      = 1.5
)
