package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/decision"
	"ApexCore/exchange"
	"ApexCore/internal/errs"
	"ApexCore/internal/logger"
	"ApexCore/market"
	"ApexCore/regime"
	"ApexCore/store"
	"ApexCore/strategy"
)

// EntryExecutor is the Entry Executor (spec.md §4.7): immediate and
// batched entry, both funneled through one State Store transaction per
// slice/open (spec.md §4.11).
type EntryExecutor struct {
	gateway    *market.Gateway
	positions  *store.PositionStore
	params     *store.ParamsStore
	volatility *store.VolatilityStore
	big4       *regime.Detector
	exch       exchange.Client
	exit       *ExitOptimizer
	accountID  string
}

func NewEntryExecutor(gateway *market.Gateway, positions *store.PositionStore, params *store.ParamsStore,
	volatility *store.VolatilityStore, big4 *regime.Detector, exch exchange.Client, exit *ExitOptimizer, accountID string) *EntryExecutor {
	return &EntryExecutor{gateway: gateway, positions: positions, params: params, volatility: volatility,
		big4: big4, exch: exch, exit: exit, accountID: accountID}
}

// Execute dispatches a strategy plan to the immediate or batched path.
func (e *EntryExecutor) Execute(ctx context.Context, plan strategy.EntryPlan, rating store.SymbolRating) error {
	switch plan.Style {
	case strategy.StyleImmediate:
		return e.immediateEntry(ctx, plan.Candidate, rating)
	case strategy.StyleBatched:
		go e.batchedEntry(context.Background(), plan.Candidate, rating)
		return nil
	default:
		return errs.New(errs.RiskReject, "entry.Execute", fmt.Errorf("%s: %s", plan.Candidate.Symbol, plan.Reason))
	}
}

// immediateEntry implements spec.md §4.7a exactly: fetch price, validate
// symbol, compute margin/quantity/stops, persist in one transaction,
// register the position with the Exit Optimizer.
func (e *EntryExecutor) immediateEntry(ctx context.Context, cand *decision.Candidate, rating store.SymbolRating) error {
	if err := exchange.ValidateSymbol(cand.Symbol); err != nil {
		return err
	}
	price, _, err := e.gateway.GetPrice(ctx, cand.Symbol)
	if err != nil {
		return err
	}

	if cand.BreakoutInfo != "" {
		e.closeOppositeOnBreakout(ctx, cand, price)
	}

	paramsSnap, err := e.params.Snapshot(ctx)
	if err != nil {
		return err
	}

	baseMargin := decimal.NewFromInt(defaultPositionSizeUSDT).Mul(rating.MarginMultiplier)
	regimeResult := e.big4.Detect(ctx)
	regimeMultiplier := decimal.NewFromFloat(regimeNeutralMultiplier)
	if regimeAgrees(regimeResult.OverallSignal, cand.Side) {
		regimeMultiplier = decimal.NewFromFloat(regimeAgreeMultiplier)
	}
	adjustedMargin := baseMargin.Mul(regimeMultiplier)
	leverage := defaultLeverage
	quantity := adjustedMargin.Mul(decimal.NewFromInt(int64(leverage))).Div(price)

	stopLoss, takeProfit := e.computeStops(ctx, cand, paramsSnap, price)

	now := time.Now().UTC()
	p := &store.Position{
		AccountID:        e.accountID,
		Symbol:           cand.Symbol,
		Side:             cand.Side,
		Quantity:         quantity,
		EntryPrice:       price,
		AvgEntryPrice:    price,
		Leverage:         leverage,
		NotionalValue:    quantity.Mul(price),
		Margin:           adjustedMargin,
		OpenTime:         now,
		StopLossPrice:    stopLoss,
		TakeProfitPrice:  takeProfit,
		EntrySignalType:  cand.Fingerprint,
		EntryScore:       cand.Score,
		MaxHoldMinutes:   holdMinutesForScore(cand.Score),
		TimeoutAt:        now.Add(time.Duration(holdMinutesForScore(cand.Score)) * time.Minute),
	}
	if cand.BreakoutInfo != "" {
		p.EntryReason = "strong breakout: " + cand.BreakoutInfo
	}

	if err := e.positions.OpenImmediate(ctx, p); err != nil {
		return err
	}
	logger.Infof("entry: opened %s %s qty=%s margin=%s sl=%s tp=%s", p.Symbol, p.Side, p.Quantity, p.Margin, p.StopLossPrice, p.TakeProfitPrice)
	if e.exit != nil {
		e.exit.Register(p.ID)
	}
	return nil
}

// batchedEntry implements spec.md §4.7b: splits adjusted_margin into a
// fixed number of slices released over a bounded horizon. Before each
// slice it checks for cancellation and fetches a fresh price; the entry
// gates (Brain filters, emergency blocks) are not re-evaluated between
// slices.
func (e *EntryExecutor) batchedEntry(ctx context.Context, cand *decision.Candidate, rating store.SymbolRating) {
	const slices = 4
	const horizon = 60 * time.Minute

	price, _, err := e.gateway.GetPrice(ctx, cand.Symbol)
	if err != nil {
		logger.Warnf("entry: batched entry for %s aborted, no price: %v", cand.Symbol, err)
		return
	}

	if cand.BreakoutInfo != "" {
		e.closeOppositeOnBreakout(ctx, cand, price)
	}

	paramsSnap, err := e.params.Snapshot(ctx)
	if err != nil {
		logger.Warnf("entry: batched entry for %s aborted: %v", cand.Symbol, err)
		return
	}

	baseMargin := decimal.NewFromInt(defaultPositionSizeUSDT).Mul(rating.MarginMultiplier)
	regimeResult := e.big4.Detect(ctx)
	regimeMultiplier := decimal.NewFromFloat(regimeNeutralMultiplier)
	if regimeAgrees(regimeResult.OverallSignal, cand.Side) {
		regimeMultiplier = decimal.NewFromFloat(regimeAgreeMultiplier)
	}
	adjustedMargin := baseMargin.Mul(regimeMultiplier)
	sliceMargin := adjustedMargin.Div(decimal.NewFromInt(slices))
	leverage := defaultLeverage

	stopLoss, takeProfit := e.computeStops(ctx, cand, paramsSnap, price)
	now := time.Now().UTC()
	p := &store.Position{
		AccountID:       e.accountID,
		Symbol:          cand.Symbol,
		Side:            cand.Side,
		EntryPrice:      price,
		AvgEntryPrice:   price,
		Leverage:        leverage,
		Margin:          decimal.Zero,
		OpenTime:        now,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		EntrySignalType: cand.Fingerprint,
		EntryScore:      cand.Score,
		MaxHoldMinutes:  holdMinutesForScore(cand.Score),
		TimeoutAt:       now.Add(time.Duration(holdMinutesForScore(cand.Score)) * time.Minute),
	}
	if err := e.positions.OpenBuilding(ctx, p); err != nil {
		logger.Warnf("entry: batched entry for %s aborted: %v", cand.Symbol, err)
		return
	}
	if e.exit != nil {
		e.exit.Register(p.ID)
	}

	sliceInterval := horizon / slices
	for i := 0; i < slices; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(sliceInterval):
		}

		fillPrice, _, err := e.gateway.GetPrice(ctx, cand.Symbol)
		if err != nil {
			logger.Warnf("entry: batched slice %d/%d for %s canceled: %v", i+1, slices, cand.Symbol, err)
			return
		}
		sliceQty := sliceMargin.Mul(decimal.NewFromInt(int64(leverage))).Div(fillPrice)
		if err := e.positions.AppendFill(ctx, p.ID, sliceMargin, sliceQty, fillPrice); err != nil {
			logger.Warnf("entry: batched slice %d/%d for %s failed: %v", i+1, slices, cand.Symbol, err)
			return
		}
		logger.Infof("entry: batched slice %d/%d filled for %s at %s", i+1, slices, cand.Symbol, fillPrice)
	}
}

// closeOppositeOnBreakout implements spec.md §4.6/§154: a strong-breakout
// candidate requests the executor close any opposite-side position on the
// same symbol before entry.
func (e *EntryExecutor) closeOppositeOnBreakout(ctx context.Context, cand *decision.Candidate, price decimal.Decimal) {
	opposite, err := e.positions.ActiveByAccountSymbolSide(ctx, e.accountID, cand.Symbol, cand.Side.Opposite())
	if err != nil {
		logger.Warnf("entry: opposite-side lookup for %s failed: %v", cand.Symbol, err)
		return
	}
	if opposite == nil {
		return
	}
	logger.Infof("entry: closing opposite-side %s %s position %s ahead of breakout entry", cand.Symbol, opposite.Side, opposite.ID)
	if e.exit != nil {
		e.exit.CloseOpposite(ctx, opposite, price)
	}
}

// computeStops applies adaptive stop-loss/take-profit percentages, with
// volatility-aware stop widening and a volatility-profile take-profit
// override (spec.md §4.7a).
func (e *EntryExecutor) computeStops(ctx context.Context, cand *decision.Candidate, paramsSnap map[string]decimal.Decimal, price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	stopPct := paramOrDefault(paramsSnap, ParamTypeStopLossPct, cand.Side)
	if hasComponent(cand.Components, "volatility_high") {
		stopPct = stopPct.Mul(decimal.NewFromFloat(stopWidenOnHighVol))
	}
	tpPct := paramOrDefault(paramsSnap, ParamTypeTakeProfitPct, cand.Side)
	if v, err := e.volatility.Get(ctx, cand.Symbol); err == nil && v != nil {
		if cand.Side == store.Long {
			tpPct = v.LongFixedTPPct
		} else {
			tpPct = v.ShortFixedTPPct
		}
	}

	if cand.BreakoutInfo != "" && cand.BreakoutAnchorPrice.IsPositive() {
		// anchored at the broken level rather than a percentage offset
		if cand.Side == store.Long {
			return cand.BreakoutAnchorPrice, price.Mul(decimal.NewFromInt(1).Add(tpPct.Div(decimal.NewFromInt(100))))
		}
		return cand.BreakoutAnchorPrice, price.Mul(decimal.NewFromInt(1).Sub(tpPct.Div(decimal.NewFromInt(100))))
	}

	if cand.Side == store.Long {
		return price.Mul(decimal.NewFromInt(1).Sub(stopPct.Div(decimal.NewFromInt(100)))), price.Mul(decimal.NewFromInt(1).Add(tpPct.Div(decimal.NewFromInt(100))))
	}
	return price.Mul(decimal.NewFromInt(1).Add(stopPct.Div(decimal.NewFromInt(100)))), price.Mul(decimal.NewFromInt(1).Sub(tpPct.Div(decimal.NewFromInt(100))))
}

func hasComponent(components []string, name string) bool {
	for _, c := range components {
		if c == name {
			return true
		}
	}
	return false
}

// holdMinutesForScore maps entry score to a max-hold allowance: higher
// score -> longer allowance (spec.md §4.8.6).
func holdMinutesForScore(score decimal.Decimal) int {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return 240
	case score.GreaterThanOrEqual(decimal.NewFromInt(40)):
		return 180
	default:
		return 120
	}
}

func regimeAgrees(signal regime.Signal, side store.Side) bool {
	return (signal == regime.Bullish && side == store.Long) || (signal == regime.Bearish && side == store.Short)
}
