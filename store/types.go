package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is a position or order direction.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// PositionStatus is the lifecycle state of a futures_positions row.
type PositionStatus string

const (
	StatusBuilding PositionStatus = "building"
	StatusOpen     PositionStatus = "open"
	StatusClosed   PositionStatus = "closed"
)

// OrderSide enumerates the four fill directions spec.md §6 names for
// futures_orders; CLOSE_LONG/CLOSE_SHORT close an existing LONG/SHORT.
type OrderSide string

const (
	OrderLong       OrderSide = "LONG"
	OrderShort      OrderSide = "SHORT"
	OrderCloseLong  OrderSide = "CLOSE_LONG"
	OrderCloseShort OrderSide = "CLOSE_SHORT"
)

// Account mirrors futures_trading_accounts. Invariant (spec.md §3):
// available + frozen == total_equity - unrealized_pnl_accounted.
type Account struct {
	ID             int64
	AccountID      string
	CurrentBalance decimal.Decimal // "available"
	FrozenBalance  decimal.Decimal
	RealizedPnL    decimal.Decimal
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        decimal.Decimal
	UpdatedAt      time.Time
}

// Position mirrors futures_positions.
type Position struct {
	ID                string
	AccountID         string
	Symbol            string
	Side              Side
	Quantity          decimal.Decimal
	EntryPrice        decimal.Decimal
	AvgEntryPrice     decimal.Decimal
	Leverage          int
	NotionalValue     decimal.Decimal
	Margin            decimal.Decimal
	OpenTime          time.Time
	CloseTime         *time.Time
	StopLossPrice     decimal.Decimal
	TakeProfitPrice   decimal.Decimal
	EntrySignalType   string // fingerprint: sorted components joined by "+"
	EntryReason       string
	EntryScore        decimal.Decimal
	SignalComponents  string // JSON-encoded []string
	MaxHoldMinutes    int
	TimeoutAt         time.Time
	Status            PositionStatus
	RealizedPnL       decimal.Decimal
	Notes             string
	UpdatedAt         time.Time
}

// AppendNote appends a timestamped line to the append-only notes trail.
func (p *Position) AppendNote(note string) {
	line := time.Now().UTC().Format(time.RFC3339) + " " + note
	if p.Notes == "" {
		p.Notes = line
		return
	}
	p.Notes = p.Notes + "\n" + line
}

// Order mirrors futures_orders: an immutable record of one fill event.
type Order struct {
	OrderID          string
	AccountID        string
	PositionID       string
	Symbol           string
	Side             OrderSide
	OrderType        string // "MARKET" | "LIMIT"
	Leverage         int
	Price            decimal.Decimal
	Quantity         decimal.Decimal
	ExecutedQuantity decimal.Decimal
	TotalValue       decimal.Decimal
	ExecutedValue    decimal.Decimal
	Fee              decimal.Decimal
	FeeRate          decimal.Decimal
	Status           string
	AvgFillPrice     decimal.Decimal
	FillTime         *time.Time
	RealizedPnL      decimal.Decimal
	PnLPct           decimal.Decimal
	OrderSource      string
	Notes            string // close orders carry a human-readable reason
}

// Trade mirrors futures_trades: the analytics-facing mirror of each fill.
type Trade struct {
	TradeID       string
	PositionID    string
	AccountID     string
	Symbol        string
	Side          OrderSide
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	NotionalValue decimal.Decimal
	Leverage      int
	Margin        decimal.Decimal
	Fee           decimal.Decimal
	RealizedPnL   decimal.Decimal
	PnLPct        decimal.Decimal
	ROI           decimal.Decimal
	EntryPrice    decimal.Decimal
	ClosePrice    decimal.Decimal
	OrderID       string
	TradeTime     time.Time
	CreatedAt     time.Time
}

// RatingLevel is the 3-level whitelist/forbidden scheme (spec.md §3).
type RatingLevel int

const (
	RatingWhitelist RatingLevel = 0
	RatingCaution1  RatingLevel = 1
	RatingCaution2  RatingLevel = 2
	RatingForbidden RatingLevel = 3
)

// SymbolRating mirrors trading_symbol_rating.
type SymbolRating struct {
	Symbol           string
	RatingLevel      RatingLevel
	MarginMultiplier decimal.Decimal
	UpdatedAt        time.Time
}

// Tradeable reports whether the symbol may be considered for new entries.
func (r SymbolRating) Tradeable() bool { return r.RatingLevel < RatingForbidden }

// BlacklistEntry mirrors signal_blacklist.
type BlacklistEntry struct {
	SignalType   string
	PositionSide Side
	IsActive     bool
	UpdatedAt    time.Time
}

// ScoringWeight mirrors signal_scoring_weights.
type ScoringWeight struct {
	Component   string
	WeightLong  decimal.Decimal
	WeightShort decimal.Decimal
	IsActive    bool
}

// AdaptiveParam mirrors one row of adaptive_params, e.g.
// (param_type="stop_loss_pct", param_key="long", param_value=1.5).
type AdaptiveParam struct {
	ParamType  string
	ParamKey   string
	ParamValue decimal.Decimal
}

// VolatilityProfile mirrors symbol_volatility_profile.
type VolatilityProfile struct {
	Symbol          string
	LongFixedTPPct  decimal.Decimal
	ShortFixedTPPct decimal.Decimal
	UpdatedAt       time.Time
}

// TradingMode is the Range-Market Detector / Mode Switcher classification.
type TradingMode string

const (
	ModeTrend TradingMode = "trend"
	ModeRange TradingMode = "range"
)

// ModeState mirrors market_mode_state.
type ModeState struct {
	AccountID        string
	TradingType      string
	Mode             TradingMode
	SwitchedAt       time.Time
	LastReason       string
	TriggeringSignal string
}

// TradingControl mirrors trading_control: the per-(account, market_type)
// kill switch. When disabled, no new positions open but existing ones
// keep being monitored and closed.
type TradingControl struct {
	AccountID      string
	TradingType    string
	TradingEnabled bool
}

// Kline is one OHLCV candle, the fixed record spec.md §9 asks for in
// place of the source's duck-typed candle dicts.
type Kline struct {
	Symbol    string
	Timeframe string
	OpenTime  int64 // epoch millis
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}
