package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds equity and balance for one asset wallet.
// Equity is always Balance + UnrealizedPnL.
type Account struct {
	ID            string          `json:"account_id"`
	Equity        decimal.Decimal `json:"equity"`
	Balance       decimal.Decimal `json:"balance"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Position tracks an individual position holding. Size is signed; Direction
// is DirectionNone exactly when Size is zero.
type Position struct {
	Symbol        string          `json:"symbol"`
	Direction     Direction       `json:"direction,omitempty"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// SymbolMeta contains the trading increments of a symbol.
type SymbolMeta struct {
	Symbol    string          `json:"symbol"`
	PriceTick decimal.Decimal `json:"price_tick"`
	SizeTick  decimal.Decimal `json:"size_tick"`
	FaceValue decimal.Decimal `json:"face_value"`
}

// Order is an immutable snapshot of an order as reported by the venue.
// Timestamp is nil when the venue response carries no reliable time, which is
// the case for cancel acknowledgements.
type Order struct {
	Symbol        string          `json:"symbol"`
	ID            string          `json:"order_id"`
	Timestamp     *time.Time      `json:"timestamp,omitempty"`
	Type          OrderType       `json:"type"`
	Direction     Direction       `json:"direction"`
	Status        OrderStatus     `json:"status"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	FilledPrice   decimal.Decimal `json:"filled_price"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

// Orderbook is a point-in-time depth snapshot, best level first.
type Orderbook struct {
	AskPrices []decimal.Decimal `json:"ask_prices"`
	AskSizes  []decimal.Decimal `json:"ask_sizes"`
	BidPrices []decimal.Decimal `json:"bid_prices"`
	BidSizes  []decimal.Decimal `json:"bid_sizes"`
}

type Candle struct {
	OpenTime    time.Time       `json:"open_time"`
	CloseTime   time.Time       `json:"close_time"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	Turnover    decimal.Decimal `json:"turnover"`
	Trades      int64           `json:"num_trades"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	BuyTurnover decimal.Decimal `json:"buy_turnover"`
}

// CandleEvent is a closed candle emitted by the live feed.
type CandleEvent struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Candle    Candle `json:"candle"`
}

type FundingRate struct {
	Symbol      string          `json:"symbol"`
	FundingTime time.Time       `json:"funding_time"`
	Rate        decimal.Decimal `json:"rate"`
}

// OrderKey identifies one order of a batch submission.
type OrderKey struct {
	Symbol    string
	Direction Direction
}

// OrderRequest is a canonical trade instruction for a single order.
// Reference is an optional client supplied id.
type OrderRequest struct {
	Type      OrderType
	Price     decimal.Decimal
	Size      decimal.Decimal
	Reference string
}

// BatchResult is the outcome of one order of a batch submission. Err is set
// when the venue rejected the order or the call carrying it failed.
type BatchResult struct {
	Order Order
	Err   error
}
