package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"ccgateway/internal/symbols"
	"ccgateway/models"

	"github.com/shopspring/decimal"
)

// Source names the call that produced an order payload. It decides where the
// order timestamp comes from.
type Source int

const (
	SourceSend Source = iota
	SourceQuery
	SourceCancel
)

type venueOrderType struct {
	Type        string
	TimeInForce string
}

var orderTypeToVenue = map[models.OrderType]venueOrderType{
	models.OrderTypeLimit: {"LIMIT", "GTC"},
	models.OrderTypeIOC:   {"LIMIT", "IOC"},
	models.OrderTypeFOK:   {"LIMIT", "FOK"},
}

var orderTypeFromVenue = func() map[venueOrderType]models.OrderType {
	m := make(map[venueOrderType]models.OrderType, len(orderTypeToVenue))
	for k, v := range orderTypeToVenue {
		m[v] = k
	}
	return m
}()

var sideToVenue = map[models.Direction]string{
	models.DirectionLong:  "BUY",
	models.DirectionShort: "SELL",
}

var sideFromVenue = map[string]models.Direction{
	"BUY":  models.DirectionLong,
	"SELL": models.DirectionShort,
}

var statusFromVenue = map[string]models.OrderStatus{
	"NEW":              models.OrderStatusOpen,
	"PARTIALLY_FILLED": models.OrderStatusPartiallyFilled,
	"FILLED":           models.OrderStatusFullyFilled,
	"CANCELED":         models.OrderStatusCanceled,
	"PENDING_CANCEL":   models.OrderStatusCanceling,
	"REJECTED":         models.OrderStatusRejected,
	"EXPIRED":          models.OrderStatusCanceled,
	"EXPIRED_IN_MATCH": models.OrderStatusCanceled,
}

// OrderTypeParams returns the venue type and time-in-force for a canonical
// order type.
func OrderTypeParams(t models.OrderType) (typ, timeInForce string, err error) {
	v, ok := orderTypeToVenue[t]
	if !ok {
		return "", "", fmt.Errorf("%w: order type %q", models.ErrUnsupported, t)
	}
	return v.Type, v.TimeInForce, nil
}

// SideParam returns the venue side for an opening direction.
func SideParam(d models.Direction) (string, error) {
	side, ok := sideToVenue[d]
	if !ok {
		return "", fmt.Errorf("%w: direction %q", models.ErrUnsupported, d)
	}
	return side, nil
}

type rawOrder struct {
	Symbol              string              `json:"symbol"`
	OrderID             json.Number         `json:"orderId"`
	ClientOrderID       string              `json:"clientOrderId"`
	Type                string              `json:"type"`
	TimeInForce         string              `json:"timeInForce"`
	Side                string              `json:"side"`
	Status              string              `json:"status"`
	Price               decimal.NullDecimal `json:"price"`
	OrigQty             decimal.NullDecimal `json:"origQty"`
	ExecutedQty         decimal.NullDecimal `json:"executedQty"`
	AvgPrice            decimal.NullDecimal `json:"avgPrice"`
	CummulativeQuoteQty decimal.NullDecimal `json:"cummulativeQuoteQty"`
	UpdateTime          *int64              `json:"updateTime"`
	TransactTime        *int64              `json:"transactTime"`
	Time                *int64              `json:"time"`
}

// Order normalizes an order payload for the canonical symbol sym.
func Order(payload []byte, sym string, src Source) (models.Order, error) {
	var raw rawOrder
	if err := decode(payload, &raw, "order"); err != nil {
		return models.Order{}, err
	}
	return order(raw, sym, src)
}

// FamilyOrder normalizes an order payload whose symbol carries no segment
// tag, as returned by the batch endpoints.
func FamilyOrder(payload []byte, family symbols.Family, src Source) (models.Order, error) {
	var raw rawOrder
	if err := decode(payload, &raw, "order"); err != nil {
		return models.Order{}, err
	}
	sym, err := symbols.FromFamily(raw.Symbol, family)
	if err != nil {
		return models.Order{}, err
	}
	return order(raw, sym, src)
}

func order(raw rawOrder, sym string, src Source) (models.Order, error) {
	if raw.OrderID == "" {
		return models.Order{}, malformed("order %s: missing orderId", sym)
	}
	dir, ok := sideFromVenue[raw.Side]
	if !ok {
		return models.Order{}, malformed("order %s: side %q", raw.OrderID, raw.Side)
	}
	status, ok := statusFromVenue[raw.Status]
	if !ok {
		return models.Order{}, malformed("order %s: status %q", raw.OrderID, raw.Status)
	}
	typ, ok := orderTypeFromVenue[venueOrderType{raw.Type, raw.TimeInForce}]
	if !ok {
		typ = models.OrderTypeUnknown
	}
	price, err := required(raw.Price, "price", "order "+raw.OrderID.String())
	if err != nil {
		return models.Order{}, err
	}
	size, err := required(raw.OrigQty, "origQty", "order "+raw.OrderID.String())
	if err != nil {
		return models.Order{}, err
	}
	ts, err := orderTime(raw, src)
	if err != nil {
		return models.Order{}, err
	}

	filledSize := raw.ExecutedQty.Decimal
	filledPrice := raw.AvgPrice.Decimal
	if !raw.AvgPrice.Valid && raw.CummulativeQuoteQty.Valid && filledSize.IsPositive() {
		filledPrice = raw.CummulativeQuoteQty.Decimal.Div(filledSize)
	}

	return models.Order{
		Symbol:        sym,
		ID:            raw.OrderID.String(),
		Timestamp:     ts,
		Type:          typ,
		Direction:     dir,
		Status:        status,
		Price:         price,
		Size:          size,
		FilledPrice:   filledPrice,
		FilledSize:    filledSize,
		ClientOrderID: raw.ClientOrderID,
	}, nil
}

func orderTime(raw rawOrder, src Source) (*time.Time, error) {
	var ms *int64
	switch src {
	case SourceSend:
		ms = raw.UpdateTime
		if ms == nil {
			ms = raw.TransactTime
		}
	case SourceQuery:
		ms = raw.Time
	case SourceCancel:
		return nil, nil
	}
	if ms == nil {
		return nil, malformed("order %s: missing timestamp", raw.OrderID)
	}
	t := msTime(*ms)
	return &t, nil
}
