package models

import "fmt"

// Segment identifies one of the product segments the gateway can route to.
// The string value is the suffix used in canonical symbols.
type Segment string

const (
	SegmentSpot        Segment = "SPT"
	SegmentFuturesCoin Segment = "FUTC"
	SegmentFuturesUSDT Segment = "FUTU"
	SegmentSwapCoin    Segment = "SWPC"
	SegmentSwapUSDT    Segment = "SWPU"
)

// AllSegments returns every supported segment in a stable order.
func AllSegments() []Segment {
	return []Segment{
		SegmentSpot,
		SegmentFuturesCoin,
		SegmentFuturesUSDT,
		SegmentSwapCoin,
		SegmentSwapUSDT,
	}
}

// ParseSegment validates a segment code.
func ParseSegment(code string) (Segment, error) {
	switch s := Segment(code); s {
	case SegmentSpot, SegmentFuturesCoin, SegmentFuturesUSDT, SegmentSwapCoin, SegmentSwapUSDT:
		return s, nil
	}
	return "", fmt.Errorf("%w: segment %q", ErrUnsupported, code)
}

// IsDated reports whether symbols of the segment carry an expiry.
func (s Segment) IsDated() bool {
	return s == SegmentFuturesCoin || s == SegmentFuturesUSDT
}

func (s Segment) String() string { return string(s) }

// Direction is the side of an order or position. The zero value means the
// position is flat.
type Direction string

const (
	DirectionNone       Direction = ""
	DirectionLong       Direction = "long"
	DirectionShort      Direction = "short"
	DirectionCloseLong  Direction = "close_long"
	DirectionCloseShort Direction = "close_short"
)

// OrderType is the canonical order type. OrderTypeUnknown is produced when a
// venue reports a type/time-in-force pair the gateway has no mapping for.
type OrderType string

const (
	OrderTypeUnknown   OrderType = "unknown"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeMakerOnly OrderType = "maker_only"
	OrderTypeFOK       OrderType = "fok"
	OrderTypeIOC       OrderType = "ioc"
)

type OrderStatus string

const (
	OrderStatusFailed          OrderStatus = "failed"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFullyFilled     OrderStatus = "fully_filled"
	OrderStatusSubmitting      OrderStatus = "submitting"
	OrderStatusCanceling       OrderStatus = "canceling"
	OrderStatusRejected        OrderStatus = "rejected"
)
