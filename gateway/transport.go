package gateway

import (
	"context"
	"encoding/json"
	"net/url"
)

// Endpoint is a single venue REST call. Params are sent as the query or form
// parameters of the request; signing is the transport's concern.
type Endpoint func(ctx context.Context, params url.Values) (json.RawMessage, error)

// API groups the endpoints of one venue REST surface. Surfaces that lack an
// endpoint return an error wrapping models.ErrUnsupported; the gateway never
// calls those.
type API interface {
	Account(ctx context.Context, params url.Values) (json.RawMessage, error)
	Positions(ctx context.Context, params url.Values) (json.RawMessage, error)
	ExchangeInfo(ctx context.Context, params url.Values) (json.RawMessage, error)
	GetOrder(ctx context.Context, params url.Values) (json.RawMessage, error)
	PlaceOrder(ctx context.Context, params url.Values) (json.RawMessage, error)
	CancelOrder(ctx context.Context, params url.Values) (json.RawMessage, error)
	Depth(ctx context.Context, params url.Values) (json.RawMessage, error)
	Klines(ctx context.Context, params url.Values) (json.RawMessage, error)
	PlaceBatchOrders(ctx context.Context, params url.Values) (json.RawMessage, error)
	FundingRates(ctx context.Context, params url.Values) (json.RawMessage, error)
	PremiumIndex(ctx context.Context, params url.Values) (json.RawMessage, error)
}

// Transport is the venue REST collaborator: one API per surface plus the
// wallet transfer call.
type Transport interface {
	CoinMargined() API
	USDTMargined() API
	Spot() API
	Transfer(ctx context.Context, params url.Values) (json.RawMessage, error)
}
