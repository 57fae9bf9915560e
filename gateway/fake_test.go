package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"ccgateway/internal/retry"
	"ccgateway/models"
)

type handler func(params url.Values) (json.RawMessage, error)

type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    map[string][]url.Values
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{handlers: map[string]handler{}, calls: map[string][]url.Values{}}
}

func (f *fakeAPI) on(endpoint string, h handler) { f.handlers[endpoint] = h }

func (f *fakeAPI) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[endpoint])
}

func (f *fakeAPI) last(endpoint string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.calls[endpoint]
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

func (f *fakeAPI) do(endpoint string, params url.Values) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[endpoint] = append(f.calls[endpoint], params)
	h := f.handlers[endpoint]
	f.mu.Unlock()
	if h == nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", models.ErrUnsupported, endpoint))
	}
	return h(params)
}

func (f *fakeAPI) Account(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("account", p)
}
func (f *fakeAPI) Positions(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("positions", p)
}
func (f *fakeAPI) ExchangeInfo(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("exchange_info", p)
}
func (f *fakeAPI) GetOrder(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("get_order", p)
}
func (f *fakeAPI) PlaceOrder(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("place_order", p)
}
func (f *fakeAPI) CancelOrder(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("cancel_order", p)
}
func (f *fakeAPI) Depth(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("depth", p)
}
func (f *fakeAPI) Klines(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("klines", p)
}
func (f *fakeAPI) PlaceBatchOrders(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("batch_orders", p)
}
func (f *fakeAPI) FundingRates(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("funding_rate", p)
}
func (f *fakeAPI) PremiumIndex(_ context.Context, p url.Values) (json.RawMessage, error) {
	return f.do("premium_index", p)
}

type fakeTransport struct {
	coin, usdt, spot *fakeAPI
	wallet           *fakeAPI
}

func (t *fakeTransport) CoinMargined() API { return t.coin }
func (t *fakeTransport) USDTMargined() API { return t.usdt }
func (t *fakeTransport) Spot() API         { return t.spot }
func (t *fakeTransport) Transfer(_ context.Context, p url.Values) (json.RawMessage, error) {
	return t.wallet.do("transfer", p)
}

func static(body string) handler {
	return func(url.Values) (json.RawMessage, error) { return json.RawMessage(body), nil }
}

func marshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	return json.RawMessage(b), err
}

var usdtBases = []string{"BTC", "ETH", "BNB", "SOL"}

func usdtExchangeInfo() string {
	type filter struct {
		FilterType string `json:"filterType"`
		TickSize   string `json:"tickSize,omitempty"`
		StepSize   string `json:"stepSize,omitempty"`
	}
	type sym struct {
		Symbol       string   `json:"symbol"`
		ContractType string   `json:"contractType"`
		Filters      []filter `json:"filters"`
	}
	var list []sym
	for _, b := range usdtBases {
		list = append(list, sym{b + "USDT", "PERPETUAL", []filter{{"PRICE_FILTER", "0.1", ""}, {"LOT_SIZE", "", "0.001"}}})
	}
	list = append(list, sym{"BTCUSDT_210625", "CURRENT_QUARTER", []filter{{"PRICE_FILTER", "0.1", ""}, {"LOT_SIZE", "", "0.001"}}})
	b, _ := json.Marshal(map[string]any{"symbols": list})
	return string(b)
}

const coinExchangeInfo = `{"symbols":[
	{"symbol":"BTCUSD_PERP","contractType":"PERPETUAL","contractSize":100,"filters":[{"filterType":"PRICE_FILTER","tickSize":"0.1"},{"filterType":"LOT_SIZE","stepSize":"1"}]},
	{"symbol":"BTCUSD_210625","contractType":"CURRENT_QUARTER","contractSize":100,"filters":[{"filterType":"PRICE_FILTER","tickSize":"0.1"},{"filterType":"LOT_SIZE","stepSize":"1"}]}
]}`

const spotExchangeInfo = `{"symbols":[
	{"symbol":"BTCUSDT","filters":[{"filterType":"PRICE_FILTER","tickSize":"0.01"},{"filterType":"LOT_SIZE","stepSize":"0.00001"}]},
	{"symbol":"ETHBTC","filters":[{"filterType":"PRICE_FILTER","tickSize":"0.000001"},{"filterType":"LOT_SIZE","stepSize":"0.0001"}]}
]}`

func newFakeTransport() *fakeTransport {
	t := &fakeTransport{coin: newFakeAPI(), usdt: newFakeAPI(), spot: newFakeAPI(), wallet: newFakeAPI()}
	t.coin.on("exchange_info", static(coinExchangeInfo))
	t.usdt.on("exchange_info", static(usdtExchangeInfo()))
	t.spot.on("exchange_info", static(spotExchangeInfo))
	return t
}

func testOptions() Options {
	return Options{Retry: retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}}
}

// echoOrder answers an order placement with a NEW order built from the
// submitted fields.
func echoOrder(id int, p map[string]string) map[string]any {
	return map[string]any{
		"symbol":        p["symbol"],
		"orderId":       id,
		"clientOrderId": p["newClientOrderId"],
		"price":         p["price"],
		"origQty":       p["quantity"],
		"executedQty":   "0",
		"status":        "NEW",
		"type":          p["type"],
		"timeInForce":   p["timeInForce"],
		"side":          p["side"],
		"updateTime":    1609459200000,
		"transactTime":  1609459200000,
	}
}

func flatten(v url.Values) map[string]string {
	m := make(map[string]string, len(v))
	for k := range v {
		m[k] = v.Get(k)
	}
	return m
}

// klineSource serves a contiguous candle history [from, to) at interval tf,
// honouring startTime, endTime and limit like the venue does.
func klineSource(from, to time.Time, tf time.Duration) handler {
	return func(p url.Values) (json.RawMessage, error) {
		st, err1 := strconv.ParseInt(p.Get("startTime"), 10, 64)
		et, err2 := strconv.ParseInt(p.Get("endTime"), 10, 64)
		limit, err3 := strconv.Atoi(p.Get("limit"))
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, retry.Permanent(err)
		}
		rows := [][]any{}
		t := from
		for t.UnixMilli() < st {
			t = t.Add(tf)
		}
		for ; t.Before(to) && t.UnixMilli() <= et && len(rows) < limit; t = t.Add(tf) {
			rows = append(rows, []any{
				t.UnixMilli(), "1", "2", "0.5", "1.5", "10",
				t.Add(tf).UnixMilli() - 1, "15", 3, "4", "6", "0",
			})
		}
		return marshal(rows)
	}
}
