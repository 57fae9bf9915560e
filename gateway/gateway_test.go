package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"ccgateway/internal/retry"
	"ccgateway/models"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestGateway(t *testing.T) (*Gateway, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	g, err := New(context.Background(), ft, testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, ft
}

func TestNewLoadsSymbolSnapshot(t *testing.T) {
	g, ft := newTestGateway(t)
	for _, api := range []*fakeAPI{ft.coin, ft.usdt, ft.spot} {
		if n := api.count("exchange_info"); n != 1 {
			t.Fatalf("exchange info called %d times", n)
		}
	}
	tests := []struct {
		sym             string
		price, size, fv string
	}{
		{"BTC-USD.SWPC", "0.1", "1", "100"},
		{"BTC-USD-210625.FUTC", "0.1", "1", "100"},
		{"SOL-USDT.SWPU", "0.1", "0.001", "1"},
		{"BTC-USDT-210625.FUTU", "0.1", "0.001", "1"},
		{"ETH-BTC.SPT", "0.000001", "0.0001", "1"},
	}
	for _, tt := range tests {
		m, ok := g.Symbol(tt.sym)
		if !ok {
			t.Fatalf("symbol %s missing", tt.sym)
		}
		if !m.PriceTick.Equal(d(tt.price)) || !m.SizeTick.Equal(d(tt.size)) || !m.FaceValue.Equal(d(tt.fv)) {
			t.Errorf("%s meta %+v", tt.sym, m)
		}
	}
}

func TestNewFailsWhenMetadataUnavailable(t *testing.T) {
	ft := newFakeTransport()
	ft.spot.on("exchange_info", static(`{"symbols":[{"symbol":"BTCUSDT","filters":[{"filterType":"LOT_SIZE"}]}]}`))
	if _, err := New(context.Background(), ft, testOptions()); !errors.Is(err, models.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
}

func TestForeignQuoteListingsAreSkipped(t *testing.T) {
	ft := newFakeTransport()
	ft.usdt.on("exchange_info", static(`{"symbols":[
		{"symbol":"BTCUSDT","contractType":"PERPETUAL","filters":[{"filterType":"PRICE_FILTER","tickSize":"0.1"},{"filterType":"LOT_SIZE","stepSize":"0.001"}]},
		{"symbol":"BTCUSDC","contractType":"PERPETUAL","filters":[{"filterType":"PRICE_FILTER","tickSize":"0.1"},{"filterType":"LOT_SIZE","stepSize":"0.001"}]},
		{"symbol":"ETHBTC","contractType":"PERPETUAL","filters":[{"filterType":"PRICE_FILTER","tickSize":"0.00001"}]}
	]}`))
	ft.usdt.on("positions", static(`[
		{"symbol":"BTCUSDT","positionAmt":"0.5","entryPrice":"30000","unRealizedProfit":"10"},
		{"symbol":"BTCUSDC","positionAmt":"0","entryPrice":"0","unRealizedProfit":"0"}
	]`))
	ft.usdt.on("account", static(`{"assets":[{"asset":"USDT","walletBalance":"100","unrealizedProfit":"10"}],
		"positions":[{"symbol":"BTCUSDC","positionAmt":"0","entryPrice":"0","unrealizedProfit":"0"}]}`))
	ft.usdt.on("premium_index", static(`[
		{"symbol":"BTCUSDC","lastFundingRate":"0.0001","nextFundingTime":1609459200000},
		{"symbol":"BTCUSDT","lastFundingRate":"0.0002","nextFundingTime":1609459200000}
	]`))
	ft.coin.on("premium_index", static(`[]`))

	ctx := context.Background()
	g, err := New(ctx, ft, testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := g.Symbol("BTC-USDT.SWPU"); !ok {
		t.Fatal("BTC-USDT.SWPU missing from snapshot")
	}

	pos, err := g.QueryPositions(ctx, models.SegmentSwapUSDT)
	if err != nil {
		t.Fatalf("QueryPositions: %v", err)
	}
	if len(pos) != 1 || pos["BTC-USDT.SWPU"].Direction != models.DirectionLong {
		t.Fatalf("positions %+v", pos)
	}

	if _, _, err := g.QueryAccountsAndPositions(ctx, models.SegmentSwapUSDT); err != nil {
		t.Fatalf("QueryAccountsAndPositions: %v", err)
	}

	rates, err := g.QueryRecentFundingRates(ctx)
	if err != nil {
		t.Fatalf("QueryRecentFundingRates: %v", err)
	}
	if len(rates) != 1 || rates[0].Symbol != "BTC-USDT.SWPU" {
		t.Fatalf("rates %+v", rates)
	}
}

func TestQuerySymbolsFiltersSegments(t *testing.T) {
	g, _ := newTestGateway(t)
	metas, err := g.QuerySymbols(context.Background(), models.SegmentFuturesUSDT)
	if err != nil {
		t.Fatalf("QuerySymbols: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("expected only the dated contract, got %v", metas)
	}
	if _, ok := metas["BTC-USDT-210625.FUTU"]; !ok {
		t.Fatalf("missing BTC-USDT-210625.FUTU")
	}
}

func TestQueryAccounts(t *testing.T) {
	g, ft := newTestGateway(t)
	ft.coin.on("account", static(`{"assets":[{"asset":"BTC","walletBalance":"1","unrealizedProfit":"0.5","marginBalance":"1.5"}]}`))

	accs, err := g.QueryAccounts(context.Background(), models.SegmentSwapCoin)
	if err != nil {
		t.Fatalf("QueryAccounts: %v", err)
	}
	for _, key := range []string{"BTC.FUTC", "BTC.SWPC"} {
		a, ok := accs[key]
		if !ok {
			t.Fatalf("missing %s in %v", key, accs)
		}
		if !a.Equity.Equal(d("1.5")) {
			t.Errorf("%s equity %s", key, a.Equity)
		}
	}
	if ft.usdt.count("account") != 0 || ft.spot.count("account") != 0 {
		t.Fatalf("unrequested surfaces were queried")
	}

	if _, err := g.QueryAccounts(context.Background(), models.Segment("OPSC")); !errors.Is(err, models.ErrUnsupported) {
		t.Fatalf("unknown segment err=%v", err)
	}
}

func TestQueryAccountsAndPositionsSingleCallPerEndpoint(t *testing.T) {
	g, ft := newTestGateway(t)
	ft.coin.on("account", static(`{"assets":[{"asset":"BTC","walletBalance":"1","unrealizedProfit":"0"}]}`))
	ft.coin.on("positions", static(`[{"symbol":"BTCUSD_PERP","positionAmt":"-4","entryPrice":"30000","unRealizedProfit":"0.1"}]`))
	ft.usdt.on("account", static(`{"assets":[{"asset":"USDT","walletBalance":"1000","unrealizedProfit":"5"}],
		"positions":[{"symbol":"ETHUSDT","positionAmt":"0","entryPrice":"0","unrealizedProfit":"0"}]}`))
	ft.spot.on("account", static(`{"balances":[{"asset":"USDT","free":"10","locked":"0"}]}`))

	accs, pos, err := g.QueryAccountsAndPositions(context.Background(), models.AllSegments()...)
	if err != nil {
		t.Fatalf("QueryAccountsAndPositions: %v", err)
	}
	if ft.coin.count("account") != 1 || ft.coin.count("positions") != 1 {
		t.Fatalf("coin calls: account=%d positions=%d", ft.coin.count("account"), ft.coin.count("positions"))
	}
	if ft.usdt.count("account") != 1 || ft.usdt.count("positions") != 0 {
		t.Fatalf("usdt calls: account=%d positions=%d", ft.usdt.count("account"), ft.usdt.count("positions"))
	}
	if ft.spot.count("account") != 1 || ft.spot.count("positions") != 0 {
		t.Fatalf("spot calls: account=%d positions=%d", ft.spot.count("account"), ft.spot.count("positions"))
	}
	if len(accs) != 5 {
		t.Fatalf("expected 5 account keys, got %v", accs)
	}
	if p := pos["BTC-USD.SWPC"]; p.Direction != models.DirectionShort {
		t.Fatalf("unexpected coin position %+v", p)
	}
	if p := pos["ETH-USDT.SWPU"]; p.Direction != models.DirectionNone {
		t.Fatalf("flat position has direction %q", p.Direction)
	}
}

func TestQueryPositionsSkipsSpot(t *testing.T) {
	g, ft := newTestGateway(t)
	pos, err := g.QueryPositions(context.Background(), models.SegmentSpot)
	if err != nil {
		t.Fatalf("QueryPositions: %v", err)
	}
	if len(pos) != 0 || ft.spot.count("positions") != 0 {
		t.Fatalf("spot positions queried")
	}
}

func TestQueryOrderLookupKey(t *testing.T) {
	g, ft := newTestGateway(t)
	order := `{"symbol":"BTCUSDT","orderId":7,"clientOrderId":"abc","price":"1","origQty":"1","executedQty":"0",
		"status":"NEW","type":"LIMIT","timeInForce":"GTC","side":"BUY","time":1609459200000}`
	ft.spot.on("get_order", static(order))
	ft.usdt.on("get_order", static(order))

	o, err := g.QueryOrder(context.Background(), "BTC-USDT.SPT", "7", "abc")
	if err != nil {
		t.Fatalf("QueryOrder: %v", err)
	}
	p := ft.spot.last("get_order")
	if p.Get("origClientOrderId") != "abc" || p.Has("orderId") {
		t.Fatalf("spot lookup params %v", p)
	}
	if o.Symbol != "BTC-USDT.SPT" || o.Timestamp == nil {
		t.Fatalf("unexpected order %+v", o)
	}

	if _, err := g.QueryOrder(context.Background(), "BTC-USDT.SWPU", "7", "abc"); err != nil {
		t.Fatalf("QueryOrder: %v", err)
	}
	p = ft.usdt.last("get_order")
	if p.Get("orderId") != "7" || p.Has("origClientOrderId") {
		t.Fatalf("derivatives lookup params %v", p)
	}
}

func TestCancelOrderHasNoTimestamp(t *testing.T) {
	g, ft := newTestGateway(t)
	ft.spot.on("cancel_order", static(`{"symbol":"BTCUSDT","orderId":7,"price":"1","origQty":"1","executedQty":"0",
		"status":"CANCELED","type":"LIMIT","timeInForce":"GTC","side":"SELL","transactTime":1609459200000}`))
	o, err := g.CancelOrder(context.Background(), "BTC-USDT.SPT", "7")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if o.Timestamp != nil || o.Status != models.OrderStatusCanceled {
		t.Fatalf("unexpected cancel ack %+v", o)
	}
}

func TestSendOrderRoundsToTicks(t *testing.T) {
	g, ft := newTestGateway(t)
	ft.usdt.on("place_order", func(p url.Values) (json.RawMessage, error) {
		return marshal(echoOrder(1, flatten(p)))
	})

	o, err := g.SendOrder(context.Background(), "BTC-USDT.SWPU", models.DirectionLong, models.OrderRequest{
		Type:      models.OrderTypeLimit,
		Price:     d("30000.06"),
		Size:      d("0.0129"),
		Reference: "ref-1",
	})
	if err != nil {
		t.Fatalf("SendOrder: %v", err)
	}
	p := ft.usdt.last("place_order")
	want := map[string]string{
		"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "timeInForce": "GTC",
		"price": "30000.1", "quantity": "0.012", "newClientOrderId": "ref-1",
	}
	for k, v := range want {
		if p.Get(k) != v {
			t.Errorf("param %s=%q want %q", k, p.Get(k), v)
		}
	}
	if o.Direction != models.DirectionLong || !o.Price.Equal(d("30000.1")) || o.ClientOrderID != "ref-1" {
		t.Fatalf("unexpected order %+v", o)
	}
}

func TestSendOrderRejectsBeforeCalling(t *testing.T) {
	g, ft := newTestGateway(t)
	tests := []struct {
		sym  string
		dir  models.Direction
		req  models.OrderRequest
		want error
	}{
		{"BTC-USDT.SWPU", models.DirectionLong, models.OrderRequest{Type: models.OrderTypeLimit, Price: d("1"), Size: d("0.0009")}, models.ErrInvalidOrder},
		{"BTC-USDT.SWPU", models.DirectionLong, models.OrderRequest{Type: models.OrderTypeLimit, Price: d("0.01"), Size: d("1")}, models.ErrInvalidOrder},
		{"BTC-USDT.SWPU", models.DirectionLong, models.OrderRequest{Type: models.OrderTypeMakerOnly, Price: d("1"), Size: d("1")}, models.ErrUnsupported},
		{"XRP-USDT.SWPU", models.DirectionLong, models.OrderRequest{Type: models.OrderTypeLimit, Price: d("1"), Size: d("1")}, models.ErrUnsupported},
		{"BTC-USDT.OPSU", models.DirectionLong, models.OrderRequest{Type: models.OrderTypeLimit, Price: d("1"), Size: d("1")}, models.ErrUnsupported},
	}
	for _, tt := range tests {
		if _, err := g.SendOrder(context.Background(), tt.sym, tt.dir, tt.req); !errors.Is(err, tt.want) {
			t.Errorf("SendOrder(%s,%+v) err=%v want %v", tt.sym, tt.req, err, tt.want)
		}
	}
	if ft.usdt.count("place_order") != 0 {
		t.Fatalf("rejected orders reached the venue")
	}
}

func TestBatchSendOrders(t *testing.T) {
	g, ft := newTestGateway(t)
	nextID := 0
	batch := func(p url.Values) (json.RawMessage, error) {
		var list []map[string]string
		if err := json.Unmarshal([]byte(p.Get("batchOrders")), &list); err != nil {
			return nil, retry.Permanent(err)
		}
		if len(list) > 5 {
			return nil, retry.Permanent(fmt.Errorf("batch of %d", len(list)))
		}
		out := make([]any, 0, len(list))
		for _, o := range list {
			if o["symbol"] == "SOLUSDT" && o["side"] == "SELL" {
				out = append(out, map[string]any{"code": -2019, "msg": "Margin is insufficient."})
				continue
			}
			nextID++
			out = append(out, echoOrder(nextID, o))
		}
		return marshal(out)
	}
	ft.usdt.on("batch_orders", batch)
	ft.coin.on("batch_orders", batch)
	ft.spot.on("place_order", func(p url.Values) (json.RawMessage, error) {
		nextID++
		return marshal(echoOrder(nextID, flatten(p)))
	})

	req := models.OrderRequest{Type: models.OrderTypeLimit, Price: d("100"), Size: d("1")}
	orders := map[models.OrderKey]models.OrderRequest{}
	for _, b := range usdtBases {
		orders[models.OrderKey{Symbol: b + "-USDT.SWPU", Direction: models.DirectionLong}] = req
		orders[models.OrderKey{Symbol: b + "-USDT.SWPU", Direction: models.DirectionShort}] = req
	}
	orders[models.OrderKey{Symbol: "BTC-USD.SWPC", Direction: models.DirectionLong}] = req
	orders[models.OrderKey{Symbol: "BTC-USD-210625.FUTC", Direction: models.DirectionShort}] = req
	orders[models.OrderKey{Symbol: "BTC-USDT.SPT", Direction: models.DirectionLong}] = req
	orders[models.OrderKey{Symbol: "ETH-BTC.SPT", Direction: models.DirectionShort}] = models.OrderRequest{Type: models.OrderTypeIOC, Price: d("0.05"), Size: d("2")}
	orders[models.OrderKey{Symbol: "XRP-USDT.SWPU", Direction: models.DirectionLong}] = req

	results := g.BatchSendOrders(context.Background(), orders)
	if len(results) != len(orders) {
		t.Fatalf("got %d results for %d orders", len(results), len(orders))
	}
	if n := ft.usdt.count("batch_orders"); n != 2 {
		t.Fatalf("expected 2 usdt batch calls, got %d", n)
	}
	if n := ft.coin.count("batch_orders"); n != 1 {
		t.Fatalf("expected 1 coin batch call, got %d", n)
	}
	if n := ft.spot.count("place_order"); n != 2 {
		t.Fatalf("expected 2 spot order calls, got %d", n)
	}

	for key, res := range results {
		switch {
		case key.Symbol == "XRP-USDT.SWPU":
			if !errors.Is(res.Err, models.ErrUnsupported) {
				t.Errorf("%v err=%v", key, res.Err)
			}
		case key.Symbol == "SOL-USDT.SWPU" && key.Direction == models.DirectionShort:
			if res.Err == nil {
				t.Errorf("%v expected venue rejection", key)
			}
		default:
			if res.Err != nil {
				t.Errorf("%v unexpected err %v", key, res.Err)
				continue
			}
			if res.Order.Symbol != key.Symbol || res.Order.Direction != key.Direction {
				t.Errorf("%v got order %s %s", key, res.Order.Symbol, res.Order.Direction)
			}
		}
	}
	if o := results[models.OrderKey{Symbol: "ETH-BTC.SPT", Direction: models.DirectionShort}].Order; o.Type != models.OrderTypeIOC {
		t.Errorf("spot ioc order type %s", o.Type)
	}
}

func TestBatchChunkFailureMarksEveryEntry(t *testing.T) {
	g, ft := newTestGateway(t)
	ft.coin.on("batch_orders", func(url.Values) (json.RawMessage, error) {
		return nil, errors.New("connection reset")
	})
	req := models.OrderRequest{Type: models.OrderTypeLimit, Price: d("100"), Size: d("1")}
	orders := map[models.OrderKey]models.OrderRequest{
		{Symbol: "BTC-USD.SWPC", Direction: models.DirectionLong}:         req,
		{Symbol: "BTC-USD-210625.FUTC", Direction: models.DirectionShort}: req,
	}
	results := g.BatchSendOrders(context.Background(), orders)
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	for key, res := range results {
		if !errors.Is(res.Err, retry.ErrRemoteCall) {
			t.Errorf("%v err=%v", key, res.Err)
		}
	}
	if n := ft.coin.count("batch_orders"); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestQueryOrderbookRetriesTransientFailure(t *testing.T) {
	g, ft := newTestGateway(t)
	calls := 0
	ft.spot.on("depth", func(url.Values) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("503 service unavailable")
		}
		return json.RawMessage(`{"bids":[["100","1"]],"asks":[["101","2"]]}`), nil
	})
	ob, err := g.QueryOrderbook(context.Background(), "BTC-USDT.SPT", 0)
	if err != nil {
		t.Fatalf("QueryOrderbook: %v", err)
	}
	if calls != 2 || !ob.AskPrices[0].Equal(d("101")) {
		t.Fatalf("calls=%d book=%+v", calls, ob)
	}
	if got := ft.spot.last("depth").Get("limit"); got != "50" {
		t.Fatalf("default depth %s", got)
	}
}

func TestQueryCandlesPagination(t *testing.T) {
	tests := []struct {
		sym   string
		count int
		pages int
	}{
		{"BTC-USDT.SWPU", 3500, 3},
		{"BTC-USDT.SPT", 3500, 4},
		{"BTC-USD.SWPC", 1500, 1},
		{"BTC-USD-210625.FUTC", 7, 1},
	}
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		g, ft := newTestGateway(t)
		source := klineSource(start.Add(-time.Hour), start.Add(24*time.Hour), time.Minute)
		for _, api := range []*fakeAPI{ft.coin, ft.usdt, ft.spot} {
			api.on("klines", source)
		}
		end := start.Add(time.Duration(tt.count) * time.Minute)

		candles, err := g.QueryCandles(context.Background(), tt.sym, start, end, "1m")
		if err != nil {
			t.Fatalf("QueryCandles(%s): %v", tt.sym, err)
		}
		if len(candles) != tt.count {
			t.Fatalf("%s: got %d candles want %d", tt.sym, len(candles), tt.count)
		}
		if !candles[0].OpenTime.Equal(start) {
			t.Fatalf("%s: first candle %v", tt.sym, candles[0].OpenTime)
		}
		for i := 1; i < len(candles); i++ {
			if !candles[i].OpenTime.Equal(candles[i-1].OpenTime.Add(time.Minute)) {
				t.Fatalf("%s: gap or overlap at %d", tt.sym, i)
			}
		}
		if last := candles[len(candles)-1]; !last.OpenTime.Before(end) {
			t.Fatalf("%s: candle at %v outside range", tt.sym, last.OpenTime)
		}

		api := ft.usdt
		switch tt.sym {
		case "BTC-USDT.SPT":
			api = ft.spot
		case "BTC-USD.SWPC", "BTC-USD-210625.FUTC":
			api = ft.coin
		}
		if n := api.count("klines"); n != tt.pages {
			t.Fatalf("%s: %d pages want %d", tt.sym, n, tt.pages)
		}
	}
}

func TestQueryCandlesStopsAtEndOfHistory(t *testing.T) {
	g, ft := newTestGateway(t)
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	ft.usdt.on("klines", klineSource(start, start.Add(100*time.Minute), time.Minute))

	candles, err := g.QueryCandles(context.Background(), "ETH-USDT.SWPU", start, start.Add(500*time.Minute), "1m")
	if err != nil {
		t.Fatalf("QueryCandles: %v", err)
	}
	if len(candles) != 100 {
		t.Fatalf("got %d candles", len(candles))
	}
	if n := ft.usdt.count("klines"); n != 2 {
		t.Fatalf("expected 2 pages, got %d", n)
	}
	first := ft.usdt.calls["klines"][0]
	if first.Get("limit") != "500" || first.Get("interval") != "1m" {
		t.Fatalf("first page params %v", first)
	}
}

func TestQueryCandlesUnsupportedTimeframe(t *testing.T) {
	g, ft := newTestGateway(t)
	start := time.Now()
	if _, err := g.QueryCandles(context.Background(), "BTC-USDT.SPT", start, start.Add(time.Hour), "1M"); !errors.Is(err, models.ErrUnsupported) {
		t.Fatalf("err=%v", err)
	}
	if ft.spot.count("klines") != 0 {
		t.Fatalf("klines called for unsupported timeframe")
	}
}

func TestTransferAsset(t *testing.T) {
	g, ft := newTestGateway(t)
	ft.wallet.on("transfer", static(`{"tranId":13526853623}`))

	id, err := g.TransferAsset(context.Background(), models.SegmentSpot, models.SegmentSwapUSDT, "USDT", d("25.5"))
	if err != nil {
		t.Fatalf("TransferAsset: %v", err)
	}
	if id != "13526853623" {
		t.Fatalf("tran id %s", id)
	}
	p := ft.wallet.last("transfer")
	if p.Get("type") != "MAIN_UMFUTURE" || p.Get("asset") != "USDT" || p.Get("amount") != "25.5" {
		t.Fatalf("transfer params %v", p)
	}

	if _, err := g.TransferAsset(context.Background(), models.SegmentFuturesCoin, models.SegmentSwapCoin, "BTC", d("1")); !errors.Is(err, models.ErrUnsupported) {
		t.Fatalf("same wallet err=%v", err)
	}
	if _, err := g.TransferAsset(context.Background(), models.SegmentSwapCoin, models.SegmentSpot, "BTC", d("0")); !errors.Is(err, models.ErrInvalidOrder) {
		t.Fatalf("zero amount err=%v", err)
	}
	if n := ft.wallet.count("transfer"); n != 1 {
		t.Fatalf("transfer called %d times", n)
	}
}

func TestFundingRates(t *testing.T) {
	g, ft := newTestGateway(t)
	ft.coin.on("funding_rate", static(`[{"symbol":"BTCUSD_PERP","fundingTime":1609459200000,"fundingRate":"0.0001"}]`))
	ft.coin.on("premium_index", static(`[{"symbol":"BTCUSD_PERP","lastFundingRate":"0.0001","nextFundingTime":1609459200000},
		{"symbol":"BTCUSD_210625","lastFundingRate":"","nextFundingTime":0}]`))
	ft.usdt.on("premium_index", static(`[{"symbol":"BTCUSDT","lastFundingRate":"-0.0002","nextFundingTime":1609459200000}]`))

	hist, err := g.QueryFundingRateHistory(context.Background(), "BTC-USD.SWPC")
	if err != nil {
		t.Fatalf("QueryFundingRateHistory: %v", err)
	}
	if len(hist) != 1 || hist[0].Symbol != "BTC-USD.SWPC" {
		t.Fatalf("history %+v", hist)
	}
	if ft.coin.last("funding_rate").Get("symbol") != "BTCUSD_PERP" {
		t.Fatalf("funding params %v", ft.coin.last("funding_rate"))
	}
	for _, sym := range []string{"BTC-USDT-210625.FUTU", "BTC-USDT.SPT"} {
		if _, err := g.QueryFundingRateHistory(context.Background(), sym); !errors.Is(err, models.ErrUnsupported) {
			t.Errorf("%s err=%v", sym, err)
		}
	}

	recent, err := g.QueryRecentFundingRates(context.Background())
	if err != nil {
		t.Fatalf("QueryRecentFundingRates: %v", err)
	}
	if len(recent) != 2 || recent[1].Symbol != "BTC-USDT.SWPU" || !recent[1].Rate.Equal(d("-0.0002")) {
		t.Fatalf("recent %+v", recent)
	}
}
