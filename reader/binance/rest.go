// Package binance implements the venue transports: signed REST calls for the
// gateway and the websocket stream for the feed listener.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/delivery"
	futures "github.com/adshao/go-binance/v2/futures"

	"ccgateway/config"
	"ccgateway/gateway"
	ratemetrics "ccgateway/internal/metrics/rate"
	"ccgateway/internal/retry"
	"ccgateway/logger"
	"ccgateway/models"
)

const maxResponseBytes = 16 << 20

// paths lists the endpoints of one REST surface. An empty path means the
// surface has no such endpoint.
type paths struct {
	account      string
	positions    string
	exchangeInfo string
	order        string
	depth        string
	klines       string
	batchOrders  string
	fundingRate  string
	premiumIndex string
}

var (
	spotPaths = paths{
		account:      "/api/v3/account",
		exchangeInfo: "/api/v3/exchangeInfo",
		order:        "/api/v3/order",
		depth:        "/api/v3/depth",
		klines:       "/api/v3/klines",
	}
	usdtPaths = paths{
		account:      "/fapi/v2/account",
		positions:    "/fapi/v2/positionRisk",
		exchangeInfo: "/fapi/v1/exchangeInfo",
		order:        "/fapi/v1/order",
		depth:        "/fapi/v1/depth",
		klines:       "/fapi/v1/klines",
		batchOrders:  "/fapi/v1/batchOrders",
		fundingRate:  "/fapi/v1/fundingRate",
		premiumIndex: "/fapi/v1/premiumIndex",
	}
	coinPaths = paths{
		account:      "/dapi/v1/account",
		positions:    "/dapi/v1/positionRisk",
		exchangeInfo: "/dapi/v1/exchangeInfo",
		order:        "/dapi/v1/order",
		depth:        "/dapi/v1/depth",
		klines:       "/dapi/v1/klines",
		batchOrders:  "/dapi/v1/batchOrders",
		fundingRate:  "/dapi/v1/fundingRate",
		premiumIndex: "/dapi/v1/premiumIndex",
	}
)

const transferPath = "/sapi/v1/asset/transfer"

// API is one REST surface of the venue.
type API struct {
	name        string
	base        string
	paths       paths
	http        *http.Client
	apiKey      string
	secret      string
	recvWindow  int64
	offsetMs    atomic.Int64
	weightLimit atomic.Int64
	serverTime  func(ctx context.Context) (int64, error)
	now         func() time.Time
	log         *logger.Log
}

// REST is the gateway transport over the three venue surfaces.
type REST struct {
	spot *API
	usdt *API
	coin *API
	fut  *futures.Client
}

var _ gateway.Transport = (*REST)(nil)

// NewREST builds the transport. Every surface shares one HTTP client.
func NewREST(cfg config.BinanceConfig) *REST {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}

	spotClient := gobinance.NewClient(cfg.APIKey, cfg.APISecret)
	spotClient.BaseURL = cfg.SpotURL
	spotClient.HTTPClient = httpClient

	futClient := futures.NewClient(cfg.APIKey, cfg.APISecret)
	futClient.BaseURL = cfg.USDTMarginedURL
	futClient.HTTPClient = httpClient

	coinClient := delivery.NewClient(cfg.APIKey, cfg.APISecret)
	coinClient.BaseURL = cfg.CoinMarginedURL
	coinClient.HTTPClient = httpClient

	mk := func(name, base string, p paths, serverTime func(context.Context) (int64, error)) *API {
		return &API{
			name:       name,
			base:       strings.TrimRight(base, "/"),
			paths:      p,
			http:       httpClient,
			apiKey:     cfg.APIKey,
			secret:     cfg.APISecret,
			recvWindow: cfg.RecvWindow,
			serverTime: serverTime,
			now:        time.Now,
			log:        log,
		}
	}

	r := &REST{
		spot: mk("spot", cfg.SpotURL, spotPaths, func(ctx context.Context) (int64, error) {
			return spotClient.NewServerTimeService().Do(ctx)
		}),
		usdt: mk("usdt_margined", cfg.USDTMarginedURL, usdtPaths, func(ctx context.Context) (int64, error) {
			return futClient.NewServerTimeService().Do(ctx)
		}),
		coin: mk("coin_margined", cfg.CoinMarginedURL, coinPaths, func(ctx context.Context) (int64, error) {
			return coinClient.NewServerTimeService().Do(ctx)
		}),
		fut: futClient,
	}

	log.WithComponent("rest_transport").WithFields(logger.Fields{
		"spot":          cfg.SpotURL,
		"usdt_margined": cfg.USDTMarginedURL,
		"coin_margined": cfg.CoinMarginedURL,
		"timeout":       cfg.Timeout,
		"signed":        cfg.APIKey != "",
	}).Info("rest transport initialized")

	return r
}

// Sync aligns request timestamps with each surface's server clock and loads
// the USDT-margined request weight limit.
func (r *REST) Sync(ctx context.Context) error {
	var errs []error
	for _, a := range []*API{r.spot, r.usdt, r.coin} {
		if err := a.syncTime(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s server time: %w", a.name, err))
		}
	}
	if limit, err := ratemetrics.FetchRequestWeightLimit(ctx, r.fut); err == nil {
		r.usdt.weightLimit.Store(limit)
	} else {
		r.usdt.log.WithComponent("rest_transport").WithError(err).Warn("failed to fetch request weight limit")
	}
	return errors.Join(errs...)
}

func (r *REST) CoinMargined() gateway.API { return r.coin }
func (r *REST) USDTMargined() gateway.API { return r.usdt }
func (r *REST) Spot() gateway.API         { return r.spot }

// Transfer moves an asset between wallets through the spot surface.
func (r *REST) Transfer(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return r.spot.do(ctx, "transfer", http.MethodPost, transferPath, params, true)
}

func (a *API) syncTime(ctx context.Context) error {
	serverMs, err := a.serverTime(ctx)
	if err != nil {
		return err
	}
	offset := serverMs - a.now().UnixMilli()
	a.offsetMs.Store(offset)
	a.log.WithComponent("rest_transport").WithFields(logger.Fields{
		"surface":   a.name,
		"offset_ms": offset,
	}).Debug("server time synchronized")
	return nil
}

func (a *API) Account(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "account", http.MethodGet, a.paths.account, params, true)
}

func (a *API) Positions(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "positions", http.MethodGet, a.paths.positions, params, true)
}

func (a *API) ExchangeInfo(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "exchange_info", http.MethodGet, a.paths.exchangeInfo, params, false)
}

func (a *API) GetOrder(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "get_order", http.MethodGet, a.paths.order, params, true)
}

func (a *API) PlaceOrder(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "place_order", http.MethodPost, a.paths.order, params, true)
}

func (a *API) CancelOrder(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "cancel_order", http.MethodDelete, a.paths.order, params, true)
}

func (a *API) Depth(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "depth", http.MethodGet, a.paths.depth, params, false)
}

func (a *API) Klines(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "klines", http.MethodGet, a.paths.klines, params, false)
}

func (a *API) PlaceBatchOrders(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "batch_orders", http.MethodPost, a.paths.batchOrders, params, true)
}

func (a *API) FundingRates(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "funding_rate", http.MethodGet, a.paths.fundingRate, params, false)
}

func (a *API) PremiumIndex(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.do(ctx, "premium_index", http.MethodGet, a.paths.premiumIndex, params, false)
}

// sign appends timestamp, recvWindow and the HMAC-SHA256 signature of the
// encoded query.
func (a *API) sign(params url.Values) (string, error) {
	if a.apiKey == "" || a.secret == "" {
		return "", retry.Permanent(fmt.Errorf("%w: %s signed endpoint without credentials", models.ErrUnsupported, a.name))
	}
	params.Set("timestamp", strconv.FormatInt(a.now().UnixMilli()+a.offsetMs.Load(), 10))
	if a.recvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(a.recvWindow, 10))
	}
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil)), nil
}

func (a *API) do(ctx context.Context, op, method, path string, params url.Values, signed bool) (json.RawMessage, error) {
	if path == "" {
		return nil, retry.Permanent(fmt.Errorf("%w: %s has no %s endpoint", models.ErrUnsupported, a.name, op))
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	query := q.Encode()
	if signed {
		var err error
		if query, err = a.sign(q); err != nil {
			return nil, err
		}
	}

	target := a.base + path
	if query != "" {
		target += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s %s: build request: %w", a.name, op, err))
	}
	if a.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", a.apiKey)
	}

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", a.name, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", a.name, op, err)
	}

	logger.RecordChannelMessage("rest_"+a.name, len(body))
	ratemetrics.ReportUsedWeight(a.log, resp.Header, a.name, a.weightLimit.Load())
	logger.LogPerformanceEntry(a.log.WithComponent("rest_transport"), "rest_transport", op, time.Since(start), logger.Fields{
		"surface": a.name,
		"status":  resp.StatusCode,
	})

	if resp.StatusCode < http.StatusBadRequest {
		return json.RawMessage(body), nil
	}
	return nil, a.statusError(op, resp.StatusCode, body)
}

// statusError classifies a failed response: 429 and 5xx are retried, 418
// and other 4xx rejections are permanent.
func (a *API) statusError(op string, status int, body []byte) error {
	apiErr := &common.APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr = &common.APIError{Code: int64(-status), Message: strings.TrimSpace(string(body))}
	}
	err := fmt.Errorf("%s %s: http %d: %w", a.name, op, status, apiErr)

	switch {
	case status == http.StatusTooManyRequests:
		ratemetrics.ReportRateLimitExceeded(a.log, a.name, op)
		return err
	case status == http.StatusTeapot:
		ratemetrics.ReportIPBan(a.log, a.name, op)
		return retry.Permanent(err)
	case status >= http.StatusInternalServerError:
		return err
	}
	ratemetrics.ReportLimitFromMessage(a.log, a.name, op, apiErr.Message)
	return retry.Permanent(err)
}
