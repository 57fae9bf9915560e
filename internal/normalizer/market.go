package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ccgateway/internal/symbols"
	"ccgateway/logger"
	"ccgateway/models"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const (
	filterPrice   = "PRICE_FILTER"
	filterLotSize = "LOT_SIZE"
)

type rawFilter struct {
	FilterType string              `json:"filterType"`
	TickSize   decimal.NullDecimal `json:"tickSize"`
	StepSize   decimal.NullDecimal `json:"stepSize"`
}

type rawSymbol struct {
	Symbol       string              `json:"symbol"`
	ContractType string              `json:"contractType"`
	ContractSize decimal.NullDecimal `json:"contractSize"`
	Filters      []rawFilter         `json:"filters"`

	// Derivatives surfaces report pricePrecision/quantityPrecision, spot
	// reports quoteAssetPrecision/baseAssetPrecision.
	PricePrecision      *int32 `json:"pricePrecision"`
	QuantityPrecision   *int32 `json:"quantityPrecision"`
	QuoteAssetPrecision *int32 `json:"quoteAssetPrecision"`
	BaseAssetPrecision  *int32 `json:"baseAssetPrecision"`
}

// precision returns the decimal places the venue accepts for the value
// constrained by filterType.
func (s rawSymbol) precision(filterType string) (int32, bool) {
	first, second := s.PricePrecision, s.QuoteAssetPrecision
	if filterType == filterLotSize {
		first, second = s.QuantityPrecision, s.BaseAssetPrecision
	}
	for _, p := range []*int32{first, second} {
		if p != nil && *p >= 0 {
			return *p, true
		}
	}
	return 0, false
}

// errNoTick marks a listing whose filter is disabled and which carries no
// precision to derive a tick from.
var errNoTick = errors.New("no usable tick")

// skipListing logs an entry of a venue listing that is left out of the
// result. The rest of the listing is still returned.
func skipListing(raw string, seg models.Segment, err error) *logger.Entry {
	return logger.GetLogger().WithComponent("normalizer").WithFields(logger.Fields{
		"symbol":  raw,
		"segment": seg,
	}).WithError(err)
}

// appendSymbol normalizes one exchange info entry of segment seg. Entries
// the canonical scheme cannot encode, such as USDC or BTC quoted perpetuals
// listed on the USDT-margined surface, are skipped.
func appendSymbol(out []models.SymbolMeta, s rawSymbol, seg models.Segment) ([]models.SymbolMeta, error) {
	sym, err := symbols.ToCanonical(s.Symbol, seg)
	if err != nil {
		skipListing(s.Symbol, seg, err).Debug("skipping listing outside symbol scheme")
		return out, nil
	}
	meta, err := symbolMeta(s, sym)
	if errors.Is(err, errNoTick) {
		skipListing(s.Symbol, seg, err).Warn("skipping listing without tick")
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	return append(out, meta), nil
}

type rawExchangeInfo struct {
	Symbols []rawSymbol `json:"symbols"`
}

// SpotSymbols normalizes spot exchange info. Every listed symbol is SPT.
func SpotSymbols(payload []byte) ([]models.SymbolMeta, error) {
	var info rawExchangeInfo
	if err := decode(payload, &info, "exchange info"); err != nil {
		return nil, err
	}
	out := make([]models.SymbolMeta, 0, len(info.Symbols))
	var err error
	for _, s := range info.Symbols {
		if out, err = appendSymbol(out, s, models.SegmentSpot); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DerivativeSymbols normalizes the exchange info of one derivatives surface.
// Perpetual contracts map to the family's swap segment and quarterly
// contracts to its dated segment; other contract types are skipped.
func DerivativeSymbols(payload []byte, family symbols.Family) ([]models.SymbolMeta, error) {
	var info rawExchangeInfo
	if err := decode(payload, &info, "exchange info"); err != nil {
		return nil, err
	}
	dated, perpetual := family.Segments()
	out := make([]models.SymbolMeta, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		var seg models.Segment
		switch {
		case s.ContractType == "PERPETUAL":
			seg = perpetual
		case strings.HasSuffix(s.ContractType, "QUARTER"):
			seg = dated
		default:
			continue
		}
		var err error
		if out, err = appendSymbol(out, s, seg); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// symbolMeta reads the tick sizes from the filter list. A tick of zero means
// the venue disabled that rule; the tick then follows the symbol's precision.
func symbolMeta(s rawSymbol, sym string) (models.SymbolMeta, error) {
	meta := models.SymbolMeta{
		Symbol:    sym,
		PriceTick: decimal.NewFromInt(1),
		SizeTick:  decimal.NewFromInt(1),
		FaceValue: decimal.NewFromInt(1),
	}
	if s.ContractSize.Valid {
		if !s.ContractSize.Decimal.IsPositive() {
			return models.SymbolMeta{}, malformed("symbol %s: contractSize %s", s.Symbol, s.ContractSize.Decimal)
		}
		meta.FaceValue = s.ContractSize.Decimal
	}
	for _, f := range s.Filters {
		var (
			tick  decimal.NullDecimal
			field string
			dst   *decimal.Decimal
		)
		switch f.FilterType {
		case filterPrice:
			tick, field, dst = f.TickSize, "tickSize", &meta.PriceTick
		case filterLotSize:
			tick, field, dst = f.StepSize, "stepSize", &meta.SizeTick
		default:
			continue
		}
		if !tick.Valid {
			return models.SymbolMeta{}, malformed("symbol %s: %s without %s", s.Symbol, f.FilterType, field)
		}
		if tick.Decimal.IsNegative() {
			return models.SymbolMeta{}, malformed("symbol %s: %s %s", s.Symbol, field, tick.Decimal)
		}
		if tick.Decimal.IsPositive() {
			*dst = tick.Decimal
			continue
		}
		places, ok := s.precision(f.FilterType)
		if !ok {
			return models.SymbolMeta{}, fmt.Errorf("%w: symbol %s: %s is zero", errNoTick, s.Symbol, field)
		}
		*dst = decimal.New(1, -places)
	}
	return meta, nil
}

type rawDepth struct {
	Bids [][]decimal.Decimal `json:"bids"`
	Asks [][]decimal.Decimal `json:"asks"`
}

// Orderbook normalizes a depth snapshot. Levels keep the venue order, best
// price first.
func Orderbook(payload []byte) (models.Orderbook, error) {
	var raw rawDepth
	if err := decode(payload, &raw, "depth"); err != nil {
		return models.Orderbook{}, err
	}
	if raw.Bids == nil || raw.Asks == nil {
		return models.Orderbook{}, malformed("depth: missing bids or asks")
	}
	var ob models.Orderbook
	var err error
	if ob.AskPrices, ob.AskSizes, err = levels(raw.Asks, "ask"); err != nil {
		return models.Orderbook{}, err
	}
	if ob.BidPrices, ob.BidSizes, err = levels(raw.Bids, "bid"); err != nil {
		return models.Orderbook{}, err
	}
	return ob, nil
}

func levels(raw [][]decimal.Decimal, side string) (prices, sizes []decimal.Decimal, err error) {
	prices = make([]decimal.Decimal, 0, len(raw))
	sizes = make([]decimal.Decimal, 0, len(raw))
	for i, lvl := range raw {
		if len(lvl) < 2 {
			return nil, nil, malformed("depth: %s level %d has %d fields", side, i, len(lvl))
		}
		prices = append(prices, lvl[0])
		sizes = append(sizes, lvl[1])
	}
	return prices, sizes, nil
}

// Candles normalizes a REST kline array.
func Candles(payload []byte) ([]models.Candle, error) {
	var rows [][]json.RawMessage
	if err := decode(payload, &rows, "klines"); err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := klineRow(row)
		if err != nil {
			return nil, malformed("kline %d: %v", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func klineRow(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 11 {
		return models.Candle{}, malformed("%d fields", len(row))
	}
	var (
		openMs, closeMs, trades int64
		vals                    [8]decimal.Decimal
	)
	for i, dst := range map[int]*int64{0: &openMs, 6: &closeMs, 8: &trades} {
		if err := json.Unmarshal(row[i], dst); err != nil {
			return models.Candle{}, err
		}
	}
	for i, idx := range []int{1, 2, 3, 4, 5, 7, 9, 10} {
		if err := json.Unmarshal(row[idx], &vals[i]); err != nil {
			return models.Candle{}, err
		}
	}
	c := models.Candle{
		OpenTime:    msTime(openMs),
		CloseTime:   msTime(closeMs),
		Open:        vals[0],
		High:        vals[1],
		Low:         vals[2],
		Close:       vals[3],
		Volume:      vals[4],
		Turnover:    vals[5],
		Trades:      trades,
		BuyVolume:   vals[6],
		BuyTurnover: vals[7],
	}
	if !c.OpenTime.Before(c.CloseTime) {
		return models.Candle{}, malformed("open %d not before close %d", openMs, closeMs)
	}
	return c, nil
}

// StreamCandle normalizes a kline pushed on the market stream.
func StreamCandle(k binance.WsKline) (models.Candle, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume, k.QuoteVolume, k.ActiveBuyVolume, k.ActiveBuyQuoteVolume}
	var vals [8]decimal.Decimal
	for i, f := range fields {
		v, err := decimal.NewFromString(f)
		if err != nil {
			return models.Candle{}, malformed("stream kline %s: %v", k.Symbol, err)
		}
		vals[i] = v
	}
	c := models.Candle{
		OpenTime:    msTime(k.StartTime),
		CloseTime:   msTime(k.EndTime),
		Open:        vals[0],
		High:        vals[1],
		Low:         vals[2],
		Close:       vals[3],
		Volume:      vals[4],
		Turnover:    vals[5],
		Trades:      k.TradeNum,
		BuyVolume:   vals[6],
		BuyTurnover: vals[7],
	}
	if !c.OpenTime.Before(c.CloseTime) {
		return models.Candle{}, malformed("stream kline %s: open not before close", k.Symbol)
	}
	return c, nil
}

type rawFundingRate struct {
	Symbol      string              `json:"symbol"`
	FundingTime int64               `json:"fundingTime"`
	FundingRate decimal.NullDecimal `json:"fundingRate"`
}

// FundingRates normalizes a funding rate history for the canonical symbol sym.
func FundingRates(payload []byte, sym string) ([]models.FundingRate, error) {
	var raw []rawFundingRate
	if err := decode(payload, &raw, "funding rates"); err != nil {
		return nil, err
	}
	out := make([]models.FundingRate, 0, len(raw))
	for _, r := range raw {
		rate, err := required(r.FundingRate, "fundingRate", "funding "+r.Symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, models.FundingRate{Symbol: sym, FundingTime: msTime(r.FundingTime), Rate: rate})
	}
	return out, nil
}

type rawPremiumIndex struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

// PremiumIndex normalizes the premium index listing of one derivatives
// surface into the upcoming funding rate of each perpetual. Entries without a
// funding rate, such as dated contracts, are skipped.
func PremiumIndex(payload []byte, family symbols.Family) ([]models.FundingRate, error) {
	var raw []rawPremiumIndex
	if err := decode(payload, &raw, "premium index"); err != nil {
		return nil, err
	}
	_, perpetual := family.Segments()
	out := make([]models.FundingRate, 0, len(raw))
	for _, r := range raw {
		if r.LastFundingRate == "" {
			continue
		}
		seg, err := family.Resolve(r.Symbol)
		if err != nil {
			return nil, err
		}
		if seg != perpetual {
			continue
		}
		rate, err := decimal.NewFromString(r.LastFundingRate)
		if err != nil {
			return nil, malformed("premium index %s: %v", r.Symbol, err)
		}
		sym, err := symbols.ToCanonical(r.Symbol, seg)
		if err != nil {
			skipListing(r.Symbol, seg, err).Debug("skipping premium index outside symbol scheme")
			continue
		}
		out = append(out, models.FundingRate{Symbol: sym, FundingTime: msTime(r.NextFundingTime), Rate: rate})
	}
	return out, nil
}
