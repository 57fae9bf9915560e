// Package symbols converts between canonical symbol identifiers and Binance
// raw symbols.
//
// Canonical symbols have the form
//
//	{base}-{quote}.{segment}
//	{base}-{quote}-{expiry}.{segment}
//
// e.g. BTC-USDT.SPT, BTC-USD-210625.FUTC, BTC-USD.SWPC.
package symbols

import (
	"fmt"
	"strings"

	"ccgateway/models"
)

// SpotQuotes lists the spot quote currencies recognised when splitting a raw
// spot symbol, in match priority order. Symbols whose quote is not listed fall
// back to a three letter quote, which is ambiguous for bases that end with a
// listed quote string.
var SpotQuotes = []string{"FDUSD", "USDT", "BUSD", "TUSD", "USDC", "BKRW"}

const (
	quoteUSD  = "USD"
	quoteUSDT = "USDT"
	perpTag   = "_PERP"
)

// ToRaw converts a canonical symbol to the raw venue symbol and its segment.
func ToRaw(canonical string) (string, models.Segment, error) {
	name, code, ok := strings.Cut(canonical, ".")
	if !ok {
		return "", "", fmt.Errorf("%w: symbol %q has no segment", models.ErrUnsupported, canonical)
	}
	seg, err := models.ParseSegment(code)
	if err != nil {
		return "", "", err
	}

	parts := strings.Split(name, "-")
	want := 2
	if seg.IsDated() {
		want = 3
	}
	if len(parts) != want {
		return "", "", fmt.Errorf("%w: symbol %q", models.ErrUnsupported, canonical)
	}
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, "_.") {
			return "", "", fmt.Errorf("%w: symbol %q", models.ErrUnsupported, canonical)
		}
	}
	if seg.IsDated() && !isNumeric(parts[2]) {
		return "", "", fmt.Errorf("%w: symbol %q has non-numeric expiry", models.ErrUnsupported, canonical)
	}
	base, quote := parts[0], parts[1]
	if q, fixed := derivativeQuote(seg); fixed && quote != q {
		return "", "", fmt.Errorf("%w: %s symbols quote in %s, got %q", models.ErrUnsupported, seg, q, canonical)
	}

	switch seg {
	case models.SegmentSpot, models.SegmentSwapUSDT:
		return base + quote, seg, nil
	case models.SegmentFuturesCoin, models.SegmentFuturesUSDT:
		return base + quote + "_" + parts[2], seg, nil
	case models.SegmentSwapCoin:
		return base + quote + perpTag, seg, nil
	}
	return "", "", fmt.Errorf("%w: segment %s", models.ErrUnsupported, seg)
}

// ToCanonical converts a raw venue symbol of a known segment to its canonical
// form.
func ToCanonical(raw string, seg models.Segment) (string, error) {
	switch seg {
	case models.SegmentSpot:
		for _, quote := range SpotQuotes {
			if len(raw) > len(quote) && strings.HasSuffix(raw, quote) {
				return fmt.Sprintf("%s-%s.%s", raw[:len(raw)-len(quote)], quote, seg), nil
			}
		}
		if len(raw) <= 3 {
			return "", fmt.Errorf("%w: spot symbol %q", models.ErrMalformedPayload, raw)
		}
		return fmt.Sprintf("%s-%s.%s", raw[:len(raw)-3], raw[len(raw)-3:], seg), nil

	case models.SegmentFuturesUSDT, models.SegmentFuturesCoin:
		quote, _ := derivativeQuote(seg)
		underlying, expiry, ok := strings.Cut(raw, "_")
		if !ok || !isNumeric(expiry) {
			return "", fmt.Errorf("%w: %s symbol %q", models.ErrMalformedPayload, seg, raw)
		}
		base, ok := trimQuote(underlying, quote)
		if !ok {
			return "", fmt.Errorf("%w: %s symbol %q", models.ErrMalformedPayload, seg, raw)
		}
		return fmt.Sprintf("%s-%s-%s.%s", base, quote, expiry, seg), nil

	case models.SegmentSwapCoin:
		underlying, ok := strings.CutSuffix(raw, perpTag)
		if !ok {
			return "", fmt.Errorf("%w: %s symbol %q", models.ErrMalformedPayload, seg, raw)
		}
		base, ok := trimQuote(underlying, quoteUSD)
		if !ok {
			return "", fmt.Errorf("%w: %s symbol %q", models.ErrMalformedPayload, seg, raw)
		}
		return fmt.Sprintf("%s-%s.%s", base, quoteUSD, seg), nil

	case models.SegmentSwapUSDT:
		base, ok := trimQuote(raw, quoteUSDT)
		if !ok || strings.Contains(raw, "_") {
			return "", fmt.Errorf("%w: %s symbol %q", models.ErrMalformedPayload, seg, raw)
		}
		return fmt.Sprintf("%s-%s.%s", base, quoteUSDT, seg), nil
	}
	return "", fmt.Errorf("%w: segment %q", models.ErrUnsupported, seg)
}

// Family groups the segments served by one derivatives API surface. Raw
// symbols returned by such a surface carry no segment tag.
type Family int

const (
	CoinMargined Family = iota + 1
	USDTMargined
)

func (f Family) String() string {
	switch f {
	case CoinMargined:
		return "coin_margined"
	case USDTMargined:
		return "usdt_margined"
	}
	return "unknown"
}

// Segments returns the dated and perpetual segments of the family.
func (f Family) Segments() (dated, perpetual models.Segment) {
	switch f {
	case CoinMargined:
		return models.SegmentFuturesCoin, models.SegmentSwapCoin
	case USDTMargined:
		return models.SegmentFuturesUSDT, models.SegmentSwapUSDT
	}
	return "", ""
}

// Resolve returns the segment of a bare raw symbol of the family: a numeric
// trailing token is an expiry, anything else is a perpetual.
func (f Family) Resolve(raw string) (models.Segment, error) {
	dated, perpetual := f.Segments()
	if dated == "" {
		return "", fmt.Errorf("%w: family %d", models.ErrUnsupported, int(f))
	}
	token := raw
	if i := strings.LastIndexByte(raw, '_'); i >= 0 {
		token = raw[i+1:]
	}
	if isNumeric(token) {
		return dated, nil
	}
	return perpetual, nil
}

// FromFamily converts a raw derivatives symbol without a segment tag.
func FromFamily(raw string, f Family) (string, error) {
	seg, err := f.Resolve(raw)
	if err != nil {
		return "", err
	}
	return ToCanonical(raw, seg)
}

func derivativeQuote(seg models.Segment) (string, bool) {
	switch seg {
	case models.SegmentFuturesCoin, models.SegmentSwapCoin:
		return quoteUSD, true
	case models.SegmentFuturesUSDT, models.SegmentSwapUSDT:
		return quoteUSDT, true
	}
	return "", false
}

func trimQuote(underlying, quote string) (string, bool) {
	base, ok := strings.CutSuffix(underlying, quote)
	if !ok || base == "" {
		return "", false
	}
	return base, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
