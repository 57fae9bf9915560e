package gateway

import (
	"context"
	"fmt"
	"net/url"

	"ccgateway/internal/normalizer"
	"ccgateway/internal/symbols"
	"ccgateway/models"
)

// QueryFundingRateHistory returns the settled funding rates of a perpetual.
func (g *Gateway) QueryFundingRateHistory(ctx context.Context, sym string) ([]models.FundingRate, error) {
	raw, seg, err := symbols.ToRaw(sym)
	if err != nil {
		return nil, err
	}
	s, err := surfaceOf(seg)
	if err != nil {
		return nil, err
	}
	if !s.hasSwap(seg) {
		return nil, fmt.Errorf("%w: funding rates for %s", models.ErrUnsupported, sym)
	}
	params := url.Values{}
	params.Set("symbol", raw)
	payload, err := g.call(ctx, s.name+".funding_rate", s.api(g.transport).FundingRates, params)
	if err != nil {
		return nil, err
	}
	return normalizer.FundingRates(payload, sym)
}

// QueryRecentFundingRates returns the upcoming funding rate of every
// perpetual on both derivatives surfaces.
func (g *Gateway) QueryRecentFundingRates(ctx context.Context) ([]models.FundingRate, error) {
	var out []models.FundingRate
	for _, s := range surfaces {
		if s.family == 0 {
			continue
		}
		payload, err := g.call(ctx, s.name+".premium_index", s.api(g.transport).PremiumIndex, nil)
		if err != nil {
			return nil, err
		}
		rates, err := normalizer.PremiumIndex(payload, s.family)
		if err != nil {
			return nil, err
		}
		out = append(out, rates...)
	}
	return out, nil
}
