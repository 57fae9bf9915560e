package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"ccgateway/internal/normalizer"
	"ccgateway/logger"
	"ccgateway/models"
)

// QueryCandles returns the candles of sym whose open time lies in
// [start, end). The range is fetched in pages no larger than the surface
// allows; each page starts one timeframe after the open time of the last
// candle received. An empty page ends the query early, so gaps in the
// venue history are returned as gaps.
func (g *Gateway) QueryCandles(ctx context.Context, sym string, start, end time.Time, timeframe string) ([]models.Candle, error) {
	raw, s, err := g.route(sym)
	if err != nil {
		return nil, err
	}
	tf, err := models.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	var out []models.Candle
	pages := 0
	for cur := start; cur.Before(end); {
		remaining := int((end.Sub(cur) + tf - 1) / tf)
		limit := min(remaining, s.maxCandles)

		params := url.Values{}
		params.Set("symbol", raw)
		params.Set("interval", timeframe)
		params.Set("startTime", fmt.Sprint(cur.UnixMilli()))
		params.Set("endTime", fmt.Sprint(cur.Add(time.Duration(limit-1)*tf).UnixMilli()))
		params.Set("limit", fmt.Sprint(limit))

		payload, err := g.call(ctx, s.name+".klines", s.api(g.transport).Klines, params)
		if err != nil {
			return nil, err
		}
		page, err := normalizer.Candles(payload)
		if err != nil {
			return nil, err
		}
		pages++
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			if c.OpenTime.Before(cur) || !c.OpenTime.Before(end) {
				continue
			}
			if n := len(out); n > 0 && !c.OpenTime.After(out[n-1].OpenTime) {
				continue
			}
			out = append(out, c)
		}
		next := page[len(page)-1].OpenTime.Add(tf)
		if !next.After(cur) {
			break
		}
		cur = next
	}

	g.log.WithFields(logger.Fields{
		"symbol":    sym,
		"timeframe": timeframe,
		"pages":     pages,
		"candles":   len(out),
	}).Debug("candles fetched")
	return out, nil
}
