package gateway

import (
	"fmt"

	"ccgateway/internal/normalizer"
	"ccgateway/internal/symbols"
	"ccgateway/models"
)

// surface describes one venue REST surface and the segments routed to it.
// Every segment belongs to exactly one surface.
type surface struct {
	name     string
	api      func(Transport) API
	family   symbols.Family
	segments []models.Segment
	// maxCandles caps the klines returned by one call.
	maxCandles int
	// wallet is the transfer wallet name of the surface.
	wallet string
	// batch is set when the surface accepts batchOrders.
	batch bool
	// positions is set when the surface has a position risk endpoint.
	positions bool
	// embedsPositions is set when the account payload already lists
	// positions, so a combined query needs a single call.
	embedsPositions bool
}

var (
	coinSurface = &surface{
		name:       "coin_margined",
		api:        Transport.CoinMargined,
		family:     symbols.CoinMargined,
		segments:   []models.Segment{models.SegmentFuturesCoin, models.SegmentSwapCoin},
		maxCandles: 1500,
		wallet:     "CMFUTURE",
		batch:      true,
		positions:  true,
	}
	usdtSurface = &surface{
		name:            "usdt_margined",
		api:             Transport.USDTMargined,
		family:          symbols.USDTMargined,
		segments:        []models.Segment{models.SegmentFuturesUSDT, models.SegmentSwapUSDT},
		maxCandles:      1500,
		wallet:          "UMFUTURE",
		batch:           true,
		positions:       true,
		embedsPositions: true,
	}
	spotSurface = &surface{
		name:       "spot",
		api:        Transport.Spot,
		segments:   []models.Segment{models.SegmentSpot},
		maxCandles: 1000,
		wallet:     "MAIN",
	}

	surfaces = []*surface{coinSurface, usdtSurface, spotSurface}

	surfaceBySegment = func() map[models.Segment]*surface {
		m := make(map[models.Segment]*surface)
		for _, s := range surfaces {
			for _, seg := range s.segments {
				m[seg] = s
			}
		}
		return m
	}()
)

func surfaceOf(seg models.Segment) (*surface, error) {
	s, ok := surfaceBySegment[seg]
	if !ok {
		return nil, fmt.Errorf("%w: segment %q", models.ErrUnsupported, seg)
	}
	return s, nil
}

// surfacesOf returns the distinct surfaces serving segs, in table order.
func surfacesOf(segs []models.Segment) ([]*surface, error) {
	want := make(map[*surface]bool)
	for _, seg := range segs {
		s, err := surfaceOf(seg)
		if err != nil {
			return nil, err
		}
		want[s] = true
	}
	out := make([]*surface, 0, len(want))
	for _, s := range surfaces {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (s *surface) symbolMeta(payload []byte) ([]models.SymbolMeta, error) {
	if s.family == 0 {
		return normalizer.SpotSymbols(payload)
	}
	return normalizer.DerivativeSymbols(payload, s.family)
}

func (s *surface) hasSwap(seg models.Segment) bool {
	_, perpetual := s.family.Segments()
	return perpetual != "" && seg == perpetual
}
