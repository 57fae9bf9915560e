// Package gateway exposes Binance spot, USDT-margined and coin-margined
// derivatives behind canonical symbols and records. All calls are blocking
// and go through the retry executor.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"ccgateway/internal/metrics"
	"ccgateway/internal/normalizer"
	"ccgateway/internal/retry"
	"ccgateway/internal/symbols"
	"ccgateway/logger"
	"ccgateway/models"
)

const (
	defaultDepth     = 50
	defaultBatchSize = 5
)

// Options tunes a Gateway. Zero values select the defaults.
type Options struct {
	Retry     retry.Policy
	Observer  retry.Observer
	Depth     int
	BatchSize int
}

// Gateway is the canonical facade over a venue Transport. The symbol metadata
// snapshot is loaded once by New and only read afterwards.
type Gateway struct {
	transport Transport
	exec      *retry.Executor
	meta      map[string]models.SymbolMeta
	depth     int
	batchSize int
	log       *logger.Entry
}

// New builds a Gateway and loads symbol metadata for every segment.
func New(ctx context.Context, t Transport, opts Options) (*Gateway, error) {
	var execOpts []retry.Option
	if opts.Observer != nil {
		execOpts = append(execOpts, retry.WithObserver(opts.Observer))
	}
	g := &Gateway{
		transport: t,
		exec:      retry.New(opts.Retry, execOpts...),
		depth:     opts.Depth,
		batchSize: opts.BatchSize,
		log:       logger.GetLogger().WithComponent("gateway"),
	}
	if g.depth <= 0 {
		g.depth = defaultDepth
	}
	if g.batchSize <= 0 {
		g.batchSize = defaultBatchSize
	}

	meta, err := g.QuerySymbols(ctx, models.AllSegments()...)
	if err != nil {
		return nil, fmt.Errorf("load symbol metadata: %w", err)
	}
	g.meta = meta
	g.log.WithFields(logger.Fields{"symbols": len(meta)}).Info("symbol metadata loaded")
	return g, nil
}

func (g *Gateway) call(ctx context.Context, op string, ep Endpoint, params url.Values) (json.RawMessage, error) {
	payload, err := retry.Do(ctx, g.exec, op, func(ctx context.Context) (json.RawMessage, error) {
		return ep(ctx, params)
	})
	metrics.ObserveCall(op, err)
	return payload, err
}

// route resolves a canonical symbol to its raw form and surface.
func (g *Gateway) route(sym string) (string, *surface, error) {
	raw, seg, err := symbols.ToRaw(sym)
	if err != nil {
		return "", nil, err
	}
	s, err := surfaceOf(seg)
	if err != nil {
		return "", nil, err
	}
	return raw, s, nil
}

// Symbol returns the cached metadata of a canonical symbol.
func (g *Gateway) Symbol(sym string) (models.SymbolMeta, bool) {
	m, ok := g.meta[sym]
	return m, ok
}

// QueryAccounts returns the wallets of the surfaces serving segs, keyed by
// "{ASSET}.{SEGMENT}". A derivatives wallet appears once per segment of its
// surface.
func (g *Gateway) QueryAccounts(ctx context.Context, segs ...models.Segment) (map[string]models.Account, error) {
	ss, err := surfacesOf(segs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Account)
	for _, s := range ss {
		payload, err := g.call(ctx, s.name+".account", s.api(g.transport).Account, nil)
		if err != nil {
			return nil, err
		}
		if err := s.addAccounts(out, payload); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// QueryPositions returns the positions of the derivatives surfaces serving
// segs, keyed by canonical symbol. Spot has no positions.
func (g *Gateway) QueryPositions(ctx context.Context, segs ...models.Segment) (map[string]models.Position, error) {
	ss, err := surfacesOf(segs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Position)
	for _, s := range ss {
		if !s.positions {
			continue
		}
		if err := g.queryPositions(ctx, s, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *Gateway) queryPositions(ctx context.Context, s *surface, out map[string]models.Position) error {
	payload, err := g.call(ctx, s.name+".positions", s.api(g.transport).Positions, nil)
	if err != nil {
		return err
	}
	pos, err := normalizer.Positions(payload, s.family)
	if err != nil {
		return err
	}
	for _, p := range pos {
		out[p.Symbol] = p
	}
	return nil
}

// QueryAccountsAndPositions combines QueryAccounts and QueryPositions while
// calling each surface endpoint at most once. Surfaces whose account payload
// embeds positions are served by the account call alone.
func (g *Gateway) QueryAccountsAndPositions(ctx context.Context, segs ...models.Segment) (map[string]models.Account, map[string]models.Position, error) {
	ss, err := surfacesOf(segs)
	if err != nil {
		return nil, nil, err
	}
	accounts := make(map[string]models.Account)
	positions := make(map[string]models.Position)
	for _, s := range ss {
		payload, err := g.call(ctx, s.name+".account", s.api(g.transport).Account, nil)
		if err != nil {
			return nil, nil, err
		}
		if err := s.addAccounts(accounts, payload); err != nil {
			return nil, nil, err
		}
		switch {
		case s.embedsPositions:
			pos, err := normalizer.EmbeddedPositions(payload, s.family)
			if err != nil {
				return nil, nil, err
			}
			for _, p := range pos {
				positions[p.Symbol] = p
			}
		case s.positions:
			if err := g.queryPositions(ctx, s, positions); err != nil {
				return nil, nil, err
			}
		}
	}
	return accounts, positions, nil
}

func (s *surface) addAccounts(out map[string]models.Account, payload []byte) error {
	accs, err := normalizer.Accounts(payload)
	if err != nil {
		return err
	}
	for _, a := range accs {
		for _, seg := range s.segments {
			out[a.ID+"."+seg.String()] = a
		}
	}
	return nil
}

// QuerySymbols fetches symbol metadata for segs from the venue. It does not
// touch the snapshot taken by New.
func (g *Gateway) QuerySymbols(ctx context.Context, segs ...models.Segment) (map[string]models.SymbolMeta, error) {
	ss, err := surfacesOf(segs)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(segs))
	for _, seg := range segs {
		want["."+seg.String()] = true
	}
	out := make(map[string]models.SymbolMeta)
	for _, s := range ss {
		payload, err := g.call(ctx, s.name+".exchange_info", s.api(g.transport).ExchangeInfo, nil)
		if err != nil {
			return nil, err
		}
		metas, err := s.symbolMeta(payload)
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			if want[m.Symbol[strings.LastIndexByte(m.Symbol, '.'):]] {
				out[m.Symbol] = m
			}
		}
	}
	return out, nil
}

// QueryOrderbook returns a depth snapshot. A non-positive depth selects the
// configured default.
func (g *Gateway) QueryOrderbook(ctx context.Context, sym string, depth int) (models.Orderbook, error) {
	raw, s, err := g.route(sym)
	if err != nil {
		return models.Orderbook{}, err
	}
	if depth <= 0 {
		depth = g.depth
	}
	params := url.Values{}
	params.Set("symbol", raw)
	params.Set("limit", fmt.Sprint(depth))
	payload, err := g.call(ctx, s.name+".depth", s.api(g.transport).Depth, params)
	if err != nil {
		return models.Orderbook{}, err
	}
	return normalizer.Orderbook(payload)
}
