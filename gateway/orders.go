package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"ccgateway/internal/normalizer"
	"ccgateway/internal/ticks"
	"ccgateway/logger"
	"ccgateway/models"

	"github.com/google/uuid"
)

// QueryOrder fetches an order by venue id. On spot a non-empty clientOrderID
// replaces the venue id in the lookup; derivatives always use the venue id.
func (g *Gateway) QueryOrder(ctx context.Context, sym, orderID, clientOrderID string) (models.Order, error) {
	raw, s, err := g.route(sym)
	if err != nil {
		return models.Order{}, err
	}
	params := url.Values{}
	params.Set("symbol", raw)
	if s == spotSurface && clientOrderID != "" {
		params.Set("origClientOrderId", clientOrderID)
	} else {
		params.Set("orderId", orderID)
	}
	payload, err := g.call(ctx, s.name+".get_order", s.api(g.transport).GetOrder, params)
	if err != nil {
		return models.Order{}, err
	}
	return normalizer.Order(payload, sym, normalizer.SourceQuery)
}

// CancelOrder cancels an order by venue id. The returned order has no
// timestamp.
func (g *Gateway) CancelOrder(ctx context.Context, sym, orderID string) (models.Order, error) {
	raw, s, err := g.route(sym)
	if err != nil {
		return models.Order{}, err
	}
	params := url.Values{}
	params.Set("symbol", raw)
	params.Set("orderId", orderID)
	payload, err := g.call(ctx, s.name+".cancel_order", s.api(g.transport).CancelOrder, params)
	if err != nil {
		return models.Order{}, err
	}
	return normalizer.Order(payload, sym, normalizer.SourceCancel)
}

// SendOrder submits a single order. The price is rounded to the price tick
// and the size floored to the size tick before submission.
func (g *Gateway) SendOrder(ctx context.Context, sym string, dir models.Direction, req models.OrderRequest) (models.Order, error) {
	_, s, err := g.route(sym)
	if err != nil {
		return models.Order{}, err
	}
	params, err := g.orderParams(sym, dir, req)
	if err != nil {
		return models.Order{}, err
	}
	payload, err := g.call(ctx, s.name+".place_order", s.api(g.transport).PlaceOrder, toValues(params))
	if err != nil {
		return models.Order{}, err
	}
	return normalizer.Order(payload, sym, normalizer.SourceSend)
}

// orderParams builds the venue order fields for one request.
func (g *Gateway) orderParams(sym string, dir models.Direction, req models.OrderRequest) (map[string]string, error) {
	raw, _, err := g.route(sym)
	if err != nil {
		return nil, err
	}
	meta, ok := g.meta[sym]
	if !ok {
		return nil, fmt.Errorf("%w: symbol %s not listed", models.ErrUnsupported, sym)
	}
	side, err := normalizer.SideParam(dir)
	if err != nil {
		return nil, err
	}
	typ, tif, err := normalizer.OrderTypeParams(req.Type)
	if err != nil {
		return nil, err
	}
	price, err := ticks.RoundToTick(req.Price, meta.PriceTick)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: %s price %s rounds to %s", models.ErrInvalidOrder, sym, req.Price, price)
	}
	size, err := ticks.FloorToTick(req.Size, meta.SizeTick)
	if err != nil {
		return nil, err
	}
	if !size.IsPositive() {
		return nil, fmt.Errorf("%w: %s size %s floors to %s", models.ErrInvalidOrder, sym, req.Size, size)
	}

	params := map[string]string{
		"symbol":      raw,
		"side":        side,
		"type":        typ,
		"timeInForce": tif,
		"price":       price.String(),
		"quantity":    size.String(),
	}
	if req.Reference != "" {
		params["newClientOrderId"] = req.Reference
	}
	return params, nil
}

func toValues(m map[string]string) url.Values {
	v := make(url.Values, len(m))
	for k, val := range m {
		v.Set(k, val)
	}
	return v
}

type batchItem struct {
	key    models.OrderKey
	params map[string]string
}

// BatchSendOrders submits many orders and returns exactly one result per
// requested key. Derivatives orders are grouped per surface and sent in
// chunks through the batch endpoint; spot orders are sent one at a time.
// Venue rejections and failed calls are reported per entry.
func (g *Gateway) BatchSendOrders(ctx context.Context, orders map[models.OrderKey]models.OrderRequest) map[models.OrderKey]models.BatchResult {
	keys := make([]models.OrderKey, 0, len(orders))
	for k := range orders {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Direction < keys[j].Direction
	})

	batchID := uuid.NewString()
	log := g.log.WithFields(logger.Fields{"batch_id": batchID, "orders": len(orders)})
	log.Info("submitting order batch")

	results := make(map[models.OrderKey]models.BatchResult, len(orders))
	grouped := make(map[*surface][]batchItem)
	for _, k := range keys {
		_, s, err := g.route(k.Symbol)
		if err != nil {
			results[k] = models.BatchResult{Err: err}
			continue
		}
		params, err := g.orderParams(k.Symbol, k.Direction, orders[k])
		if err != nil {
			results[k] = models.BatchResult{Err: err}
			continue
		}
		grouped[s] = append(grouped[s], batchItem{key: k, params: params})
	}

	for _, s := range surfaces {
		items := grouped[s]
		if len(items) == 0 {
			continue
		}
		if !s.batch {
			for _, it := range items {
				payload, err := g.call(ctx, s.name+".place_order", s.api(g.transport).PlaceOrder, toValues(it.params))
				if err != nil {
					results[it.key] = models.BatchResult{Err: err}
					continue
				}
				o, err := normalizer.Order(payload, it.key.Symbol, normalizer.SourceSend)
				results[it.key] = models.BatchResult{Order: o, Err: err}
			}
			continue
		}
		for start := 0; start < len(items); start += g.batchSize {
			end := min(start+g.batchSize, len(items))
			g.sendChunk(ctx, s, items[start:end], results)
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.WithFields(logger.Fields{"failed": failed}).Info("order batch finished")
	return results
}

func (g *Gateway) sendChunk(ctx context.Context, s *surface, chunk []batchItem, results map[models.OrderKey]models.BatchResult) {
	fail := func(err error) {
		for _, it := range chunk {
			results[it.key] = models.BatchResult{Err: err}
		}
	}

	list := make([]map[string]string, len(chunk))
	for i, it := range chunk {
		list[i] = it.params
	}
	body, err := json.Marshal(list)
	if err != nil {
		fail(err)
		return
	}
	params := url.Values{}
	params.Set("batchOrders", string(body))

	payload, err := g.call(ctx, s.name+".batch_orders", s.api(g.transport).PlaceBatchOrders, params)
	if err != nil {
		fail(err)
		return
	}
	entries, err := normalizer.Entries(payload)
	if err != nil {
		fail(err)
		return
	}
	if len(entries) != len(chunk) {
		fail(fmt.Errorf("%w: batch of %d returned %d entries", models.ErrMalformedPayload, len(chunk), len(entries)))
		return
	}
	for i, e := range entries {
		key := chunk[i].key
		if apiErr := normalizer.APIError(e); apiErr != nil {
			results[key] = models.BatchResult{Err: apiErr}
			continue
		}
		o, err := normalizer.FamilyOrder(e, s.family, normalizer.SourceSend)
		if err == nil && o.Symbol != key.Symbol {
			err = fmt.Errorf("%w: batch entry %d is %s, sent %s", models.ErrMalformedPayload, i, o.Symbol, key.Symbol)
		}
		results[key] = models.BatchResult{Order: o, Err: err}
	}
}
