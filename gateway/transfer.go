package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"ccgateway/logger"
	"ccgateway/models"

	"github.com/shopspring/decimal"
)

// TransferAsset moves amount of asset between the wallets backing two
// segments and returns the venue transfer id.
func (g *Gateway) TransferAsset(ctx context.Context, from, to models.Segment, asset string, amount decimal.Decimal) (string, error) {
	src, err := surfaceOf(from)
	if err != nil {
		return "", err
	}
	dst, err := surfaceOf(to)
	if err != nil {
		return "", err
	}
	if src == dst {
		return "", fmt.Errorf("%w: %s and %s share wallet %s", models.ErrUnsupported, from, to, src.wallet)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: transfer amount %s", models.ErrInvalidOrder, amount)
	}

	params := url.Values{}
	params.Set("type", src.wallet+"_"+dst.wallet)
	params.Set("asset", asset)
	params.Set("amount", amount.String())
	payload, err := g.call(ctx, "transfer", g.transport.Transfer, params)
	if err != nil {
		return "", err
	}

	var resp struct {
		TranID json.Number `json:"tranId"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil || resp.TranID == "" {
		return "", fmt.Errorf("%w: transfer response %s", models.ErrMalformedPayload, payload)
	}
	g.log.WithFields(logger.Fields{
		"type":    params.Get("type"),
		"asset":   asset,
		"amount":  amount.String(),
		"tran_id": resp.TranID.String(),
	}).Info("asset transferred")
	return resp.TranID.String(), nil
}
