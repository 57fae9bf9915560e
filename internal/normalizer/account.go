package normalizer

import (
	"errors"

	"ccgateway/internal/symbols"
	"ccgateway/logger"
	"ccgateway/models"

	"github.com/shopspring/decimal"
)

type rawAsset struct {
	Asset            string              `json:"asset"`
	WalletBalance    decimal.NullDecimal `json:"walletBalance"`
	MarginBalance    decimal.NullDecimal `json:"marginBalance"`
	UnrealizedProfit decimal.NullDecimal `json:"unrealizedProfit"`
	Free             decimal.NullDecimal `json:"free"`
}

type rawPosition struct {
	Symbol           string              `json:"symbol"`
	PositionAmt      decimal.NullDecimal `json:"positionAmt"`
	EntryPrice       decimal.NullDecimal `json:"entryPrice"`
	UnrealizedProfit decimal.NullDecimal `json:"unrealizedProfit"`
	UnRealizedProfit decimal.NullDecimal `json:"unRealizedProfit"`
}

type rawAccount struct {
	Assets    []rawAsset    `json:"assets"`
	Balances  []rawAsset    `json:"balances"`
	Positions []rawPosition `json:"positions"`
}

// Accounts normalizes a derivatives account payload (assets carrying wallet
// balance and unrealized profit) or a spot account payload (balances carrying
// only a free amount). Equity is always balance plus unrealized P&L.
func Accounts(payload []byte) ([]models.Account, error) {
	var raw rawAccount
	if err := decode(payload, &raw, "account"); err != nil {
		return nil, err
	}
	switch {
	case raw.Assets != nil:
		out := make([]models.Account, 0, len(raw.Assets))
		for _, a := range raw.Assets {
			acc, err := futuresAccount(a)
			if err != nil {
				return nil, err
			}
			out = append(out, acc)
		}
		return out, nil
	case raw.Balances != nil:
		out := make([]models.Account, 0, len(raw.Balances))
		for _, a := range raw.Balances {
			free, err := required(a.Free, "free", "spot balance "+a.Asset)
			if err != nil {
				return nil, err
			}
			out = append(out, models.Account{ID: a.Asset, Equity: free, Balance: free, UnrealizedPnL: decimal.Zero})
		}
		return out, nil
	}
	return nil, malformed("account: neither assets nor balances present")
}

func futuresAccount(a rawAsset) (models.Account, error) {
	if a.Asset == "" {
		return models.Account{}, malformed("account asset without name")
	}
	balance, err := required(a.WalletBalance, "walletBalance", "asset "+a.Asset)
	if err != nil {
		return models.Account{}, err
	}
	upnl, err := required(a.UnrealizedProfit, "unrealizedProfit", "asset "+a.Asset)
	if err != nil {
		return models.Account{}, err
	}
	return models.Account{
		ID:            a.Asset,
		Equity:        balance.Add(upnl),
		Balance:       balance,
		UnrealizedPnL: upnl,
	}, nil
}

// Positions normalizes a position-risk listing of one derivatives surface.
func Positions(payload []byte, family symbols.Family) ([]models.Position, error) {
	var raw []rawPosition
	if err := decode(payload, &raw, "positions"); err != nil {
		return nil, err
	}
	return positions(raw, family)
}

// EmbeddedPositions normalizes the positions array carried inside a
// derivatives account payload.
func EmbeddedPositions(payload []byte, family symbols.Family) ([]models.Position, error) {
	var raw rawAccount
	if err := decode(payload, &raw, "account"); err != nil {
		return nil, err
	}
	if raw.Positions == nil {
		return nil, malformed("account: positions not present")
	}
	return positions(raw.Positions, family)
}

func positions(raw []rawPosition, family symbols.Family) ([]models.Position, error) {
	out := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		sym, err := symbols.FromFamily(p.Symbol, family)
		if err != nil && !errors.Is(err, models.ErrMalformedPayload) {
			return nil, err
		}
		if err != nil {
			entry := skipListing(p.Symbol, "", err).WithFields(logger.Fields{"family": family.String()})
			if p.PositionAmt.Valid && !p.PositionAmt.Decimal.IsZero() {
				entry.WithFields(logger.Fields{"size": p.PositionAmt.Decimal.String()}).Warn("skipping open position outside symbol scheme")
			} else {
				entry.Debug("skipping position outside symbol scheme")
			}
			continue
		}
		pos, err := position(p, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

func position(p rawPosition, sym string) (models.Position, error) {
	size, err := required(p.PositionAmt, "positionAmt", "position "+p.Symbol)
	if err != nil {
		return models.Position{}, err
	}
	entry, err := required(p.EntryPrice, "entryPrice", "position "+p.Symbol)
	if err != nil {
		return models.Position{}, err
	}

	upnl := p.UnrealizedProfit
	if !upnl.Valid {
		upnl = p.UnRealizedProfit
	}
	if !upnl.Valid {
		return models.Position{}, malformed("position %s: missing unrealized profit", p.Symbol)
	}

	dir := models.DirectionNone
	switch size.Sign() {
	case 1:
		dir = models.DirectionLong
	case -1:
		dir = models.DirectionShort
	}
	return models.Position{
		Symbol:        sym,
		Direction:     dir,
		Size:          size,
		EntryPrice:    entry,
		UnrealizedPnL: upnl.Decimal,
	}, nil
}
