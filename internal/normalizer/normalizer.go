// Package normalizer converts raw Binance REST and stream payloads into the
// canonical records in models. A payload that does not match the expected
// shape yields models.ErrMalformedPayload; nothing here is retried.
package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"ccgateway/models"

	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrMalformedPayload, fmt.Sprintf(format, args...))
}

func decode(payload []byte, v any, what string) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return malformed("%s: %v", what, err)
	}
	return nil
}

func required(v decimal.NullDecimal, field, what string) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, malformed("%s: missing %s", what, field)
	}
	return v.Decimal, nil
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// APIError reports the venue rejection carried by a batch response entry, or
// nil when the entry is an order.
func APIError(entry json.RawMessage) *common.APIError {
	var probe struct {
		Code *int64 `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(entry, &probe); err != nil || probe.Code == nil {
		return nil
	}
	if *probe.Code == 200 {
		return nil
	}
	return &common.APIError{Code: *probe.Code, Message: probe.Msg}
}

// Entries splits a JSON array payload into its elements.
func Entries(payload []byte) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := decode(payload, &out, "array payload"); err != nil {
		return nil, err
	}
	return out, nil
}
