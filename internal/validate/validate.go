// Package validate checks the shape and types of raw trade payloads before
// they may enter a ledger. Validation is split in two layers: this package
// rejects structurally invalid records (missing fields, unparsable numbers,
// unknown actions), while domain invariants such as quantity > 0 are
// enforced by the ledger at append time.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/botfolio/portfolio-engine/internal/model"
)

var (
	// ErrMissingField is returned when action, asset, quantity or price
	// is absent from the payload.
	ErrMissingField = errors.New("validate: missing required field")

	// ErrInvalidType is returned when quantity, price or total_value
	// cannot be parsed as a finite number.
	ErrInvalidType = errors.New("validate: field is not a finite number")

	// ErrInvalidAction is returned when the action is not BUY or SELL
	// (case-insensitive).
	ErrInvalidAction = errors.New("validate: action must be BUY or SELL")
)

// Timestamp layouts accepted from bot payloads, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// RawTrade is a trade payload as delivered by a bot source, before any
// validation. Numeric fields arrive as json.Number so that absence,
// string-encoded numbers, and garbage are all representable.
type RawTrade struct {
	Date       string      `json:"date"`
	Action     string      `json:"action"`
	Asset      string      `json:"asset"`
	Quantity   json.Number `json:"quantity"`
	Price      json.Number `json:"price"`
	TotalValue json.Number `json:"total_value"`
	Notes      string      `json:"notes"`
}

// Trade converts a validated raw payload into a typed model.Trade.
// It is pure apart from defaulting an absent date to the current time,
// which mirrors the ingestion sources that omit timestamps. The returned
// trade carries no ID, wallet, or running balance — those are assigned by
// the ledger at append time.
//
// Validation performed here: all of action, asset, quantity, price must be
// present (ErrMissingField); quantity, price, and total_value when supplied
// must parse as finite numbers (ErrInvalidType); action must be BUY or SELL
// in any case (ErrInvalidAction). total_value defaults to quantity * price.
// Quantity positivity is deliberately NOT checked here — see ledger.Append.
func Trade(raw RawTrade) (model.Trade, error) {
	var t model.Trade

	if raw.Action == "" {
		return t, fmt.Errorf("%w: action", ErrMissingField)
	}
	if raw.Asset == "" {
		return t, fmt.Errorf("%w: asset", ErrMissingField)
	}
	if raw.Quantity == "" {
		return t, fmt.Errorf("%w: quantity", ErrMissingField)
	}
	if raw.Price == "" {
		return t, fmt.Errorf("%w: price", ErrMissingField)
	}

	action := strings.ToUpper(strings.TrimSpace(raw.Action))
	if action != model.ActionBuy && action != model.ActionSell {
		return t, fmt.Errorf("%w: %q", ErrInvalidAction, raw.Action)
	}

	quantity, err := parseDecimal("quantity", raw.Quantity)
	if err != nil {
		return t, err
	}
	price, err := parseDecimal("price", raw.Price)
	if err != nil {
		return t, err
	}

	totalValue := quantity.Mul(price)
	if raw.TotalValue != "" {
		totalValue, err = parseDecimal("total_value", raw.TotalValue)
		if err != nil {
			return t, err
		}
	}

	ts := time.Now().UTC()
	if raw.Date != "" {
		ts, err = parseTimestamp(raw.Date)
		if err != nil {
			return t, err
		}
	}

	t = model.Trade{
		Timestamp:  ts,
		Action:     action,
		Asset:      raw.Asset,
		Quantity:   quantity,
		Price:      price,
		TotalValue: totalValue,
		Notes:      raw.Notes,
	}
	return t, nil
}

func parseDecimal(field string, n json.Number) (decimal.Decimal, error) {
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidType, field, n.String())
	}
	// Re-parse as decimal to keep the exact digits, not the float64
	// approximation.
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidType, field, n.String())
	}
	return d, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date=%q", ErrInvalidType, s)
}
