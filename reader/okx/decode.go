package okx

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/models"
)

// ErrMalformedMessage marks a frame that cannot be turned into a book snapshot.
var ErrMalformedMessage = errors.New("malformed book message")

// Decode parses one relay frame into a BookSnapshot. The symbol and timestamp
// carried by the frame win over the subscribed symbol and receivedAt.
func Decode(payload []byte, symbol string, receivedAt time.Time) (models.BookSnapshot, error) {
	var msg models.OkxBookMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.BookSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Bids == nil || msg.Asks == nil {
		return models.BookSnapshot{}, fmt.Errorf("%w: missing bids or asks", ErrMalformedMessage)
	}

	bids, err := decodeLevels(msg.Bids, "bids", true)
	if err != nil {
		return models.BookSnapshot{}, err
	}
	asks, err := decodeLevels(msg.Asks, "asks", false)
	if err != nil {
		return models.BookSnapshot{}, err
	}

	snap := models.BookSnapshot{
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		Timestamp:  receivedAt,
		ReceivedAt: receivedAt,
	}
	if msg.Symbol != "" {
		snap.Symbol = msg.Symbol
	}
	if msg.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			snap.Timestamp = ts
		}
	}
	return snap, nil
}

// decodeLevels parses one side. Bids must be sorted by price descending and
// asks ascending; equal neighbouring prices are accepted.
func decodeLevels(raw [][]string, side string, descending bool) ([]models.PriceLevel, error) {
	out := make([]models.PriceLevel, 0, len(raw))
	var prev decimal.Decimal
	for i, lvl := range raw {
		if len(lvl) < 2 {
			return nil, fmt.Errorf("%w: %s[%d] has %d fields", ErrMalformedMessage, side, i, len(lvl))
		}
		price, err := decimal.NewFromString(lvl[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d] price %q", ErrMalformedMessage, side, i, lvl[0])
		}
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d] quantity %q", ErrMalformedMessage, side, i, lvl[1])
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("%w: %s[%d] non-positive price %s", ErrMalformedMessage, side, i, price)
		}
		if qty.IsNegative() {
			return nil, fmt.Errorf("%w: %s[%d] negative quantity %s", ErrMalformedMessage, side, i, qty)
		}
		if i > 0 && ((descending && price.GreaterThan(prev)) || (!descending && price.LessThan(prev))) {
			return nil, fmt.Errorf("%w: %s[%d] price %s out of order after %s", ErrMalformedMessage, side, i, price, prev)
		}
		prev = price
		out = append(out, models.PriceLevel{
			Price:    price.InexactFloat64(),
			Quantity: qty.InexactFloat64(),
		})
	}
	return out, nil
}
