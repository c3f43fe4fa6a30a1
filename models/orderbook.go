package models

import (
	"time"
)

// PriceLevel is a single aggregated price level of an L2 book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// BookSnapshot is one decoded order book update. Bids are sorted by price
// descending and asks ascending. A snapshot is never mutated after the feed
// builds it.
type BookSnapshot struct {
	Symbol     string       `json:"symbol"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Timestamp  time.Time    `json:"timestamp"`
	ReceivedAt time.Time    `json:"received_at"`
}

// BestBid returns the top bid level and false when the side is empty.
func (b BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level and false when the side is empty.
func (b BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Depth is the combined number of bid and ask levels.
func (b BookSnapshot) Depth() int {
	return len(b.Bids) + len(b.Asks)
}

// Crossed reports whether the best ask is at or below the best bid.
func (b BookSnapshot) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	return okBid && okAsk && ask.Price <= bid.Price
}

// OkxBookMessage is the wire format pushed by the L2 relay. Each level is a
// [price, quantity] pair of decimal strings.
type OkxBookMessage struct {
	Symbol    string     `json:"symbol,omitempty"`
	Exchange  string     `json:"exchange,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
}
