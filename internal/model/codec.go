package model

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodePerformance serializes p into a cache payload.
func EncodePerformance(p StockPerformance) ([]byte, error) {
	b, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.Symbol, err)
	}
	return b, nil
}

// DecodePerformance parses a cache payload written by EncodePerformance.
func DecodePerformance(payload []byte) (StockPerformance, error) {
	var p StockPerformance
	if len(payload) == 0 {
		return p, fmt.Errorf("empty payload")
	}
	if err := msgpack.Unmarshal(payload, &p); err != nil {
		return StockPerformance{}, fmt.Errorf("failed to decode payload: %w", err)
	}
	for i := range p.History {
		p.History[i].Date = p.History[i].Date.UTC()
	}
	return p, nil
}
