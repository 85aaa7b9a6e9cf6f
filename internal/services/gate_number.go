package services

import (
	"context"
	"fmt"
	"strings"

	"gate-backend/internal/metrics"
)

const defaultNumberWidth = 6

// GateNumberGenerator mints warehouse scoped gate entry numbers such as
// "WH01-000123". The counter lives in the database; nothing is cached here.
type GateNumberGenerator struct {
	Width int
}

func NewGateNumberGenerator(width int) GateNumberGenerator {
	if width <= 0 {
		width = defaultNumberWidth
	}
	return GateNumberGenerator{Width: width}
}

// Next increments the warehouse counter through alloc and formats the result.
// Any failure is a ConfigurationError; there is no fallback numbering.
func (g GateNumberGenerator) Next(ctx context.Context, alloc SequenceAllocator, warehouseCode string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(warehouseCode))
	if code == "" {
		return "", &ConfigurationError{Message: "no warehouse assigned to user; contact an administrator"}
	}

	value, found, err := alloc.IncrementSequence(ctx, code)
	if err != nil {
		return "", &ConfigurationError{Message: "gate entry number generation failed for " + code, Err: err}
	}
	if !found {
		return "", &ConfigurationError{Message: fmt.Sprintf("warehouse %s is not configured", code)}
	}

	metrics.GateEntryNumbersIssued.WithLabelValues(code).Inc()
	return g.Format(code, value), nil
}

func (g GateNumberGenerator) Format(warehouseCode string, value int64) string {
	width := g.Width
	if width <= 0 {
		width = defaultNumberWidth
	}
	return fmt.Sprintf("%s-%0*d", warehouseCode, width, value)
}
