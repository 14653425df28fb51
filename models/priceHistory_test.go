package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceVariancePercent(t *testing.T) {
	tests := []struct {
		name, oldPrice, newPrice, expected string
	}{
		{"no change", "0.50", "0.50", "0"},
		{"increase", "0.50", "0.65", "30"},
		{"decrease counts the same", "0.50", "0.35", "30"},
		{"doubling", "1.20", "2.40", "100"},
		{"no baseline", "0", "0.75", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := priceVariancePercent(dec(tt.oldPrice), dec(tt.newPrice))
			assert.True(t, got.Equal(dec(tt.expected)), "got %s want %s", got, tt.expected)
		})
	}
}
