package policy

import (
	"testing"
	"time"

	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/types"
)

func TestRefundAmount(t *testing.T) {
	purchased := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		policy         catalog.CancellationPolicy
		price          types.Money
		totalUnits     int64
		remainingUnits int64
		validityDays   int
		now            time.Time
		expected       types.Money
	}{
		{
			name:           "no refund",
			policy:         catalog.CancelNoRefund,
			price:          types.EUR(50000),
			totalUnits:     10,
			remainingUnits: 7,
			now:            purchased.AddDate(0, 0, 10),
			expected:       types.EUR(0),
		},
		{
			name:           "full refund",
			policy:         catalog.CancelFullRefund,
			price:          types.EUR(50000),
			totalUnits:     10,
			remainingUnits: 2,
			now:            purchased.AddDate(0, 0, 10),
			expected:       types.EUR(50000),
		},
		{
			// 7000 * 3 / 10 = 2100.
			name:           "pro rata unit",
			policy:         catalog.CancelProRataUnit,
			price:          types.CHF(7000),
			totalUnits:     10,
			remainingUnits: 3,
			now:            purchased.AddDate(0, 0, 10),
			expected:       types.CHF(2100),
		},
		{
			name:           "pro rata unit all remaining",
			policy:         catalog.CancelProRataUnit,
			price:          types.EUR(50000),
			totalUnits:     10,
			remainingUnits: 10,
			now:            purchased,
			expected:       types.EUR(50000),
		},
		{
			name:           "pro rata unit none remaining",
			policy:         catalog.CancelProRataUnit,
			price:          types.EUR(50000),
			totalUnits:     10,
			remainingUnits: 0,
			now:            purchased,
			expected:       types.EUR(0),
		},
		{
			// 10000 * 1 / 3 = 3333.33..., rounds to 3333.
			name:           "pro rata unit rounds half up",
			policy:         catalog.CancelProRataUnit,
			price:          types.EUR(10000),
			totalUnits:     3,
			remainingUnits: 1,
			now:            purchased,
			expected:       types.EUR(3333),
		},
		{
			// 2000 * (30-10) / 30 = 1333.33..., rounds to 1333.
			name:           "pro rata package",
			policy:         catalog.CancelProRataPackage,
			price:          types.EUR(2000),
			totalUnits:     10,
			remainingUnits: 10,
			validityDays:   30,
			now:            purchased.AddDate(0, 0, 10),
			expected:       types.EUR(1333),
		},
		{
			name:           "pro rata package no time basis",
			policy:         catalog.CancelProRataPackage,
			price:          types.EUR(2000),
			totalUnits:     10,
			remainingUnits: 10,
			validityDays:   0,
			now:            purchased.AddDate(0, 0, 10),
			expected:       types.EUR(0),
		},
		{
			name:           "pro rata package fully elapsed",
			policy:         catalog.CancelProRataPackage,
			price:          types.EUR(2000),
			totalUnits:     10,
			remainingUnits: 10,
			validityDays:   30,
			now:            purchased.AddDate(0, 0, 45),
			expected:       types.EUR(0),
		},
		{
			// Partial days do not count as elapsed: 29.5 days in is 29
			// whole days, leaving 1 of 30.
			name:           "pro rata package partial day",
			policy:         catalog.CancelProRataPackage,
			price:          types.EUR(3000),
			totalUnits:     10,
			remainingUnits: 10,
			validityDays:   30,
			now:            purchased.Add(29*24*time.Hour + 12*time.Hour),
			expected:       types.EUR(100),
		},
		{
			name:           "unknown policy yields zero",
			policy:         catalog.CancellationPolicy("bogus"),
			price:          types.EUR(50000),
			totalUnits:     10,
			remainingUnits: 5,
			now:            purchased,
			expected:       types.EUR(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RefundAmount(tt.policy, tt.price, tt.totalUnits, tt.remainingUnits,
				tt.validityDays, purchased, tt.now)
			if !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}
