package rates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCalculator_ShippingCost(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	// (10 + 2*2) * 1.2
	require.InDelta(t, 16.8, c.ShippingCost(2, "US"), 1e-9)
	// (10 + 10*2) * 1.3
	require.InDelta(t, 39.0, c.ShippingCost(10, "UK"), 1e-9)
	require.InDelta(t, 15.4, c.ShippingCost(2, "CA"), 1e-9)
	require.InDelta(t, 21.0, c.ShippingCost(2, "AU"), 1e-9)
	require.InDelta(t, 14.0, c.ShippingCost(2, "EU"), 1e-9)

	// неизвестная страна — дефолтный множитель 1.0
	require.InDelta(t, 14.0, c.ShippingCost(2, "JP"), 1e-9)
}

func TestCalculator_BorderFee(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	require.InDelta(t, 25, c.BorderFee("US"), 1e-9)
	require.InDelta(t, 30, c.BorderFee("UK"), 1e-9)
	require.InDelta(t, 20, c.BorderFee("CA"), 1e-9)
	require.InDelta(t, 35, c.BorderFee("AU"), 1e-9)
	require.InDelta(t, 15, c.BorderFee("EU"), 1e-9)
	require.InDelta(t, 20, c.BorderFee("BR"), 1e-9)
}

func TestCalculator_EstimatedDelivery(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, start.AddDate(0, 0, 7), c.EstimatedDelivery(start, "US"))
	require.Equal(t, start.AddDate(0, 0, 5), c.EstimatedDelivery(start, "UK"))
	require.Equal(t, start.AddDate(0, 0, 6), c.EstimatedDelivery(start, "CA"))
	require.Equal(t, start.AddDate(0, 0, 10), c.EstimatedDelivery(start, "AU"))
	require.Equal(t, start.AddDate(0, 0, 4), c.EstimatedDelivery(start, "EU"))
	require.Equal(t, start.AddDate(0, 0, 7), c.EstimatedDelivery(start, "XX"))

	require.True(t, c.EstimatedDelivery(start, "EU").After(start))
}
