// Package rates computes shipping cost, border fee and delivery estimate
// from fixed per-country tables. Pure functions, no I/O.
package rates

import "time"

type Config struct {
	BaseCost            float64
	PerKilo             float64
	Multipliers         map[string]float64
	BorderFees          map[string]float64
	DeliveryDays        map[string]int
	DefaultMultiplier   float64
	DefaultBorderFee    float64
	DefaultDeliveryDays int
}

// DefaultConfig — таблицы-заглушки вместо настоящего rating-движка.
// Значения зафиксированы для совместимости, менять без миграции нельзя.
func DefaultConfig() Config {
	return Config{
		BaseCost: 10,
		PerKilo:  2,
		Multipliers: map[string]float64{
			"US": 1.2,
			"UK": 1.3,
			"CA": 1.1,
			"AU": 1.5,
			"EU": 1.0,
		},
		BorderFees: map[string]float64{
			"US": 25,
			"UK": 30,
			"CA": 20,
			"AU": 35,
			"EU": 15,
		},
		DeliveryDays: map[string]int{
			"US": 7,
			"UK": 5,
			"CA": 6,
			"AU": 10,
			"EU": 4,
		},
		DefaultMultiplier:   1.0,
		DefaultBorderFee:    20,
		DefaultDeliveryDays: 7,
	}
}

type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

func (c *Calculator) ShippingCost(weight float64, country string) float64 {
	m, ok := c.cfg.Multipliers[country]
	if !ok {
		m = c.cfg.DefaultMultiplier
	}
	return (c.cfg.BaseCost + weight*c.cfg.PerKilo) * m
}

func (c *Calculator) BorderFee(country string) float64 {
	fee, ok := c.cfg.BorderFees[country]
	if !ok {
		fee = c.cfg.DefaultBorderFee
	}
	return fee
}

// EstimatedDelivery adds the per-country transit offset to the creation
// time.
func (c *Calculator) EstimatedDelivery(createdAt time.Time, country string) time.Time {
	days, ok := c.cfg.DeliveryDays[country]
	if !ok {
		days = c.cfg.DefaultDeliveryDays
	}
	return createdAt.AddDate(0, 0, days)
}
