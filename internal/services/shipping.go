package services

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	domain "github.com/tindahan/api/internal/domain"
)

const earthRadiusKm = 6371.0088

// ShippingRates are tariffs in minor currency units plus the warehouse origin.
type ShippingRates struct {
	BaseRate          int64
	PerKmRate         int64
	PrioritySurcharge int64
	WarehouseLat      float64
	WarehouseLng      float64
}

// DefaultShippingRates returns the standard Metro Manila tariff.
func DefaultShippingRates() ShippingRates {
	return ShippingRates{
		BaseRate:          5000,
		PerKmRate:         500,
		PrioritySurcharge: 10000,
		WarehouseLat:      14.5995,
		WarehouseLng:      120.9842,
	}
}

type shippingCalculator struct {
	rates  ShippingRates
	logger func(context.Context, string, map[string]any)
}

var _ ShippingCalculator = (*shippingCalculator)(nil)

// NewShippingCalculator builds a distance based calculator.
func NewShippingCalculator(rates ShippingRates, logger func(context.Context, string, map[string]any)) ShippingCalculator {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shippingCalculator{rates: rates, logger: logger}
}

// Fee returns base + km × per-km (+ priority surcharge), rounded half-up to the centavo.
// Pickup is free. An address without coordinates is charged the flat base rate, with no
// priority surcharge.
func (c *shippingCalculator) Fee(ctx context.Context, address Address, deliveryMethod string) int64 {
	if domain.IsPickup(deliveryMethod) {
		return 0
	}

	if !address.HasCoordinates() {
		c.logger(ctx, "shipping.missing_coordinates", map[string]any{
			"addressId": address.ID,
			"method":    deliveryMethod,
		})
		return c.rates.BaseRate
	}

	fee := decimal.NewFromInt(c.rates.BaseRate)
	km := decimal.NewFromFloat(HaversineKm(c.rates.WarehouseLat, c.rates.WarehouseLng, *address.Latitude, *address.Longitude))
	fee = fee.Add(km.Mul(decimal.NewFromInt(c.rates.PerKmRate)))
	if domain.IsPriority(deliveryMethod) {
		fee = fee.Add(decimal.NewFromInt(c.rates.PrioritySurcharge))
	}
	// Minor units at scale 0 are major units at 2dp.
	return fee.Round(0).IntPart()
}

// HaversineKm is the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
