package di

import (
	"context"
	"testing"

	"github.com/tindahan/api/internal/platform/config"
	"github.com/tindahan/api/internal/services"
)

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil); err == nil {
		t.Fatalf("expected error without registry")
	}
}

func TestShippingRatesFallsBackPerField(t *testing.T) {
	defaults := services.DefaultShippingRates()

	got := shippingRates(config.ShippingConfig{})
	if got != defaults {
		t.Fatalf("expected defaults, got %+v", got)
	}

	got = shippingRates(config.ShippingConfig{PerKmRate: 700, WarehouseLat: 10.3157, WarehouseLng: 123.8854})
	if got.PerKmRate != 700 || got.BaseRate != defaults.BaseRate || got.PrioritySurcharge != defaults.PrioritySurcharge {
		t.Fatalf("unexpected tariff %+v", got)
	}
	if got.WarehouseLat != 10.3157 || got.WarehouseLng != 123.8854 {
		t.Fatalf("unexpected origin %+v", got)
	}
}

func TestNewRegistryRequiresClients(t *testing.T) {
	if _, err := NewRegistry(nil, nil, config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without postgres provider")
	}
}
