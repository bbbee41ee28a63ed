package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

const (
	defaultRevenueMonths = 12
	maxRevenueMonths     = 60
	defaultTopProducts   = 10
	maxTopProducts       = 100
)

type StatsServiceDeps struct {
	Stats     repositories.StatsRepository
	Inventory InventoryService
	Clock     func() time.Time
}

type statsService struct {
	stats     repositories.StatsRepository
	inventory InventoryService
	clock     func() time.Time
}

// NewStatsService constructs the admin dashboard aggregator.
func NewStatsService(deps StatsServiceDeps) (StatsService, error) {
	if deps.Stats == nil {
		return nil, errors.New("stats service: stats repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("stats service: inventory service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &statsService{
		stats:     deps.Stats,
		inventory: deps.Inventory,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

// Dashboard runs the independent aggregate queries concurrently.
func (s *statsService) Dashboard(ctx context.Context) (DashboardStats, error) {
	var (
		byStatus map[domain.ShippingStatus]int
		revenue  int64
		products int
		lowStock int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.stats.CountOrdersByShippingStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		revenue, err = s.stats.SumPaidRevenue(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = s.stats.CountProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		lowStock, err = s.stats.CountLowStock(gctx, defaultLowStockThreshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardStats{}, fmt.Errorf("stats: dashboard: %w", err)
	}

	stats := DashboardStats{
		TotalProducts: products,
		TotalRevenue:  revenue,
		LowStockCount: lowStock,
	}
	for status, count := range byStatus {
		stats.TotalOrders += count
		switch status {
		case domain.ShippingProcessing:
			stats.PendingOrders += count
			stats.ActiveOrders += count
		case domain.ShippingPreparingForShipment, domain.ShippingInTransit:
			stats.ActiveOrders += count
		case domain.ShippingDelivered, domain.ShippingCollected:
			stats.CompletedOrders += count
		case domain.ShippingCancelled:
			stats.CancelledOrders += count
		}
	}
	return stats, nil
}

// RevenueByMonth returns paid revenue for the trailing months, oldest first, with empty
// months filled in.
func (s *statsService) RevenueByMonth(ctx context.Context, months int) ([]MonthlyRevenue, error) {
	if months <= 0 {
		months = defaultRevenueMonths
	}
	if months > maxRevenueMonths {
		months = maxRevenueMonths
	}
	now := s.clock()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	rows, err := s.stats.RevenueByMonth(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("stats: revenue: %w", err)
	}
	byMonth := make(map[string]MonthlyRevenue, len(rows))
	for _, row := range rows {
		byMonth[row.Month] = row
	}
	out := make([]MonthlyRevenue, 0, months)
	for i := 0; i < months; i++ {
		key := start.AddDate(0, i, 0).Format("2006-01")
		row, ok := byMonth[key]
		if !ok {
			row = MonthlyRevenue{Month: key}
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *statsService) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = defaultTopProducts
	}
	if limit > maxTopProducts {
		limit = maxTopProducts
	}
	items, err := s.stats.TopProducts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("stats: top products: %w", err)
	}
	return items, nil
}

func (s *statsService) LowStock(ctx context.Context, threshold int, limit int) ([]Product, error) {
	items, err := s.inventory.ListLowStock(ctx, InventoryLowStockFilter{Threshold: threshold, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("stats: low stock: %w", err)
	}
	return items, nil
}
