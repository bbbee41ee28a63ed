package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

const (
	eventInventoryReserve = "inventory.reserve"
	eventInventoryRelease = "inventory.release"

	defaultLowStockThreshold = 10
	defaultLowStockLimit     = 50
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryProductUnavailable reports an ordered product that no longer exists.
	ErrInventoryProductUnavailable = fmt.Errorf("%w: product is no longer available", ErrOrderConflict)
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ InventoryService = (*inventoryService)(nil)

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ReserveStocks row-locks every product on the order and takes the requested quantities. The
// whole order is checked before the first decrement so a short line leaves stock untouched.
// Call it inside the transaction that writes the order.
func (s *inventoryService) ReserveStocks(ctx context.Context, cmd InventoryReserveCommand) (InventoryReservation, error) {
	items, err := normaliseStockItems(cmd.Items)
	if err != nil {
		return InventoryReservation{}, err
	}

	products, err := s.products.LockByIDs(ctx, stockItemIDs(items))
	if err != nil {
		return InventoryReservation{}, s.mapRepositoryError(err)
	}
	for _, item := range items {
		if _, ok := products[item.ProductID]; !ok {
			return InventoryReservation{}, fmt.Errorf("%w: %s", ErrInventoryProductUnavailable, item.ProductID)
		}
	}

	var short []StockShortfall
	for _, item := range items {
		product := products[item.ProductID]
		if product.StockQuantity < item.Quantity {
			short = append(short, StockShortfall{
				ProductID: item.ProductID,
				Name:      product.Name,
				Requested: item.Quantity,
				Available: product.StockQuantity,
			})
		}
	}
	if len(short) > 0 {
		return InventoryReservation{}, &InsufficientStockError{Lines: short}
	}

	levels := make(map[string]int, len(items))
	for _, item := range items {
		remaining, err := s.products.AdjustStock(ctx, item.ProductID, -item.Quantity)
		if err != nil {
			var stockErr *repositories.StockError
			if errors.As(err, &stockErr) {
				return InventoryReservation{}, &InsufficientStockError{Lines: []StockShortfall{{
					ProductID: item.ProductID,
					Name:      products[item.ProductID].Name,
					Requested: item.Quantity,
					Available: stockErr.Available,
				}}}
			}
			return InventoryReservation{}, s.mapRepositoryError(err)
		}
		levels[item.ProductID] = remaining
	}

	s.logger(ctx, eventInventoryReserve, map[string]any{
		"orderId": strings.TrimSpace(cmd.OrderID),
		"items":   len(items),
		"levels":  levels,
	})
	return InventoryReservation{
		OrderID:    strings.TrimSpace(cmd.OrderID),
		Products:   products,
		Levels:     levels,
		ReservedAt: s.clock(),
	}, nil
}

// ReleaseStocks returns held quantities to the catalog. Products deleted since the order was
// placed are skipped and logged.
func (s *inventoryService) ReleaseStocks(ctx context.Context, cmd InventoryReleaseCommand) (map[string]int, error) {
	if len(cmd.Items) == 0 {
		return map[string]int{}, nil
	}
	items, err := normaliseStockItems(cmd.Items)
	if err != nil {
		return nil, err
	}

	products, err := s.products.LockByIDs(ctx, stockItemIDs(items))
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	levels := make(map[string]int, len(items))
	for _, item := range items {
		if _, ok := products[item.ProductID]; !ok {
			s.logger(ctx, "inventory.release.product_missing", map[string]any{
				"orderId":   cmd.OrderID,
				"productId": item.ProductID,
			})
			continue
		}
		remaining, err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		levels[item.ProductID] = remaining
	}

	s.logger(ctx, eventInventoryRelease, map[string]any{
		"orderId": strings.TrimSpace(cmd.OrderID),
		"reason":  strings.TrimSpace(cmd.Reason),
		"levels":  levels,
	})
	return levels, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, filter InventoryLowStockFilter) ([]Product, error) {
	threshold := filter.Threshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLowStockLimit
	}
	items, err := s.products.ListLowStock(ctx, threshold, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return items, nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInventoryProductUnavailable, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("inventory: repository unavailable: %w", err)
		}
	}
	return err
}

// normaliseStockItems merges repeated products and sorts by product id, the order rows are
// locked and adjusted in.
func normaliseStockItems(items []StockItem) ([]StockItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInventoryInvalidInput)
	}
	merged := make(map[string]int, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInventoryInvalidInput, productID)
		}
		merged[productID] += item.Quantity
	}
	out := make([]StockItem, 0, len(merged))
	for productID, quantity := range merged {
		out = append(out, StockItem{ProductID: productID, Quantity: quantity})
	}
	slices.SortFunc(out, func(a, b StockItem) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return out, nil
}

func stockItemIDs(items []StockItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func orderStockItems(lines []OrderLine) []StockItem {
	items := make([]StockItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, StockItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return items
}

func cartStockItems(cart domain.Cart) []StockItem {
	items := make([]StockItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		items = append(items, StockItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return items
}
