package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/textutil"
	"github.com/tindahan/api/internal/repositories"
)

const (
	productIDPrefix       = "prd_"
	maxProductNameLength  = 200
	maxProductDescription = 5000
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a duplicate product or one still referenced by orders.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products repositories.ProductRepository
	audit    AuditLogService
	clock    func() time.Time
	newID    func() string
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &catalogService{
		products: deps.Products,
		audit:    deps.Audit,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.Page[Product], error) {
	page, err := s.products.List(ctx, repositories.ProductFilter{
		Category:    strings.TrimSpace(filter.Category),
		Subcategory: strings.TrimSpace(filter.Subcategory),
		Query:       strings.TrimSpace(filter.Query),
		OnSaleOnly:  filter.OnSaleOnly,
		Pagination:  filter.Pagination,
	})
	if err != nil {
		return domain.Page[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := s.products.ListCategories(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return categories, nil
}

func (s *catalogService) ListSubcategories(ctx context.Context, category string) ([]string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrCatalogInvalidInput)
	}
	subcategories, err := s.products.ListSubcategories(ctx, category)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return subcategories, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := buildProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	now := s.clock()
	product.ID = productIDPrefix + s.newID()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.record(ctx, cmd.ActorID, "product.create", product.ID, map[string]any{
		"name":  product.Name,
		"price": product.Price,
		"stock": product.StockQuantity,
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	next, err := buildProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	existing, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	next.ID = existing.ID
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, next); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.record(ctx, cmd.ActorID, "product.update", next.ID, map[string]any{
		"name":  next.Name,
		"price": next.Price,
	})
	return next, nil
}

func (s *catalogService) SetStock(ctx context.Context, cmd SetStockCommand) (Product, error) {
	if cmd.Quantity < 0 {
		return Product{}, fmt.Errorf("%w: quantity cannot be negative", ErrCatalogInvalidInput)
	}
	var previous int
	product, err := s.mutate(ctx, cmd.ProductID, func(p *Product) error {
		previous = p.StockQuantity
		p.StockQuantity = cmd.Quantity
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, cmd.ActorID, "product.stock", product.ID, map[string]any{
		"from": previous,
		"to":   product.StockQuantity,
	})
	return product, nil
}

// SetPrice changes the list price. A sale priced at or above the new price is switched off.
func (s *catalogService) SetPrice(ctx context.Context, cmd SetPriceCommand) (Product, error) {
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	var (
		previous     int64
		saleDisabled bool
	)
	product, err := s.mutate(ctx, cmd.ProductID, func(p *Product) error {
		previous = p.Price
		p.Price = cmd.Price
		if p.OnSale && p.SalePrice != nil && cmd.Price <= *p.SalePrice {
			p.OnSale = false
			saleDisabled = true
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, cmd.ActorID, "product.price", product.ID, map[string]any{
		"from":         previous,
		"to":           product.Price,
		"saleDisabled": saleDisabled,
	})
	return product, nil
}

func (s *catalogService) SetDiscount(ctx context.Context, cmd SetDiscountCommand) (Product, error) {
	product, err := s.mutate(ctx, cmd.ProductID, func(p *Product) error {
		if cmd.OnSale {
			if cmd.SalePrice == nil || *cmd.SalePrice <= 0 {
				return fmt.Errorf("%w: sale_price is required when on_sale is set", ErrCatalogInvalidInput)
			}
			if *cmd.SalePrice >= p.Price {
				return fmt.Errorf("%w: sale_price must be below the price", ErrCatalogInvalidInput)
			}
		}
		if cmd.SalePrice != nil {
			sale := *cmd.SalePrice
			p.SalePrice = &sale
		}
		p.OnSale = cmd.OnSale
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	details := map[string]any{"onSale": product.OnSale}
	if product.SalePrice != nil {
		details["salePrice"] = *product.SalePrice
	}
	s.record(ctx, cmd.ActorID, "product.discount", product.ID, details)
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.record(ctx, cmd.ActorID, "product.delete", productID, nil)
	return nil
}

func (s *catalogService) mutate(ctx context.Context, productID string, apply func(*Product) error) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if err := apply(&product); err != nil {
		return Product{}, err
	}
	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) record(ctx context.Context, actorID, action, productID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		ActorID:    actorID,
		Action:     action,
		TargetType: "product",
		TargetID:   productID,
		Details:    details,
		OccurredAt: s.clock(),
	})
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}

func buildProduct(cmd UpsertProductCommand) (Product, error) {
	name := textutil.PlainText(cmd.Name, 0)
	if name == "" || len([]rune(name)) > maxProductNameLength {
		return Product{}, fmt.Errorf("%w: name must be 1-%d characters", ErrCatalogInvalidInput, maxProductNameLength)
	}
	category := strings.TrimSpace(cmd.Category)
	if category == "" {
		return Product{}, fmt.Errorf("%w: category is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.StockQuantity < 0 {
		return Product{}, fmt.Errorf("%w: stock_quantity cannot be negative", ErrCatalogInvalidInput)
	}
	if cmd.SalePrice != nil && *cmd.SalePrice <= 0 {
		return Product{}, fmt.Errorf("%w: sale_price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.OnSale && (cmd.SalePrice == nil || *cmd.SalePrice >= cmd.Price) {
		return Product{}, fmt.Errorf("%w: sale_price must be below the price", ErrCatalogInvalidInput)
	}
	imageURL := strings.TrimSpace(cmd.ImageURL)
	if imageURL != "" {
		parsed, err := url.Parse(imageURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return Product{}, fmt.Errorf("%w: image_url must be an absolute http(s) url", ErrCatalogInvalidInput)
		}
	}

	var salePrice *int64
	if cmd.SalePrice != nil {
		sale := *cmd.SalePrice
		salePrice = &sale
	}
	return Product{
		Name:          name,
		Description:   textutil.PlainText(cmd.Description, maxProductDescription),
		Category:      category,
		Subcategory:   strings.TrimSpace(cmd.Subcategory),
		ImageURL:      imageURL,
		Price:         cmd.Price,
		SalePrice:     salePrice,
		OnSale:        cmd.OnSale,
		StockQuantity: cmd.StockQuantity,
	}, nil
}
