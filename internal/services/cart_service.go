package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals a bad quantity or product id.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartOwnerRequired is returned when neither a session nor an account owns the request.
	ErrCartOwnerRequired = errors.New("cart: owner required")
	// ErrCartProductNotFound indicates the product does not exist.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartInsufficientStock is matched by every CartStockError.
	ErrCartInsufficientStock = errors.New("cart: insufficient stock")
)

// CartStockError reports the stock ceiling a cart line ran into.
type CartStockError struct {
	ProductID string
	Available int
}

func (e *CartStockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("Only %d items available in stock", e.Available)
}

func (e *CartStockError) Unwrap() error { return ErrCartInsufficientStock }

// CartServiceDeps bundles collaborators for the cart service.
type CartServiceDeps struct {
	AccountCarts repositories.CartRepository
	SessionCarts repositories.CartRepository
	Products     repositories.ProductRepository
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	accountCarts repositories.CartRepository
	sessionCarts repositories.CartRepository
	products     repositories.ProductRepository
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a cart service that routes each owner to its store.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.AccountCarts == nil {
		return nil, errors.New("cart service: account cart repository is required")
	}
	if deps.SessionCarts == nil {
		return nil, errors.New("cart service: session cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		accountCarts: deps.AccountCarts,
		sessionCarts: deps.SessionCarts,
		products:     deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cartService) Get(ctx context.Context, owner CartOwner) (CartView, error) {
	store, err := s.storeFor(owner)
	if err != nil {
		return CartView{}, err
	}
	cart, err := store.Load(ctx, owner)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	return s.price(ctx, cart)
}

func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (CartView, error) {
	return s.write(ctx, cmd, true)
}

func (s *cartService) SetQuantity(ctx context.Context, cmd CartItemCommand) (CartView, error) {
	return s.write(ctx, cmd, false)
}

func (s *cartService) write(ctx context.Context, cmd CartItemCommand, additive bool) (CartView, error) {
	store, err := s.storeFor(cmd.Owner)
	if err != nil {
		return CartView{}, err
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
		}
		return CartView{}, s.mapRepositoryError(err)
	}

	quantity := cmd.Quantity
	if additive {
		cart, err := store.Load(ctx, cmd.Owner)
		if err != nil {
			return CartView{}, s.mapRepositoryError(err)
		}
		for _, line := range cart.Lines {
			if line.ProductID == productID {
				quantity += line.Quantity
				break
			}
		}
	}
	if quantity > product.StockQuantity {
		return CartView{}, &CartStockError{ProductID: productID, Available: product.StockQuantity}
	}

	if err := store.SetQuantity(ctx, cmd.Owner, productID, quantity, s.clock()); err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	return s.Get(ctx, cmd.Owner)
}

func (s *cartService) RemoveItem(ctx context.Context, owner CartOwner, productID string) (CartView, error) {
	store, err := s.storeFor(owner)
	if err != nil {
		return CartView{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if err := store.RemoveLine(ctx, owner, productID); err != nil && !isRepoNotFound(err) {
		return CartView{}, s.mapRepositoryError(err)
	}
	return s.Get(ctx, owner)
}

func (s *cartService) Clear(ctx context.Context, owner CartOwner) error {
	store, err := s.storeFor(owner)
	if err != nil {
		return err
	}
	return s.mapRepositoryError(store.Clear(ctx, owner))
}

// Merge folds a session cart into an account cart on sign-in. Quantities add up and are
// clamped to the current stock; out of stock lines are dropped. The session cart is emptied.
func (s *cartService) Merge(ctx context.Context, from CartOwner, into CartOwner) (CartView, error) {
	if !from.IsSession() || !into.IsAccount() {
		return CartView{}, fmt.Errorf("%w: merge moves a session cart into an account cart", ErrCartInvalidInput)
	}

	source, err := s.sessionCarts.Load(ctx, from)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	if len(source.Lines) == 0 {
		return s.Get(ctx, into)
	}
	target, err := s.accountCarts.Load(ctx, into)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	existing := make(map[string]int, len(target.Lines))
	for _, line := range target.Lines {
		existing[line.ProductID] = line.Quantity
	}

	products, err := s.products.FindByIDs(ctx, cartProductIDs(source))
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	now := s.clock()
	for _, line := range source.Lines {
		product, ok := products[line.ProductID]
		if !ok || product.StockQuantity <= 0 {
			continue
		}
		quantity := min(existing[line.ProductID]+line.Quantity, product.StockQuantity)
		if err := s.accountCarts.SetQuantity(ctx, into, line.ProductID, quantity, now); err != nil {
			return CartView{}, s.mapRepositoryError(err)
		}
	}

	if err := s.sessionCarts.Clear(ctx, from); err != nil {
		s.logger(ctx, "cart.merge.clear_failed", map[string]any{"owner": from.Key(), "error": err.Error()})
	}
	return s.Get(ctx, into)
}

// price joins a stored cart with the live catalog. Lines whose product was deleted are
// omitted from the view.
func (s *cartService) price(ctx context.Context, cart domain.Cart) (CartView, error) {
	view := CartView{Owner: cart.Owner, Lines: []domain.PricedCartLine{}}
	if len(cart.Lines) == 0 {
		return view, nil
	}
	products, err := s.products.FindByIDs(ctx, cartProductIDs(cart))
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	for _, line := range cart.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			s.logger(ctx, "cart.product_missing", map[string]any{"owner": cart.Owner.Key(), "productId": line.ProductID})
			continue
		}
		unit := product.EffectivePrice()
		priced := domain.PricedCartLine{
			ProductID:     product.ID,
			Name:          product.Name,
			ImageURL:      product.ImageURL,
			UnitPrice:     unit,
			Quantity:      line.Quantity,
			LineTotal:     unit * int64(line.Quantity),
			StockQuantity: product.StockQuantity,
		}
		view.Lines = append(view.Lines, priced)
		view.Subtotal += priced.LineTotal
		view.ItemCount += priced.Quantity
	}
	return view, nil
}

func (s *cartService) storeFor(owner CartOwner) (repositories.CartRepository, error) {
	switch {
	case owner.IsAccount():
		return s.accountCarts, nil
	case owner.IsSession():
		return s.sessionCarts, nil
	default:
		return nil, ErrCartOwnerRequired
	}
}

func (s *cartService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("cart: repository unavailable: %w", err)
	}
	return err
}

func cartProductIDs(cart domain.Cart) []string {
	ids := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}
