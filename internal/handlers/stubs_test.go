package handlers

import (
	"context"
	"net/http"

	"github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/services"
)

func withIdentity(req *http.Request, accountID string, roles ...string) *http.Request {
	if len(roles) == 0 {
		roles = []string{auth.RoleCustomer}
	}
	identity := &auth.Identity{AccountID: accountID, Email: accountID + "@example.ph", Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

type stubCatalogService struct {
	listFn        func(ctx context.Context, filter services.ProductListFilter) (domain.Page[services.Product], error)
	getFn         func(ctx context.Context, productID string) (services.Product, error)
	categoriesFn  func(ctx context.Context) ([]string, error)
	createFn      func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	setPriceFn    func(ctx context.Context, cmd services.SetPriceCommand) (services.Product, error)
	setStockFn    func(ctx context.Context, cmd services.SetStockCommand) (services.Product, error)
	deleteFn      func(ctx context.Context, cmd services.DeleteProductCommand) error
	subcategories []string
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.Page[services.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[services.Product]{}, nil
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]string, error) {
	if s.categoriesFn != nil {
		return s.categoriesFn(ctx)
	}
	return nil, nil
}

func (s *stubCatalogService) ListSubcategories(context.Context, string) ([]string, error) {
	return s.subcategories, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.Product{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) UpdateProduct(context.Context, services.UpsertProductCommand) (services.Product, error) {
	return services.Product{}, nil
}

func (s *stubCatalogService) SetStock(ctx context.Context, cmd services.SetStockCommand) (services.Product, error) {
	if s.setStockFn != nil {
		return s.setStockFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) SetPrice(ctx context.Context, cmd services.SetPriceCommand) (services.Product, error) {
	if s.setPriceFn != nil {
		return s.setPriceFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) SetDiscount(context.Context, services.SetDiscountCommand) (services.Product, error) {
	return services.Product{}, nil
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, cmd services.DeleteProductCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return nil
}

type stubCartService struct {
	getFn   func(ctx context.Context, owner services.CartOwner) (services.CartView, error)
	addFn   func(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error)
	setFn   func(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error)
	mergeFn func(ctx context.Context, from, into services.CartOwner) (services.CartView, error)
	cleared []services.CartOwner
	removed []string
}

func (s *stubCartService) Get(ctx context.Context, owner services.CartOwner) (services.CartView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, owner)
	}
	return services.CartView{Owner: owner}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.CartView{Owner: cmd.Owner}, nil
}

func (s *stubCartService) SetQuantity(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error) {
	if s.setFn != nil {
		return s.setFn(ctx, cmd)
	}
	return services.CartView{Owner: cmd.Owner}, nil
}

func (s *stubCartService) RemoveItem(_ context.Context, owner services.CartOwner, productID string) (services.CartView, error) {
	s.removed = append(s.removed, productID)
	return services.CartView{Owner: owner}, nil
}

func (s *stubCartService) Clear(_ context.Context, owner services.CartOwner) error {
	s.cleared = append(s.cleared, owner)
	return nil
}

func (s *stubCartService) Merge(ctx context.Context, from, into services.CartOwner) (services.CartView, error) {
	if s.mergeFn != nil {
		return s.mergeFn(ctx, from, into)
	}
	return services.CartView{Owner: into}, nil
}

type stubCheckoutService struct {
	quoteFn    func(ctx context.Context, cmd services.ShippingQuoteCommand) (int64, error)
	summaryFn  func(ctx context.Context, cmd services.CheckoutSummaryCommand) (services.CheckoutSummary, error)
	placeFn    func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error)
	completeFn func(ctx context.Context, cmd services.PaymentOutcomeCommand) (services.Order, error)
	placeCalls int
}

func (s *stubCheckoutService) QuoteShipping(ctx context.Context, cmd services.ShippingQuoteCommand) (int64, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, cmd)
	}
	return 0, nil
}

func (s *stubCheckoutService) Summary(ctx context.Context, cmd services.CheckoutSummaryCommand) (services.CheckoutSummary, error) {
	if s.summaryFn != nil {
		return s.summaryFn(ctx, cmd)
	}
	return services.CheckoutSummary{}, nil
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
	s.placeCalls++
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.PlaceOrderResult{}, nil
}

func (s *stubCheckoutService) CompletePayment(ctx context.Context, cmd services.PaymentOutcomeCommand) (services.Order, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, cmd)
	}
	return services.Order{ID: cmd.OrderID}, nil
}

type stubVoucherService struct {
	applyFn  func(ctx context.Context, cmd services.ApplyVoucherCommand) (services.VoucherReservation, error)
	createFn func(ctx context.Context, cmd services.UpsertVoucherCommand) (services.Voucher, error)
	deleteFn func(ctx context.Context, cmd services.DeleteVoucherCommand) (services.VoucherDeletion, error)
	removed  []services.CartOwner
}

func (s *stubVoucherService) Evaluate(context.Context, string, int64, string) (services.VoucherQuote, error) {
	return services.VoucherQuote{}, nil
}

func (s *stubVoucherService) Apply(ctx context.Context, cmd services.ApplyVoucherCommand) (services.VoucherReservation, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, cmd)
	}
	return services.VoucherReservation{Code: cmd.Code}, nil
}

func (s *stubVoucherService) Remove(_ context.Context, owner services.CartOwner) error {
	s.removed = append(s.removed, owner)
	return nil
}

func (s *stubVoucherService) Current(context.Context, services.CartOwner) (*services.VoucherReservation, error) {
	return nil, nil
}

func (s *stubVoucherService) ListVouchers(context.Context, services.VoucherListFilter) (domain.Page[services.Voucher], error) {
	return domain.Page[services.Voucher]{}, nil
}

func (s *stubVoucherService) GetVoucher(_ context.Context, code string) (services.Voucher, error) {
	return services.Voucher{Code: code}, nil
}

func (s *stubVoucherService) CreateVoucher(ctx context.Context, cmd services.UpsertVoucherCommand) (services.Voucher, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Voucher{Code: cmd.Code}, nil
}

func (s *stubVoucherService) UpdateVoucher(_ context.Context, cmd services.UpsertVoucherCommand) (services.Voucher, error) {
	return services.Voucher{Code: cmd.Code}, nil
}

func (s *stubVoucherService) DeleteVoucher(ctx context.Context, cmd services.DeleteVoucherCommand) (services.VoucherDeletion, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return services.VoucherDeletion{Code: cmd.Code}, nil
}

func (s *stubVoucherService) ListUsage(context.Context, string, services.Pagination) (domain.Page[services.VoucherUsage], error) {
	return domain.Page[services.VoucherUsage]{}, nil
}

type stubOrderService struct {
	getFn        func(ctx context.Context, query services.OrderQuery) (services.Order, error)
	listFn       func(ctx context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error)
	cancelFn     func(ctx context.Context, cmd services.CancelCommand) (services.Order, error)
	transitionFn func(ctx context.Context, cmd services.TransitionCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(context.Context, services.CreateOrderCommand) (services.OrderResult, error) {
	return services.OrderResult{}, nil
}

func (s *stubOrderService) CreatePendingOrder(context.Context, services.CreateOrderCommand) (services.OrderResult, error) {
	return services.OrderResult{}, nil
}

func (s *stubOrderService) ConfirmPayment(_ context.Context, orderID string) (services.Order, error) {
	return services.Order{ID: orderID}, nil
}

func (s *stubOrderService) FailPayment(_ context.Context, orderID string) (services.Order, error) {
	return services.Order{ID: orderID}, nil
}

func (s *stubOrderService) AttachPaymentTransaction(context.Context, string, string) error {
	return nil
}

func (s *stubOrderService) TransitionShipping(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{ID: cmd.OrderID, ShippingStatus: cmd.Target}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{ID: cmd.OrderID}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.OrderQuery) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[services.Order]{}, nil
}

type stubReviewService struct {
	createFn     func(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error)
	updateFn     func(ctx context.Context, cmd services.UpdateReviewCommand) (services.Review, error)
	deleteFn     func(ctx context.Context, cmd services.DeleteReviewCommand) error
	listFn       func(ctx context.Context, productID string, pager services.Pagination) (domain.Page[services.Review], error)
	summary      services.ReviewSummary
	reviewableFn func(ctx context.Context, accountID, orderID string) ([]services.ReviewableItem, error)
}

func (s *stubReviewService) Create(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Review{}, nil
}

func (s *stubReviewService) Update(ctx context.Context, cmd services.UpdateReviewCommand) (services.Review, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Review{ID: cmd.ReviewID}, nil
}

func (s *stubReviewService) Delete(ctx context.Context, cmd services.DeleteReviewCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return nil
}

func (s *stubReviewService) ListByProduct(ctx context.Context, productID string, pager services.Pagination) (domain.Page[services.Review], error) {
	if s.listFn != nil {
		return s.listFn(ctx, productID, pager)
	}
	return domain.Page[services.Review]{}, nil
}

func (s *stubReviewService) Summary(_ context.Context, productID string) (services.ReviewSummary, error) {
	summary := s.summary
	summary.ProductID = productID
	return summary, nil
}

func (s *stubReviewService) ListByAccount(context.Context, string, services.Pagination) (domain.Page[services.Review], error) {
	return domain.Page[services.Review]{}, nil
}

func (s *stubReviewService) Reviewable(ctx context.Context, accountID, orderID string) ([]services.ReviewableItem, error) {
	if s.reviewableFn != nil {
		return s.reviewableFn(ctx, accountID, orderID)
	}
	return nil, nil
}

type stubAddressService struct {
	listFn   func(ctx context.Context, accountID string) ([]services.Address, error)
	createFn func(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error)
	deleteFn func(ctx context.Context, accountID, addressID string) error
}

func (s *stubAddressService) List(ctx context.Context, accountID string) ([]services.Address, error) {
	if s.listFn != nil {
		return s.listFn(ctx, accountID)
	}
	return nil, nil
}

func (s *stubAddressService) Get(_ context.Context, accountID, addressID string) (services.Address, error) {
	return services.Address{ID: addressID, AccountID: accountID}, nil
}

func (s *stubAddressService) Create(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Address{}, nil
}

func (s *stubAddressService) Update(_ context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
	return services.Address{ID: cmd.AddressID, AccountID: cmd.AccountID}, nil
}

func (s *stubAddressService) Delete(ctx context.Context, accountID, addressID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, accountID, addressID)
	}
	return nil
}

type stubStatsService struct {
	dashboard   services.DashboardStats
	revenue     []services.MonthlyRevenue
	monthsAsked int
}

func (s *stubStatsService) Dashboard(context.Context) (services.DashboardStats, error) {
	return s.dashboard, nil
}

func (s *stubStatsService) RevenueByMonth(_ context.Context, months int) ([]services.MonthlyRevenue, error) {
	s.monthsAsked = months
	return s.revenue, nil
}

func (s *stubStatsService) TopProducts(context.Context, int) ([]services.TopProduct, error) {
	return nil, nil
}

func (s *stubStatsService) LowStock(context.Context, int, int) ([]services.Product, error) {
	return nil, nil
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}
