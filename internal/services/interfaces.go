package services

import (
	"context"
	"time"

	domain "github.com/tindahan/api/internal/domain"
)

// Domain type aliases keep service signatures short for handler consumers.
type (
	Product            = domain.Product
	Store              = domain.Store
	Address            = domain.Address
	CartOwner          = domain.CartOwner
	CartView           = domain.CartView
	Voucher            = domain.Voucher
	VoucherUsage       = domain.VoucherUsage
	VoucherReservation = domain.VoucherReservation
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	Review             = domain.Review
	ReviewSummary      = domain.ReviewSummary
	ReviewableItem     = domain.ReviewableItem
	AuditLogEntry      = domain.AuditLogEntry
	DashboardStats     = domain.DashboardStats
	MonthlyRevenue     = domain.MonthlyRevenue
	TopProduct         = domain.TopProduct
	SystemHealthReport = domain.SystemHealthReport
	Pagination         = domain.Pagination
	PriceBreakdown     = domain.PriceBreakdown
	PricedCartLine     = domain.PricedCartLine
)

// CatalogService exposes product browsing and the admin inventory mutations.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.Page[Product], error)
	ListCategories(ctx context.Context) ([]string, error)
	ListSubcategories(ctx context.Context, category string) ([]string, error)
	GetProduct(ctx context.Context, productID string) (Product, error)

	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	SetStock(ctx context.Context, cmd SetStockCommand) (Product, error)
	SetPrice(ctx context.Context, cmd SetPriceCommand) (Product, error)
	SetDiscount(ctx context.Context, cmd SetDiscountCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
}

// InventoryService holds and returns product stock for orders and reports low stock.
type InventoryService interface {
	ReserveStocks(ctx context.Context, cmd InventoryReserveCommand) (InventoryReservation, error)
	ReleaseStocks(ctx context.Context, cmd InventoryReleaseCommand) (map[string]int, error)
	ListLowStock(ctx context.Context, filter InventoryLowStockFilter) ([]Product, error)
}

// CartService aggregates session and account carts against the live catalog.
type CartService interface {
	Get(ctx context.Context, owner CartOwner) (CartView, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (CartView, error)
	SetQuantity(ctx context.Context, cmd CartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, owner CartOwner, productID string) (CartView, error)
	Clear(ctx context.Context, owner CartOwner) error
	Merge(ctx context.Context, from CartOwner, into CartOwner) (CartView, error)
}

// ShippingCalculator prices delivery from the warehouse to an address.
type ShippingCalculator interface {
	Fee(ctx context.Context, address Address, deliveryMethod string) int64
}

// VoucherService validates vouchers, manages the per-owner reservation slot and the admin
// voucher catalogue.
type VoucherService interface {
	Evaluate(ctx context.Context, code string, subtotal int64, accountID string) (VoucherQuote, error)
	Apply(ctx context.Context, cmd ApplyVoucherCommand) (VoucherReservation, error)
	Remove(ctx context.Context, owner CartOwner) error
	Current(ctx context.Context, owner CartOwner) (*VoucherReservation, error)

	ListVouchers(ctx context.Context, filter VoucherListFilter) (domain.Page[Voucher], error)
	GetVoucher(ctx context.Context, code string) (Voucher, error)
	CreateVoucher(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error)
	UpdateVoucher(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error)
	DeleteVoucher(ctx context.Context, cmd DeleteVoucherCommand) (VoucherDeletion, error)
	ListUsage(ctx context.Context, code string, pager Pagination) (domain.Page[VoucherUsage], error)
}

// OrderService creates orders and drives their payment and shipping lifecycle.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error)
	CreatePendingOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error)
	ConfirmPayment(ctx context.Context, orderID string) (Order, error)
	FailPayment(ctx context.Context, orderID string) (Order, error)
	AttachPaymentTransaction(ctx context.Context, orderID string, transactionID string) error
	TransitionShipping(ctx context.Context, cmd TransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelCommand) (Order, error)
	GetOrder(ctx context.Context, query OrderQuery) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
}

// CheckoutService composes cart, voucher, shipping, order and gateway collaborators.
type CheckoutService interface {
	QuoteShipping(ctx context.Context, cmd ShippingQuoteCommand) (int64, error)
	Summary(ctx context.Context, cmd CheckoutSummaryCommand) (CheckoutSummary, error)
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	CompletePayment(ctx context.Context, cmd PaymentOutcomeCommand) (Order, error)
}

// PaymentGateway creates hosted checkout sessions for redirect payment methods.
type PaymentGateway interface {
	Supports(paymentMethod string) bool
	CreateCheckoutSession(ctx context.Context, req PaymentSessionRequest) (PaymentSession, error)
}

// ReviewService manages product reviews tied to delivered order items.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	Update(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	Delete(ctx context.Context, cmd DeleteReviewCommand) error
	ListByProduct(ctx context.Context, productID string, pager Pagination) (domain.Page[Review], error)
	Summary(ctx context.Context, productID string) (ReviewSummary, error)
	ListByAccount(ctx context.Context, accountID string, pager Pagination) (domain.Page[Review], error)
	Reviewable(ctx context.Context, accountID string, orderID string) ([]ReviewableItem, error)
}

// AddressService manages an account's delivery addresses.
type AddressService interface {
	List(ctx context.Context, accountID string) ([]Address, error)
	Get(ctx context.Context, accountID string, addressID string) (Address, error)
	Create(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	Update(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	Delete(ctx context.Context, accountID string, addressID string) error
}

// StoreService lists pickup locations.
type StoreService interface {
	List(ctx context.Context, query string) ([]Store, error)
	Get(ctx context.Context, storeID string) (Store, error)
}

// StatsService aggregates admin dashboard figures.
type StatsService interface {
	Dashboard(ctx context.Context) (DashboardStats, error)
	RevenueByMonth(ctx context.Context, months int) ([]MonthlyRevenue, error)
	TopProducts(ctx context.Context, limit int) ([]TopProduct, error)
	LowStock(ctx context.Context, threshold int, limit int) ([]Product, error)
}

// AuditLogService records and lists administrative mutations.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.Page[AuditLogEntry], error)
}

// SystemService exposes readiness information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions -------------------------------------------------

// StockItem is a quantity of one product moving in or out of the catalog.
type StockItem struct {
	ProductID string
	Quantity  int
}

type InventoryReserveCommand struct {
	OrderID string
	Items   []StockItem
}

// InventoryReservation carries the product rows as locked before the decrement and the stock
// left afterwards.
type InventoryReservation struct {
	OrderID    string
	Products   map[string]Product
	Levels     map[string]int
	ReservedAt time.Time
}

type InventoryReleaseCommand struct {
	OrderID string
	Items   []StockItem
	Reason  string
}

type InventoryLowStockFilter struct {
	Threshold int
	Limit     int
}

type ProductListFilter struct {
	Category    string
	Subcategory string
	Query       string
	OnSaleOnly  bool
	Pagination  Pagination
}

type UpsertProductCommand struct {
	ProductID     string
	Name          string
	Description   string
	Category      string
	Subcategory   string
	ImageURL      string
	Price         int64
	SalePrice     *int64
	OnSale        bool
	StockQuantity int
	ActorID       string
}

type SetStockCommand struct {
	ProductID string
	Quantity  int
	ActorID   string
}

type SetPriceCommand struct {
	ProductID string
	Price     int64
	ActorID   string
}

type SetDiscountCommand struct {
	ProductID string
	SalePrice *int64
	OnSale    bool
	ActorID   string
}

type DeleteProductCommand struct {
	ProductID string
	ActorID   string
}

// CartItemCommand adds to (AddItem) or replaces (SetQuantity) one cart line.
type CartItemCommand struct {
	Owner     CartOwner
	ProductID string
	Quantity  int
}

// VoucherQuote is the outcome of a successful voucher evaluation.
type VoucherQuote struct {
	Code     string
	Subtotal int64
	Discount int64
	Voucher  Voucher
}

type ApplyVoucherCommand struct {
	Owner     CartOwner
	AccountID string
	Code      string
}

type VoucherListFilter struct {
	ActiveOnly bool
	Pagination Pagination
}

// UpsertVoucherCommand carries admin voucher fields. DiscountValue is in hundredths.
type UpsertVoucherCommand struct {
	Code              string
	Description       string
	DiscountType      string
	DiscountValue     int64
	MinPurchaseAmount *int64
	MaxDiscountAmount *int64
	ValidFrom         time.Time
	ValidUntil        time.Time
	UsageLimit        *int
	IsActive          bool
	ActorID           string
}

type DeleteVoucherCommand struct {
	Code    string
	ActorID string
}

// VoucherDeletion reports whether a voucher was removed or only deactivated because it had
// been redeemed.
type VoucherDeletion struct {
	Code        string
	Deactivated bool
}

// CreateOrderCommand places an order from the owner's cart. Voucher is the reservation the
// customer applied; it is re-validated before any discount is granted.
type CreateOrderCommand struct {
	AccountID      string
	Email          string
	Owner          CartOwner
	AddressID      string
	DeliveryMethod string
	PaymentMethod  string
	StoreID        string
	Voucher        *VoucherReservation
}

// OrderResult is a created order plus the reason its voucher was dropped, when it was.
type OrderResult struct {
	Order          Order
	VoucherDropped *VoucherRejection
}

type TransitionCommand struct {
	OrderID      string
	Target       domain.ShippingStatus
	Note         string
	ActorID      string
	ActorIsAdmin bool
}

type CancelCommand struct {
	OrderID   string
	AccountID string
}

// OrderQuery reads one order. Non-admin callers must own it.
type OrderQuery struct {
	OrderID   string
	AccountID string
	IsAdmin   bool
}

type OrderListFilter struct {
	AccountID      string
	ShippingStatus []domain.ShippingStatus
	Pagination     Pagination
}

// ShippingQuoteCommand prices delivery to a saved address or to raw coordinates.
type ShippingQuoteCommand struct {
	AccountID      string
	AddressID      string
	Latitude       *float64
	Longitude      *float64
	DeliveryMethod string
}

type CheckoutSummaryCommand struct {
	Owner          CartOwner
	AccountID      string
	AddressID      string
	DeliveryMethod string
}

// CheckoutSummary previews the totals an order would be created with.
type CheckoutSummary struct {
	Cart           CartView
	Breakdown      PriceBreakdown
	VoucherCode    string
	VoucherWarning *VoucherRejection
}

type PlaceOrderCommand struct {
	AccountID      string
	Email          string
	Owner          CartOwner
	AddressID      string
	DeliveryMethod string
	PaymentMethod  string
	StoreID        string
}

// PlaceOrderResult carries the created order. RedirectURL is set when the customer must
// finish payment on the gateway.
type PlaceOrderResult struct {
	Order          Order
	VoucherWarning *VoucherRejection
	RedirectURL    string
	SessionID      string
}

// PaymentOutcome is the gateway verdict delivered by the return URL or webhook.
type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "success"
	PaymentOutcomeFailure PaymentOutcome = "failure"
	PaymentOutcomeCancel  PaymentOutcome = "cancel"
)

// PaymentOutcomeCommand settles a pending order. AccountID is set for browser returns and
// limits the call to the order owner; webhooks leave it empty.
type PaymentOutcomeCommand struct {
	OrderID   string
	Outcome   PaymentOutcome
	AccountID string
}

type PaymentSessionRequest struct {
	OrderID       string
	PaymentMethod string
	Currency      string
	CustomerEmail string
	Amount        int64
	ShippingFee   int64
	Discount      int64
	Lines         []PaymentLineItem
}

type PaymentLineItem struct {
	Name       string
	Quantity   int
	UnitAmount int64
}

type PaymentSession struct {
	SessionID   string
	RedirectURL string
}

type CreateReviewCommand struct {
	AccountID   string
	AuthorName  string
	OrderItemID string
	Rating      int
	Comment     string
	IsAnonymous bool
}

type UpdateReviewCommand struct {
	ReviewID    string
	AccountID   string
	Rating      int
	Comment     string
	IsAnonymous *bool
}

type DeleteReviewCommand struct {
	ReviewID  string
	AccountID string
}

type UpsertAddressCommand struct {
	AddressID      string
	AccountID      string
	Label          string
	RecipientName  string
	Phone          string
	Street         string
	AdditionalInfo string
	Latitude       *float64
	Longitude      *float64
	IsDefault      bool
}

// AuditLogRecord describes one administrative mutation.
type AuditLogRecord struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]any
	OccurredAt time.Time
}

type AuditLogFilter struct {
	TargetType string
	TargetID   string
	Pagination Pagination
}
