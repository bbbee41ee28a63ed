package repositories

import (
	"context"
	"time"

	domain "github.com/tindahan/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	AccountCarts() CartRepository
	SessionCarts() CartRepository
	Vouchers() VoucherRepository
	VoucherReservations() VoucherReservationRepository
	Orders() OrderRepository
	Addresses() AddressRepository
	Stores() StoreRepository
	Reviews() ReviewRepository
	AuditLogs() AuditLogRepository
	Stats() StatsRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transaction. Repositories called with the
// context passed to fn join the transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog entries and their stock counters.
type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter) (domain.Page[domain.Product], error)
	ListCategories(ctx context.Context) ([]string, error)
	ListSubcategories(ctx context.Context, category string) ([]string, error)
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// LockByIDs row-locks the products in ascending id order for the rest of the transaction.
	LockByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// AdjustStock adds delta to the stock counter and returns the new quantity. It fails with
	// a StockError rather than drive stock below zero.
	AdjustStock(ctx context.Context, productID string, delta int) (int, error)
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.Product, error)
}

// CartRepository stores cart lines for a single kind of owner.
type CartRepository interface {
	Load(ctx context.Context, owner domain.CartOwner) (domain.Cart, error)
	SetQuantity(ctx context.Context, owner domain.CartOwner, productID string, quantity int, at time.Time) error
	RemoveLine(ctx context.Context, owner domain.CartOwner, productID string) error
	Clear(ctx context.Context, owner domain.CartOwner) error
}

// VoucherRepository persists vouchers and their redemption records.
type VoucherRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
	// LockByCode row-locks the voucher for the rest of the transaction.
	LockByCode(ctx context.Context, code string) (domain.Voucher, error)
	List(ctx context.Context, filter VoucherFilter) (domain.Page[domain.Voucher], error)
	Insert(ctx context.Context, voucher domain.Voucher) error
	Update(ctx context.Context, voucher domain.Voucher) error
	Delete(ctx context.Context, code string) error
	IncrementUsage(ctx context.Context, code string, at time.Time) error
	HasUsage(ctx context.Context, code string, accountID string) (bool, error)
	// InsertUsage reports false when the account already redeemed the code.
	InsertUsage(ctx context.Context, usage domain.VoucherUsage) (bool, error)
	// ReleaseUsage deletes the usage recorded for orderID and gives the slot back to the usage
	// counter. It reports false when the order held no usage.
	ReleaseUsage(ctx context.Context, code string, orderID string, at time.Time) (bool, error)
	ListUsage(ctx context.Context, code string, pager domain.Pagination) (domain.Page[domain.VoucherUsage], error)
	CountUsage(ctx context.Context, code string) (int, error)
}

// VoucherReservationRepository keeps the provisional voucher slot for a cart owner.
type VoucherReservationRepository interface {
	Get(ctx context.Context, ownerKey string) (domain.VoucherReservation, error)
	Save(ctx context.Context, reservation domain.VoucherReservation) error
	Delete(ctx context.Context, ownerKey string) error
}

// OrderRepository persists orders with their lines, history and pickup assignment.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// LockByID row-locks the order for the rest of the transaction. Lines and pickup are loaded.
	LockByID(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, order domain.Order) error
	AppendHistory(ctx context.Context, entry domain.OrderHistoryEntry) error
	SetPaymentTransaction(ctx context.Context, orderID string, transactionID string, at time.Time) error
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	FindLine(ctx context.Context, orderLineID string) (domain.OrderLine, error)
	AddressInUse(ctx context.Context, addressID string) (bool, error)
}

// AddressRepository manages account delivery addresses.
type AddressRepository interface {
	List(ctx context.Context, accountID string) ([]domain.Address, error)
	FindByID(ctx context.Context, addressID string) (domain.Address, error)
	Insert(ctx context.Context, address domain.Address) error
	Update(ctx context.Context, address domain.Address) error
	Delete(ctx context.Context, addressID string) error
	ClearDefault(ctx context.Context, accountID string, exceptID string) error
}

// StoreRepository lists pickup locations.
type StoreRepository interface {
	List(ctx context.Context, query string) ([]domain.Store, error)
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
}

// ReviewRepository persists product reviews.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	Update(ctx context.Context, review domain.Review) error
	Delete(ctx context.Context, reviewID string) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.Page[domain.Review], error)
	ListByAccount(ctx context.Context, accountID string, pager domain.Pagination) (domain.Page[domain.Review], error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Review, error)
	Summary(ctx context.Context, productID string) (domain.ReviewSummary, error)
}

// AuditLogRepository appends and lists administrative audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.Page[domain.AuditLogEntry], error)
}

// StatsRepository aggregates dashboard figures.
type StatsRepository interface {
	CountOrdersByShippingStatus(ctx context.Context) (map[domain.ShippingStatus]int, error)
	SumPaidRevenue(ctx context.Context) (int64, error)
	CountProducts(ctx context.Context) (int, error)
	CountLowStock(ctx context.Context, threshold int) (int, error)
	RevenueByMonth(ctx context.Context, since time.Time) ([]domain.MonthlyRevenue, error)
	TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error)
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// ProductFilter narrows product listings. Query matches a case-insensitive name substring.
type ProductFilter struct {
	Category    string
	Subcategory string
	Query       string
	OnSaleOnly  bool
	Pagination  domain.Pagination
}

// VoucherFilter narrows admin voucher listings.
type VoucherFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// OrderListFilter narrows order listings. An empty AccountID lists every account.
type OrderListFilter struct {
	AccountID      string
	ShippingStatus []domain.ShippingStatus
	Pagination     domain.Pagination
}

// AuditLogFilter narrows audit log listings.
type AuditLogFilter struct {
	TargetType string
	TargetID   string
	Pagination domain.Pagination
}
