package domain

import (
	"strings"
	"time"
)

// Page packages list results with an opaque token for the next page.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is a catalog entry. Prices are in minor currency units (centavos).
type Product struct {
	ID            string
	Name          string
	Description   string
	Category      string
	Subcategory   string
	Price         int64
	SalePrice     *int64
	OnSale        bool
	StockQuantity int
	ImageURL      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectivePrice is the sale price when the product is on sale, else the list price.
func (p Product) EffectivePrice() int64 {
	if p.OnSale && p.SalePrice != nil && *p.SalePrice > 0 && *p.SalePrice < p.Price {
		return *p.SalePrice
	}
	return p.Price
}

// Store is a physical location that accepts pickup orders.
type Store struct {
	ID           string
	Name         string
	Address      string
	Phone        string
	OpeningHours string
	Latitude     *float64
	Longitude    *float64
	CreatedAt    time.Time
}

// Address is a delivery address owned by an account.
type Address struct {
	ID             string
	AccountID      string
	Label          string
	RecipientName  string
	Phone          string
	Street         string
	AdditionalInfo string
	Latitude       *float64
	Longitude      *float64
	IsDefault      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasCoordinates reports whether both latitude and longitude are present.
func (a Address) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

type cartOwnerKind uint8

const (
	cartOwnerNone cartOwnerKind = iota
	cartOwnerSession
	cartOwnerAccount
)

// CartOwner identifies who a cart belongs to: an anonymous session token or an account.
// The zero value owns nothing.
type CartOwner struct {
	kind cartOwnerKind
	id   string
}

// SessionOwner returns the owner for an anonymous session cart.
func SessionOwner(token string) CartOwner {
	token = strings.TrimSpace(token)
	if token == "" {
		return CartOwner{}
	}
	return CartOwner{kind: cartOwnerSession, id: token}
}

// AccountOwner returns the owner for an authenticated account cart.
func AccountOwner(accountID string) CartOwner {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return CartOwner{}
	}
	return CartOwner{kind: cartOwnerAccount, id: accountID}
}

// IsZero reports whether the owner is unset.
func (o CartOwner) IsZero() bool { return o.kind == cartOwnerNone }

// IsSession reports whether the owner is an anonymous session.
func (o CartOwner) IsSession() bool { return o.kind == cartOwnerSession }

// IsAccount reports whether the owner is an authenticated account.
func (o CartOwner) IsAccount() bool { return o.kind == cartOwnerAccount }

// ID returns the session token or account id.
func (o CartOwner) ID() string { return o.id }

// Key is a stable string form, used for storage keys and voucher reservations.
func (o CartOwner) Key() string {
	switch o.kind {
	case cartOwnerSession:
		return "session:" + o.id
	case cartOwnerAccount:
		return "account:" + o.id
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (o CartOwner) String() string { return o.Key() }

// CartLine is a product and quantity held in a cart. Unique per (owner, product).
type CartLine struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Cart is the raw stored cart.
type Cart struct {
	Owner CartOwner
	Lines []CartLine
}

// PricedCartLine is a cart line joined with the current catalog.
type PricedCartLine struct {
	ProductID     string
	Name          string
	ImageURL      string
	UnitPrice     int64
	Quantity      int
	LineTotal     int64
	StockQuantity int
}

// CartView is a cart priced against the live catalog.
type CartView struct {
	Owner     CartOwner
	Lines     []PricedCartLine
	Subtotal  int64
	ItemCount int
}

// Review is a customer rating of a delivered order item.
type Review struct {
	ID          string
	AccountID   string
	AuthorName  string
	ProductID   string
	OrderID     string
	OrderItemID string
	Rating      int
	Comment     string
	IsAnonymous bool
	IsEdited    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReviewSummary aggregates ratings for one product.
type ReviewSummary struct {
	ProductID    string
	Average      float64
	Count        int
	Distribution map[int]int
}

// ReviewableItem is an order line together with its review, if any.
type ReviewableItem struct {
	OrderItemID string
	ProductID   string
	ProductName string
	Quantity    int
	Review      *Review
}

// AuditLogEntry records an administrative mutation.
type AuditLogEntry struct {
	ID         string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]any
	CreatedAt  time.Time
}

// DashboardStats is the admin overview.
type DashboardStats struct {
	TotalOrders     int
	TotalProducts   int
	TotalRevenue    int64
	PendingOrders   int
	ActiveOrders    int
	CompletedOrders int
	CancelledOrders int
	LowStockCount   int
}

// MonthlyRevenue is paid revenue bucketed by calendar month ("2006-01").
type MonthlyRevenue struct {
	Month   string
	Revenue int64
	Orders  int
}

// TopProduct ranks products by quantity sold across non-cancelled orders.
type TopProduct struct {
	ProductID    string
	Name         string
	QuantitySold int
	Revenue      int64
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a dependency returned an error.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a dependency timed out or the check was cancelled.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for the readiness endpoint.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Pagination carries page size and the opaque continuation token into repositories.
type Pagination struct {
	PageSize  int
	PageToken string
}
