package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tindahan/api/internal/services"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider for a method.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// CheckoutLineItem describes a single line item to include in a checkout session.
type CheckoutLineItem struct {
	Name     string
	Quantity int64
	Amount   int64
}

// CheckoutSessionRequest captures the payload required to create a hosted checkout session.
// Amount is the order total in minor units and always wins over the sum of Items.
type CheckoutSessionRequest struct {
	OrderID        string
	PaymentMethod  string
	Amount         int64
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	FailureURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
	Items          []CheckoutLineItem
}

// CheckoutSession represents the PSP session the customer is redirected to.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// Manager resolves a provider per payment method and implements services.PaymentGateway.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	methodRoutes    map[string]string
	returnBaseURL   string
	currency        string
}

var _ services.PaymentGateway = (*Manager)(nil)

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used for routed methods without an explicit
// provider.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// WithMethodRoutes maps payment method labels ("Maya", "Credit/Debit Card") to providers.
// Methods absent from the routes are not redirect methods.
func WithMethodRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if m.methodRoutes == nil {
			m.methodRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.methodRoutes[normalizeMethod(k)] = strings.ToLower(strings.TrimSpace(v))
		}
	}
}

// WithReturnBaseURL sets the public origin used to build the success, failure and cancel URLs.
func WithReturnBaseURL(base string) ManagerOption {
	return func(m *Manager) {
		m.returnBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithCurrency sets the fallback currency for requests that carry none.
func WithCurrency(currency string) ManagerOption {
	return func(m *Manager) {
		m.currency = strings.ToUpper(strings.TrimSpace(currency))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers:     copyMap,
		returnBaseURL: "http://localhost:8080",
		currency:      "PHP",
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Supports reports whether the payment method is settled through a hosted checkout page.
func (m *Manager) Supports(paymentMethod string) bool {
	if m == nil {
		return false
	}
	_, _, err := m.resolveProvider(paymentMethod)
	return err == nil
}

func (m *Manager) resolveProvider(paymentMethod string) (string, Provider, error) {
	route, ok := m.methodRoutes[normalizeMethod(paymentMethod)]
	if !ok {
		return "", nil, ErrUnsupportedProvider
	}
	if route == "" {
		route = m.defaultProvider
	}
	if p, ok := m.providers[route]; ok {
		return route, p, nil
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCheckoutSession builds the provider request for an order and returns where the customer
// must be redirected.
func (m *Manager) CreateCheckoutSession(ctx context.Context, req services.PaymentSessionRequest) (services.PaymentSession, error) {
	key, provider, err := m.resolveProvider(req.PaymentMethod)
	if err != nil {
		return services.PaymentSession{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = m.currency
	}

	items := make([]CheckoutLineItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		items = append(items, CheckoutLineItem{Name: line.Name, Quantity: int64(line.Quantity), Amount: line.UnitAmount})
	}

	session, err := provider.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		OrderID:        req.OrderID,
		PaymentMethod:  req.PaymentMethod,
		Amount:         req.Amount,
		Currency:       currency,
		CustomerEmail:  req.CustomerEmail,
		SuccessURL:     m.returnURL("success", req.OrderID),
		FailureURL:     m.returnURL("failure", req.OrderID),
		CancelURL:      m.returnURL("cancel", req.OrderID),
		IdempotencyKey: "checkout-" + req.OrderID,
		Metadata:       map[string]string{"order_id": req.OrderID, "payment_method": req.PaymentMethod},
		Items:          withAdjustments(items, req.ShippingFee, req.Discount, req.Amount),
	})
	if err != nil {
		return services.PaymentSession{}, fmt.Errorf("payments: %s: %w", key, err)
	}
	if strings.TrimSpace(session.RedirectURL) == "" {
		return services.PaymentSession{}, fmt.Errorf("payments: %s: session %q has no redirect url", key, session.ID)
	}
	return services.PaymentSession{SessionID: session.ID, RedirectURL: session.RedirectURL}, nil
}

func (m *Manager) returnURL(outcome string, orderID string) string {
	return m.returnBaseURL + "/api/v1/payments/return/" + outcome + "?orderId=" + url.QueryEscape(orderID)
}

// withAdjustments appends the shipping fee as its own line. Hosted pages cannot show a negative
// line, so a discounted order collapses into one line for the full amount.
func withAdjustments(items []CheckoutLineItem, shippingFee int64, discount int64, amount int64) []CheckoutLineItem {
	if discount > 0 || len(items) == 0 {
		return []CheckoutLineItem{{Name: "Order total", Quantity: 1, Amount: amount}}
	}
	if shippingFee > 0 {
		items = append(items, CheckoutLineItem{Name: "Shipping fee", Quantity: 1, Amount: shippingFee})
	}
	return items
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}
