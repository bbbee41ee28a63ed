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

const defaultCheckoutCurrency = "PHP"

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the gateway session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts     CartService
	Vouchers  VoucherService
	Orders    OrderService
	Addresses repositories.AddressRepository
	Shipping  ShippingCalculator
	// Gateway is optional. Without it every payment method settles through CreateOrder.
	Gateway  PaymentGateway
	Currency string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts     CartService
	vouchers  VoucherService
	orders    OrderService
	addresses repositories.AddressRepository
	shipping  ShippingCalculator
	gateway   PaymentGateway
	currency  string
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart service is required")
	case deps.Vouchers == nil:
		return nil, errors.New("checkout service: voucher service is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order service is required")
	case deps.Addresses == nil:
		return nil, errors.New("checkout service: address repository is required")
	case deps.Shipping == nil:
		return nil, errors.New("checkout service: shipping calculator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCheckoutCurrency
	}

	return &checkoutService{
		carts:     deps.Carts,
		vouchers:  deps.Vouchers,
		orders:    deps.Orders,
		addresses: deps.Addresses,
		shipping:  deps.Shipping,
		gateway:   deps.Gateway,
		currency:  currency,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// QuoteShipping prices delivery to a saved address, or to raw coordinates when no address
// id is given.
func (s *checkoutService) QuoteShipping(ctx context.Context, cmd ShippingQuoteCommand) (int64, error) {
	method, ok := NormalizeDeliveryMethod(cmd.DeliveryMethod)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported delivery method %q", ErrCheckoutInvalidInput, cmd.DeliveryMethod)
	}
	if domain.IsPickup(method) {
		return 0, nil
	}

	var address Address
	if addressID := strings.TrimSpace(cmd.AddressID); addressID != "" {
		loaded, err := s.loadAddress(ctx, cmd.AccountID, addressID)
		if err != nil {
			return 0, err
		}
		address = loaded
	} else {
		if cmd.Latitude == nil || cmd.Longitude == nil {
			return 0, fmt.Errorf("%w: address_id or latitude and longitude are required", ErrCheckoutInvalidInput)
		}
		address = Address{Latitude: cmd.Latitude, Longitude: cmd.Longitude}
	}
	return s.shipping.Fee(ctx, address, method), nil
}

// Summary previews the totals for the current cart. The voucher is re-evaluated against the
// live subtotal; a voucher that no longer qualifies is reported, not applied.
func (s *checkoutService) Summary(ctx context.Context, cmd CheckoutSummaryCommand) (CheckoutSummary, error) {
	owner := resolveCheckoutOwner(cmd.Owner, cmd.AccountID)
	if owner.IsZero() {
		return CheckoutSummary{}, fmt.Errorf("%w: cart owner is required", ErrCheckoutInvalidInput)
	}
	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		return CheckoutSummary{}, err
	}

	var shippingFee int64
	if addressID := strings.TrimSpace(cmd.AddressID); addressID != "" {
		method, ok := NormalizeDeliveryMethod(cmd.DeliveryMethod)
		if !ok {
			return CheckoutSummary{}, fmt.Errorf("%w: unsupported delivery method %q", ErrCheckoutInvalidInput, cmd.DeliveryMethod)
		}
		address, err := s.loadAddress(ctx, cmd.AccountID, addressID)
		if err != nil {
			return CheckoutSummary{}, err
		}
		shippingFee = s.shipping.Fee(ctx, address, method)
	}

	summary := CheckoutSummary{Cart: cart}
	var discount int64
	reservation, err := s.vouchers.Current(ctx, owner)
	if err != nil {
		return CheckoutSummary{}, err
	}
	switch {
	case reservation == nil:
	case reservation.Expired(s.now()):
		summary.VoucherWarning = rejectVoucher(VoucherRejectReservationExpired, reservation.Code, "Voucher reservation has expired")
	default:
		quote, err := s.vouchers.Evaluate(ctx, reservation.Code, cart.Subtotal, cmd.AccountID)
		var rejection *VoucherRejection
		switch {
		case err == nil:
			discount = quote.Discount
			summary.VoucherCode = quote.Code
		case errors.As(err, &rejection):
			summary.VoucherWarning = rejection
		default:
			return CheckoutSummary{}, err
		}
	}
	summary.Breakdown = domain.NewPriceBreakdown(cart.Subtotal, shippingFee, discount)
	return summary, nil
}

// PlaceOrder creates the order. Methods a redirect gateway supports go through a pending
// order and a hosted checkout session; everything else settles immediately.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	accountID := strings.TrimSpace(cmd.AccountID)
	if accountID == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: account is required", ErrCheckoutInvalidInput)
	}
	paymentMethod, ok := NormalizePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return PlaceOrderResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}
	owner := resolveCheckoutOwner(cmd.Owner, accountID)

	reservation, err := s.vouchers.Current(ctx, owner)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	create := CreateOrderCommand{
		AccountID:      accountID,
		Email:          cmd.Email,
		Owner:          owner,
		AddressID:      cmd.AddressID,
		DeliveryMethod: cmd.DeliveryMethod,
		PaymentMethod:  paymentMethod,
		StoreID:        cmd.StoreID,
		Voucher:        reservation,
	}

	if !s.redirects(paymentMethod) {
		result, err := s.orders.CreateOrder(ctx, create)
		if err != nil {
			return PlaceOrderResult{}, err
		}
		return PlaceOrderResult{Order: result.Order, VoucherWarning: result.VoucherDropped}, nil
	}

	result, err := s.orders.CreatePendingOrder(ctx, create)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	order := result.Order

	session, err := s.gateway.CreateCheckoutSession(ctx, s.sessionRequest(order, paymentMethod, cmd.Email))
	if err != nil {
		s.logger(ctx, "checkout.gateway.session_failed", map[string]any{
			"orderId":       order.ID,
			"paymentMethod": paymentMethod,
			"error":         err.Error(),
		})
		if _, failErr := s.orders.FailPayment(ctx, order.ID); failErr != nil {
			s.logger(ctx, "checkout.gateway.fail_payment_failed", map[string]any{
				"orderId": order.ID,
				"error":   failErr.Error(),
			})
		}
		return PlaceOrderResult{}, fmt.Errorf("%w: %w: %v", ErrCheckoutUnavailable, ErrCheckoutPaymentFailed, err)
	}

	if err := s.orders.AttachPaymentTransaction(ctx, order.ID, session.SessionID); err != nil {
		s.logger(ctx, "checkout.gateway.attach_failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.SessionID,
			"error":     err.Error(),
		})
	} else {
		order.PaymentTransactionID = session.SessionID
	}

	return PlaceOrderResult{
		Order:          order,
		VoucherWarning: result.VoucherDropped,
		RedirectURL:    session.RedirectURL,
		SessionID:      session.SessionID,
	}, nil
}

// CompletePayment settles a pending order with the gateway verdict.
func (s *checkoutService) CompletePayment(ctx context.Context, cmd PaymentOutcomeCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: orderId is required", ErrCheckoutInvalidInput)
	}
	outcome := PaymentOutcome(strings.ToLower(strings.TrimSpace(string(cmd.Outcome))))
	switch outcome {
	case PaymentOutcomeSuccess, PaymentOutcomeFailure, PaymentOutcomeCancel:
	default:
		return Order{}, fmt.Errorf("%w: unknown payment outcome %q", ErrCheckoutInvalidInput, cmd.Outcome)
	}

	if accountID := strings.TrimSpace(cmd.AccountID); accountID != "" {
		if _, err := s.orders.GetOrder(ctx, OrderQuery{OrderID: orderID, AccountID: accountID}); err != nil {
			return Order{}, err
		}
	}

	if outcome == PaymentOutcomeSuccess {
		return s.orders.ConfirmPayment(ctx, orderID)
	}
	return s.orders.FailPayment(ctx, orderID)
}

func (s *checkoutService) redirects(paymentMethod string) bool {
	if s.gateway == nil || domain.IsCashOnDelivery(paymentMethod) {
		return false
	}
	return s.gateway.Supports(paymentMethod)
}

func (s *checkoutService) sessionRequest(order Order, paymentMethod, email string) PaymentSessionRequest {
	lines := make([]PaymentLineItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, PaymentLineItem{
			Name:       line.ProductName,
			Quantity:   line.Quantity,
			UnitAmount: line.UnitPrice,
		})
	}
	return PaymentSessionRequest{
		OrderID:       order.ID,
		PaymentMethod: paymentMethod,
		Currency:      s.currency,
		CustomerEmail: strings.TrimSpace(email),
		Amount:        order.TotalPrice,
		ShippingFee:   order.ShippingFee,
		Discount:      order.DiscountAmount,
		Lines:         lines,
	}
}

func (s *checkoutService) loadAddress(ctx context.Context, accountID, addressID string) (Address, error) {
	address, err := s.addresses.FindByID(ctx, addressID)
	if err != nil {
		if isRepoNotFound(err) {
			return Address{}, ErrOrderAddressNotFound
		}
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			return Address{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		return Address{}, err
	}
	if address.AccountID != strings.TrimSpace(accountID) {
		return Address{}, ErrOrderAddressNotOwned
	}
	return address, nil
}

func resolveCheckoutOwner(owner CartOwner, accountID string) CartOwner {
	if owner.IsZero() {
		return domain.AccountOwner(accountID)
	}
	return owner
}
