package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/tindahan/api/internal/domain"
)

type stubGateway struct {
	methods  []string
	createFn func(context.Context, PaymentSessionRequest) (PaymentSession, error)
	requests []PaymentSessionRequest
}

func (s *stubGateway) Supports(method string) bool {
	for _, m := range s.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (s *stubGateway) CreateCheckoutSession(ctx context.Context, req PaymentSessionRequest) (PaymentSession, error) {
	s.requests = append(s.requests, req)
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return PaymentSession{SessionID: "cs_test_1", RedirectURL: "https://pay.example.com/cs_test_1"}, nil
}

type checkoutFixture struct {
	*orderFixture
	gateway  *stubGateway
	vouchers VoucherService
	svc      CheckoutService
}

func newCheckoutFixture(t *testing.T, gateway *stubGateway) *checkoutFixture {
	t.Helper()
	of := newOrderFixture(t)
	carts, err := NewCartService(CartServiceDeps{
		AccountCarts: of.accountCarts,
		SessionCarts: of.sessionCarts,
		Products:     of.products,
		Clock:        fixedClock,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	vouchers, err := NewVoucherService(VoucherServiceDeps{
		Vouchers:     of.vouchers,
		Reservations: of.reservations,
		Carts:        carts,
		Clock:        fixedClock,
	})
	if err != nil {
		t.Fatalf("NewVoucherService: %v", err)
	}
	deps := CheckoutServiceDeps{
		Carts:     carts,
		Vouchers:  vouchers,
		Orders:    of.svc,
		Addresses: of.addresses,
		Shipping:  fixedShipping{fee: 5000},
		Clock:     fixedClock,
		Logger:    of.logger.log,
	}
	if gateway != nil {
		deps.Gateway = gateway
	}
	svc, err := NewCheckoutService(deps)
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return &checkoutFixture{orderFixture: of, gateway: gateway, vouchers: vouchers, svc: svc}
}

func placeCommand(payment string) PlaceOrderCommand {
	return PlaceOrderCommand{
		AccountID:      "acct-1",
		Email:          "buyer@example.com",
		AddressID:      "addr-1",
		DeliveryMethod: "standard",
		PaymentMethod:  payment,
	}
}

func TestCheckoutQuoteShipping(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()

	fee, err := f.svc.QuoteShipping(ctx, ShippingQuoteCommand{AccountID: "acct-1", AddressID: "addr-1", DeliveryMethod: "standard"})
	if err != nil || fee != 5000 {
		t.Fatalf("expected 5000, got %d err=%v", fee, err)
	}
	fee, err = f.svc.QuoteShipping(ctx, ShippingQuoteCommand{DeliveryMethod: "pickup"})
	if err != nil || fee != 0 {
		t.Fatalf("expected free pickup, got %d err=%v", fee, err)
	}
	lat, lng := 14.6, 121.0
	if _, err := f.svc.QuoteShipping(ctx, ShippingQuoteCommand{Latitude: &lat, Longitude: &lng, DeliveryMethod: "priority"}); err != nil {
		t.Fatalf("coordinates quote: %v", err)
	}
	if _, err := f.svc.QuoteShipping(ctx, ShippingQuoteCommand{DeliveryMethod: "standard"}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input without a destination, got %v", err)
	}
	if _, err := f.svc.QuoteShipping(ctx, ShippingQuoteCommand{AccountID: "acct-1", AddressID: "addr-2", DeliveryMethod: "standard"}); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected foreign address to be rejected, got %v", err)
	}
}

func TestCheckoutSummaryWithVoucher(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()
	f.orderFixture.vouchers.items["SAVE10"] = activeVoucher("SAVE10")
	f.accountCarts.put(domain.AccountOwner("acct-1"), "p1", 2)
	if _, err := f.vouchers.Apply(ctx, ApplyVoucherCommand{AccountID: "acct-1", Code: "SAVE10"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	summary, err := f.svc.Summary(ctx, CheckoutSummaryCommand{AccountID: "acct-1", AddressID: "addr-1", DeliveryMethod: "standard"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := PriceBreakdown{Subtotal: 100000, Shipping: 5000, Discount: 10000, Total: 95000}
	if summary.Breakdown != want {
		t.Fatalf("expected %+v, got %+v", want, summary.Breakdown)
	}
	if summary.VoucherCode != "SAVE10" || summary.VoucherWarning != nil {
		t.Fatalf("unexpected voucher state %+v", summary)
	}

	// The voucher is redeemed elsewhere in the meantime.
	f.orderFixture.vouchers.usages = append(f.orderFixture.vouchers.usages, VoucherUsage{VoucherCode: "SAVE10", AccountID: "acct-1"})
	summary, err = f.svc.Summary(ctx, CheckoutSummaryCommand{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.VoucherWarning == nil || summary.VoucherWarning.Code != VoucherRejectAlreadyUsed {
		t.Fatalf("expected already_used warning, got %+v", summary.VoucherWarning)
	}
	if summary.Breakdown.Discount != 0 || summary.Breakdown.Total != 100000 {
		t.Fatalf("unexpected breakdown %+v", summary.Breakdown)
	}
}

func TestCheckoutPlaceOrderCashOnDelivery(t *testing.T) {
	gateway := &stubGateway{methods: []string{domain.PaymentMethodMaya}}
	f := newCheckoutFixture(t, gateway)
	f.accountCarts.put(domain.AccountOwner("acct-1"), "p1", 1)

	result, err := f.svc.PlaceOrder(context.Background(), placeCommand("COD"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.RedirectURL != "" || len(gateway.requests) != 0 {
		t.Fatalf("COD must not redirect")
	}
	if result.Order.AwaitingPayment || f.products.stock("p1") != 9 {
		t.Fatalf("expected immediate order, got %+v", result.Order)
	}
}

func TestCheckoutPlaceOrderWithoutGatewaySettlesImmediately(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	f.accountCarts.put(domain.AccountOwner("acct-1"), "p1", 1)

	result, err := f.svc.PlaceOrder(context.Background(), placeCommand("Maya"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Order.PaymentStatus != domain.PaymentPaid || result.RedirectURL != "" {
		t.Fatalf("expected paid order without redirect, got %+v", result)
	}
}

func TestCheckoutPlaceOrderRedirectsAndConfirms(t *testing.T) {
	gateway := &stubGateway{methods: []string{domain.PaymentMethodMaya}}
	f := newCheckoutFixture(t, gateway)
	f.accountCarts.put(domain.AccountOwner("acct-1"), "p1", 2)

	result, err := f.svc.PlaceOrder(context.Background(), placeCommand("maya"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.RedirectURL != "https://pay.example.com/cs_test_1" || result.SessionID != "cs_test_1" {
		t.Fatalf("unexpected redirect %+v", result)
	}
	if !result.Order.AwaitingPayment || f.products.stock("p1") != 8 {
		t.Fatalf("expected pending order to hold its stock, got %d", f.products.stock("p1"))
	}
	if len(gateway.requests) != 1 {
		t.Fatalf("expected one gateway request")
	}
	req := gateway.requests[0]
	if req.Currency != "PHP" || req.Amount != 105000 || req.OrderID != result.Order.ID || len(req.Lines) != 1 {
		t.Fatalf("unexpected gateway request %+v", req)
	}
	if got := f.orders.get(result.Order.ID).PaymentTransactionID; got != "cs_test_1" {
		t.Fatalf("expected transaction id stored, got %q", got)
	}

	if _, err := f.svc.CompletePayment(context.Background(), PaymentOutcomeCommand{OrderID: result.Order.ID, Outcome: PaymentOutcomeSuccess, AccountID: "acct-2"}); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected other account to be denied, got %v", err)
	}
	confirmed, err := f.svc.CompletePayment(context.Background(), PaymentOutcomeCommand{OrderID: result.Order.ID, Outcome: "SUCCESS", AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}
	if confirmed.PaymentStatus != domain.PaymentPaid || f.products.stock("p1") != 8 {
		t.Fatalf("expected paid order without a second stock take, got %+v stock=%d", confirmed, f.products.stock("p1"))
	}
}

func TestCheckoutPlaceOrderGatewayFailureCancelsOrder(t *testing.T) {
	gateway := &stubGateway{
		methods: []string{domain.PaymentMethodCard},
		createFn: func(context.Context, PaymentSessionRequest) (PaymentSession, error) {
			return PaymentSession{}, errors.New("gateway timeout")
		},
	}
	f := newCheckoutFixture(t, gateway)
	f.accountCarts.put(domain.AccountOwner("acct-1"), "p1", 1)

	_, err := f.svc.PlaceOrder(context.Background(), placeCommand("card"))
	if !errors.Is(err, ErrCheckoutUnavailable) || !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected unavailable payment error, got %v", err)
	}
	if len(f.orders.items) != 1 {
		t.Fatalf("expected the pending order to be recorded")
	}
	for _, order := range f.orders.items {
		if order.PaymentStatus != domain.PaymentCancelled || order.ShippingStatus != domain.ShippingCancelled {
			t.Fatalf("expected order to be cancelled, got %s/%s", order.PaymentStatus, order.ShippingStatus)
		}
	}
	if !f.logger.has("checkout.gateway.session_failed") {
		t.Fatalf("expected gateway failure to be logged")
	}
	if got := f.products.stock("p1"); got != 10 {
		t.Fatalf("expected held stock to be released, got %d", got)
	}
}

func TestCheckoutCompletePaymentFailure(t *testing.T) {
	gateway := &stubGateway{methods: []string{domain.PaymentMethodMaya}}
	f := newCheckoutFixture(t, gateway)
	f.accountCarts.put(domain.AccountOwner("acct-1"), "p1", 1)
	result, err := f.svc.PlaceOrder(context.Background(), placeCommand("Maya"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	for i := 0; i < 2; i++ {
		order, err := f.svc.CompletePayment(context.Background(), PaymentOutcomeCommand{OrderID: result.Order.ID, Outcome: PaymentOutcomeCancel})
		if err != nil {
			t.Fatalf("CompletePayment attempt %d: %v", i, err)
		}
		if order.PaymentStatus != domain.PaymentCancelled {
			t.Fatalf("expected cancelled payment, got %s", order.PaymentStatus)
		}
	}
	if _, err := f.svc.CompletePayment(context.Background(), PaymentOutcomeCommand{OrderID: result.Order.ID, Outcome: "refund"}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected unknown outcome to be rejected, got %v", err)
	}
	if _, err := f.svc.CompletePayment(context.Background(), PaymentOutcomeCommand{OrderID: "ord_missing", Outcome: PaymentOutcomeFailure}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckoutPlaceOrderUsesReservedVoucher(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()
	f.orderFixture.vouchers.items["SAVE10"] = activeVoucher("SAVE10")
	f.accountCarts.put(domain.AccountOwner("acct-1"), "p1", 1)
	if _, err := f.vouchers.Apply(ctx, ApplyVoucherCommand{AccountID: "acct-1", Code: "save10"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	result, err := f.svc.PlaceOrder(ctx, placeCommand("COD"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Order.DiscountAmount != 5000 || result.VoucherWarning != nil {
		t.Fatalf("expected 10%% discount, got %+v", result)
	}
	if current, _ := f.vouchers.Current(ctx, domain.AccountOwner("acct-1")); current != nil {
		t.Fatalf("expected reservation to be consumed")
	}
}

func TestCheckoutPlaceOrderReportsExpiredReservation(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()
	owner := domain.AccountOwner("acct-1")
	f.orderFixture.vouchers.items["SAVE10"] = activeVoucher("SAVE10")
	f.accountCarts.put(owner, "p1", 1)
	f.reservations.items[owner.Key()] = VoucherReservation{
		Code:       "SAVE10",
		Discount:   5000,
		Subtotal:   50000,
		OwnerKey:   owner.Key(),
		ReservedAt: fixedNow.Add(-time.Hour),
		ExpiresAt:  fixedNow.Add(-30 * time.Minute),
	}

	summary, err := f.svc.Summary(ctx, CheckoutSummaryCommand{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.VoucherWarning == nil || summary.VoucherWarning.Code != VoucherRejectReservationExpired || summary.Breakdown.Discount != 0 {
		t.Fatalf("expected reservation_expired warning in summary, got %+v", summary)
	}

	result, err := f.svc.PlaceOrder(ctx, placeCommand("COD"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.VoucherWarning == nil || result.VoucherWarning.Code != VoucherRejectReservationExpired {
		t.Fatalf("expected reservation_expired warning, got %+v", result.VoucherWarning)
	}
	if result.Order.DiscountAmount != 0 || result.Order.VoucherCode != "" || result.Order.TotalPrice != 55000 {
		t.Fatalf("expected undiscounted order, got %+v", result.Order)
	}
	if len(f.orderFixture.vouchers.usages) != 0 {
		t.Fatalf("expected no voucher usage for a lapsed reservation")
	}
	if _, ok := f.reservations.items[owner.Key()]; ok {
		t.Fatalf("expected lapsed reservation to be cleared by the order")
	}
	if !f.logger.has("order.voucher.dropped") {
		t.Fatalf("expected dropped voucher to be logged")
	}
}
