package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubStripeSessions struct {
	params *stripe.CheckoutSessionParams
	resp   *stripe.CheckoutSession
	err    error
}

func (s *stubStripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.params = params
	return s.resp, s.err
}

func TestStripeProviderCreateCheckoutSession(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	sessions := &stubStripeSessions{resp: &stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/c/cs_test"}}
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: sessions, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:        "ord_1",
		Amount:         105000,
		Currency:       "PHP",
		CustomerEmail:  "buyer@example.ph",
		SuccessURL:     "https://shop/api/v1/payments/return/success?orderId=ord_1",
		CancelURL:      "https://shop/api/v1/payments/return/cancel?orderId=ord_1",
		IdempotencyKey: "checkout-ord_1",
		Metadata:       map[string]string{"order_id": "ord_1"},
		Items: []CheckoutLineItem{
			{Name: "Rice", Quantity: 2, Amount: 50000},
			{Name: "Shipping fee", Quantity: 1, Amount: 5000},
		},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.ID != "cs_test" || session.RedirectURL != "https://checkout.stripe.com/c/cs_test" {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", session.ExpiresAt)
	}

	params := sessions.params
	if params == nil {
		t.Fatalf("expected params captured")
	}
	if *params.ClientReferenceID != "ord_1" || *params.CustomerEmail != "buyer@example.ph" {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.IdempotencyKey == nil || *params.IdempotencyKey != "checkout-ord_1" {
		t.Fatalf("expected idempotency key")
	}
	if len(params.LineItems) != 2 || *params.LineItems[0].PriceData.Currency != "php" || *params.LineItems[0].Quantity != 2 {
		t.Fatalf("unexpected line items %+v", params.LineItems)
	}
	if params.PaymentIntentData == nil || params.PaymentIntentData.Metadata["order_id"] != "ord_1" {
		t.Fatalf("expected metadata on payment intent")
	}
}

func TestStripeProviderValidation(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected api key error")
	}
	sessions := &stubStripeSessions{err: errors.New("invalid request")}
	provider, _ := NewStripeProvider(StripeProviderConfig{Sessions: sessions})
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Amount: 100}); err == nil {
		t.Fatalf("expected order id error")
	}
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{OrderID: "ord_1", Amount: 100, Currency: "PHP"}); err == nil {
		t.Fatalf("expected stripe error")
	}
	if len(sessions.params.LineItems) != 1 || *sessions.params.LineItems[0].PriceData.UnitAmount != 100 {
		t.Fatalf("expected fallback line item")
	}
}
