package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventStatusChanged    = "order.status_changed"
	orderEventPaymentConfirmed = "order.payment_confirmed"
	orderEventPaymentFailed    = "order.payment_failed"

	orderIDPrefix        = "ord_"
	orderLineIDPrefix    = "oli_"
	orderHistoryIDPrefix = "ohe_"
	voucherUsageIDPrefix = "vus_"

	historyNoteOrderPlaced      = "Order placed successfully"
	historyNotePaymentConfirmed = "Payment confirmed successfully"
	historyNotePaymentFailed    = "Payment failed or cancelled"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent updates or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPermissionDenied indicates the caller may not act on the order.
	ErrOrderPermissionDenied = errors.New("order: permission denied")
	// ErrOrderInsufficientStock is matched by every InsufficientStockError.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")

	ErrOrderEmptyCart       = fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	ErrOrderStoreRequired   = fmt.Errorf("%w: store is required for pickup", ErrOrderInvalidInput)
	ErrOrderStoreNotFound   = fmt.Errorf("%w: store", ErrOrderNotFound)
	ErrOrderAddressNotFound = fmt.Errorf("%w: address", ErrOrderNotFound)
	ErrOrderAddressNotOwned = fmt.Errorf("%w: address belongs to another account", ErrOrderPermissionDenied)
)

// StockShortfall is one order line the catalog cannot cover.
type StockShortfall struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

// InsufficientStockError lists every short line of an order.
type InsufficientStockError struct {
	Lines []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	if e == nil || len(e.Lines) == 0 {
		return ErrOrderInsufficientStock.Error()
	}
	parts := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		name := line.Name
		if name == "" {
			name = line.ProductID
		}
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", name, line.Requested, line.Available))
	}
	return "Insufficient stock for " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrOrderInsufficientStock }

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Inventory    InventoryService
	Vouchers     repositories.VoucherRepository
	Reservations repositories.VoucherReservationRepository
	Addresses    repositories.AddressRepository
	Stores       repositories.StoreRepository
	AccountCarts repositories.CartRepository
	SessionCarts repositories.CartRepository
	Shipping     ShippingCalculator
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	IDGenerator  func() string
	Events       OrderEventPublisher
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	inventory    InventoryService
	vouchers     repositories.VoucherRepository
	reservations repositories.VoucherReservationRepository
	addresses    repositories.AddressRepository
	stores       repositories.StoreRepository
	accountCarts repositories.CartRepository
	sessionCarts repositories.CartRepository
	shipping     ShippingCalculator
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	events       OrderEventPublisher
	logger       func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Inventory == nil:
		return nil, errors.New("order service: inventory service is required")
	case deps.Vouchers == nil:
		return nil, errors.New("order service: voucher repository is required")
	case deps.Addresses == nil:
		return nil, errors.New("order service: address repository is required")
	case deps.Stores == nil:
		return nil, errors.New("order service: store repository is required")
	case deps.AccountCarts == nil || deps.SessionCarts == nil:
		return nil, errors.New("order service: cart repositories are required")
	case deps.Shipping == nil:
		return nil, errors.New("order service: shipping calculator is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:       deps.Orders,
		inventory:    deps.Inventory,
		vouchers:     deps.Vouchers,
		reservations: deps.Reservations,
		addresses:    deps.Addresses,
		stores:       deps.Stores,
		accountCarts: deps.AccountCarts,
		sessionCarts: deps.SessionCarts,
		shipping:     deps.Shipping,
		unitOfWork:   unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// CreateOrder assembles an order from the cart in one transaction: it takes stock, prices the
// lines, re-validates and redeems the voucher, writes the order and clears the cart.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error) {
	return s.create(ctx, cmd, false)
}

// CreatePendingOrder records an order that waits for a redirect gateway to settle it. Stock and
// the voucher are held like any other order and given back if the payment fails. The cart is
// kept until ConfirmPayment.
func (s *orderService) CreatePendingOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error) {
	return s.create(ctx, cmd, true)
}

type orderPlan struct {
	accountID      string
	owner          CartOwner
	address        Address
	store          *Store
	deliveryMethod string
	paymentMethod  string
}

func (s *orderService) create(ctx context.Context, cmd CreateOrderCommand, pending bool) (OrderResult, error) {
	plan, err := s.prepare(ctx, cmd)
	if err != nil {
		return OrderResult{}, err
	}

	var result OrderResult
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.cartStore(plan.owner).Load(txCtx, plan.owner)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if len(cart.Lines) == 0 {
			return ErrOrderEmptyCart
		}

		orderID := orderIDPrefix + s.newID()
		held, err := s.inventory.ReserveStocks(txCtx, InventoryReserveCommand{OrderID: orderID, Items: cartStockItems(cart)})
		if err != nil {
			return err
		}

		now := s.clock()
		order := domain.Order{
			ID:              orderID,
			AccountID:       plan.accountID,
			AddressID:       plan.address.ID,
			ShippingStatus:  domain.ShippingProcessing,
			DeliveryMethod:  plan.deliveryMethod,
			PaymentMethod:   plan.paymentMethod,
			AwaitingPayment: pending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		// Unit prices are read from the locked rows and frozen on the line.
		for _, line := range cart.Lines {
			product := held.Products[line.ProductID]
			order.Lines = append(order.Lines, domain.OrderLine{
				ID:          orderLineIDPrefix + s.newID(),
				OrderID:     order.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   product.EffectivePrice(),
			})
		}

		var subtotal int64
		for _, line := range order.Lines {
			subtotal += line.LineTotal()
		}
		shippingFee := s.shipping.Fee(txCtx, plan.address, plan.deliveryMethod)

		quote, dropped, err := s.revalidateVoucher(txCtx, cmd.Voucher, plan.accountID, subtotal, now)
		if err != nil {
			return err
		}
		var discount int64
		if quote != nil {
			discount = quote.Discount
			order.VoucherCode = quote.Code
		}
		breakdown := domain.NewPriceBreakdown(subtotal, shippingFee, discount)
		order.Subtotal = breakdown.Subtotal
		order.ShippingFee = breakdown.Shipping
		order.DiscountAmount = breakdown.Discount
		order.TotalPrice = breakdown.Total

		switch {
		case pending, domain.IsCashOnDelivery(plan.paymentMethod):
			order.PaymentStatus = domain.PaymentPending
		default:
			order.PaymentStatus = domain.PaymentPaid
		}
		order.History = []domain.OrderHistoryEntry{s.historyEntry(order.ID, string(domain.ShippingProcessing), historyNoteOrderPlaced, now)}
		if plan.store != nil {
			order.Pickup = &domain.PickupAssignment{
				OrderID:    order.ID,
				StoreID:    plan.store.ID,
				StoreName:  plan.store.Name,
				AssignedAt: now,
			}
		}

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.redeemVoucher(txCtx, order, now); err != nil {
			return err
		}
		if !pending && plan.owner.IsAccount() {
			if err := s.accountCarts.Clear(txCtx, plan.owner); err != nil {
				return s.mapRepositoryError(err)
			}
		}

		result = OrderResult{Order: order, VoucherDropped: dropped}
		return nil
	})
	if err != nil {
		return OrderResult{}, err
	}

	if !pending {
		if plan.owner.IsSession() {
			s.clearSessionCart(ctx, plan.owner)
		}
		s.clearVoucherSlot(ctx, plan.owner)
	}
	if result.VoucherDropped != nil {
		s.logger(ctx, "order.voucher.dropped", map[string]any{
			"orderId": result.Order.ID,
			"code":    result.VoucherDropped.Voucher,
			"reason":  result.VoucherDropped.Code,
		})
	}
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       result.Order.ID,
		CurrentStatus: string(result.Order.ShippingStatus),
		ActorID:       result.Order.AccountID,
		OccurredAt:    result.Order.CreatedAt,
		Metadata: map[string]any{
			"paymentStatus":   string(result.Order.PaymentStatus),
			"paymentMethod":   result.Order.PaymentMethod,
			"deliveryMethod":  result.Order.DeliveryMethod,
			"totalPrice":      result.Order.TotalPrice,
			"awaitingPayment": result.Order.AwaitingPayment,
			"email":           strings.TrimSpace(cmd.Email),
		},
	})
	return result, nil
}

// prepare validates the command and resolves the address and pickup store before any
// transaction is opened.
func (s *orderService) prepare(ctx context.Context, cmd CreateOrderCommand) (orderPlan, error) {
	accountID := strings.TrimSpace(cmd.AccountID)
	if accountID == "" {
		return orderPlan{}, fmt.Errorf("%w: account is required", ErrOrderInvalidInput)
	}
	owner := cmd.Owner
	if owner.IsZero() {
		owner = domain.AccountOwner(accountID)
	}
	if owner.IsAccount() && owner.ID() != accountID {
		return orderPlan{}, fmt.Errorf("%w: cart belongs to another account", ErrOrderPermissionDenied)
	}

	deliveryMethod, ok := NormalizeDeliveryMethod(cmd.DeliveryMethod)
	if !ok {
		return orderPlan{}, fmt.Errorf("%w: unsupported delivery method %q", ErrOrderInvalidInput, cmd.DeliveryMethod)
	}
	paymentMethod, ok := NormalizePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return orderPlan{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID == "" {
		return orderPlan{}, fmt.Errorf("%w: address is required", ErrOrderInvalidInput)
	}
	address, err := s.addresses.FindByID(ctx, addressID)
	if err != nil {
		if isRepoNotFound(err) {
			return orderPlan{}, ErrOrderAddressNotFound
		}
		return orderPlan{}, s.mapRepositoryError(err)
	}
	if address.AccountID != accountID {
		return orderPlan{}, ErrOrderAddressNotOwned
	}

	plan := orderPlan{
		accountID:      accountID,
		owner:          owner,
		address:        address,
		deliveryMethod: deliveryMethod,
		paymentMethod:  paymentMethod,
	}
	if domain.IsPickup(deliveryMethod) {
		storeID := strings.TrimSpace(cmd.StoreID)
		if storeID == "" {
			return orderPlan{}, ErrOrderStoreRequired
		}
		store, err := s.stores.FindByID(ctx, storeID)
		if err != nil {
			if isRepoNotFound(err) {
				return orderPlan{}, ErrOrderStoreNotFound
			}
			return orderPlan{}, s.mapRepositoryError(err)
		}
		plan.store = &store
	}
	return plan, nil
}

// revalidateVoucher runs the full voucher check against the row-locked voucher. A failed
// check is returned as the dropped reason, not as an error.
func (s *orderService) revalidateVoucher(ctx context.Context, reservation *VoucherReservation, accountID string, subtotal int64, now time.Time) (*VoucherQuote, *VoucherRejection, error) {
	if reservation == nil || strings.TrimSpace(reservation.Code) == "" {
		return nil, nil, nil
	}
	code := reservation.Code
	if reservation.Expired(now) {
		return nil, rejectVoucher(VoucherRejectReservationExpired, code, "Voucher reservation has expired"), nil
	}

	voucher, err := s.vouchers.LockByCode(ctx, code)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, rejectVoucher(VoucherRejectNotFound, code, "Voucher code not found"), nil
		}
		return nil, nil, s.mapRepositoryError(err)
	}
	used, err := s.vouchers.HasUsage(ctx, voucher.Code, accountID)
	if err != nil {
		return nil, nil, s.mapRepositoryError(err)
	}
	quote, err := EvaluateVoucher(voucher, subtotal, used, now)
	if err != nil {
		var rejection *VoucherRejection
		if errors.As(err, &rejection) {
			return nil, rejection, nil
		}
		return nil, nil, err
	}
	return &quote, nil, nil
}

// redeemVoucher records the usage row and bumps the counter. A second redemption by the same
// account or a spent usage limit fails the order.
func (s *orderService) redeemVoucher(ctx context.Context, order Order, now time.Time) error {
	if order.VoucherCode == "" {
		return nil
	}
	inserted, err := s.vouchers.InsertUsage(ctx, domain.VoucherUsage{
		ID:             voucherUsageIDPrefix + s.newID(),
		VoucherCode:    order.VoucherCode,
		AccountID:      order.AccountID,
		OrderID:        order.ID,
		DiscountAmount: order.DiscountAmount,
		UsedAt:         now,
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if !inserted {
		return fmt.Errorf("%w: voucher %s already redeemed by account", ErrOrderConflict, order.VoucherCode)
	}
	if err := s.vouchers.IncrementUsage(ctx, order.VoucherCode, now); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// releaseVoucher hands the usage of an order that was never paid back to the account and the
// voucher's usage limit.
func (s *orderService) releaseVoucher(ctx context.Context, order Order, now time.Time) error {
	if order.VoucherCode == "" {
		return nil
	}
	released, err := s.vouchers.ReleaseUsage(ctx, order.VoucherCode, order.ID, now)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if released {
		s.logger(ctx, "order.voucher.released", map[string]any{
			"orderId": order.ID,
			"code":    order.VoucherCode,
		})
	}
	return nil
}

func (s *orderService) releaseStock(ctx context.Context, order Order, reason string) error {
	if len(order.Lines) == 0 {
		return nil
	}
	_, err := s.inventory.ReleaseStocks(ctx, InventoryReleaseCommand{
		OrderID: order.ID,
		Items:   orderStockItems(order.Lines),
		Reason:  reason,
	})
	return err
}

func (s *orderService) AttachPaymentTransaction(ctx context.Context, orderID string, transactionID string) error {
	orderID = strings.TrimSpace(orderID)
	transactionID = strings.TrimSpace(transactionID)
	if orderID == "" || transactionID == "" {
		return fmt.Errorf("%w: order id and transaction id are required", ErrOrderInvalidInput)
	}
	return s.mapRepositoryError(s.orders.SetPaymentTransaction(ctx, orderID, transactionID, s.clock()))
}

func (s *orderService) GetOrder(ctx context.Context, query OrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !query.IsAdmin && order.AccountID != strings.TrimSpace(query.AccountID) {
		return Order{}, fmt.Errorf("%w: order belongs to another account", ErrOrderPermissionDenied)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		AccountID:      strings.TrimSpace(filter.AccountID),
		ShippingStatus: slices.Clone(filter.ShippingStatus),
		Pagination:     filter.Pagination,
	})
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) cartStore(owner CartOwner) repositories.CartRepository {
	if owner.IsSession() {
		return s.sessionCarts
	}
	return s.accountCarts
}

func (s *orderService) clearSessionCart(ctx context.Context, owner CartOwner) {
	if err := s.sessionCarts.Clear(ctx, owner); err != nil {
		s.logger(ctx, "order.cart.clear_failed", map[string]any{"owner": owner.Key(), "error": err.Error()})
	}
}

func (s *orderService) clearVoucherSlot(ctx context.Context, owner CartOwner) {
	if s.reservations == nil || owner.IsZero() {
		return
	}
	if err := s.reservations.Delete(ctx, owner.Key()); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "order.voucher_slot.clear_failed", map[string]any{"owner": owner.Key(), "error": err.Error()})
	}
}

func (s *orderService) historyEntry(orderID, status, note string, at time.Time) domain.OrderHistoryEntry {
	return domain.OrderHistoryEntry{
		ID:        orderHistoryIDPrefix + s.newID(),
		OrderID:   orderID,
		Status:    status,
		Note:      note,
		CreatedAt: at,
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// NormalizeDeliveryMethod maps a client value onto a delivery method tag. The short forms
// "standard", "priority" and "pickup" are accepted.
func NormalizeDeliveryMethod(raw string) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case strings.ToLower(domain.DeliveryStandard), "standard":
		return domain.DeliveryStandard, true
	case strings.ToLower(domain.DeliveryPriority), "priority":
		return domain.DeliveryPriority, true
	case strings.ToLower(domain.DeliveryPickup), "pickup":
		return domain.DeliveryPickup, true
	}
	return "", false
}

// NormalizePaymentMethod maps a client value onto a payment method tag. Anything naming COD
// is cash on delivery.
func NormalizePaymentMethod(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	switch {
	case value == "":
		return "", false
	case domain.IsCashOnDelivery(value):
		return domain.PaymentMethodCOD, true
	case strings.EqualFold(value, domain.PaymentMethodMaya):
		return domain.PaymentMethodMaya, true
	case strings.EqualFold(value, domain.PaymentMethodCard), strings.EqualFold(value, "card"):
		return domain.PaymentMethodCard, true
	}
	return "", false
}
