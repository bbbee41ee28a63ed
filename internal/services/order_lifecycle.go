package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/tindahan/api/internal/domain"
)

const (
	historyNoteCancelledByCustomer = "Order cancelled by customer"
	historyNotePaidOnCollection    = "Payment received upon collection"
)

var shippingTransitions = map[domain.ShippingStatus][]domain.ShippingStatus{
	domain.ShippingProcessing: {
		domain.ShippingPreparingForShipment,
		domain.ShippingInTransit,
		domain.ShippingCancelled,
		domain.ShippingCollected,
	},
	domain.ShippingPreparingForShipment: {
		domain.ShippingInTransit,
		domain.ShippingCancelled,
		domain.ShippingCollected,
	},
	domain.ShippingInTransit: {
		domain.ShippingDelivered,
		domain.ShippingDeliveryFailed,
	},
}

var customerCancellable = []domain.ShippingStatus{
	domain.ShippingProcessing,
	domain.ShippingPreparingForShipment,
}

// CanTransitionShipping reports whether the state machine allows current → target.
func CanTransitionShipping(current, target domain.ShippingStatus) bool {
	return slices.Contains(shippingTransitions[current], target)
}

// TransitionShipping moves an order along the shipping state machine on behalf of an admin.
func (s *orderService) TransitionShipping(ctx context.Context, cmd TransitionCommand) (Order, error) {
	if !cmd.ActorIsAdmin {
		return Order{}, fmt.Errorf("%w: only staff can update shipping status", ErrOrderPermissionDenied)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseShippingStatus(string(cmd.Target))
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown shipping status %q", ErrOrderInvalidInput, cmd.Target)
	}
	return s.transition(ctx, orderID, target, strings.TrimSpace(cmd.Note), strings.TrimSpace(cmd.ActorID), nil)
}

// Cancel lets the owner cancel an order that has not left the warehouse.
func (s *orderService) Cancel(ctx context.Context, cmd CancelCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	accountID := strings.TrimSpace(cmd.AccountID)
	if orderID == "" || accountID == "" {
		return Order{}, fmt.Errorf("%w: order id and account are required", ErrOrderInvalidInput)
	}
	guard := func(order Order) error {
		if order.AccountID != accountID {
			return fmt.Errorf("%w: order belongs to another account", ErrOrderPermissionDenied)
		}
		if !slices.Contains(customerCancellable, order.ShippingStatus) {
			return fmt.Errorf("%w: order in %s can no longer be cancelled", ErrOrderInvalidState, order.ShippingStatus)
		}
		return nil
	}
	return s.transition(ctx, orderID, domain.ShippingCancelled, historyNoteCancelledByCustomer, accountID, guard)
}

func (s *orderService) transition(ctx context.Context, orderID string, target domain.ShippingStatus, note string, actorID string, guard func(Order) error) (Order, error) {
	var (
		updated  Order
		previous domain.ShippingStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.LockByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if guard != nil {
			if err := guard(order); err != nil {
				return err
			}
		}
		if err := validateShippingTransition(order, target); err != nil {
			return err
		}

		previous = order.ShippingStatus
		now := s.clock()
		entries, err := s.applyShippingTransition(txCtx, &order, target, note, now)
		if err != nil {
			return err
		}
		if err := s.orders.UpdateStatus(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		for _, entry := range entries {
			if err := s.orders.AppendHistory(txCtx, entry); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		order.History = append(reverseHistory(entries), order.History...)
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.ShippingStatus),
		ActorID:        actorID,
		OccurredAt:     updated.UpdatedAt,
		Metadata: map[string]any{
			"paymentStatus": string(updated.PaymentStatus),
			"note":          note,
		},
	})
	return updated, nil
}

func validateShippingTransition(order Order, target domain.ShippingStatus) error {
	if !CanTransitionShipping(order.ShippingStatus, target) {
		return fmt.Errorf("%w: %s to %s is not allowed", ErrOrderInvalidState, order.ShippingStatus, target)
	}
	if target == domain.ShippingCollected && !domain.IsPickup(order.DeliveryMethod) {
		return fmt.Errorf("%w: only pickup orders can be collected", ErrOrderInvalidState)
	}
	if order.AwaitingPayment && target != domain.ShippingCancelled {
		return fmt.Errorf("%w: order is awaiting payment", ErrOrderInvalidState)
	}
	return nil
}

// applyShippingTransition mutates order for target and returns the history rows to append,
// oldest first.
func (s *orderService) applyShippingTransition(ctx context.Context, order *Order, target domain.ShippingStatus, note string, now time.Time) ([]domain.OrderHistoryEntry, error) {
	previous := order.ShippingStatus
	if note == "" {
		note = fmt.Sprintf("Status updated from %s to %s", previous, target)
	}
	entries := []domain.OrderHistoryEntry{s.historyEntry(order.ID, string(target), note, now)}

	switch target {
	case domain.ShippingCancelled:
		if err := s.releaseStock(ctx, *order, "cancelled"); err != nil {
			return nil, err
		}
		// An unpaid gateway order never became a purchase, so the voucher goes back too.
		if order.AwaitingPayment {
			if err := s.releaseVoucher(ctx, *order, now); err != nil {
				return nil, err
			}
		}
		if order.PaymentStatus == domain.PaymentPaid {
			order.PaymentStatus = domain.PaymentRefunded
		} else {
			order.PaymentStatus = domain.PaymentCancelled
		}
		order.AwaitingPayment = false
	case domain.ShippingCollected:
		if order.PaymentStatus == domain.PaymentPending {
			order.PaymentStatus = domain.PaymentPaid
			entries = append(entries, s.historyEntry(order.ID, string(domain.PaymentPaid), historyNotePaidOnCollection, now))
		}
	}

	order.ShippingStatus = target
	order.UpdatedAt = now
	return entries, nil
}

// ConfirmPayment settles an order waiting on the gateway. Stock and the voucher were already
// held when the order was created, so only the payment state and the cart change. Replays
// against a paid order return it unchanged.
func (s *orderService) ConfirmPayment(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var (
		updated Order
		changed bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.LockByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.PaymentStatus == domain.PaymentPaid {
			updated = order
			return nil
		}
		if order.PaymentStatus != domain.PaymentPending || !order.AwaitingPayment {
			return fmt.Errorf("%w: only orders awaiting payment can be confirmed, order payment is %s", ErrOrderInvalidState, order.PaymentStatus)
		}

		now := s.clock()
		order.PaymentStatus = domain.PaymentPaid
		order.AwaitingPayment = false
		order.UpdatedAt = now
		if err := s.orders.UpdateStatus(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		entry := s.historyEntry(order.ID, string(domain.PaymentPaid), historyNotePaymentConfirmed, now)
		if err := s.orders.AppendHistory(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.accountCarts.Clear(txCtx, domain.AccountOwner(order.AccountID)); err != nil {
			return s.mapRepositoryError(err)
		}

		order.History = append([]domain.OrderHistoryEntry{entry}, order.History...)
		updated = order
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if !changed {
		return updated, nil
	}

	s.clearVoucherSlot(ctx, domain.AccountOwner(updated.AccountID))
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentConfirmed,
		OrderID:        updated.ID,
		PreviousStatus: string(domain.PaymentPending),
		CurrentStatus:  string(updated.PaymentStatus),
		OccurredAt:     updated.UpdatedAt,
		Metadata: map[string]any{
			"transactionId": updated.PaymentTransactionID,
			"totalPrice":    updated.TotalPrice,
		},
	})
	return updated, nil
}

// FailPayment cancels an order whose gateway payment failed or was abandoned, returning its
// stock and voucher usage. Calling it again is a no-op.
func (s *orderService) FailPayment(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var (
		updated  Order
		previous domain.PaymentStatus
		changed  bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.LockByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.PaymentStatus == domain.PaymentCancelled && order.ShippingStatus == domain.ShippingCancelled {
			updated = order
			return nil
		}
		if order.PaymentStatus != domain.PaymentPending {
			return fmt.Errorf("%w: only pending orders can fail payment, order payment is %s", ErrOrderInvalidState, order.PaymentStatus)
		}
		if order.ShippingStatus != domain.ShippingProcessing {
			return fmt.Errorf("%w: payment can only fail before fulfilment starts, order is %s", ErrOrderInvalidState, order.ShippingStatus)
		}

		now := s.clock()
		if err := s.releaseStock(txCtx, order, "payment_failed"); err != nil {
			return err
		}
		if err := s.releaseVoucher(txCtx, order, now); err != nil {
			return err
		}
		previous = order.PaymentStatus
		order.PaymentStatus = domain.PaymentCancelled
		order.ShippingStatus = domain.ShippingCancelled
		order.AwaitingPayment = false
		order.UpdatedAt = now
		if err := s.orders.UpdateStatus(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		entry := s.historyEntry(order.ID, string(domain.ShippingCancelled), historyNotePaymentFailed, now)
		if err := s.orders.AppendHistory(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}
		order.History = append([]domain.OrderHistoryEntry{entry}, order.History...)
		updated = order
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if changed {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventPaymentFailed,
			OrderID:        updated.ID,
			PreviousStatus: string(previous),
			CurrentStatus:  string(updated.PaymentStatus),
			OccurredAt:     updated.UpdatedAt,
		})
	}
	return updated, nil
}

// reverseHistory turns oldest-first entries into the newest-first order reads return.
func reverseHistory(entries []domain.OrderHistoryEntry) []domain.OrderHistoryEntry {
	out := slices.Clone(entries)
	slices.Reverse(out)
	return out
}
