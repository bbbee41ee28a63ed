package services

import (
	"errors"
	"fmt"
)

var (
	// ErrVoucherInvalidInput signals malformed voucher fields or codes.
	ErrVoucherInvalidInput = errors.New("voucher: invalid input")
	// ErrVoucherNotFound indicates no voucher exists for the code.
	ErrVoucherNotFound = errors.New("voucher: not found")
	// ErrVoucherConflict indicates a duplicate code or a concurrent update.
	ErrVoucherConflict = errors.New("voucher: conflict")
	// ErrVoucherRejected is matched by every VoucherRejection.
	ErrVoucherRejected = errors.New("voucher: rejected")
)

// Rejection codes, checked in this order.
const (
	VoucherRejectNotFound           = "not_found"
	VoucherRejectInactive           = "inactive"
	VoucherRejectNotStarted         = "not_started"
	VoucherRejectExpired            = "expired"
	VoucherRejectUsageLimitReached  = "usage_limit_reached"
	VoucherRejectAlreadyUsed        = "already_used"
	VoucherRejectEmptyCart          = "empty_cart"
	VoucherRejectBelowMinimum       = "below_minimum"
	VoucherRejectReservationExpired = "reservation_expired"
)

// VoucherRejection explains why a voucher cannot be applied.
type VoucherRejection struct {
	Code    string
	Reason  string
	Voucher string
}

func (e *VoucherRejection) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("voucher %s rejected: %s", e.Voucher, e.Reason)
}

// Is matches ErrVoucherRejected, and ErrVoucherNotFound for unknown codes.
func (e *VoucherRejection) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrVoucherRejected:
		return true
	case ErrVoucherNotFound:
		return e.Code == VoucherRejectNotFound
	}
	return false
}

func rejectVoucher(code string, voucher string, reason string) *VoucherRejection {
	return &VoucherRejection{Code: code, Voucher: voucher, Reason: reason}
}
