package domain

import "time"

// VoucherType selects how a voucher discount is computed.
type VoucherType string

const (
	VoucherPercentage  VoucherType = "percentage"
	VoucherFixedAmount VoucherType = "fixed_amount"
)

// Voucher is a discount code. DiscountValue is in hundredths: 1000 is 10% for a percentage
// voucher and ₱10.00 for a fixed amount voucher.
type Voucher struct {
	Code              string
	Description       string
	DiscountType      VoucherType
	DiscountValue     int64
	MinPurchaseAmount *int64
	MaxDiscountAmount *int64
	ValidFrom         time.Time
	ValidUntil        time.Time
	UsageLimit        *int
	UsageCount        int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// VoucherUsage records one redemption. At most one exists per (voucher, account).
type VoucherUsage struct {
	ID             string
	VoucherCode    string
	AccountID      string
	OrderID        string
	DiscountAmount int64
	UsedAt         time.Time
}

// VoucherReservation is a provisionally applied voucher awaiting re-validation at order time.
// Discount and Subtotal are what the customer saw; they are informational only.
type VoucherReservation struct {
	Code       string
	Discount   int64
	Subtotal   int64
	OwnerKey   string
	ReservedAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the reservation lapsed at now.
func (r VoucherReservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
