package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/textutil"
	"github.com/tindahan/api/internal/repositories"
)

const (
	defaultVoucherReservationTTL = 30 * time.Minute
	maxVoucherCodeLength         = 32
	// Percentages are stored in hundredths, so 10000 is 100%.
	maxPercentageValue = 10000
)

// VoucherServiceDeps bundles collaborators for the voucher service.
type VoucherServiceDeps struct {
	Vouchers       repositories.VoucherRepository
	Reservations   repositories.VoucherReservationRepository
	Carts          CartService
	Audit          AuditLogService
	ReservationTTL time.Duration
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type voucherService struct {
	vouchers     repositories.VoucherRepository
	reservations repositories.VoucherReservationRepository
	carts        CartService
	audit        AuditLogService
	ttl          time.Duration
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
}

var _ VoucherService = (*voucherService)(nil)

// NewVoucherService constructs the voucher validator, applier and admin catalogue.
func NewVoucherService(deps VoucherServiceDeps) (VoucherService, error) {
	if deps.Vouchers == nil {
		return nil, errors.New("voucher service: voucher repository is required")
	}
	if deps.Reservations == nil {
		return nil, errors.New("voucher service: reservation repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("voucher service: cart service is required")
	}

	ttl := deps.ReservationTTL
	if ttl <= 0 {
		ttl = defaultVoucherReservationTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &voucherService{
		vouchers:     deps.Vouchers,
		reservations: deps.Reservations,
		carts:        deps.Carts,
		audit:        deps.Audit,
		ttl:          ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *voucherService) Evaluate(ctx context.Context, code string, subtotal int64, accountID string) (VoucherQuote, error) {
	code = textutil.NormalizeCode(code)
	if code == "" {
		return VoucherQuote{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}

	voucher, err := s.vouchers.FindByCode(ctx, code)
	if err != nil {
		if isRepoNotFound(err) {
			return VoucherQuote{}, rejectVoucher(VoucherRejectNotFound, code, "Voucher code not found")
		}
		return VoucherQuote{}, s.mapRepositoryError(err)
	}

	used := false
	if accountID = strings.TrimSpace(accountID); accountID != "" {
		used, err = s.vouchers.HasUsage(ctx, voucher.Code, accountID)
		if err != nil {
			return VoucherQuote{}, s.mapRepositoryError(err)
		}
	}
	return EvaluateVoucher(voucher, subtotal, used, s.clock())
}

func (s *voucherService) Apply(ctx context.Context, cmd ApplyVoucherCommand) (VoucherReservation, error) {
	accountID := strings.TrimSpace(cmd.AccountID)
	if accountID == "" {
		return VoucherReservation{}, fmt.Errorf("%w: account is required", ErrVoucherInvalidInput)
	}
	owner := cmd.Owner
	if owner.IsZero() {
		owner = domain.AccountOwner(accountID)
	}

	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		return VoucherReservation{}, err
	}
	quote, err := s.Evaluate(ctx, cmd.Code, cart.Subtotal, accountID)
	if err != nil {
		return VoucherReservation{}, err
	}

	now := s.clock()
	reservation := VoucherReservation{
		Code:       quote.Code,
		Discount:   quote.Discount,
		Subtotal:   quote.Subtotal,
		OwnerKey:   owner.Key(),
		ReservedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.reservations.Save(ctx, reservation); err != nil {
		return VoucherReservation{}, s.mapRepositoryError(err)
	}
	return reservation, nil
}

func (s *voucherService) Remove(ctx context.Context, owner CartOwner) error {
	if owner.IsZero() {
		return fmt.Errorf("%w: cart owner is required", ErrVoucherInvalidInput)
	}
	if err := s.reservations.Delete(ctx, owner.Key()); err != nil && !isRepoNotFound(err) {
		return s.mapRepositoryError(err)
	}
	return nil
}

// Current returns the reservation held for owner, or nil when none is held. A reservation past
// its expiry is still returned so checkout can tell the customer why the discount went away;
// placing an order clears it.
func (s *voucherService) Current(ctx context.Context, owner CartOwner) (*VoucherReservation, error) {
	if owner.IsZero() {
		return nil, nil
	}
	reservation, err := s.reservations.Get(ctx, owner.Key())
	if err != nil {
		if isRepoNotFound(err) {
			return nil, nil
		}
		return nil, s.mapRepositoryError(err)
	}
	if reservation.Expired(s.clock()) {
		s.logger(ctx, "voucher.reservation.expired", map[string]any{
			"owner":     owner.Key(),
			"code":      reservation.Code,
			"expiredAt": reservation.ExpiresAt,
		})
	}
	return &reservation, nil
}

func (s *voucherService) ListVouchers(ctx context.Context, filter VoucherListFilter) (domain.Page[Voucher], error) {
	page, err := s.vouchers.List(ctx, repositories.VoucherFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.Page[Voucher]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *voucherService) GetVoucher(ctx context.Context, code string) (Voucher, error) {
	code = textutil.NormalizeCode(code)
	if code == "" {
		return Voucher{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}
	voucher, err := s.vouchers.FindByCode(ctx, code)
	if err != nil {
		return Voucher{}, s.mapRepositoryError(err)
	}
	return voucher, nil
}

func (s *voucherService) CreateVoucher(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error) {
	voucher, err := buildVoucher(cmd)
	if err != nil {
		return Voucher{}, err
	}
	now := s.clock()
	voucher.CreatedAt = now
	voucher.UpdatedAt = now

	if err := s.vouchers.Insert(ctx, voucher); err != nil {
		return Voucher{}, s.mapRepositoryError(err)
	}
	s.record(ctx, cmd.ActorID, "voucher.create", voucher.Code, map[string]any{
		"type":  string(voucher.DiscountType),
		"value": voucher.DiscountValue,
	})
	return voucher, nil
}

func (s *voucherService) UpdateVoucher(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error) {
	next, err := buildVoucher(cmd)
	if err != nil {
		return Voucher{}, err
	}
	existing, err := s.vouchers.FindByCode(ctx, next.Code)
	if err != nil {
		return Voucher{}, s.mapRepositoryError(err)
	}
	if next.UsageLimit != nil && *next.UsageLimit < existing.UsageCount {
		return Voucher{}, fmt.Errorf("%w: usage limit is below the %d redemptions already made", ErrVoucherInvalidInput, existing.UsageCount)
	}

	next.UsageCount = existing.UsageCount
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = s.clock()
	if err := s.vouchers.Update(ctx, next); err != nil {
		return Voucher{}, s.mapRepositoryError(err)
	}
	s.record(ctx, cmd.ActorID, "voucher.update", next.Code, map[string]any{
		"isActive": next.IsActive,
	})
	return next, nil
}

// DeleteVoucher removes a voucher, or deactivates it when it has been redeemed so usage
// records keep their reference.
func (s *voucherService) DeleteVoucher(ctx context.Context, cmd DeleteVoucherCommand) (VoucherDeletion, error) {
	code := textutil.NormalizeCode(cmd.Code)
	if code == "" {
		return VoucherDeletion{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}
	voucher, err := s.vouchers.FindByCode(ctx, code)
	if err != nil {
		return VoucherDeletion{}, s.mapRepositoryError(err)
	}
	used, err := s.vouchers.CountUsage(ctx, code)
	if err != nil {
		return VoucherDeletion{}, s.mapRepositoryError(err)
	}

	if used > 0 {
		voucher.IsActive = false
		voucher.UpdatedAt = s.clock()
		if err := s.vouchers.Update(ctx, voucher); err != nil {
			return VoucherDeletion{}, s.mapRepositoryError(err)
		}
		s.record(ctx, cmd.ActorID, "voucher.deactivate", code, map[string]any{"usage": used})
		return VoucherDeletion{Code: code, Deactivated: true}, nil
	}

	if err := s.vouchers.Delete(ctx, code); err != nil {
		return VoucherDeletion{}, s.mapRepositoryError(err)
	}
	s.record(ctx, cmd.ActorID, "voucher.delete", code, nil)
	return VoucherDeletion{Code: code}, nil
}

func (s *voucherService) ListUsage(ctx context.Context, code string, pager Pagination) (domain.Page[VoucherUsage], error) {
	code = textutil.NormalizeCode(code)
	if code == "" {
		return domain.Page[VoucherUsage]{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}
	if _, err := s.vouchers.FindByCode(ctx, code); err != nil {
		return domain.Page[VoucherUsage]{}, s.mapRepositoryError(err)
	}
	page, err := s.vouchers.ListUsage(ctx, code, pager)
	if err != nil {
		return domain.Page[VoucherUsage]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *voucherService) record(ctx context.Context, actorID, action, code string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		ActorID:    actorID,
		Action:     action,
		TargetType: "voucher",
		TargetID:   code,
		Details:    details,
		OccurredAt: s.clock(),
	})
}

func (s *voucherService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrVoucherNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrVoucherConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("voucher: repository unavailable: %w", err)
		}
	}
	return err
}

// EvaluateVoucher checks eligibility in a fixed order and computes the clamped discount.
// The first failing rule is reported.
func EvaluateVoucher(voucher Voucher, subtotal int64, alreadyUsed bool, now time.Time) (VoucherQuote, error) {
	code := voucher.Code
	switch {
	case !voucher.IsActive:
		return VoucherQuote{}, rejectVoucher(VoucherRejectInactive, code, "Voucher is not active")
	case !voucher.ValidFrom.IsZero() && now.Before(voucher.ValidFrom):
		return VoucherQuote{}, rejectVoucher(VoucherRejectNotStarted, code, "Voucher is not yet valid")
	case !voucher.ValidUntil.IsZero() && !now.Before(voucher.ValidUntil):
		return VoucherQuote{}, rejectVoucher(VoucherRejectExpired, code, "Voucher has expired")
	case voucher.UsageLimit != nil && voucher.UsageCount >= *voucher.UsageLimit:
		return VoucherQuote{}, rejectVoucher(VoucherRejectUsageLimitReached, code, "Voucher usage limit has been reached")
	case alreadyUsed:
		return VoucherQuote{}, rejectVoucher(VoucherRejectAlreadyUsed, code, "You have already used this voucher")
	case subtotal <= 0:
		return VoucherQuote{}, rejectVoucher(VoucherRejectEmptyCart, code, "Your cart is empty")
	case voucher.MinPurchaseAmount != nil && subtotal < *voucher.MinPurchaseAmount:
		return VoucherQuote{}, rejectVoucher(VoucherRejectBelowMinimum, code,
			fmt.Sprintf("Minimum purchase of %s required", domain.FormatMoney(*voucher.MinPurchaseAmount)))
	}

	return VoucherQuote{
		Code:     code,
		Subtotal: subtotal,
		Discount: voucherDiscount(voucher, subtotal),
		Voucher:  voucher,
	}, nil
}

func voucherDiscount(voucher Voucher, subtotal int64) int64 {
	var discount int64
	switch voucher.DiscountType {
	case domain.VoucherPercentage:
		// value is in hundredths of a percent of the subtotal
		discount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(voucher.DiscountValue)).
			Div(decimal.NewFromInt(maxPercentageValue)).
			Round(0).
			IntPart()
		if voucher.MaxDiscountAmount != nil && discount > *voucher.MaxDiscountAmount {
			discount = *voucher.MaxDiscountAmount
		}
	default:
		discount = voucher.DiscountValue
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func buildVoucher(cmd UpsertVoucherCommand) (Voucher, error) {
	code := textutil.NormalizeCode(cmd.Code)
	if code == "" || len(code) > maxVoucherCodeLength {
		return Voucher{}, fmt.Errorf("%w: code must be 1-%d characters", ErrVoucherInvalidInput, maxVoucherCodeLength)
	}

	voucherType := domain.VoucherType(strings.ToLower(strings.TrimSpace(cmd.DiscountType)))
	switch voucherType {
	case domain.VoucherPercentage, domain.VoucherFixedAmount:
	default:
		return Voucher{}, fmt.Errorf("%w: discount_type must be percentage or fixed_amount", ErrVoucherInvalidInput)
	}
	if cmd.DiscountValue <= 0 {
		return Voucher{}, fmt.Errorf("%w: discount_value must be positive", ErrVoucherInvalidInput)
	}
	if voucherType == domain.VoucherPercentage && cmd.DiscountValue > maxPercentageValue {
		return Voucher{}, fmt.Errorf("%w: percentage cannot exceed 100", ErrVoucherInvalidInput)
	}
	if cmd.MinPurchaseAmount != nil && *cmd.MinPurchaseAmount < 0 {
		return Voucher{}, fmt.Errorf("%w: min_purchase_amount cannot be negative", ErrVoucherInvalidInput)
	}
	maxDiscount := cmd.MaxDiscountAmount
	if voucherType != domain.VoucherPercentage {
		maxDiscount = nil
	}
	if maxDiscount != nil && *maxDiscount <= 0 {
		return Voucher{}, fmt.Errorf("%w: max_discount_amount must be positive", ErrVoucherInvalidInput)
	}
	if cmd.ValidFrom.IsZero() || cmd.ValidUntil.IsZero() {
		return Voucher{}, fmt.Errorf("%w: valid_from and valid_until are required", ErrVoucherInvalidInput)
	}
	if !cmd.ValidUntil.After(cmd.ValidFrom) {
		return Voucher{}, fmt.Errorf("%w: valid_until must be after valid_from", ErrVoucherInvalidInput)
	}
	if cmd.UsageLimit != nil && *cmd.UsageLimit <= 0 {
		return Voucher{}, fmt.Errorf("%w: usage_limit must be positive", ErrVoucherInvalidInput)
	}

	return Voucher{
		Code:              code,
		Description:       textutil.PlainText(cmd.Description, 500),
		DiscountType:      voucherType,
		DiscountValue:     cmd.DiscountValue,
		MinPurchaseAmount: cmd.MinPurchaseAmount,
		MaxDiscountAmount: maxDiscount,
		ValidFrom:         cmd.ValidFrom.UTC(),
		ValidUntil:        cmd.ValidUntil.UTC(),
		UsageLimit:        cmd.UsageLimit,
		IsActive:          cmd.IsActive,
	}, nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
