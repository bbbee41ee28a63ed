package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

type slotRecord struct {
	Code       string    `json:"code"`
	Discount   int64     `json:"discount"`
	Subtotal   int64     `json:"subtotal"`
	OwnerKey   string    `json:"owner_key"`
	ReservedAt time.Time `json:"reserved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// expiredSlotRetention keeps a lapsed reservation readable so order placement can report the
// expiry instead of silently losing the discount.
const expiredSlotRetention = 24 * time.Hour

// VoucherSlotRepository stores one voucher reservation per cart owner. Redis drops the key
// expiredSlotRetention after the reservation's ExpiresAt.
type VoucherSlotRepository struct {
	client    goredis.Cmdable
	prefix    string
	retention time.Duration
	now       func() time.Time
}

var _ repositories.VoucherReservationRepository = (*VoucherSlotRepository)(nil)

// NewVoucherSlotRepository constructs the store.
func NewVoucherSlotRepository(client goredis.Cmdable, prefix string) (*VoucherSlotRepository, error) {
	if client == nil {
		return nil, errors.New("voucher slot repository requires redis client")
	}
	if prefix == "" {
		prefix = "voucher-slot"
	}
	return &VoucherSlotRepository{client: client, prefix: prefix, retention: expiredSlotRetention, now: time.Now}, nil
}

func (r *VoucherSlotRepository) key(ownerKey string) string {
	return r.prefix + ":" + ownerKey
}

func (r *VoucherSlotRepository) Get(ctx context.Context, ownerKey string) (domain.VoucherReservation, error) {
	if strings.TrimSpace(ownerKey) == "" {
		return domain.VoucherReservation{}, errors.New("voucher slot: owner key is required")
	}
	raw, err := r.client.Get(ctx, r.key(ownerKey)).Bytes()
	if err != nil {
		return domain.VoucherReservation{}, wrapError("voucher_slots.get", err)
	}
	var rec slotRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.VoucherReservation{}, fmt.Errorf("voucher_slots.get: decode: %w", err)
	}
	return domain.VoucherReservation{
		Code:       rec.Code,
		Discount:   rec.Discount,
		Subtotal:   rec.Subtotal,
		OwnerKey:   rec.OwnerKey,
		ReservedAt: rec.ReservedAt.UTC(),
		ExpiresAt:  rec.ExpiresAt.UTC(),
	}, nil
}

func (r *VoucherSlotRepository) Save(ctx context.Context, res domain.VoucherReservation) error {
	if strings.TrimSpace(res.OwnerKey) == "" {
		return errors.New("voucher slot: owner key is required")
	}
	ttl := res.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("voucher slot: reservation already expired")
	}
	ttl += r.retention
	payload, err := json.Marshal(slotRecord{
		Code:       res.Code,
		Discount:   res.Discount,
		Subtotal:   res.Subtotal,
		OwnerKey:   res.OwnerKey,
		ReservedAt: res.ReservedAt.UTC(),
		ExpiresAt:  res.ExpiresAt.UTC(),
	})
	if err != nil {
		return err
	}
	return wrapError("voucher_slots.save", r.client.Set(ctx, r.key(res.OwnerKey), payload, ttl).Err())
}

func (r *VoucherSlotRepository) Delete(ctx context.Context, ownerKey string) error {
	return wrapError("voucher_slots.delete", r.client.Del(ctx, r.key(ownerKey)).Err())
}
