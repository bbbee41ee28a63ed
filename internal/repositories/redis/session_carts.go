package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

const defaultSessionCartTTL = 7 * 24 * time.Hour

var errNotSessionOwner = errors.New("session cart store only stores session carts")

type sessionLine struct {
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"added_at"`
}

// SessionCartRepository keeps anonymous carts as a Redis hash per session token, one field per
// product. Every write slides the expiry forward.
type SessionCartRepository struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ repositories.CartRepository = (*SessionCartRepository)(nil)

// NewSessionCartRepository constructs the store.
func NewSessionCartRepository(client goredis.Cmdable, prefix string, ttl time.Duration) (*SessionCartRepository, error) {
	if client == nil {
		return nil, errors.New("session cart repository requires redis client")
	}
	if prefix == "" {
		prefix = "cart"
	}
	if ttl <= 0 {
		ttl = defaultSessionCartTTL
	}
	return &SessionCartRepository{client: client, prefix: prefix, ttl: ttl}, nil
}

func (r *SessionCartRepository) key(owner domain.CartOwner) string {
	return r.prefix + ":" + owner.ID()
}

func (r *SessionCartRepository) Load(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	if !owner.IsSession() {
		return domain.Cart{}, errNotSessionOwner
	}
	fields, err := r.client.HGetAll(ctx, r.key(owner)).Result()
	if err != nil {
		return domain.Cart{}, wrapError("session_carts.load", err)
	}

	cart := domain.Cart{Owner: owner}
	for productID, raw := range fields {
		var line sessionLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil || line.Quantity <= 0 {
			continue
		}
		cart.Lines = append(cart.Lines, domain.CartLine{ProductID: productID, Quantity: line.Quantity, AddedAt: line.AddedAt.UTC()})
	}
	sort.Slice(cart.Lines, func(i, j int) bool {
		if !cart.Lines[i].AddedAt.Equal(cart.Lines[j].AddedAt) {
			return cart.Lines[i].AddedAt.Before(cart.Lines[j].AddedAt)
		}
		return cart.Lines[i].ProductID < cart.Lines[j].ProductID
	})
	return cart, nil
}

func (r *SessionCartRepository) SetQuantity(ctx context.Context, owner domain.CartOwner, productID string, quantity int, at time.Time) error {
	if !owner.IsSession() {
		return errNotSessionOwner
	}
	if quantity <= 0 {
		return r.RemoveLine(ctx, owner, productID)
	}
	key := r.key(owner)

	line := sessionLine{Quantity: quantity, AddedAt: at.UTC()}
	if raw, err := r.client.HGet(ctx, key, productID).Result(); err == nil {
		var existing sessionLine
		if json.Unmarshal([]byte(raw), &existing) == nil && !existing.AddedAt.IsZero() {
			line.AddedAt = existing.AddedAt
		}
	} else if !errors.Is(err, goredis.Nil) {
		return wrapError("session_carts.set_quantity", err)
	}

	payload, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, productID, payload)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return wrapError("session_carts.set_quantity", err)
}

func (r *SessionCartRepository) RemoveLine(ctx context.Context, owner domain.CartOwner, productID string) error {
	if !owner.IsSession() {
		return errNotSessionOwner
	}
	return wrapError("session_carts.remove_line", r.client.HDel(ctx, r.key(owner), productID).Err())
}

func (r *SessionCartRepository) Clear(ctx context.Context, owner domain.CartOwner) error {
	if !owner.IsSession() {
		return errNotSessionOwner
	}
	return wrapError("session_carts.clear", r.client.Del(ctx, r.key(owner)).Err())
}
