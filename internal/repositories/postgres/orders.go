package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

const orderColumns = `id, account_id, address_id, payment_status, shipping_status, delivery_method, payment_method,
	subtotal, shipping_fee, discount_amount, total_price, voucher_code, payment_transaction_id, awaiting_payment,
	created_at, updated_at`

// OrderRepository persists orders and the rows they own.
type OrderRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Postgres-backed order repository.
func NewOrderRepository(provider *ppostgres.Provider) (*OrderRepository, error) {
	if err := requireProvider(provider, "order"); err != nil {
		return nil, err
	}
	return &OrderRepository{provider: provider}, nil
}

// Insert writes the order, its lines, history and pickup assignment. Callers run it inside
// UnitOfWork.RunInTx so the rows land together.
func (r *OrderRepository) Insert(ctx context.Context, o domain.Order) error {
	q := r.provider.Querier(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.AccountID, nullableString(o.AddressID), string(o.PaymentStatus), string(o.ShippingStatus),
		o.DeliveryMethod, o.PaymentMethod, o.Subtotal, o.ShippingFee, o.DiscountAmount, o.TotalPrice,
		nullableString(o.VoucherCode), nullableString(o.PaymentTransactionID), o.AwaitingPayment,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("orders.insert", err)
	}

	for _, line := range o.Lines {
		_, err := q.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			line.ID, o.ID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice)
		if err != nil {
			return ppostgres.WrapError("orders.insert_line", err)
		}
	}
	for _, entry := range o.History {
		entry.OrderID = o.ID
		if err := r.AppendHistory(ctx, entry); err != nil {
			return err
		}
	}
	if o.Pickup != nil {
		_, err := q.Exec(ctx, `
			INSERT INTO pickup_assignments (order_id, store_id, assigned_at) VALUES ($1, $2, $3)`,
			o.ID, o.Pickup.StoreID, o.Pickup.AssignedAt)
		if err != nil {
			return ppostgres.WrapError("orders.insert_pickup", err)
		}
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.load(ctx, "orders.get", "SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID)
}

func (r *OrderRepository) LockByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.load(ctx, "orders.lock", "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o domain.Order) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `
		UPDATE orders
		   SET payment_status = $2, shipping_status = $3, awaiting_payment = $4, updated_at = $5
		 WHERE id = $1`,
		o.ID, string(o.PaymentStatus), string(o.ShippingStatus), o.AwaitingPayment, o.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("orders.update_status", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("orders.update_status", "order")
	}
	return nil
}

func (r *OrderRepository) AppendHistory(ctx context.Context, entry domain.OrderHistoryEntry) error {
	_, err := r.provider.Querier(ctx).Exec(ctx, `
		INSERT INTO order_history (id, order_id, status, note, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.OrderID, entry.Status, entry.Note, entry.CreatedAt)
	return ppostgres.WrapError("orders.append_history", err)
}

func (r *OrderRepository) SetPaymentTransaction(ctx context.Context, orderID string, transactionID string, at time.Time) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx,
		`UPDATE orders SET payment_transaction_id = $2, updated_at = $3 WHERE id = $1`, orderID, transactionID, at)
	if err != nil {
		return ppostgres.WrapError("orders.set_transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("orders.set_transaction", "order")
	}
	return nil
}

// List returns orders newest first with their lines. History is only loaded by FindByID.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	window, err := windowFor("orders.list", filter.Pagination)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	var where whereBuilder
	if filter.AccountID != "" {
		where.add("account_id = $%d", filter.AccountID)
	}
	if len(filter.ShippingStatus) > 0 {
		statuses := make([]string, len(filter.ShippingStatus))
		for i, s := range filter.ShippingStatus {
			statuses[i] = string(s)
		}
		where.add("shipping_status = ANY($%d)", statuses)
	}
	limit, args := window.clause(where.args)

	q := r.provider.Querier(ctx)
	rows, err := q.Query(ctx, "SELECT "+orderColumns+" FROM orders"+where.sql()+" ORDER BY created_at DESC, id DESC"+limit, args...)
	if err != nil {
		return domain.Page[domain.Order]{}, ppostgres.WrapError("orders.list", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, ppostgres.WrapError("orders.list", err)
	}
	page := pageOf(window, orders)

	if len(page.Items) > 0 {
		ids := make([]string, len(page.Items))
		for i, o := range page.Items {
			ids[i] = o.ID
		}
		lines, err := r.linesFor(ctx, q, ids)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		for i := range page.Items {
			page.Items[i].Lines = lines[page.Items[i].ID]
		}
	}
	return page, nil
}

func (r *OrderRepository) FindLine(ctx context.Context, orderLineID string) (domain.OrderLine, error) {
	var line domain.OrderLine
	err := r.provider.Querier(ctx).QueryRow(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price
		  FROM order_lines WHERE id = $1`, orderLineID).
		Scan(&line.ID, &line.OrderID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice)
	return line, ppostgres.WrapError("orders.find_line", err)
}

func (r *OrderRepository) AddressInUse(ctx context.Context, addressID string) (bool, error) {
	var used bool
	err := r.provider.Querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE address_id = $1)`, addressID).Scan(&used)
	return used, ppostgres.WrapError("orders.address_in_use", err)
}

func (r *OrderRepository) load(ctx context.Context, op string, sql string, orderID string) (domain.Order, error) {
	q := r.provider.Querier(ctx)
	order, err := scanOrder(q.QueryRow(ctx, sql, orderID))
	if err != nil {
		return domain.Order{}, ppostgres.WrapError(op, err)
	}

	lines, err := r.linesFor(ctx, q, []string{orderID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[orderID]

	rows, err := q.Query(ctx, `
		SELECT id, order_id, status, note, created_at
		  FROM order_history
		 WHERE order_id = $1
		 ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return domain.Order{}, ppostgres.WrapError(op, err)
	}
	order.History, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderHistoryEntry, error) {
		var h domain.OrderHistoryEntry
		err := row.Scan(&h.ID, &h.OrderID, &h.Status, &h.Note, &h.CreatedAt)
		h.CreatedAt = h.CreatedAt.UTC()
		return h, err
	})
	if err != nil {
		return domain.Order{}, ppostgres.WrapError(op, err)
	}

	var pickup domain.PickupAssignment
	err = q.QueryRow(ctx, `
		SELECT p.order_id, p.store_id, s.name, p.assigned_at
		  FROM pickup_assignments p
		  JOIN stores s ON s.id = p.store_id
		 WHERE p.order_id = $1`, orderID).
		Scan(&pickup.OrderID, &pickup.StoreID, &pickup.StoreName, &pickup.AssignedAt)
	switch {
	case err == nil:
		pickup.AssignedAt = pickup.AssignedAt.UTC()
		order.Pickup = &pickup
	case !errors.Is(err, pgx.ErrNoRows):
		return domain.Order{}, ppostgres.WrapError(op, err)
	}
	return order, nil
}

func (r *OrderRepository) linesFor(ctx context.Context, q ppostgres.Querier, orderIDs []string) (map[string][]domain.OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price
		  FROM order_lines
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, ppostgres.WrapError("orders.lines", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderLine, error) {
		var l domain.OrderLine
		err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice)
		return l, err
	})
	if err != nil {
		return nil, ppostgres.WrapError("orders.lines", err)
	}
	out := make(map[string][]domain.OrderLine, len(orderIDs))
	for _, l := range lines {
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                       domain.Order
		addressID, voucher, txn *string
		payment, shipping       string
	)
	err := row.Scan(&o.ID, &o.AccountID, &addressID, &payment, &shipping, &o.DeliveryMethod, &o.PaymentMethod,
		&o.Subtotal, &o.ShippingFee, &o.DiscountAmount, &o.TotalPrice, &voucher, &txn, &o.AwaitingPayment,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.AddressID = derefString(addressID)
	o.VoucherCode = derefString(voucher)
	o.PaymentTransactionID = derefString(txn)
	o.PaymentStatus = domain.PaymentStatus(payment)
	o.ShippingStatus = domain.ShippingStatus(shipping)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}
