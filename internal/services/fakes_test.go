package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

var fixedNow = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%08d", n)
	}
}

type testRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e testRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	default:
		return "unavailable"
	}
}

func (e testRepoError) IsNotFound() bool    { return e.notFound }
func (e testRepoError) IsConflict() bool    { return e.conflict }
func (e testRepoError) IsUnavailable() bool { return e.unavailable }

var errNotFound = testRepoError{notFound: true}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

// fakeProducts --------------------------------------------------------------------------

type fakeProducts struct {
	mu       sync.Mutex
	items    map[string]Product
	locked   [][]string
	adjustFn func(productID string, delta int) (int, error)
}

func newFakeProducts(products ...Product) *fakeProducts {
	f := &fakeProducts{items: map[string]Product{}}
	for _, p := range products {
		f.items[p.ID] = p
	}
	return f
}

func (f *fakeProducts) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].StockQuantity
}

func (f *fakeProducts) List(_ context.Context, filter repositories.ProductFilter) (domain.Page[Product], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []Product
	for _, p := range f.items {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.OnSaleOnly && !p.OnSale {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Query)) {
			continue
		}
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.Page[Product]{Items: items}, nil
}

func (f *fakeProducts) ListCategories(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.items {
		if !slices.Contains(out, p.Category) {
			out = append(out, p.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeProducts) ListSubcategories(_ context.Context, category string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.items {
		if p.Category == category && p.Subcategory != "" && !slices.Contains(out, p.Subcategory) {
			out = append(out, p.Subcategory)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeProducts) FindByID(_ context.Context, id string) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return Product{}, errNotFound
	}
	return p, nil
}

func (f *fakeProducts) FindByIDs(_ context.Context, ids []string) (map[string]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]Product{}
	for _, id := range ids {
		if p, ok := f.items[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeProducts) LockByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	sorted := slices.Clone(ids)
	sort.Strings(sorted)
	f.mu.Lock()
	f.locked = append(f.locked, sorted)
	f.mu.Unlock()
	return f.FindByIDs(ctx, ids)
}

func (f *fakeProducts) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	if f.adjustFn != nil {
		return f.adjustFn(id, delta)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return 0, errNotFound
	}
	if p.StockQuantity+delta < 0 {
		return 0, &repositories.StockError{ProductID: id, Requested: -delta, Available: p.StockQuantity}
	}
	p.StockQuantity += delta
	f.items[id] = p
	return p.StockQuantity, nil
}

func (f *fakeProducts) Insert(_ context.Context, p Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[p.ID]; ok {
		return testRepoError{conflict: true}
	}
	f.items[p.ID] = p
	return nil
}

func (f *fakeProducts) Update(_ context.Context, p Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[p.ID]; !ok {
		return errNotFound
	}
	f.items[p.ID] = p
	return nil
}

func (f *fakeProducts) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return errNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeProducts) ListLowStock(_ context.Context, threshold int, limit int) ([]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Product
	for _, p := range f.items {
		if p.StockQuantity < threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockQuantity < out[j].StockQuantity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeCarts -----------------------------------------------------------------------------

type fakeCarts struct {
	mu      sync.Mutex
	lines   map[string][]domain.CartLine
	clearFn func(owner CartOwner) error
	cleared []string
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{lines: map[string][]domain.CartLine{}}
}

func (f *fakeCarts) put(owner CartOwner, productID string, qty int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[owner.Key()] = append(f.lines[owner.Key()], domain.CartLine{ProductID: productID, Quantity: qty, AddedAt: fixedNow})
}

func (f *fakeCarts) Load(_ context.Context, owner CartOwner) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Cart{Owner: owner, Lines: slices.Clone(f.lines[owner.Key()])}, nil
}

func (f *fakeCarts) SetQuantity(_ context.Context, owner CartOwner, productID string, quantity int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.lines[owner.Key()]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = quantity
			return nil
		}
	}
	f.lines[owner.Key()] = append(lines, domain.CartLine{ProductID: productID, Quantity: quantity, AddedAt: at})
	return nil
}

func (f *fakeCarts) RemoveLine(_ context.Context, owner CartOwner, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[owner.Key()] = slices.DeleteFunc(f.lines[owner.Key()], func(l domain.CartLine) bool {
		return l.ProductID == productID
	})
	return nil
}

func (f *fakeCarts) Clear(_ context.Context, owner CartOwner) error {
	if f.clearFn != nil {
		if err := f.clearFn(owner); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lines, owner.Key())
	f.cleared = append(f.cleared, owner.Key())
	return nil
}

// fakeVouchers --------------------------------------------------------------------------

type fakeVouchers struct {
	mu       sync.Mutex
	items    map[string]Voucher
	usages   []VoucherUsage
	lockedBy []string
}

func newFakeVouchers(vouchers ...Voucher) *fakeVouchers {
	f := &fakeVouchers{items: map[string]Voucher{}}
	for _, v := range vouchers {
		f.items[v.Code] = v
	}
	return f
}

func (f *fakeVouchers) FindByCode(_ context.Context, code string) (Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[code]
	if !ok {
		return Voucher{}, errNotFound
	}
	return v, nil
}

func (f *fakeVouchers) LockByCode(ctx context.Context, code string) (Voucher, error) {
	f.mu.Lock()
	f.lockedBy = append(f.lockedBy, code)
	f.mu.Unlock()
	return f.FindByCode(ctx, code)
}

func (f *fakeVouchers) List(_ context.Context, filter repositories.VoucherFilter) (domain.Page[Voucher], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Voucher
	for _, v := range f.items {
		if filter.ActiveOnly && !v.IsActive {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return domain.Page[Voucher]{Items: out}, nil
}

func (f *fakeVouchers) Insert(_ context.Context, v Voucher) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[v.Code]; ok {
		return testRepoError{conflict: true}
	}
	f.items[v.Code] = v
	return nil
}

func (f *fakeVouchers) Update(_ context.Context, v Voucher) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[v.Code]; !ok {
		return errNotFound
	}
	f.items[v.Code] = v
	return nil
}

func (f *fakeVouchers) Delete(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[code]; !ok {
		return errNotFound
	}
	delete(f.items, code)
	return nil
}

func (f *fakeVouchers) IncrementUsage(_ context.Context, code string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[code]
	if !ok {
		return errNotFound
	}
	if v.UsageLimit != nil && v.UsageCount >= *v.UsageLimit {
		return testRepoError{conflict: true}
	}
	v.UsageCount++
	v.UpdatedAt = at
	f.items[code] = v
	return nil
}

func (f *fakeVouchers) HasUsage(_ context.Context, code string, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.usages {
		if u.VoucherCode == code && u.AccountID == accountID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeVouchers) InsertUsage(ctx context.Context, usage VoucherUsage) (bool, error) {
	used, _ := f.HasUsage(ctx, usage.VoucherCode, usage.AccountID)
	if used {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usages = append(f.usages, usage)
	return true, nil
}

func (f *fakeVouchers) ReleaseUsage(_ context.Context, code string, orderID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := slices.IndexFunc(f.usages, func(u VoucherUsage) bool {
		return u.VoucherCode == code && u.OrderID == orderID
	})
	if idx < 0 {
		return false, nil
	}
	f.usages = slices.Delete(f.usages, idx, idx+1)
	if v, ok := f.items[code]; ok && v.UsageCount > 0 {
		v.UsageCount--
		v.UpdatedAt = at
		f.items[code] = v
	}
	return true, nil
}

func (f *fakeVouchers) ListUsage(_ context.Context, code string, _ Pagination) (domain.Page[VoucherUsage], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []VoucherUsage
	for _, u := range f.usages {
		if u.VoucherCode == code {
			out = append(out, u)
		}
	}
	return domain.Page[VoucherUsage]{Items: out}, nil
}

func (f *fakeVouchers) CountUsage(ctx context.Context, code string) (int, error) {
	page, _ := f.ListUsage(ctx, code, Pagination{})
	return len(page.Items), nil
}

// fakeReservations ----------------------------------------------------------------------

type fakeReservations struct {
	mu    sync.Mutex
	items map[string]VoucherReservation
}

func newFakeReservations() *fakeReservations {
	return &fakeReservations{items: map[string]VoucherReservation{}}
}

func (f *fakeReservations) Get(_ context.Context, ownerKey string) (VoucherReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[ownerKey]
	if !ok {
		return VoucherReservation{}, errNotFound
	}
	return r, nil
}

func (f *fakeReservations) Save(_ context.Context, r VoucherReservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[r.OwnerKey] = r
	return nil
}

func (f *fakeReservations) Delete(_ context.Context, ownerKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[ownerKey]; !ok {
		return errNotFound
	}
	delete(f.items, ownerKey)
	return nil
}

// fakeOrders ----------------------------------------------------------------------------

type fakeOrders struct {
	mu       sync.Mutex
	items    map[string]Order
	insertFn func(Order) error
}

func newFakeOrders(orders ...Order) *fakeOrders {
	f := &fakeOrders{items: map[string]Order{}}
	for _, o := range orders {
		f.items[o.ID] = o
	}
	return f
}

func (f *fakeOrders) get(id string) Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneOrder(f.items[id])
}

func cloneOrder(o Order) Order {
	o.Lines = slices.Clone(o.Lines)
	o.History = slices.Clone(o.History)
	if o.Pickup != nil {
		p := *o.Pickup
		o.Pickup = &p
	}
	return o
}

func (f *fakeOrders) Insert(_ context.Context, o Order) error {
	if f.insertFn != nil {
		if err := f.insertFn(o); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[o.ID]; ok {
		return testRepoError{conflict: true}
	}
	f.items[o.ID] = cloneOrder(o)
	return nil
}

func (f *fakeOrders) FindByID(_ context.Context, id string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.items[id]
	if !ok {
		return Order{}, errNotFound
	}
	return cloneOrder(o), nil
}

func (f *fakeOrders) LockByID(ctx context.Context, id string) (Order, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeOrders) UpdateStatus(_ context.Context, o Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.items[o.ID]
	if !ok {
		return errNotFound
	}
	existing.PaymentStatus = o.PaymentStatus
	existing.ShippingStatus = o.ShippingStatus
	existing.AwaitingPayment = o.AwaitingPayment
	existing.UpdatedAt = o.UpdatedAt
	f.items[o.ID] = existing
	return nil
}

func (f *fakeOrders) AppendHistory(_ context.Context, entry domain.OrderHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.items[entry.OrderID]
	if !ok {
		return errNotFound
	}
	o.History = append([]domain.OrderHistoryEntry{entry}, o.History...)
	f.items[entry.OrderID] = o
	return nil
}

func (f *fakeOrders) SetPaymentTransaction(_ context.Context, id string, txn string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.items[id]
	if !ok {
		return errNotFound
	}
	o.PaymentTransactionID = txn
	o.UpdatedAt = at
	f.items[id] = o
	return nil
}

func (f *fakeOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.Page[Order], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.items {
		if filter.AccountID != "" && o.AccountID != filter.AccountID {
			continue
		}
		if len(filter.ShippingStatus) > 0 && !slices.Contains(filter.ShippingStatus, o.ShippingStatus) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return domain.Page[Order]{Items: out}, nil
}

func (f *fakeOrders) FindLine(_ context.Context, lineID string) (OrderLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.items {
		for _, l := range o.Lines {
			if l.ID == lineID {
				return l, nil
			}
		}
	}
	return OrderLine{}, errNotFound
}

func (f *fakeOrders) AddressInUse(_ context.Context, addressID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.items {
		if o.AddressID == addressID {
			return true, nil
		}
	}
	return false, nil
}

// fakeAddresses -------------------------------------------------------------------------

type fakeAddresses struct {
	mu    sync.Mutex
	items map[string]Address
}

func newFakeAddresses(addresses ...Address) *fakeAddresses {
	f := &fakeAddresses{items: map[string]Address{}}
	for _, a := range addresses {
		f.items[a.ID] = a
	}
	return f
}

func (f *fakeAddresses) List(_ context.Context, accountID string) ([]Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Address
	for _, a := range f.items {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAddresses) FindByID(_ context.Context, id string) (Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return Address{}, errNotFound
	}
	return a, nil
}

func (f *fakeAddresses) Insert(_ context.Context, a Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[a.ID] = a
	return nil
}

func (f *fakeAddresses) Update(_ context.Context, a Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[a.ID]; !ok {
		return errNotFound
	}
	f.items[a.ID] = a
	return nil
}

func (f *fakeAddresses) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return errNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeAddresses) ClearDefault(_ context.Context, accountID string, exceptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.items {
		if a.AccountID == accountID && id != exceptID {
			a.IsDefault = false
			f.items[id] = a
		}
	}
	return nil
}

// fakeStores ----------------------------------------------------------------------------

type fakeStores struct {
	items map[string]Store
}

func newFakeStores(stores ...Store) *fakeStores {
	f := &fakeStores{items: map[string]Store{}}
	for _, s := range stores {
		f.items[s.ID] = s
	}
	return f
}

func (f *fakeStores) List(_ context.Context, query string) ([]Store, error) {
	var out []Store
	for _, s := range f.items {
		if query == "" || strings.Contains(strings.ToLower(s.Name), strings.ToLower(query)) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStores) FindByID(_ context.Context, id string) (Store, error) {
	s, ok := f.items[id]
	if !ok {
		return Store{}, errNotFound
	}
	return s, nil
}

// collaborators -------------------------------------------------------------------------

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type stubUnitOfWork struct {
	calls int
	runFn func(context.Context, func(context.Context) error) error
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	s.calls++
	if s.runFn != nil {
		return s.runFn(ctx, fn)
	}
	return fn(ctx)
}

type captureAudit struct {
	mu      sync.Mutex
	records []AuditLogRecord
}

func (c *captureAudit) Record(_ context.Context, record AuditLogRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
}

func (c *captureAudit) List(context.Context, AuditLogFilter) (domain.Page[AuditLogEntry], error) {
	return domain.Page[AuditLogEntry]{}, errors.New("not implemented")
}

func (c *captureAudit) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.Action)
	}
	return out
}

type captureLogger struct {
	mu     sync.Mutex
	events []string
}

func (c *captureLogger) log(_ context.Context, event string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogger) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.events, event)
}
