package order

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"kasir-be/internal/db"
	"kasir-be/internal/inventory"
	"kasir-be/internal/money"
	"kasir-be/internal/payment"
	"kasir-be/internal/product"
	"kasir-be/internal/promotion"

	"github.com/lib/pq"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory Repository and inventory.Manager. fakeTx
// snapshots it before each unit of work and restores it on error.
type memStore struct {
	products   map[int64]product.Product
	orders     map[int64]*Order
	items      map[int64][]OrderItem
	nextOrder  int64
	nextItem   int64
	lastFilter ListFilter
	statsFrom  time.Time
	statsTo    time.Time
}

func newMemStore(products ...product.Product) *memStore {
	s := &memStore{
		products: map[int64]product.Product{},
		orders:   map[int64]*Order{},
		items:    map[int64][]OrderItem{},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) stock(id int64) int { return s.products[id].Stock }

type memSnapshot struct {
	products  map[int64]product.Product
	orders    map[int64]Order
	items     map[int64][]OrderItem
	nextOrder int64
	nextItem  int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		products:  map[int64]product.Product{},
		orders:    map[int64]Order{},
		items:     map[int64][]OrderItem{},
		nextOrder: s.nextOrder,
		nextItem:  s.nextItem,
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = *v
	}
	for k, v := range s.items {
		snap.items[k] = append([]OrderItem(nil), v...)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.products = snap.products
	s.orders = map[int64]*Order{}
	for k, v := range snap.orders {
		o := v
		s.orders[k] = &o
	}
	s.items = snap.items
	s.nextOrder = snap.nextOrder
	s.nextItem = snap.nextItem
}

type fakeTx struct {
	store *memStore
	calls int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(q db.Querier) error) error {
	f.calls++
	snap := f.store.snapshot()
	if err := fn(nil); err != nil {
		f.store.restore(snap)
		return err
	}
	return nil
}

// ---------- inventory.Manager ----------

func (s *memStore) Lock(ctx context.Context, q db.Querier, ids []int64) (map[int64]product.Product, error) {
	locked := map[int64]product.Product{}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		p, ok := s.products[id]
		if !ok {
			return nil, &inventory.UnknownProductError{ProductID: id}
		}
		locked[id] = p
	}
	return locked, nil
}

func (s *memStore) Reserve(ctx context.Context, q db.Querier, locked map[int64]product.Product, items []inventory.Item) error {
	totals := map[int64]int{}
	for _, it := range items {
		totals[it.ProductID] += it.Quantity
	}
	for _, it := range items {
		if p := s.products[it.ProductID]; p.Stock < totals[it.ProductID] {
			return &inventory.InsufficientStockError{ProductID: p.ID, Requested: totals[p.ID], Available: p.Stock}
		}
	}
	for id, qty := range totals {
		p := s.products[id]
		p.Stock -= qty
		s.products[id] = p
	}
	return nil
}

func (s *memStore) Release(ctx context.Context, q db.Querier, items []inventory.Item) error {
	for _, it := range items {
		p := s.products[it.ProductID]
		p.Stock += it.Quantity
		s.products[it.ProductID] = p
	}
	return nil
}

// ---------- Repository ----------

func (s *memStore) InsertOrder(ctx context.Context, q db.Querier, o *Order) error {
	for _, existing := range s.orders {
		if existing.OrderCode == o.OrderCode {
			return &pq.Error{Code: "23505", Constraint: OrderCodeConstraint}
		}
	}
	s.nextOrder++
	o.ID = s.nextOrder
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	cp.Items = nil
	s.orders[o.ID] = &cp
	return nil
}

func (s *memStore) InsertItems(ctx context.Context, q db.Querier, orderID int64, items []OrderItem) error {
	for i := range items {
		s.nextItem++
		items[i].ID = s.nextItem
		items[i].OrderID = orderID
	}
	s.items[orderID] = append([]OrderItem(nil), items...)
	return nil
}

func (s *memStore) SetGatewayReference(ctx context.Context, q db.Querier, orderID int64, txID, qr string) error {
	o := s.orders[orderID]
	o.GatewayTransactionID = &txID
	if qr != "" {
		o.QRImageURL = &qr
	}
	return nil
}

func (s *memStore) hydrate(o *Order) *Order {
	cp := *o
	cp.Items = append([]OrderItem{}, s.items[o.ID]...)
	return &cp
}

func (s *memStore) LockByID(ctx context.Context, q db.Querier, id int64) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) LockByGatewayOrderID(ctx context.Context, q db.Querier, gw string) (*Order, error) {
	for _, o := range s.orders {
		if o.GatewayOrderID != nil && *o.GatewayOrderID == gw {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) GetItems(ctx context.Context, q db.Querier, orderID int64) ([]OrderItem, error) {
	return append([]OrderItem{}, s.items[orderID]...), nil
}

func (s *memStore) MarkVoided(ctx context.Context, q db.Querier, id int64, reason string, by *int64, at time.Time) (bool, error) {
	o := s.orders[id]
	if o == nil || o.IsVoided {
		return false, nil
	}
	o.IsVoided = true
	o.VoidReason = reason
	o.VoidedBy = by
	o.VoidedAt = &at
	return true, nil
}

func (s *memStore) UpdatePaymentStatus(ctx context.Context, q db.Querier, id int64, next PaymentStatus, paidAt *time.Time, transactionID string) (bool, error) {
	o := s.orders[id]
	if o == nil || o.PaymentStatus != StatusPending || o.IsVoided {
		return false, nil
	}
	o.PaymentStatus = next
	if paidAt != nil {
		o.PaidAt = paidAt
	}
	if o.GatewayTransactionID == nil && transactionID != "" {
		o.GatewayTransactionID = &transactionID
	}
	return true, nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.hydrate(o), nil
}

func (s *memStore) GetByCode(ctx context.Context, code string) (*Order, error) {
	for _, o := range s.orders {
		if o.OrderCode == code {
			return s.hydrate(o), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) List(ctx context.Context, f ListFilter) ([]*Order, int, error) {
	s.lastFilter = f
	var out []*Order
	for _, o := range s.orders {
		if f.Search != "" && !strings.Contains(o.OrderCode, f.Search) && !strings.Contains(o.CustomerName, f.Search) {
			continue
		}
		out = append(out, s.hydrate(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (s *memStore) ListByDateRange(ctx context.Context, from, to time.Time) ([]*Order, error) {
	var out []*Order
	for _, o := range s.orders {
		if !o.IsVoided {
			out = append(out, s.hydrate(o))
		}
	}
	return out, nil
}

func (s *memStore) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	s.statsFrom, s.statsTo = from, to
	st := &Stats{From: from, To: to, Revenue: money.Zero}
	for _, o := range s.orders {
		if o.IsVoided || o.PaymentStatus == StatusFailed {
			continue
		}
		st.OrderCount++
		st.Revenue = st.Revenue.Add(o.GrandTotal)
	}
	return st, nil
}

// ---------- testify mocks ----------

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ChargeResponse), args.Error(1)
}

func (m *MockGateway) Cancel(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *MockGateway) VerifyNotification(n payment.Notification) error {
	return m.Called(n).Error(0)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) SavePayment(ctx context.Context, q db.Querier, p *payment.Payment) error {
	return m.Called(ctx, q, p).Error(0)
}

func (m *MockPaymentRepository) UpdatePaymentStatus(ctx context.Context, q db.Querier, gw, status string) error {
	return m.Called(ctx, q, gw, status).Error(0)
}

func (m *MockPaymentRepository) SavePaymentWebhook(ctx context.Context, provider, eventID, eventType, externalID string, payload json.RawMessage, valid bool) (int64, bool, error) {
	args := m.Called(ctx, provider, eventID, eventType, externalID, payload, valid)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockPaymentRepository) MarkWebhookProcessed(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPaymentRepository) MarkWebhookFailed(ctx context.Context, id int64, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

type MockPromotionRepository struct {
	mock.Mock
}

func (m *MockPromotionRepository) GetByID(ctx context.Context, id int64) (*promotion.Promotion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*promotion.Promotion), args.Error(1)
}

func (m *MockPromotionRepository) ListActive(ctx context.Context, now time.Time) ([]*promotion.Promotion, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*promotion.Promotion), args.Error(1)
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
