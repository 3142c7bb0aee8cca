package services_test

import (
	"context"
	"sort"
	"time"

	"checkout-service/models"
	"checkout-service/repository"

	"gorm.io/gorm"
)

// ---- in-memory store ----

type fakeState struct {
	products   map[uint]models.Product
	carts      map[uint]models.Cart
	cartItems  map[uint]models.CartItem
	orders     map[uint]models.Order
	orderItems map[uint]models.OrderItem
	payments   map[uint]models.Payment
	nextID     uint
}

func (st fakeState) clone() fakeState {
	c := fakeState{
		products:   make(map[uint]models.Product, len(st.products)),
		carts:      make(map[uint]models.Cart, len(st.carts)),
		cartItems:  make(map[uint]models.CartItem, len(st.cartItems)),
		orders:     make(map[uint]models.Order, len(st.orders)),
		orderItems: make(map[uint]models.OrderItem, len(st.orderItems)),
		payments:   make(map[uint]models.Payment, len(st.payments)),
		nextID:     st.nextID,
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = v
	}
	for k, v := range st.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.orderItems {
		c.orderItems[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	return c
}

// fakeStore implements repository.Store. Transactions snapshot the state and
// restore it when the callback fails. Errors can be injected per operation.
type fakeStore struct {
	state fakeState
	now   time.Time

	errs      map[string]error
	lockCalls int
	txCount   int
	calls     []string

	// beforeOrderCreate, when set, commits a competing order outside the
	// running transaction the next time Orders.Create is called.
	beforeOrderCreate func() models.Order
	committed         []models.Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		state: fakeState{
			products:   map[uint]models.Product{},
			carts:      map[uint]models.Cart{},
			cartItems:  map[uint]models.CartItem{},
			orders:     map[uint]models.Order{},
			orderItems: map[uint]models.OrderItem{},
			payments:   map[uint]models.Payment{},
			nextID:     100,
		},
		now:  time.Now().UTC(),
		errs: map[string]error{},
	}
}

func (s *fakeStore) id() uint {
	s.state.nextID++
	return s.state.nextID
}

func (s *fakeStore) fail(op string) error {
	s.calls = append(s.calls, op)
	return s.errs[op]
}

func (s *fakeStore) called(op string) int {
	n := 0
	for _, c := range s.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (s *fakeStore) addProduct(id uint, price float64, stock int) {
	s.state.products[id] = models.Product{ID: id, Name: "product", Price: price, Quantity: stock}
}

func (s *fakeStore) addOrder(o models.Order) uint {
	if o.ID == 0 {
		o.ID = s.id()
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now
	}
	s.state.orders[o.ID] = o
	return o.ID
}

func (s *fakeStore) addOrderItem(it models.OrderItem) {
	if it.ID == 0 {
		it.ID = s.id()
	}
	s.state.orderItems[it.ID] = it
}

func (s *fakeStore) addPayment(p models.Payment) uint {
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.state.payments[p.ID] = p
	return p.ID
}

func (s *fakeStore) addCartLine(userID, productID uint, qty int) {
	var cartID uint
	for _, c := range s.state.carts {
		if c.UserID == userID {
			cartID = c.ID
		}
	}
	if cartID == 0 {
		cartID = s.id()
		s.state.carts[cartID] = models.Cart{ID: cartID, UserID: userID}
	}
	itemID := s.id()
	s.state.cartItems[itemID] = models.CartItem{ID: itemID, CartID: cartID, ProductID: productID, Quantity: qty}
}

func (s *fakeStore) order(id uint) models.Order { return s.state.orders[id] }

func (s *fakeStore) itemsOf(orderID uint) []models.OrderItem {
	var items []models.OrderItem
	for _, it := range s.state.orderItems {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (s *fakeStore) cartLineCount(userID uint) int {
	n := 0
	for _, it := range s.state.cartItems {
		if c, ok := s.state.carts[it.CartID]; ok && c.UserID == userID {
			n++
		}
	}
	return n
}

func (s *fakeStore) Products() repository.ProductRepository { return fakeProducts{s} }
func (s *fakeStore) Carts() repository.CartRepository       { return fakeCarts{s} }
func (s *fakeStore) Orders() repository.OrderRepository     { return fakeOrders{s} }
func (s *fakeStore) Payments() repository.PaymentRepository { return fakePayments{s} }

func (s *fakeStore) Transaction(_ context.Context, fn func(tx repository.Store) error) error {
	s.txCount++
	if err := s.fail("Transaction"); err != nil {
		return err
	}
	snapshot := s.state.clone()
	err := fn(s)
	if err != nil {
		next := s.state.nextID
		s.state = snapshot
		s.state.nextID = next
		for _, o := range s.committed {
			s.state.orders[o.ID] = o
		}
	}
	return err
}

// ---- products ----

type fakeProducts struct{ s *fakeStore }

func (r fakeProducts) FindByID(_ context.Context, id uint) (*models.Product, error) {
	if err := r.s.fail("Products.FindByID"); err != nil {
		return nil, err
	}
	p, ok := r.s.state.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r fakeProducts) FindByIDs(_ context.Context, ids []uint) (map[uint]models.Product, error) {
	if err := r.s.fail("Products.FindByIDs"); err != nil {
		return nil, err
	}
	out := make(map[uint]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.state.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r fakeProducts) LockByIDs(ctx context.Context, ids []uint) (map[uint]models.Product, error) {
	r.s.lockCalls++
	return r.FindByIDs(ctx, ids)
}

// ---- carts ----

type fakeCarts struct{ s *fakeStore }

func (r fakeCarts) FindOldestByUser(_ context.Context, userID uint) (*models.Cart, error) {
	if err := r.s.fail("Carts.FindOldestByUser"); err != nil {
		return nil, err
	}
	var found *models.Cart
	for _, c := range r.s.state.carts {
		if c.UserID != userID {
			continue
		}
		if found == nil || c.ID < found.ID {
			cc := c
			found = &cc
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r fakeCarts) Create(_ context.Context, cart *models.Cart) error {
	if err := r.s.fail("Carts.Create"); err != nil {
		return err
	}
	for _, c := range r.s.state.carts {
		if c.UserID == cart.UserID {
			return gorm.ErrDuplicatedKey
		}
	}
	cart.ID = r.s.id()
	r.s.state.carts[cart.ID] = *cart
	return nil
}

func (r fakeCarts) ListItems(_ context.Context, cartID uint) ([]models.CartItem, error) {
	if err := r.s.fail("Carts.ListItems"); err != nil {
		return nil, err
	}
	var items []models.CartItem
	for _, it := range r.s.state.cartItems {
		if it.CartID != cartID {
			continue
		}
		if p, ok := r.s.state.products[it.ProductID]; ok {
			pp := p
			it.Product = &pp
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r fakeCarts) FindItem(_ context.Context, cartID, itemID uint) (*models.CartItem, error) {
	it, ok := r.s.state.cartItems[itemID]
	if !ok || it.CartID != cartID {
		return nil, gorm.ErrRecordNotFound
	}
	return &it, nil
}

func (r fakeCarts) FindItemByProduct(_ context.Context, cartID, productID uint) (*models.CartItem, error) {
	for _, it := range r.s.state.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			found := it
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeCarts) CreateItem(_ context.Context, item *models.CartItem) error {
	if err := r.s.fail("Carts.CreateItem"); err != nil {
		return err
	}
	item.ID = r.s.id()
	r.s.state.cartItems[item.ID] = *item
	return nil
}

func (r fakeCarts) UpdateItemQuantity(_ context.Context, itemID uint, quantity int) error {
	it := r.s.state.cartItems[itemID]
	it.Quantity = quantity
	r.s.state.cartItems[itemID] = it
	return nil
}

func (r fakeCarts) DeleteItem(_ context.Context, itemID uint) error {
	delete(r.s.state.cartItems, itemID)
	return nil
}

func (r fakeCarts) ClearItems(_ context.Context, cartID uint) error {
	if err := r.s.fail("Carts.ClearItems"); err != nil {
		return err
	}
	for id, it := range r.s.state.cartItems {
		if it.CartID == cartID {
			delete(r.s.state.cartItems, id)
		}
	}
	return nil
}

func (r fakeCarts) Totals(_ context.Context, cartID uint) (models.CartTotals, error) {
	var t models.CartTotals
	for _, it := range r.s.state.cartItems {
		if it.CartID != cartID {
			continue
		}
		t.LineCount++
		t.TotalQuantity += int64(it.Quantity)
		t.TotalAmount += r.s.state.products[it.ProductID].Price * float64(it.Quantity)
	}
	return t, nil
}

// ---- orders ----

type fakeOrders struct{ s *fakeStore }

func (r fakeOrders) Create(_ context.Context, order *models.Order) error {
	if err := r.s.fail("Orders.Create"); err != nil {
		return err
	}
	if hook := r.s.beforeOrderCreate; hook != nil {
		r.s.beforeOrderCreate = nil
		id := r.s.addOrder(hook())
		r.s.committed = append(r.s.committed, r.s.state.orders[id])
	}
	for _, o := range r.s.state.orders {
		if o.Code == order.Code {
			return gorm.ErrDuplicatedKey
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil &&
			o.UserID == order.UserID && *o.IdempotencyKey == *order.IdempotencyKey {
			return gorm.ErrDuplicatedKey
		}
	}
	order.ID = r.s.id()
	order.CreatedAt = r.s.now
	order.UpdatedAt = r.s.now
	stored := *order
	stored.Items = nil
	r.s.state.orders[order.ID] = stored
	return nil
}

func (r fakeOrders) UpdateCode(_ context.Context, orderID uint, code string) error {
	o := r.s.state.orders[orderID]
	o.Code = code
	r.s.state.orders[orderID] = o
	return nil
}

func (r fakeOrders) FindByID(_ context.Context, id uint) (*models.Order, error) {
	if err := r.s.fail("Orders.FindByID"); err != nil {
		return nil, err
	}
	o, ok := r.s.state.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &o, nil
}

func (r fakeOrders) withItems(o models.Order) models.Order {
	o.Items = nil
	for _, it := range r.s.itemsOf(o.ID) {
		if p, ok := r.s.state.products[it.ProductID]; ok {
			pp := p
			it.Product = &pp
		}
		o.Items = append(o.Items, it)
	}
	return o
}

func (r fakeOrders) FindWithItems(_ context.Context, id uint) (*models.Order, error) {
	if err := r.s.fail("Orders.FindWithItems"); err != nil {
		return nil, err
	}
	o, ok := r.s.state.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o = r.withItems(o)
	return &o, nil
}

func (r fakeOrders) FindByIdempotencyKey(_ context.Context, userID uint, key string) (*models.Order, error) {
	if err := r.s.fail("Orders.FindByIdempotencyKey"); err != nil {
		return nil, err
	}
	for _, o := range r.s.state.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			found := o
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeOrders) FindMergeCandidate(_ context.Context, userID uint, since time.Time) (*models.Order, error) {
	var found *models.Order
	for _, o := range r.s.state.orders {
		if o.UserID != userID || o.Status != models.OrderStatusPending || o.HasPayment() || o.CreatedAt.Before(since) {
			continue
		}
		if found == nil || o.CreatedAt.After(found.CreatedAt) || (o.CreatedAt.Equal(found.CreatedAt) && o.ID > found.ID) {
			oo := o
			found = &oo
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r fakeOrders) ListByUser(_ context.Context, userID uint, page, limit int) ([]models.Order, int64, error) {
	if err := r.s.fail("Orders.ListByUser"); err != nil {
		return nil, 0, err
	}
	var all []models.Order
	for _, o := range r.s.state.orders {
		if o.UserID == userID {
			all = append(all, r.withItems(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []models.Order{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r fakeOrders) ListItems(_ context.Context, orderID uint) ([]models.OrderItem, error) {
	return r.s.itemsOf(orderID), nil
}

func (r fakeOrders) UpsertItem(_ context.Context, item *models.OrderItem) error {
	if err := r.s.fail("Orders.UpsertItem"); err != nil {
		return err
	}
	for id, it := range r.s.state.orderItems {
		if it.OrderID == item.OrderID && it.ProductID == item.ProductID {
			it.Quantity += item.Quantity
			it.UnitPrice = item.UnitPrice
			it.TotalPrice = item.UnitPrice * float64(it.Quantity)
			r.s.state.orderItems[id] = it
			item.ID = id
			return nil
		}
	}
	item.ID = r.s.id()
	stored := *item
	stored.Product = nil
	r.s.state.orderItems[item.ID] = stored
	return nil
}

func (r fakeOrders) SaveItem(_ context.Context, item *models.OrderItem) error {
	stored := *item
	stored.Product = nil
	r.s.state.orderItems[item.ID] = stored
	return nil
}

func (r fakeOrders) SumItemTotals(_ context.Context, orderID uint) (float64, error) {
	if err := r.s.fail("Orders.SumItemTotals"); err != nil {
		return 0, err
	}
	var sum float64
	for _, it := range r.s.itemsOf(orderID) {
		sum += it.TotalPrice
	}
	return sum, nil
}

func (r fakeOrders) UpdateTotal(_ context.Context, orderID uint, total float64) error {
	r.s.calls = append(r.s.calls, "Orders.UpdateTotal")
	o := r.s.state.orders[orderID]
	o.TotalAmount = total
	r.s.state.orders[orderID] = o
	return nil
}

func (r fakeOrders) UpdateNotes(_ context.Context, orderID uint, notes *string) error {
	o := r.s.state.orders[orderID]
	o.Notes = notes
	r.s.state.orders[orderID] = o
	return nil
}

func (r fakeOrders) SetIdempotencyKey(_ context.Context, orderID uint, key string) error {
	o := r.s.state.orders[orderID]
	k := key
	o.IdempotencyKey = &k
	r.s.state.orders[orderID] = o
	return nil
}

func (r fakeOrders) SetPaymentUUIDIfEmpty(_ context.Context, orderID uint, paymentUUID string) error {
	o := r.s.state.orders[orderID]
	if !o.HasPayment() {
		u := paymentUUID
		o.PaymentUUID = &u
		r.s.state.orders[orderID] = o
	}
	return nil
}

func (r fakeOrders) TransitionStatus(_ context.Context, orderID uint, to models.OrderStatus, from ...models.OrderStatus) (bool, error) {
	if err := r.s.fail("Orders.TransitionStatus"); err != nil {
		return false, err
	}
	o, ok := r.s.state.orders[orderID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if o.Status == f {
			o.Status = to
			r.s.state.orders[orderID] = o
			return true, nil
		}
	}
	return false, nil
}

func (r fakeOrders) Delete(_ context.Context, orderID uint) error {
	for id, it := range r.s.state.orderItems {
		if it.OrderID == orderID {
			delete(r.s.state.orderItems, id)
		}
	}
	delete(r.s.state.orders, orderID)
	return nil
}

// ---- payments ----

type fakePayments struct{ s *fakeStore }

func (r fakePayments) Create(_ context.Context, payment *models.Payment) error {
	if err := r.s.fail("Payments.Create"); err != nil {
		return err
	}
	payment.ID = r.s.id()
	r.s.state.payments[payment.ID] = *payment
	return nil
}

func (r fakePayments) FindByShopTransactionID(_ context.Context, shopTxID string) (*models.Payment, error) {
	for _, p := range r.s.state.payments {
		if p.ShopTransactionID == shopTxID {
			found := p
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakePayments) FindByCorrelationID(_ context.Context, correlationID string) (*models.Payment, error) {
	var found *models.Payment
	for _, p := range r.s.state.payments {
		if p.CorrelationID != nil && *p.CorrelationID == correlationID && (found == nil || p.ID < found.ID) {
			pp := p
			found = &pp
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r fakePayments) CountByOrder(_ context.Context, orderID uint) (int64, error) {
	var n int64
	for _, p := range r.s.state.payments {
		if p.OrderID != nil && *p.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

func (r fakePayments) Update(_ context.Context, payment *models.Payment) error {
	if err := r.s.fail("Payments.Update"); err != nil {
		return err
	}
	r.s.state.payments[payment.ID] = *payment
	return nil
}

func (r fakePayments) UpdateStatusByCorrelationID(_ context.Context, correlationID string, status models.PaymentStatus) (int64, error) {
	var n int64
	for id, p := range r.s.state.payments {
		if p.CorrelationID != nil && *p.CorrelationID == correlationID {
			p.Status = status
			r.s.state.payments[id] = p
			n++
		}
	}
	return n, nil
}

// ---- collaborators ----

type fakeSNS struct {
	events []string
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, _ string, _ []byte, eventType string) error {
	f.events = append(f.events, eventType)
	return f.err
}

type fakeInvalidator struct {
	patterns []string
}

func (f *fakeInvalidator) InvalidatePattern(_ context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return nil
}

type fakeCartClearer struct {
	cleared []uint
	err     error
}

func (f *fakeCartClearer) ClearCart(_ context.Context, userID uint) error {
	f.cleared = append(f.cleared, userID)
	return f.err
}
