package reorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/clinicstock/internal/inventory"
	"github.com/odyssey-erp/clinicstock/internal/procurement"
	"github.com/odyssey-erp/clinicstock/internal/settings"
	"github.com/odyssey-erp/clinicstock/internal/shared"
)

type memoryCatalog struct {
	items map[int64]inventory.Item
	err   map[int64]error
}

func (c *memoryCatalog) GetItem(_ context.Context, id int64) (inventory.Item, error) {
	if err := c.err[id]; err != nil {
		return inventory.Item{}, err
	}
	item, ok := c.items[id]
	if !ok {
		return inventory.Item{}, inventory.ErrNotFound
	}
	return item, nil
}

func (c *memoryCatalog) ListItems(_ context.Context, filter inventory.ItemFilter) ([]inventory.Item, int, error) {
	out := []inventory.Item{}
	for _, item := range c.items {
		if filter.LowStock && !item.IsLow(settings.DefaultLowStockThreshold) {
			continue
		}
		out = append(out, item)
	}
	if filter.Page > 1 {
		return nil, len(out), nil
	}
	return out, len(out), nil
}

type memoryOrders struct {
	mu         sync.Mutex
	open       map[int64]bool
	created    []procurement.CreatePOInput
	createErr  map[int64]error
	openErr    error
	openCalls  int
	nextNumber int
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{open: map[int64]bool{}, createErr: map[int64]error{}}
}

func (o *memoryOrders) OpenOrderItems(_ context.Context, ids []int64) (map[int64]bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openCalls++
	if o.openErr != nil {
		return nil, o.openErr
	}
	out := map[int64]bool{}
	for _, id := range ids {
		if o.open[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (o *memoryOrders) CreatePurchaseOrder(_ context.Context, in procurement.CreatePOInput) (procurement.PurchaseOrder, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	itemID := in.Items[0].InventoryItemID
	if err := o.createErr[itemID]; err != nil {
		return procurement.PurchaseOrder{}, err
	}
	o.created = append(o.created, in)
	o.open[itemID] = true
	o.nextNumber++
	return procurement.PurchaseOrder{
		ID:            int64(o.nextNumber),
		Number:        "PO-TEST",
		SupplierID:    in.SupplierID,
		Status:        procurement.POStatusPending,
		AutoGenerated: in.AutoGenerated,
		TotalAmount:   in.Items[0].UnitPrice.Mul(decimal.NewFromInt(int64(in.Items[0].Quantity))),
	}, nil
}

type recordingNotifier struct {
	events []ReorderCreated
	err    error
}

func (n *recordingNotifier) NotifyReorder(_ context.Context, evt ReorderCreated) error {
	n.events = append(n.events, evt)
	return n.err
}

func intPtr(v int) *int { return &v }

var enabled = settings.SystemConfiguration{AutoReorder: true, LowStockThreshold: 10}

func TestReorderQuantity(t *testing.T) {
	require.Equal(t, 42, ReorderQuantity(10, intPtr(50), 8))
	require.Equal(t, 20, ReorderQuantity(10, nil, 8))
	require.Equal(t, 20, ReorderQuantity(10, intPtr(8), 8))
	require.Equal(t, 20, ReorderQuantity(10, intPtr(5), 8))
	require.Equal(t, 2, ReorderQuantity(0, nil, 0))
	require.Equal(t, 3, ReorderQuantity(0, intPtr(3), 0))
}

func TestEvaluateCreatesPendingOrder(t *testing.T) {
	catalog := &memoryCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, Name: "Gauze", MinimumStock: 10, MaximumStock: intPtr(50), UnitPrice: decimal.RequireFromString("1.50"), SupplierID: 4},
	}}
	orders := newMemoryOrders()
	notifier := &recordingNotifier{}
	ev := NewEvaluator(catalog, orders, nil, notifier, nil, nil, Config{})

	decisions := ev.Evaluate(context.Background(), enabled, []Candidate{{ItemID: 1, PreviousOnHand: 3, Received: 5}})
	require.Len(t, decisions, 1)
	d := decisions[0]
	require.NoError(t, d.Err)
	require.True(t, d.Created())
	require.Equal(t, 8, d.NewOnHand)
	require.Equal(t, 42, d.Quantity)

	require.Len(t, orders.created, 1)
	in := orders.created[0]
	require.True(t, in.AutoGenerated)
	require.Equal(t, int64(4), in.SupplierID)
	require.Equal(t, 42, in.Items[0].Quantity)
	require.True(t, in.Items[0].UnitPrice.Equal(decimal.RequireFromString("1.50")))

	require.Len(t, notifier.events, 1)
	require.True(t, notifier.events[0].Total.Equal(decimal.RequireFromString("63")))
}

func TestEvaluateSkipsAboveMinimumAndDisabled(t *testing.T) {
	catalog := &memoryCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, MinimumStock: 10, SupplierID: 1},
	}}
	orders := newMemoryOrders()
	ev := NewEvaluator(catalog, orders, nil, nil, nil, nil, Config{})

	d := ev.Evaluate(context.Background(), enabled, []Candidate{{ItemID: 1, PreviousOnHand: 6, Received: 5}})
	require.Equal(t, ReasonAboveMinimum, d[0].Reason)

	d = ev.Evaluate(context.Background(), settings.SystemConfiguration{}, []Candidate{{ItemID: 1, PreviousOnHand: 0, Received: 1}})
	require.Equal(t, ReasonDisabled, d[0].Reason)
	require.Empty(t, orders.created)
	require.Zero(t, orders.openCalls)
}

func TestEvaluateAtMinimumReorders(t *testing.T) {
	catalog := &memoryCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, MinimumStock: 10, SupplierID: 1},
	}}
	orders := newMemoryOrders()
	ev := NewEvaluator(catalog, orders, nil, nil, nil, nil, Config{})

	d := ev.Evaluate(context.Background(), enabled, []Candidate{{ItemID: 1, PreviousOnHand: 4, Received: 6}})
	require.True(t, d[0].Created())
	require.Equal(t, 20, d[0].Quantity)
}

func TestEvaluateNeverDuplicatesOpenOrder(t *testing.T) {
	catalog := &memoryCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, MinimumStock: 10, SupplierID: 1},
		2: {ID: 2, MinimumStock: 5, SupplierID: 1},
	}}
	orders := newMemoryOrders()
	orders.open[1] = true
	ev := NewEvaluator(catalog, orders, nil, nil, nil, nil, Config{})

	d := ev.Evaluate(context.Background(), enabled, []Candidate{
		{ItemID: 1, PreviousOnHand: 0, Received: 2},
		{ItemID: 2, PreviousOnHand: 0, Received: 1},
	})
	require.Equal(t, ReasonOpenOrder, d[0].Reason)
	require.True(t, d[1].Created())
	require.Equal(t, 1, orders.openCalls)

	d = ev.Evaluate(context.Background(), enabled, []Candidate{{ItemID: 2, PreviousOnHand: 1, Received: 0}})
	require.Equal(t, ReasonOpenOrder, d[0].Reason)
	require.Len(t, orders.created, 1)
}

func TestEvaluateRepeatedItemPerLine(t *testing.T) {
	catalog := &memoryCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, MinimumStock: 10, SupplierID: 1},
	}}
	orders := newMemoryOrders()
	ev := NewEvaluator(catalog, orders, nil, nil, nil, nil, Config{})

	d := ev.Evaluate(context.Background(), enabled, []Candidate{
		{Line: 1, ItemID: 1, PreviousOnHand: 0, Received: 3},
		{Line: 2, ItemID: 1, PreviousOnHand: 3, Received: 20},
	})
	require.True(t, d[0].Created())
	require.Equal(t, 3, d[0].NewOnHand)
	require.Equal(t, 20, d[0].Quantity)
	require.Equal(t, ReasonAboveMinimum, d[1].Reason)
	require.Len(t, orders.created, 1)

	orders = newMemoryOrders()
	ev = NewEvaluator(catalog, orders, nil, nil, nil, nil, Config{})
	d = ev.Evaluate(context.Background(), enabled, []Candidate{
		{Line: 1, ItemID: 1, PreviousOnHand: 0, Received: 2},
		{Line: 2, ItemID: 1, PreviousOnHand: 2, Received: 3},
	})
	require.True(t, d[0].Created())
	require.Equal(t, ReasonOpenOrder, d[1].Reason)
	require.Len(t, orders.created, 1)
	require.Equal(t, 1, orders.openCalls)
}

func TestEvaluateIsolatesFailures(t *testing.T) {
	catalog := &memoryCatalog{
		items: map[int64]inventory.Item{
			2: {ID: 2, MinimumStock: 5, SupplierID: 1},
			3: {ID: 3, MinimumStock: 5, SupplierID: 1},
			4: {ID: 4, MinimumStock: 5},
		},
		err: map[int64]error{1: errors.New("db down")},
	}
	orders := newMemoryOrders()
	orders.createErr[2] = errors.New("insert failed")
	notifier := &recordingNotifier{err: errors.New("queue down")}
	ev := NewEvaluator(catalog, orders, nil, notifier, nil, nil, Config{})

	d := ev.Evaluate(context.Background(), enabled, []Candidate{
		{ItemID: 1}, {ItemID: 2}, {ItemID: 3}, {ItemID: 4},
	})
	require.Error(t, d[0].Err)
	require.Error(t, d[1].Err)
	require.NoError(t, d[2].Err)
	require.True(t, d[2].Created())
	require.Equal(t, ReasonNoSupplier, d[3].Reason)
	require.Len(t, notifier.events, 1)
}

func TestEvaluateSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.New(client)
	ctx := context.Background()

	held, err := locker.Obtain(ctx, shared.ReorderLockKey(1), time.Minute, nil)
	require.NoError(t, err)

	catalog := &memoryCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, MinimumStock: 10, SupplierID: 1},
		2: {ID: 2, MinimumStock: 10, SupplierID: 1},
	}}
	orders := newMemoryOrders()
	ev := NewEvaluator(catalog, orders, locker, nil, nil, nil, Config{LockTTL: time.Second})

	d := ev.Evaluate(ctx, enabled, []Candidate{{ItemID: 1}, {ItemID: 2}})
	require.Equal(t, ReasonInProgress, d[0].Reason)
	require.True(t, d[1].Created())

	_, err = client.Get(ctx, shared.ReorderLockKey(2)).Result()
	require.ErrorIs(t, err, redis.Nil)

	require.NoError(t, held.Release(ctx))
}

func TestEvaluateWithoutRedisFallsBackToUnlocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	catalog := &memoryCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, MinimumStock: 10, MaximumStock: intPtr(50), SupplierID: 1},
		2: {ID: 2, MinimumStock: 5, SupplierID: 1},
	}}
	orders := newMemoryOrders()
	orders.open[2] = true
	ev := NewEvaluator(catalog, orders, redislock.New(client), nil, nil, nil, Config{LockTTL: time.Second, LockWait: 200 * time.Millisecond})

	d := ev.Evaluate(context.Background(), enabled, []Candidate{
		{Line: 1, ItemID: 1, PreviousOnHand: 0, Received: 3},
		{Line: 2, ItemID: 2, PreviousOnHand: 0, Received: 1},
	})
	require.NoError(t, d[0].Err)
	require.True(t, d[0].Created())
	require.Equal(t, 47, d[0].Quantity)
	require.Equal(t, ReasonOpenOrder, d[1].Reason)
	require.Len(t, orders.created, 1)
}

func TestSweepEvaluatesLowStockItems(t *testing.T) {
	catalog := &memoryCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, CurrentStock: 2, MinimumStock: 10, SupplierID: 1},
		2: {ID: 2, CurrentStock: 50, MinimumStock: 10, SupplierID: 1},
		3: {ID: 3, CurrentStock: 1, MinimumStock: 5},
	}}
	orders := newMemoryOrders()
	ev := NewEvaluator(catalog, orders, nil, nil, nil, nil, Config{})
	sweeper := NewSweeper(catalog, staticSettings{cfg: enabled}, ev, nil)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Scanned)
	require.Equal(t, 1, result.Created)

	result, err = NewSweeper(catalog, staticSettings{}, ev, nil).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Scanned)
}

type staticSettings struct {
	cfg settings.SystemConfiguration
}

func (s staticSettings) Current(context.Context) (settings.SystemConfiguration, error) {
	return s.cfg, nil
}
