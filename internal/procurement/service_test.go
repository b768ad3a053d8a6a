package procurement

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/clinicstock/internal/shared"
)

type memoryRepo struct {
	orders    map[int64]PurchaseOrder
	nextID    int64
	nextItem  int64
	numberErr error
	numbers   int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]PurchaseOrder)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]PurchaseOrder, len(r.orders))
	for k, v := range r.orders {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.orders = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (r *memoryRepo) ListPurchaseOrders(_ context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	out := []PurchaseOrder{}
	for _, po := range r.orders {
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		out = append(out, po)
	}
	return out, len(out), nil
}

func (r *memoryRepo) OpenOrderItemIDs(_ context.Context, itemIDs []int64) (map[int64]bool, error) {
	open := map[int64]bool{}
	for _, po := range r.orders {
		if po.Status.IsTerminal() {
			continue
		}
		for _, item := range po.Items {
			for _, id := range itemIDs {
				if item.InventoryItemID == id {
					open[id] = true
				}
			}
		}
	}
	return open, nil
}

func (r *memoryRepo) NextNumber(context.Context) (string, error) {
	if r.numberErr != nil {
		return "", r.numberErr
	}
	r.numbers++
	return "PO-2026-" + strings.Repeat("0", 3) + string(rune('0'+r.numbers)), nil
}

func (tx *memoryTx) InsertPurchaseOrder(_ context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	tx.repo.nextID++
	po.ID = tx.repo.nextID
	tx.repo.orders[po.ID] = po
	return po, nil
}

func (tx *memoryTx) InsertItems(_ context.Context, poID int64, items []PurchaseOrderItem) ([]PurchaseOrderItem, error) {
	for i := range items {
		tx.repo.nextItem++
		items[i].ID = tx.repo.nextItem
	}
	po := tx.repo.orders[poID]
	po.Items = items
	tx.repo.orders[poID] = po
	return items, nil
}

func (tx *memoryTx) LockPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	po, ok := tx.repo.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (tx *memoryTx) UpdateStatus(_ context.Context, id int64, status POStatus) error {
	po := tx.repo.orders[id]
	po.Status = status
	tx.repo.orders[id] = po
	return nil
}

type recordedApprovals struct {
	logs []shared.ApprovalLog
}

func (r *recordedApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func createOrder(t *testing.T, svc *Service, itemID int64) PurchaseOrder {
	t.Helper()
	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 1,
		Items:      []POItemInput{{InventoryItemID: itemID, Quantity: 4, UnitPrice: decimal.RequireFromString("2.50")}},
	})
	require.NoError(t, err)
	return po
}

func TestCreatePurchaseOrderComputesTotals(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Items: []POItemInput{
			{InventoryItemID: 1, Quantity: 10, UnitPrice: decimal.RequireFromString("1.25")},
			{InventoryItemID: 2, Quantity: 3, UnitPrice: decimal.RequireFromString("4.10")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusPending, po.Status)
	require.Equal(t, "PO-2026-0001", po.Number)
	require.True(t, po.TotalAmount.Equal(decimal.RequireFromString("24.80")))
	require.Len(t, po.Items, 2)
	require.True(t, po.Items[1].TotalPrice.Equal(decimal.RequireFromString("12.30")))
	require.False(t, po.OrderDate.IsZero())
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()
	_, err := svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: 1})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreatePurchaseOrder(ctx, CreatePOInput{Items: []POItemInput{{InventoryItemID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: 1, Items: []POItemInput{{InventoryItemID: 1, Quantity: 0}}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestNumberFallback(t *testing.T) {
	repo := newMemoryRepo()
	repo.numberErr = errors.New("function generate_po_number() does not exist")
	svc := NewService(repo, nil, nil, nil)
	po := createOrder(t, svc, 1)
	require.True(t, strings.HasPrefix(po.Number, "PO-"))
	require.NotEqual(t, "PO-2026-0001", po.Number)
}

func TestLifecycleTransitions(t *testing.T) {
	approvals := &recordedApprovals{}
	svc := NewService(newMemoryRepo(), approvals, nil, nil)
	ctx := shared.ContextWithActor(context.Background(), "dr.lee")
	po := createOrder(t, svc, 1)

	_, err := svc.MarkOrdered(ctx, po.ID, "")
	require.ErrorIs(t, err, ErrInvalidState)

	approved, err := svc.Approve(ctx, po.ID, "ok")
	require.NoError(t, err)
	require.Equal(t, POStatusApproved, approved.Status)

	ordered, err := svc.MarkOrdered(ctx, po.ID, "")
	require.NoError(t, err)
	require.Equal(t, POStatusOrdered, ordered.Status)

	require.NoError(t, svc.MarkReceived(ctx, po.ID))
	require.NoError(t, svc.MarkReceived(ctx, po.ID))

	_, err = svc.Cancel(ctx, po.ID, "")
	require.ErrorIs(t, err, ErrInvalidState)

	require.Len(t, approvals.logs, 2)
	require.Equal(t, "dr.lee", approvals.logs[0].Actor)
	require.Equal(t, shared.ApprovalOrder, approvals.logs[1].Action)
}

func TestMarkReceivedRefusesCancelled(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	po := createOrder(t, svc, 1)
	_, err := svc.Cancel(context.Background(), po.ID, "duplicate")
	require.NoError(t, err)
	require.ErrorIs(t, svc.MarkReceived(context.Background(), po.ID), ErrInvalidState)
	require.ErrorIs(t, svc.MarkReceived(context.Background(), 404), ErrNotFound)
}

func TestHasOpenOrderForItem(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()
	po := createOrder(t, svc, 7)

	open, err := svc.HasOpenOrderForItem(ctx, 7)
	require.NoError(t, err)
	require.True(t, open)

	open, err = svc.HasOpenOrderForItem(ctx, 8)
	require.NoError(t, err)
	require.False(t, open)

	require.NoError(t, svc.MarkReceived(ctx, po.ID))
	open, err = svc.HasOpenOrderForItem(ctx, 7)
	require.NoError(t, err)
	require.False(t, open)
}

func TestHandlerCreateAndApprove(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/purchase-orders", strings.NewReader(`{"supplier_id":1,"items":[]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/purchase-orders",
		strings.NewReader(`{"supplier_id":1,"items":[{"inventory_item_id":2,"quantity":5,"unit_price":"3.00"}]}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/purchase-orders/1/approve", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/purchase-orders/1/approve", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}
