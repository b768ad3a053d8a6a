package receiving

import (
	"context"
	"testing"

	"github.com/odyssey-erp/clinicstock/internal/inventory"
)

func BenchmarkCreateReceipt(b *testing.B) {
	items := make([]inventory.Item, 0, 20)
	lines := make([]LineInput, 0, 20)
	for id := int64(1); id <= 20; id++ {
		items = append(items, inventory.Item{ID: id, CurrentStock: 0, MinimumStock: 10, MaximumStock: intPtr(50), SupplierID: 3})
		lines = append(lines, LineInput{InventoryItemID: id, ReceivedQuantity: 5})
	}
	f := newFixture(autoOn, false, newMemoryStock(items...), newMemoryOrders())
	input := CreateReceiptInput{SupplierID: 3, ReceiptDate: today, Items: lines}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.svc.CreateReceipt(context.Background(), input); err != nil {
			b.Fatalf("create receipt: %v", err)
		}
	}
}
