package receiving

// HasDiscrepancy reports whether a received quantity differs from the ordered one.
func HasDiscrepancy(received, ordered int) bool {
	return received != ordered
}

// SetReceivedQuantity changes the received quantity and recomputes the flag.
func (i *StockReceiptItem) SetReceivedQuantity(qty int) {
	i.ReceivedQuantity = qty
	i.HasDiscrepancy = HasDiscrepancy(i.ReceivedQuantity, i.OrderedQuantity)
}

// SetOrderedQuantity changes the ordered quantity and recomputes the flag.
func (i *StockReceiptItem) SetOrderedQuantity(qty int) {
	i.OrderedQuantity = qty
	i.HasDiscrepancy = HasDiscrepancy(i.ReceivedQuantity, i.OrderedQuantity)
}

// CountDiscrepancies counts flagged lines.
func CountDiscrepancies(items []StockReceiptItem) int {
	n := 0
	for _, item := range items {
		if item.HasDiscrepancy {
			n++
		}
	}
	return n
}
