package reorder

// ReorderQuantity sizes a replenishment order. When a maximum is configured
// and above on-hand the order fills up to it; otherwise it is twice the
// minimum, or 2 when no minimum is configured.
func ReorderQuantity(minimum int, maximum *int, onHand int) int {
	if maximum != nil && *maximum > onHand {
		return *maximum - onHand
	}
	if minimum == 0 {
		return 2
	}
	return minimum * 2
}
