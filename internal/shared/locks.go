package shared

import "fmt"

// ReorderLockKey builds the redis key guarding reorder evaluation of one catalog item.
func ReorderLockKey(itemID int64) string {
	return fmt.Sprintf("reorder:item:%d:lock", itemID)
}
