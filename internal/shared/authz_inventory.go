package shared

// Inventory permissions declared for RBAC.
const (
	PermInventoryView        = "inventory.view"
	PermInventoryAdjust      = "inventory.adjust"
	PermInventoryTransfer    = "inventory.transfer"
	PermInventoryTransferAll = "inventory.transfer.all"
	PermInventoryJobs        = "inventory.jobs"
)

// InventoryScopes lists every inventory permission.
func InventoryScopes() []string {
	return []string{
		PermInventoryView,
		PermInventoryAdjust,
		PermInventoryTransfer,
		PermInventoryTransferAll,
		PermInventoryJobs,
	}
}
