package register

// Status is what a watcher reports for one sale.
type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	// StatusUnknown is reported once when the subscription itself fails.
	StatusUnknown Status = "unknown"
)

// SalesCollection is the store collection sale records are written to.
const SalesCollection = "sales"
