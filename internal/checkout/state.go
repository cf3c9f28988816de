package checkout

import (
	"time"

	"github.com/angelmondragon/festpos/internal/cart"
)

// DisplayStatus is the state of the display lane.
type DisplayStatus string

const (
	StatusIdle       DisplayStatus = "idle"
	StatusSubmitting DisplayStatus = "submitting"
	StatusPending    DisplayStatus = "pending"
	StatusSynced     DisplayStatus = "synced"
	StatusFailed     DisplayStatus = "failed"
)

// Label is the text shown on the register's status line.
func (s DisplayStatus) Label() string {
	switch s {
	case StatusSubmitting:
		return "submitting…"
	case StatusPending:
		return "queued offline…"
	case StatusFailed:
		return "sync error - retry"
	case StatusSynced:
		return "synced"
	default:
		return ""
	}
}

type NoticeKind string

const (
	NoticeQueued  NoticeKind = "queued"
	NoticeSynced  NoticeKind = "synced"
	NoticeFailed  NoticeKind = "failed"
	NoticeUnknown NoticeKind = "unknown"
	NoticeInvalid NoticeKind = "invalid"
)

// Notice is a user-facing message. Sale notices are keyed by sale id so a
// later notice for the same sale replaces the earlier one.
type Notice struct {
	Key        string     `json:"key"`
	Kind       NoticeKind `json:"kind"`
	Message    string     `json:"message"`
	Persistent bool       `json:"persistent"`
	At         time.Time  `json:"at"`
}

// View is a consistent copy of everything the cart screen renders.
type View struct {
	Catalog         []cart.Product   `json:"catalog"`
	Quantities      map[string]int64 `json:"quantities"`
	Cart            cart.Cart        `json:"cart"`
	Status          DisplayStatus    `json:"status"`
	StatusLabel     string           `json:"statusLabel"`
	DisplaySaleID   string           `json:"displaySaleId,omitempty"`
	PendingCount    int              `json:"pendingCount"`
	Notices         []Notice         `json:"notices"`
	CheckoutEnabled bool             `json:"checkoutEnabled"`
}

// checkoutNoticeKey keys validation notices, which are not tied to a sale.
const checkoutNoticeKey = "checkout"
