package register

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/festpos/pkg/localstore"
	"github.com/angelmondragon/festpos/pkg/logger"
)

// Watcher maps store snapshots for a sale record onto a Status.
type Watcher struct {
	store Store
	logg  *logger.Logger
}

func NewWatcher(store Store, logg *logger.Logger) (*Watcher, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Watcher{store: store, logg: logg}, nil
}

// Watch reports StatusPending for every snapshot carrying unconfirmed local
// writes and StatusSynced once the store confirms, after which the watch ends
// by itself. Snapshots of a missing record are ignored: a rejected write is
// reported by the submission outcome, not here. If the subscription fails,
// StatusUnknown is reported once and the watch ends. The returned cancel is
// idempotent.
func (w *Watcher) Watch(saleID string, onStatus func(Status)) func() {
	h := &watchHandle{}

	onChange := func(snap localstore.Snapshot) {
		if !snap.Exists || h.finished() {
			return
		}
		if snap.HasPendingWrites {
			onStatus(StatusPending)
			return
		}
		h.release()
		onStatus(StatusSynced)
	}
	onError := func(err error) {
		if !h.release() {
			return
		}
		ctx := w.logg.WithSaleID(context.Background(), saleID)
		w.logg.Warn(w.logg.WithField(ctx, "error", err.Error()), "sale status subscription failed")
		onStatus(StatusUnknown)
	}

	h.attach(w.store.Subscribe(SalesCollection, saleID, onChange, onError))
	return func() { h.release() }
}

type watchHandle struct {
	mu          sync.Mutex
	done        bool
	unsubscribe func()
}

func (h *watchHandle) finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// attach stores the store's cancel func, running it at once if the watch
// already ended while Subscribe was still executing.
func (h *watchHandle) attach(unsubscribe func()) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		unsubscribe()
		return
	}
	h.unsubscribe = unsubscribe
	h.mu.Unlock()
}

// release ends the watch. It reports whether this call did the work.
func (h *watchHandle) release() bool {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return false
	}
	h.done = true
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	return true
}
