package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/festpos/internal/register"
	"github.com/angelmondragon/festpos/pkg/clock"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

var catalog = staticCatalog{
	{ID: "B", Name: "Ramune", Price: 50, Order: intPtr(2)},
	{ID: "A", Name: "Yakitori", Price: 100, Order: intPtr(1)},
	{ID: "C", Name: "Kakigori", Price: 300},
}

type harness struct {
	ctrl    *Controller
	sub     *fakeSubmitter
	watch   *fakeWatcher
	pending *register.PendingSet
	clock   *clock.ManualClock
}

func newHarness(t *testing.T, userID string) *harness {
	t.Helper()
	h := &harness{
		sub:     newFakeSubmitter(),
		watch:   newFakeWatcher(),
		pending: register.NewPendingSet(),
		clock:   clock.NewManualClock(time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)),
	}
	ctrl, err := NewController(Options{
		Submitter: h.sub,
		Watcher:   h.watch,
		Pending:   h.pending,
		Identity:  staticIdentity{userID: userID},
		Catalog:   catalog,
		Clock:     h.clock,
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Close)
	h.ctrl = ctrl
	return h
}

func (h *harness) fill(t *testing.T, quantities map[string]int64) {
	t.Helper()
	for id, qty := range quantities {
		require.NoError(t, h.ctrl.Adjust(id, qty))
	}
}

func noticeFor(v View, key string) (Notice, bool) {
	for _, n := range v.Notices {
		if n.Key == key {
			return n, true
		}
	}
	return Notice{}, false
}

func TestStart_SortsCatalog(t *testing.T) {
	h := newHarness(t, "u1")
	v := h.ctrl.View()
	require.Len(t, v.Catalog, 3)
	assert.Equal(t, "C", v.Catalog[0].ID)
	assert.Equal(t, "A", v.Catalog[1].ID)
	assert.Equal(t, "B", v.Catalog[2].ID)
}

func TestAdjust_ClampsAtZero(t *testing.T) {
	h := newHarness(t, "u1")
	require.NoError(t, h.ctrl.Adjust("A", 1))
	require.NoError(t, h.ctrl.Adjust("A", -5))
	v := h.ctrl.View()
	assert.Zero(t, v.Cart.Total)
	assert.False(t, v.CheckoutEnabled)

	err := h.ctrl.Adjust("ghost", 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCheckout_SyncedThenClearsAfterDelay(t *testing.T) {
	h := newHarness(t, "u1")
	h.fill(t, map[string]int64{"A": 2, "B": 1})
	require.Equal(t, int64(250), h.ctrl.View().Cart.Total)

	saleID, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	v := h.ctrl.View()
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, "queued offline…", v.StatusLabel)
	assert.Equal(t, saleID, v.DisplaySaleID)
	assert.Equal(t, 1, v.PendingCount)
	assert.True(t, v.Cart.Empty())
	queued, ok := noticeFor(v, saleID)
	require.True(t, ok)
	assert.Equal(t, NoticeQueued, queued.Kind)
	assert.True(t, queued.Persistent)

	require.Len(t, h.sub.carts, 1)
	assert.Equal(t, int64(250), h.sub.carts[0].Total)

	h.watch.emit(saleID, register.StatusPending)
	h.watch.emit(saleID, register.StatusSynced)

	v = h.ctrl.View()
	assert.Equal(t, StatusSynced, v.Status)
	assert.Equal(t, 0, v.PendingCount)
	synced, _ := noticeFor(v, saleID)
	assert.Equal(t, NoticeSynced, synced.Kind)
	assert.Equal(t, 1, h.watch.cancelCount(saleID))

	h.clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, saleID, h.ctrl.View().DisplaySaleID)

	h.clock.Advance(time.Millisecond)
	v = h.ctrl.View()
	assert.Equal(t, StatusIdle, v.Status)
	assert.Empty(t, v.DisplaySaleID)

	// The outcome settling afterwards is not processed twice.
	h.sub.settle(saleID, nil)
	h.ctrl.Close()
	assert.Equal(t, 0, h.pending.Count())
}

func TestCheckout_EmptyCartIsRejected(t *testing.T) {
	h := newHarness(t, "u1")
	h.fill(t, map[string]int64{"A": 0, "B": 0})

	_, err := h.ctrl.Checkout(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, h.sub.calls())

	v := h.ctrl.View()
	assert.Equal(t, StatusIdle, v.Status)
	assert.Equal(t, 0, v.PendingCount)
	n, ok := noticeFor(v, checkoutNoticeKey)
	require.True(t, ok)
	assert.Equal(t, NoticeInvalid, n.Kind)
}

func TestCheckout_RequiresUser(t *testing.T) {
	h := newHarness(t, "")
	h.fill(t, map[string]int64{"A": 1})

	_, err := h.ctrl.Checkout(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	assert.Zero(t, h.sub.calls())
	assert.Equal(t, int64(100), h.ctrl.View().Cart.Total, "cart is left untouched")
}

func TestCheckout_SubmitErrorRestoresState(t *testing.T) {
	h := newHarness(t, "u1")
	h.fill(t, map[string]int64{"A": 1})
	h.sub.err = pkgerrors.New(pkgerrors.CodeValidation, "cart has no items")

	_, err := h.ctrl.Checkout(context.Background())
	require.Error(t, err)
	v := h.ctrl.View()
	assert.Equal(t, StatusIdle, v.Status)
	assert.Equal(t, int64(100), v.Cart.Total)
}

func TestCheckout_FailureRestoresExactCart(t *testing.T) {
	h := newHarness(t, "u1")
	h.fill(t, map[string]int64{"C": 1})
	before := h.ctrl.View().Cart

	saleID, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	// Edits made while the sale is in flight are discarded on rollback.
	require.NoError(t, h.ctrl.Adjust("A", 4))

	h.sub.settle(saleID, pkgerrors.New(pkgerrors.CodeForbidden, "user not verified"))
	require.Eventually(t, func() bool {
		return h.ctrl.View().Status == StatusFailed
	}, time.Second, 5*time.Millisecond)

	v := h.ctrl.View()
	assert.Equal(t, before, v.Cart)
	assert.Equal(t, int64(300), v.Cart.Total)
	assert.Equal(t, 0, v.PendingCount)
	assert.Empty(t, v.DisplaySaleID)
	assert.Equal(t, "sync error - retry", v.StatusLabel)
	failed, ok := noticeFor(v, saleID)
	require.True(t, ok)
	assert.Equal(t, NoticeFailed, failed.Kind)
	assert.True(t, failed.Persistent)
	assert.Contains(t, failed.Message, saleID)
	assert.Equal(t, 1, h.watch.cancelCount(saleID))

	// A late synced notification for the failed sale changes nothing.
	h.watch.emit(saleID, register.StatusSynced)
	assert.Equal(t, 0, h.ctrl.View().PendingCount)
	assert.Equal(t, StatusFailed, h.ctrl.View().Status)
}

func TestCheckout_SupersededSaleStillResolves(t *testing.T) {
	h := newHarness(t, "u1")

	h.fill(t, map[string]int64{"A": 1})
	first, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	h.fill(t, map[string]int64{"B": 2})
	second, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	v := h.ctrl.View()
	assert.Equal(t, second, v.DisplaySaleID)
	assert.Equal(t, 2, v.PendingCount)
	assert.Zero(t, h.watch.cancelCount(first), "superseded sale keeps its watcher")

	h.watch.emit(first, register.StatusSynced)
	v = h.ctrl.View()
	assert.Equal(t, 1, v.PendingCount)
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, second, v.DisplaySaleID)
	assert.Zero(t, h.clock.Pending(), "no clear-timer for a sale that is not displayed")

	// The superseded sale failing later must not roll back the current cart.
	h.sub.settle(first, errors.New("late"))
	h.fill(t, map[string]int64{"A": 1})
	h.watch.emit(second, register.StatusSynced)
	assert.Equal(t, 1, h.clock.Pending())

	third, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	assert.Zero(t, h.clock.Pending(), "supersession cancels the armed clear-timer")

	h.clock.Advance(3 * time.Second)
	v = h.ctrl.View()
	assert.Equal(t, third, v.DisplaySaleID)
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, 1, v.PendingCount)
}

func TestCheckout_FailedSupersededSaleKeepsDisplay(t *testing.T) {
	h := newHarness(t, "u1")

	h.fill(t, map[string]int64{"A": 1})
	first, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	h.fill(t, map[string]int64{"B": 1})
	second, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	h.fill(t, map[string]int64{"C": 1})
	h.sub.settle(first, errors.New("rejected"))
	require.Eventually(t, func() bool {
		return h.ctrl.View().PendingCount == 1
	}, time.Second, 5*time.Millisecond)

	v := h.ctrl.View()
	assert.Equal(t, second, v.DisplaySaleID)
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, int64(300), v.Cart.Total, "cart is not restored for a non-displayed sale")
}

func TestCheckout_PendingCountAcrossInterleavedResolutions(t *testing.T) {
	h := newHarness(t, "u1")
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		h.fill(t, map[string]int64{"A": 1})
		id, err := h.ctrl.Checkout(context.Background())
		require.NoError(t, err)
		ids = append(ids, id)
		assert.Equal(t, i+1, h.ctrl.View().PendingCount)
	}

	h.watch.emit(ids[2], register.StatusSynced)
	h.sub.settle(ids[2], nil)
	h.sub.settle(ids[0], errors.New("boom"))
	h.watch.emit(ids[0], register.StatusSynced)
	h.watch.emit(ids[4], register.StatusSynced)
	h.sub.settle(ids[1], nil)
	h.sub.settle(ids[3], errors.New("boom"))

	require.Eventually(t, func() bool {
		return h.ctrl.View().PendingCount == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.pending.Count())
}

func TestCheckout_UnknownStatusKeepsSaleTracked(t *testing.T) {
	h := newHarness(t, "u1")
	h.fill(t, map[string]int64{"A": 1})
	saleID, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	h.watch.emit(saleID, register.StatusUnknown)
	v := h.ctrl.View()
	n, _ := noticeFor(v, saleID)
	assert.Equal(t, NoticeUnknown, n.Kind)
	assert.Equal(t, 1, v.PendingCount)

	h.sub.settle(saleID, nil)
	require.Eventually(t, func() bool {
		return h.ctrl.View().Status == StatusSynced
	}, time.Second, 5*time.Millisecond)
}

func TestClose_ReleasesEverything(t *testing.T) {
	h := newHarness(t, "u1")
	h.fill(t, map[string]int64{"A": 1})
	first, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	h.watch.emit(first, register.StatusSynced)
	h.fill(t, map[string]int64{"B": 1})
	second, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	h.fill(t, map[string]int64{"B": 1})
	_, err = h.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	h.ctrl.Close()
	h.ctrl.Close()

	assert.Equal(t, 0, h.pending.Count())
	assert.Equal(t, 1, h.watch.cancelCount(second))
	assert.Zero(t, h.clock.Pending())

	_, err = h.ctrl.Checkout(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestDismiss(t *testing.T) {
	h := newHarness(t, "u1")
	_, _ = h.ctrl.Checkout(context.Background())
	assert.True(t, h.ctrl.Dismiss(checkoutNoticeKey))
	assert.False(t, h.ctrl.Dismiss(checkoutNoticeKey))
}

func TestCheckout_RollbackDuringSubmitKeepsRestoredCart(t *testing.T) {
	sub := &hookSubmitter{fakeSubmitter: newFakeSubmitter()}
	watch := newFakeWatcher()
	pending := register.NewPendingSet()
	ctrl, err := NewController(Options{
		Submitter: sub,
		Watcher:   watch,
		Pending:   pending,
		Identity:  staticIdentity{userID: "u1"},
		Catalog:   catalog,
		Clock:     clock.NewManualClock(time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Close)

	require.NoError(t, ctrl.Adjust("C", 1))
	first, err := ctrl.Checkout(context.Background())
	require.NoError(t, err)

	require.NoError(t, ctrl.Adjust("A", 1))
	sub.beforeNext(func() {
		sub.settle(first, pkgerrors.New(pkgerrors.CodeForbidden, "user not verified"))
		require.Eventually(t, func() bool {
			return ctrl.View().Status == StatusFailed
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, int64(300), ctrl.View().Cart.Total, "rollback restores the failed sale's cart")
	})

	second, err := ctrl.Checkout(context.Background())
	require.NoError(t, err)

	v := ctrl.View()
	assert.Equal(t, second, v.DisplaySaleID)
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, int64(300), v.Cart.Total, "restored cart survives the racing checkout")
	assert.Equal(t, 1, v.PendingCount)
	failed, ok := noticeFor(v, first)
	require.True(t, ok)
	assert.Equal(t, NoticeFailed, failed.Kind)

	require.Len(t, sub.carts, 2)
	assert.Equal(t, int64(100), sub.carts[1].Total)
}

func TestNotices_TransientExpirePersistentStay(t *testing.T) {
	h := newHarness(t, "u1")

	h.fill(t, map[string]int64{"A": 1})
	synced, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	h.watch.emit(synced, register.StatusSynced)

	h.fill(t, map[string]int64{"B": 1})
	failed, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	h.sub.settle(failed, errors.New("rejected"))
	require.Eventually(t, func() bool {
		return h.ctrl.View().Status == StatusFailed
	}, time.Second, 5*time.Millisecond)

	_, ok := noticeFor(h.ctrl.View(), synced)
	require.True(t, ok)

	h.clock.Advance(defaultNoticeTTL)
	v := h.ctrl.View()
	_, ok = noticeFor(v, synced)
	assert.False(t, ok, "synced notice expires")
	n, ok := noticeFor(v, failed)
	require.True(t, ok, "failure notice stays until dismissed")
	assert.Equal(t, NoticeFailed, n.Kind)

	h.clock.Advance(time.Hour)
	_, ok = noticeFor(h.ctrl.View(), failed)
	assert.True(t, ok)
	assert.True(t, h.ctrl.Dismiss(failed))
}
