package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/festpos/internal/cart"
	"github.com/angelmondragon/festpos/internal/register"
	"github.com/angelmondragon/festpos/pkg/clock"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/localstore"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/metrics"
)

const (
	defaultClearDelay = 3 * time.Second
	defaultNoticeTTL  = 5 * time.Second
)

// Identity resolves the signed-in user. ok is false when nobody is signed in.
type Identity interface {
	CurrentUserID(ctx context.Context) (userID string, ok bool)
}

// Catalog lists the products on sale.
type Catalog interface {
	ListProducts(ctx context.Context) ([]cart.Product, error)
}

type submitter interface {
	Submit(ctx context.Context, c cart.Cart, userID string) (string, *localstore.Outcome, error)
}

type watcher interface {
	Watch(saleID string, onStatus func(register.Status)) func()
}

type Options struct {
	Submitter  submitter
	Watcher    watcher
	Pending    *register.PendingSet
	Identity   Identity
	Catalog    Catalog
	Clock      clock.Clock
	Logger     *logger.Logger
	Metrics    *metrics.RegisterMetrics
	ClearDelay time.Duration
	// NoticeTTL is how long a non-persistent notice stays on screen.
	NoticeTTL time.Duration
}

// Controller owns the cart and the display lane, and reconciles both against
// sale outcomes and status notifications. All handlers serialize on mu.
type Controller struct {
	mu sync.Mutex

	submitter  submitter
	watcher    watcher
	pending    *register.PendingSet
	identity   Identity
	catalogSrc Catalog
	clock      clock.Clock
	logg       *logger.Logger
	stats      *metrics.RegisterMetrics
	clearDelay time.Duration
	noticeTTL  time.Duration

	catalog    []cart.Product
	quantities map[string]int64
	// cartGen moves whenever a rollback replaces the cart.
	cartGen    uint64
	status     DisplayStatus
	displayID  string
	// restore is the pre-submission cart of the displayed sale.
	restore    cart.Cart
	tracked    map[string]*trackedSale
	clearTimer clock.Timer
	clearFor   string
	notices    []Notice

	closed  bool
	done    chan struct{}
	waiters sync.WaitGroup
}

type trackedSale struct {
	cancelWatch func()
	submittedAt time.Time
}

func NewController(opts Options) (*Controller, error) {
	if opts.Submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if opts.Watcher == nil {
		return nil, errors.New("watcher is required")
	}
	if opts.Identity == nil {
		return nil, errors.New("identity is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Pending == nil {
		opts.Pending = register.NewPendingSet()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.ClearDelay <= 0 {
		opts.ClearDelay = defaultClearDelay
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = defaultNoticeTTL
	}
	opts.Pending.OnChange(opts.Metrics.SetPending)

	return &Controller{
		submitter:  opts.Submitter,
		watcher:    opts.Watcher,
		pending:    opts.Pending,
		identity:   opts.Identity,
		catalogSrc: opts.Catalog,
		clock:      opts.Clock,
		logg:       opts.Logger,
		stats:      opts.Metrics,
		clearDelay: opts.ClearDelay,
		noticeTTL:  opts.NoticeTTL,
		quantities: map[string]int64{},
		status:     StatusIdle,
		tracked:    map[string]*trackedSale{},
		done:       make(chan struct{}),
	}, nil
}

// Start loads the catalog once. It is not watched afterwards.
func (c *Controller) Start(ctx context.Context) error {
	products, err := c.catalogSrc.ListProducts(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog")
	}
	products = append([]cart.Product(nil), products...)
	cart.SortProducts(products)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = products
	c.logg.Info(c.logg.WithField(ctx, "products", len(products)), "catalog loaded")
	return nil
}

// Adjust changes a product's quantity by delta, clamping at zero.
func (c *Controller) Adjust(productID string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusSubmitting {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout in progress")
	}
	if !c.knownLocked(productID) {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown product %s", productID))
	}
	qty := c.quantities[productID] + delta
	if qty <= 0 {
		delete(c.quantities, productID)
		return nil
	}
	c.quantities[productID] = qty
	return nil
}

// Checkout submits the current cart and returns the new sale id. Validation
// failures leave the cart and the display lane untouched.
func (c *Controller) Checkout(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "register closed")
	}
	if c.status == StatusSubmitting {
		c.mu.Unlock()
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "checkout in progress")
	}

	snapshot := cart.Build(c.catalog, c.quantities)
	userID, signedIn := c.identity.CurrentUserID(ctx)
	if !signedIn || userID == "" {
		err := pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to record sales")
		c.noticeLocked(checkoutNoticeKey, NoticeInvalid, err.Message(), false)
		c.mu.Unlock()
		return "", err
	}
	if snapshot.Empty() {
		err := pkgerrors.New(pkgerrors.CodeValidation, "cart has no items")
		c.noticeLocked(checkoutNoticeKey, NoticeInvalid, err.Message(), false)
		c.mu.Unlock()
		return "", err
	}

	prevStatus := c.status
	gen := c.cartGen
	c.status = StatusSubmitting
	c.mu.Unlock()

	saleID, outcome, err := c.submitter.Submit(ctx, snapshot, userID)

	c.mu.Lock()
	if err != nil {
		c.status = prevStatus
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			c.noticeLocked(checkoutNoticeKey, NoticeInvalid, errorMessage(err), false)
		} else {
			c.noticeLocked(checkoutNoticeKey, NoticeFailed, errorMessage(err), true)
		}
		c.mu.Unlock()
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "checkout rejected")
		return "", err
	}

	if c.closed {
		// Closed while the write was being handed off; the record is queued
		// and will replay, but nothing here tracks it any more.
		c.mu.Unlock()
		return saleID, nil
	}

	c.supersedeLocked(saleID)
	c.tracked[saleID] = &trackedSale{submittedAt: c.clock.Now()}
	c.pending.Add(saleID)
	c.restore = snapshot.Clone()
	if c.cartGen == gen {
		c.quantities = map[string]int64{}
	}
	c.displayID = saleID
	c.status = StatusPending
	c.noticeLocked(saleID, NoticeQueued, fmt.Sprintf("Sale %s queued", saleID), true)

	c.waiters.Add(1)
	go c.awaitOutcome(saleID, outcome)
	c.mu.Unlock()

	// Watch can report synchronously, so it runs outside the lock.
	cancelWatch := c.watcher.Watch(saleID, func(s register.Status) {
		c.onStatus(saleID, s)
	})
	c.mu.Lock()
	if t, ok := c.tracked[saleID]; ok && t.cancelWatch == nil {
		t.cancelWatch = cancelWatch
		cancelWatch = nil
	}
	c.mu.Unlock()
	if cancelWatch != nil {
		cancelWatch()
	}

	ctx = c.logg.WithSaleID(ctx, saleID)
	c.logg.Info(ctx, "sale submitted")
	return saleID, nil
}

// supersedeLocked moves the display lane to saleID. The previous display sale
// keeps its watcher and pending entry; only its clear-timer and cart snapshot go.
func (c *Controller) supersedeLocked(saleID string) {
	if c.displayID == "" || c.displayID == saleID {
		return
	}
	c.stopClearTimerLocked()
	c.restore = cart.Cart{}
}

func (c *Controller) awaitOutcome(saleID string, outcome *localstore.Outcome) {
	defer c.waiters.Done()
	if outcome == nil {
		return
	}
	select {
	case <-outcome.Done():
	case <-c.done:
		return
	}
	if err := outcome.Err(); err != nil {
		c.failSale(saleID, err)
		return
	}
	c.syncSale(saleID)
}

func (c *Controller) onStatus(saleID string, status register.Status) {
	switch status {
	case register.StatusSynced:
		c.syncSale(saleID)
	case register.StatusUnknown:
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.tracked[saleID]; !ok {
			return
		}
		c.noticeLocked(saleID, NoticeUnknown, fmt.Sprintf("Sale %s status unknown", saleID), true)
	}
}

// syncSale handles confirmation from either the watcher or the outcome; the
// second arrival finds nothing tracked.
func (c *Controller) syncSale(saleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.untrackLocked(saleID)
	if !ok {
		return
	}
	c.stats.IncOutcome(metrics.OutcomeConfirmed)
	c.stats.ObserveSyncLatency(c.clock.Now().Sub(t.submittedAt))
	c.noticeLocked(saleID, NoticeSynced, fmt.Sprintf("Sale %s synced", saleID), false)

	if c.displayID != saleID {
		return
	}
	c.status = StatusSynced
	c.restore = cart.Cart{}
	c.stopClearTimerLocked()
	c.clearFor = saleID
	c.clearTimer = c.clock.AfterFunc(c.clearDelay, func() { c.clearDisplay(saleID) })
}

func (c *Controller) failSale(saleID string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.untrackLocked(saleID); !ok {
		return
	}
	c.stats.IncOutcome(metrics.OutcomeRejected)
	if c.clearFor == saleID {
		c.stopClearTimerLocked()
	}
	c.noticeLocked(saleID, NoticeFailed, fmt.Sprintf("Sale %s failed: %s", saleID, errorMessage(cause)), true)

	ctx := c.logg.WithSaleID(context.Background(), saleID)
	c.logg.Warn(c.logg.WithField(ctx, "error", cause.Error()), "sale rejected")

	if c.displayID != saleID {
		return
	}
	c.quantities = c.restore.Quantities()
	c.cartGen++
	c.restore = cart.Cart{}
	c.displayID = ""
	c.status = StatusFailed
}

func (c *Controller) clearDisplay(saleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearFor != saleID {
		return
	}
	c.clearTimer = nil
	c.clearFor = ""
	if c.displayID == saleID {
		c.displayID = ""
		c.status = StatusIdle
	}
}

// untrackLocked removes saleID from every registry and releases its watcher.
func (c *Controller) untrackLocked(saleID string) (*trackedSale, bool) {
	t, ok := c.tracked[saleID]
	if !ok {
		return nil, false
	}
	delete(c.tracked, saleID)
	c.pending.Remove(saleID)
	if t.cancelWatch != nil {
		t.cancelWatch()
	}
	return t, true
}

func (c *Controller) stopClearTimerLocked() {
	if c.clearTimer != nil {
		c.clearTimer.Stop()
	}
	c.clearTimer = nil
	c.clearFor = ""
}

func (c *Controller) noticeLocked(key string, kind NoticeKind, message string, persistent bool) {
	now := c.clock.Now()
	c.pruneNoticesLocked(now)
	n := Notice{Key: key, Kind: kind, Message: message, Persistent: persistent, At: now}
	for i := range c.notices {
		if c.notices[i].Key == key {
			c.notices[i] = n
			return
		}
	}
	c.notices = append(c.notices, n)
}

// pruneNoticesLocked drops non-persistent notices older than the notice TTL.
func (c *Controller) pruneNoticesLocked(now time.Time) {
	kept := c.notices[:0]
	for _, n := range c.notices {
		if n.Persistent || now.Sub(n.At) < c.noticeTTL {
			kept = append(kept, n)
		}
	}
	clear(c.notices[len(kept):])
	c.notices = kept
}

// Dismiss removes the notice with the given key.
func (c *Controller) Dismiss(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notices {
		if c.notices[i].Key == key {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Controller) knownLocked(productID string) bool {
	for _, p := range c.catalog {
		if p.ID == productID {
			return true
		}
	}
	return false
}

// View returns a copy of the current screen state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneNoticesLocked(c.clock.Now())
	current := cart.Build(c.catalog, c.quantities)
	quantities := make(map[string]int64, len(c.quantities))
	for id, qty := range c.quantities {
		quantities[id] = qty
	}
	return View{
		Catalog:         append([]cart.Product(nil), c.catalog...),
		Quantities:      quantities,
		Cart:            current,
		Status:          c.status,
		StatusLabel:     c.status.Label(),
		DisplaySaleID:   c.displayID,
		PendingCount:    c.pending.Count(),
		Notices:         append([]Notice(nil), c.notices...),
		CheckoutEnabled: current.Total > 0 && c.status != StatusSubmitting && !c.closed,
	}
}

// Close releases every watcher and the clear-timer and empties the pending
// set. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	for id, t := range c.tracked {
		if t.cancelWatch != nil {
			t.cancelWatch()
		}
		delete(c.tracked, id)
	}
	c.stopClearTimerLocked()
	c.pending.Clear()
	c.mu.Unlock()

	c.waiters.Wait()
}

func errorMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}
