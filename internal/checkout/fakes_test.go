package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/festpos/internal/cart"
	"github.com/angelmondragon/festpos/internal/register"
	"github.com/angelmondragon/festpos/pkg/localstore"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	n        int
	err      error
	carts    []cart.Cart
	resolves map[string]func(error)
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{resolves: map[string]func(error){}}
}

func (f *fakeSubmitter) Submit(_ context.Context, c cart.Cart, _ string) (string, *localstore.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", nil, f.err
	}
	f.n++
	id := fmt.Sprintf("sale-%d", f.n)
	f.carts = append(f.carts, c.Clone())
	outcome, resolve := localstore.NewOutcome()
	f.resolves[id] = resolve
	return id, outcome, nil
}

func (f *fakeSubmitter) settle(id string, err error) {
	f.mu.Lock()
	resolve := f.resolves[id]
	f.mu.Unlock()
	resolve(err)
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type fakeWatcher struct {
	mu       sync.Mutex
	handlers map[string]func(register.Status)
	cancels  map[string]int
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{handlers: map[string]func(register.Status){}, cancels: map[string]int{}}
}

func (f *fakeWatcher) Watch(saleID string, onStatus func(register.Status)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[saleID] = onStatus
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancels[saleID]++
	}
}

func (f *fakeWatcher) emit(saleID string, s register.Status) {
	f.mu.Lock()
	fn := f.handlers[saleID]
	f.mu.Unlock()
	fn(s)
}

func (f *fakeWatcher) cancelCount(saleID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels[saleID]
}

type staticIdentity struct{ userID string }

func (s staticIdentity) CurrentUserID(context.Context) (string, bool) {
	return s.userID, s.userID != ""
}

type staticCatalog []cart.Product

func (s staticCatalog) ListProducts(context.Context) ([]cart.Product, error) {
	return []cart.Product(s), nil
}

// hookSubmitter runs before once ahead of the next submission, while the
// controller has released its lock.
type hookSubmitter struct {
	*fakeSubmitter
	mu     sync.Mutex
	before func()
}

func (h *hookSubmitter) Submit(ctx context.Context, c cart.Cart, userID string) (string, *localstore.Outcome, error) {
	h.mu.Lock()
	before := h.before
	h.before = nil
	h.mu.Unlock()
	if before != nil {
		before()
	}
	return h.fakeSubmitter.Submit(ctx, c, userID)
}

func (h *hookSubmitter) beforeNext(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before = fn
}
