package register

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/angelmondragon/festpos/pkg/localstore"
)

type putCall struct {
	collection string
	id         string
	doc        any
}

type fakeSub struct {
	onChange func(localstore.Snapshot)
	onError  func(error)
	canceled int
}

// fakeStore records writes and lets tests drive notifications by hand.
type fakeStore struct {
	mu       sync.Mutex
	puts     []putCall
	resolve  map[string]func(error)
	subs     map[string]*fakeSub
	failSubs error
}

func newFakeStore() *fakeStore {
	return &fakeStore{resolve: map[string]func(error){}, subs: map[string]*fakeSub{}}
}

func (f *fakeStore) Put(_ context.Context, collection, id string, doc any) *localstore.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{collection: collection, id: id, doc: doc})
	outcome, resolve := localstore.NewOutcome()
	f.resolve[id] = resolve
	return outcome
}

func (f *fakeStore) Subscribe(_ string, id string, onChange func(localstore.Snapshot), onError func(error)) func() {
	f.mu.Lock()
	if f.failSubs != nil {
		err := f.failSubs
		f.mu.Unlock()
		onError(err)
		return func() {}
	}
	sub := &fakeSub{onChange: onChange, onError: onError}
	f.subs[id] = sub
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		sub.canceled++
		if f.subs[id] == sub {
			delete(f.subs, id)
		}
	}
}

func (f *fakeStore) sub(id string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id]
}

func (f *fakeStore) emit(id string, exists, pending bool) {
	sub := f.sub(id)
	if sub == nil {
		return
	}
	sub.onChange(localstore.Snapshot{
		Collection:       SalesCollection,
		ID:               id,
		Exists:           exists,
		HasPendingWrites: pending,
		Data:             json.RawMessage(`{}`),
	})
}

func (f *fakeStore) fail(id string, err error) {
	if sub := f.sub(id); sub != nil {
		sub.onError(err)
	}
}

func (f *fakeStore) settle(id string, err error) {
	f.mu.Lock()
	resolve := f.resolve[id]
	f.mu.Unlock()
	if resolve != nil {
		resolve(err)
	}
}
