package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/festpos/pkg/clock"
	"github.com/angelmondragon/festpos/pkg/db"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrClosed is reported to subscribers, and to new writes, once the store is closed.
var ErrClosed = errors.New("localstore: closed")

const (
	defaultBatchSize    = 25
	defaultPollInterval = time.Second
	defaultPushTimeout  = 10 * time.Second
)

// Remote is the backing service the store replays writes to. Errors that
// pkg/errors classifies as non-retryable reject the write permanently.
type Remote interface {
	Push(ctx context.Context, doc Document) error
}

type Options struct {
	DB           *db.Client
	Remote       Remote
	Logger       *logger.Logger
	Clock        clock.Clock
	Metrics      *metrics.ReplayMetrics
	BatchSize    int
	PollInterval time.Duration
	PushTimeout  time.Duration
}

// Store is a local-first document store. Writes land in SQLite immediately
// and are replayed to the Remote by Run.
type Store struct {
	mu     sync.Mutex
	db     *gorm.DB
	remote Remote
	logg   *logger.Logger
	clock  clock.Clock
	stats  *metrics.ReplayMetrics

	dispatch *dispatcher
	wake     chan struct{}

	nextID     int
	subs       map[docKey]map[int]*subscription
	countSubs  map[string]map[int]*subscription
	lastCounts map[string]int
	outcomes   map[docKey][]pendingOutcome
	closed     bool

	batchSize    int
	pollInterval time.Duration
	pushTimeout  time.Duration
}

type pendingOutcome struct {
	generation int64
	resolve    func(error)
}

type subscription struct {
	active   atomic.Bool
	onChange func(Snapshot)
	onCount  func(int)
	onError  func(error)
}

// Open prepares the local schema and starts the notification dispatcher.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.DB == nil {
		return nil, errors.New("local database is required")
	}
	if opts.Remote == nil {
		return nil, errors.New("remote is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = defaultPushTimeout
	}

	conn := opts.DB.DB()
	if err := conn.WithContext(ctx).AutoMigrate(&localDocument{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	return &Store{
		db:           conn,
		remote:       opts.Remote,
		logg:         opts.Logger,
		clock:        opts.Clock,
		stats:        opts.Metrics,
		dispatch:     newDispatcher(),
		wake:         make(chan struct{}, 1),
		subs:         map[docKey]map[int]*subscription{},
		countSubs:    map[string]map[int]*subscription{},
		lastCounts:   map[string]int{},
		outcomes:     map[docKey][]pendingOutcome{},
		batchSize:    opts.BatchSize,
		pollInterval: opts.PollInterval,
		pushTimeout:  opts.PushTimeout,
	}, nil
}

// Put writes doc under collection/id, replacing any previous body, and queues
// it for replay. It never waits on the network.
func (s *Store) Put(ctx context.Context, collection, id string, doc any) *Outcome {
	if collection == "" || id == "" {
		return rejectedOutcome(pkgerrors.New(pkgerrors.CodeValidation, "collection and id are required"))
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return rejectedOutcome(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "document is not encodable"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return rejectedOutcome(ErrClosed)
	}

	key := docKey{collection: collection, id: id}
	existing, found, err := s.findLocked(ctx, key)
	if err != nil {
		return rejectedOutcome(pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read local document"))
	}
	row := localDocument{
		Collection: collection,
		DocID:      id,
		Data:       string(data),
		Pending:    true,
		Generation: 1,
		UpdatedAt:  s.clock.Now(),
	}
	if found {
		row.Generation = existing.Generation + 1
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error; err != nil {
		return rejectedOutcome(pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write local document"))
	}

	outcome, resolve := NewOutcome()
	s.outcomes[key] = append(s.outcomes[key], pendingOutcome{generation: row.Generation, resolve: resolve})
	s.notifyLocked(key, row.snapshot())
	s.notifyCountLocked(ctx, collection)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return outcome
}

// Subscribe delivers the current snapshot, if the document exists, and then
// one snapshot per local or remote change. Callbacks run on the store's
// dispatcher goroutine in order. onError is called at most once, after which
// the subscription is dead; on a closed store it runs before Subscribe
// returns. The returned cancel is idempotent.
func (s *Store) Subscribe(collection, id string, onChange func(Snapshot), onError func(error)) func() {
	sub := &subscription{onChange: onChange, onError: onError}
	sub.active.Store(true)
	key := docKey{collection: collection, id: id}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if onError != nil {
			onError(ErrClosed)
		}
		return func() {}
	}
	defer s.mu.Unlock()

	row, found, err := s.findLocked(context.Background(), key)
	if err != nil {
		s.failLocked(sub, err)
		return func() {}
	}

	s.nextID++
	subID := s.nextID
	if s.subs[key] == nil {
		s.subs[key] = map[int]*subscription{}
	}
	s.subs[key][subID] = sub
	if found {
		s.deliverLocked(sub, row.snapshot())
	}

	return func() {
		sub.active.Store(false)
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], subID)
		if len(s.subs[key]) == 0 {
			delete(s.subs, key)
		}
	}
}

// PendingCount returns how many documents in collection await replay.
func (s *Store) PendingCount(ctx context.Context, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(ctx, collection)
}

// SubscribePendingCount reports the current pending count and every change to it.
func (s *Store) SubscribePendingCount(collection string, fn func(int)) func() {
	sub := &subscription{onCount: fn}
	sub.active.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	count, err := s.countLocked(context.Background(), collection)
	if err != nil {
		s.logg.Error(s.logg.WithField(context.Background(), "collection", collection), "local pending count failed", err)
	} else {
		s.lastCounts[collection] = count
		s.dispatch.enqueue(func() {
			if sub.active.Load() {
				fn(count)
			}
		})
	}

	s.nextID++
	subID := s.nextID
	if s.countSubs[collection] == nil {
		s.countSubs[collection] = map[int]*subscription{}
	}
	s.countSubs[collection][subID] = sub

	return func() {
		sub.active.Store(false)
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.countSubs[collection], subID)
	}
}

// Close fails every live subscription with ErrClosed and stops the dispatcher
// once queued notifications have been delivered. Unresolved outcomes stay
// unresolved. Close must not be called from a subscription callback.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, subs := range s.subs {
		for _, sub := range subs {
			s.failLocked(sub, ErrClosed)
		}
	}
	for _, subs := range s.countSubs {
		for _, sub := range subs {
			sub.active.Store(false)
		}
	}
	s.subs = map[docKey]map[int]*subscription{}
	s.countSubs = map[string]map[int]*subscription{}
	s.mu.Unlock()

	s.dispatch.stop()
}

func (s *Store) findLocked(ctx context.Context, key docKey) (localDocument, bool, error) {
	var rows []localDocument
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", key.collection, key.id).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return localDocument{}, false, err
	}
	if len(rows) == 0 {
		return localDocument{}, false, nil
	}
	return rows[0], true, nil
}

func (s *Store) countLocked(ctx context.Context, collection string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&localDocument{}).
		Where("collection = ? AND pending = ?", collection, true).
		Count(&count).Error
	return int(count), err
}

func (s *Store) notifyLocked(key docKey, snap Snapshot) {
	for _, sub := range s.subs[key] {
		s.deliverLocked(sub, snap)
	}
}

func (s *Store) deliverLocked(sub *subscription, snap Snapshot) {
	s.dispatch.enqueue(func() {
		if sub.active.Load() && sub.onChange != nil {
			sub.onChange(snap)
		}
	})
}

func (s *Store) failLocked(sub *subscription, err error) {
	s.dispatch.enqueue(func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		if sub.onError != nil {
			sub.onError(err)
		}
	})
}

func (s *Store) notifyCountLocked(ctx context.Context, collection string) {
	count, err := s.countLocked(ctx, collection)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "collection", collection), "local pending count failed", err)
		return
	}
	if last, ok := s.lastCounts[collection]; ok && last == count {
		return
	}
	s.lastCounts[collection] = count
	for _, sub := range s.countSubs[collection] {
		s.dispatch.enqueue(func() {
			if sub.active.Load() {
				sub.onCount(count)
			}
		})
	}
}

// resolveLocked settles every outcome for key written at or before generation.
func (s *Store) resolveLocked(key docKey, generation int64, err error) {
	waiting := s.outcomes[key]
	kept := waiting[:0]
	for _, pending := range waiting {
		if pending.generation <= generation {
			pending.resolve(err)
			continue
		}
		kept = append(kept, pending)
	}
	if len(kept) == 0 {
		delete(s.outcomes, key)
		return
	}
	s.outcomes[key] = kept
}
