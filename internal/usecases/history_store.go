package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/domain/repositories"
	"crosspay.backend/internal/infrastructure/jobs"
	"crosspay.backend/internal/infrastructure/metrics"
	"crosspay.backend/pkg/logger"
)

// HistoryDeps wires the history store to its collaborators. Every field is optional:
// a nil Storage disables persistence, a nil Tracker/Indexer disables the matching lookups.
type HistoryDeps struct {
	Storage repositories.KeyValueStore
	Tracker DepositTracker
	Indexer DepositIndexer
	Readers ChainReaderProvider
	Tokens  TokenLookup
	Metrics metrics.Recorder
}

type HistoryOptions struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	RemoteLimit    int
	StorageKey     string
	Now            func() time.Time
}

// PaymentHistoryStore is the single owner of payment history entries for the active account
type PaymentHistoryStore struct {
	deps   HistoryDeps
	opts   HistoryOptions
	poller *jobs.EntryPoller

	mu           sync.Mutex
	account      string
	initialized  bool
	entries      []*entities.PaymentHistoryEntry
	version      uint64
	baseCtx      context.Context
	cancelBase   context.CancelFunc
	listeners    map[int]func(entities.PaymentHistorySnapshot)
	nextListener int

	// shared by every store writing the same storage key
	persistMu *sync.Mutex
	bg        sync.WaitGroup
}

func NewPaymentHistoryStore(deps HistoryDeps, opts HistoryOptions) *PaymentHistoryStore {
	return newPaymentHistoryStore(deps, opts, &sync.Mutex{})
}

func newPaymentHistoryStore(deps HistoryDeps, opts HistoryOptions, persistMu *sync.Mutex) *PaymentHistoryStore {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultHistoryPollInterval
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = time.Minute
	}
	if opts.RemoteLimit <= 0 {
		opts.RemoteLimit = DefaultRemoteDepositLimit
	}
	if opts.StorageKey == "" {
		opts.StorageKey = HistoryStorageKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &PaymentHistoryStore{
		deps:       deps,
		opts:       opts,
		poller:     jobs.NewEntryPoller(opts.PollInterval),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		entries:    []*entities.PaymentHistoryEntry{},
		listeners:  make(map[int]func(entities.PaymentHistorySnapshot)),
		persistMu:  persistMu,
	}
}

// Initialize switches the active account. Calling it again with the same account does nothing.
func (s *PaymentHistoryStore) Initialize(ctx context.Context, account string) error {
	account = strings.ToLower(strings.TrimSpace(account))

	s.mu.Lock()
	if s.initialized && s.account == account {
		s.mu.Unlock()
		return nil
	}
	s.cancelBase()
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.initialized = true
	s.account = account
	s.entries = []*entities.PaymentHistoryEntry{}
	s.version++
	snap, listeners := s.snapshotLocked(), s.listenerList()
	s.mu.Unlock()

	s.poller.StopAll()
	notifyHistory(listeners, snap)

	if account == "" {
		return nil
	}

	entries, err := s.load(ctx, account)
	if err != nil {
		logger.Warn(ctx, "Loading payment history failed", zap.String("account", account), zap.Error(err))
		entries = nil
	}

	s.mu.Lock()
	if s.account != account {
		s.mu.Unlock()
		return nil
	}
	for _, e := range entries {
		normalizeTimeline(e)
	}
	sortEntries(entries)
	if entries == nil {
		entries = []*entities.PaymentHistoryEntry{}
	}
	s.entries = entries
	s.version++
	snap, listeners = s.snapshotLocked(), s.listenerList()
	baseCtx := s.baseCtx
	s.mu.Unlock()

	notifyHistory(listeners, snap)
	for _, e := range snap.Entries {
		s.evaluatePolling(e)
	}

	if s.deps.Indexer != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			if err := s.FetchRemoteDeposits(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn(baseCtx, "Remote deposit reconciliation failed", zap.String("account", account), zap.Error(err))
			}
		}()
	}
	return nil
}

// Dispose stops every poller and background fetch. The store can be initialized again afterwards.
func (s *PaymentHistoryStore) Dispose() {
	s.mu.Lock()
	s.cancelBase()
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.initialized = false
	s.account = ""
	s.mu.Unlock()

	s.poller.StopAll()
	s.bg.Wait()
}

// Account returns the active account, empty when none
func (s *PaymentHistoryStore) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Snapshot returns a deep copy of the current state
func (s *PaymentHistoryStore) Snapshot() entities.PaymentHistorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every change; the returned func unsubscribes
func (s *PaymentHistoryStore) Subscribe(fn func(entities.PaymentHistorySnapshot)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Entry returns a copy of the entry with id or ErrNotFound
func (s *PaymentHistoryStore) Entry(id string) (*entities.PaymentHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.entries[i].Clone(), nil
	}
	return nil, fmt.Errorf("history entry %s: %w", id, domainerrors.ErrNotFound)
}

// IsPolling reports whether the entry has an active poller
func (s *PaymentHistoryStore) IsPolling(id string) bool {
	return s.poller.Active(id)
}

// AddEntry inserts entry or replaces the entry with the same id
func (s *PaymentHistoryStore) AddEntry(ctx context.Context, entry *entities.PaymentHistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("history entry needs an id: %w", domainerrors.ErrInvalidInput)
	}
	e := entry.Clone()
	now := s.nowMs()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = now
	}
	normalizeTimeline(e)

	s.mu.Lock()
	if !s.initialized || s.account == "" {
		s.mu.Unlock()
		return domainerrors.ErrNoAccountConfigured
	}
	if i := s.indexOf(e.ID); i >= 0 {
		s.entries[i] = e
	} else {
		s.entries = append(s.entries, e)
	}
	sortEntries(s.entries)
	s.commitLocked(ctx, e)
	return nil
}

// UpdateEntry applies mutate to a copy of the entry and stores the result
func (s *PaymentHistoryStore) UpdateEntry(ctx context.Context, id string, mutate func(e *entities.PaymentHistoryEntry)) (*entities.PaymentHistoryEntry, error) {
	return s.mutate(ctx, id, func(e *entities.PaymentHistoryEntry) bool {
		mutate(e)
		return true
	})
}

// MarkFailed moves the entry to failed, records message and stops polling
func (s *PaymentHistoryStore) MarkFailed(ctx context.Context, id, message string) (*entities.PaymentHistoryEntry, error) {
	e, err := s.mutate(ctx, id, func(e *entities.PaymentHistoryEntry) bool {
		s.fail(e, message)
		return true
	})
	s.poller.Stop(id)
	return e, err
}

// AppendTimelineEntries records milestones; a stage written again replaces its earlier record
func (s *PaymentHistoryStore) AppendTimelineEntries(ctx context.Context, id string, records ...entities.PaymentTimelineEntry) (*entities.PaymentHistoryEntry, error) {
	return s.mutate(ctx, id, func(e *entities.PaymentHistoryEntry) bool {
		e.Timeline = appendTimeline(e.Timeline, records...)
		return len(records) > 0
	})
}

// Clear drops every entry of the active account
func (s *PaymentHistoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized || s.account == "" {
		s.mu.Unlock()
		return domainerrors.ErrNoAccountConfigured
	}
	s.entries = []*entities.PaymentHistoryEntry{}
	s.commitLocked(ctx, nil)
	s.poller.StopAll()
	return nil
}

// mutate runs fn on a copy of entry id; fn returning false leaves the store untouched
func (s *PaymentHistoryStore) mutate(ctx context.Context, id string, fn func(e *entities.PaymentHistoryEntry) bool) (*entities.PaymentHistoryEntry, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("history entry %s: %w", id, domainerrors.ErrNotFound)
	}
	e := s.entries[i].Clone()
	if !fn(e) {
		s.mu.Unlock()
		return e, nil
	}
	e.ID = id
	e.UpdatedAt = s.nowMs()
	normalizeTimeline(e)
	s.entries[i] = e
	s.commitLocked(ctx, e)
	return e.Clone(), nil
}

// commitLocked publishes the new state and releases s.mu. changed is re-evaluated for polling.
func (s *PaymentHistoryStore) commitLocked(ctx context.Context, changed *entities.PaymentHistoryEntry) {
	s.version++
	snap, listeners := s.snapshotLocked(), s.listenerList()
	account := s.account
	var polled *entities.PaymentHistoryEntry
	if changed != nil {
		polled = changed.Clone()
	}
	s.mu.Unlock()

	s.persist(ctx, account)
	notifyHistory(listeners, snap)
	if polled != nil {
		s.evaluatePolling(polled)
	}
}

// persist writes the latest entries of account; concurrent writers are serialized
func (s *PaymentHistoryStore) persist(ctx context.Context, account string) {
	if s.deps.Storage == nil || account == "" {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.account != account {
		s.mu.Unlock()
		return
	}
	entries := make([]*entities.PaymentHistoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e.Clone())
	}
	s.mu.Unlock()

	ctx = context.WithValue(ctx, logger.AccountKey, account)
	all, err := s.readAll(ctx)
	if err != nil {
		logger.Warn(ctx, "Reading persisted history failed", zap.String("account", account), zap.Error(err))
		all = make(map[string][]*entities.PaymentHistoryEntry)
	}
	all[account] = entries

	raw, err := encodeHistory(all)
	if err != nil {
		logger.Error(ctx, "Encoding payment history failed", zap.Error(err))
		return
	}
	if err := s.deps.Storage.Set(ctx, s.opts.StorageKey, raw); err != nil {
		logger.Warn(ctx, "Persisting payment history failed", zap.String("account", account), zap.Error(err))
	}
}

func (s *PaymentHistoryStore) load(ctx context.Context, account string) ([]*entities.PaymentHistoryEntry, error) {
	if s.deps.Storage == nil {
		return nil, nil
	}
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return all[account], nil
}

func (s *PaymentHistoryStore) readAll(ctx context.Context) (map[string][]*entities.PaymentHistoryEntry, error) {
	raw, err := s.deps.Storage.Get(ctx, s.opts.StorageKey)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return make(map[string][]*entities.PaymentHistoryEntry), nil
		}
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrStorageUnavailable, err)
	}
	return decodeHistory(raw)
}

func (s *PaymentHistoryStore) indexOf(id string) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *PaymentHistoryStore) snapshotLocked() entities.PaymentHistorySnapshot {
	entries := make([]*entities.PaymentHistoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e.Clone())
	}
	return entities.PaymentHistorySnapshot{Account: s.account, Entries: entries, Version: s.version}
}

func (s *PaymentHistoryStore) listenerList() []func(entities.PaymentHistorySnapshot) {
	out := make([]func(entities.PaymentHistorySnapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func (s *PaymentHistoryStore) nowMs() int64 {
	return s.opts.Now().UnixMilli()
}

func notifyHistory(listeners []func(entities.PaymentHistorySnapshot), snap entities.PaymentHistorySnapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}

// appendTimeline replaces records of the same stage with the latest write
func appendTimeline(timeline []entities.PaymentTimelineEntry, records ...entities.PaymentTimelineEntry) []entities.PaymentTimelineEntry {
	out := make([]entities.PaymentTimelineEntry, 0, len(timeline)+len(records))
	for _, existing := range timeline {
		replaced := false
		for _, r := range records {
			if r.Stage == existing.Stage {
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, existing)
		}
	}
	written := make(map[entities.PaymentStatus]int, len(records))
	for _, r := range records {
		if r.Label == "" {
			r.Label = r.Stage.Label()
		}
		if i, ok := written[r.Stage]; ok {
			out[i] = r
			continue
		}
		written[r.Stage] = len(out)
		out = append(out, r)
	}
	sortTimeline(out)
	return out
}

// normalizeTimeline restores the one-record-per-stage, ascending-time invariant
func normalizeTimeline(e *entities.PaymentHistoryEntry) {
	e.Timeline = mergeTimeline(nil, e.Timeline)
}
