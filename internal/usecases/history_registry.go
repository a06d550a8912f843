package usecases

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/pkg/logger"
)

// HistoryRegistry owns one PaymentHistoryStore per account. Stores are created on first use
// and keep polling until Close; requests for one account never reset another account's store.
type HistoryRegistry struct {
	deps HistoryDeps
	opts HistoryOptions

	// every store rewrites the same storage key
	persistMu sync.Mutex

	mu     sync.Mutex
	stores map[string]*PaymentHistoryStore
}

func NewHistoryRegistry(deps HistoryDeps, opts HistoryOptions) *HistoryRegistry {
	return &HistoryRegistry{
		deps:   deps,
		opts:   opts,
		stores: make(map[string]*PaymentHistoryStore),
	}
}

// Store returns the initialized store of account, creating it on first use
func (r *HistoryRegistry) Store(ctx context.Context, account string) (*PaymentHistoryStore, error) {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return nil, domainerrors.ErrNoAccountConfigured
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[account]; ok {
		return s, nil
	}

	s := newPaymentHistoryStore(r.deps, r.opts, &r.persistMu)
	if err := s.Initialize(ctx, account); err != nil {
		s.Dispose()
		return nil, err
	}
	r.stores[account] = s
	return s, nil
}

// Accounts lists the accounts with a live store
func (r *HistoryRegistry) Accounts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.stores))
	for account := range r.stores {
		out = append(out, account)
	}
	return out
}

func (r *HistoryRegistry) list() []*PaymentHistoryStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*PaymentHistoryStore, 0, len(r.stores))
	for _, s := range r.stores {
		out = append(out, s)
	}
	return out
}

// FetchRemoteDeposits reconciles every live store against the indexer
func (r *HistoryRegistry) FetchRemoteDeposits(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(DefaultQuoteConcurrency)
	for _, s := range r.list() {
		g.Go(func() error {
			if err := s.FetchRemoteDeposits(ctx); err != nil {
				logger.Warn(ctx, "Remote deposit reconciliation failed", zap.String("account", s.Account()), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Close disposes every store
func (r *HistoryRegistry) Close() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*PaymentHistoryStore)
	r.mu.Unlock()

	for _, s := range stores {
		s.Dispose()
	}
}
