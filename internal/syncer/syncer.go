package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dofaline/internal/config"
	"dofaline/internal/domain"
	"dofaline/internal/events"
	"dofaline/internal/remote"
	"dofaline/internal/store"
)

const DefaultPollInterval = 60 * time.Second

var (
	ErrNotConfigured  = errors.New("remote sync is not configured")
	ErrPullInProgress = errors.New("pull already in progress")
)

// Remote is the subset of the PostgREST client the syncer needs.
type Remote interface {
	Select(ctx context.Context, table string, out any) error
	Upsert(ctx context.Context, table string, rows any) error
}

// EventRecorder appends entries to the activity log.
type EventRecorder interface {
	Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error
}

type Options struct {
	Records    *store.Store[domain.DofaRecord]
	Indicators *store.Store[domain.IndicatorRecord]
	Logger     *zap.Logger
	Events     EventRecorder
	Now        func() time.Time
	// NewRemote builds the client for a configuration; defaults to remote.New.
	NewRemote func(config.RemoteConfig) Remote
}

type Status struct {
	Connected       bool       `json:"connected"`
	URL             string     `json:"url,omitempty"`
	RecordsTable    string     `json:"records_table"`
	IndicatorsTable string     `json:"indicators_table"`
	Pulling         bool       `json:"pulling"`
	PendingPushes   int        `json:"pending_pushes"`
	LastPullAt      *time.Time `json:"last_pull_at,omitempty"`
	LastPushAt      *time.Time `json:"last_push_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
}

type PullResult struct {
	Records    int `json:"records"`
	Indicators int `json:"indicators"`
}

// Syncer mirrors the record and indicator stores to a remote PostgREST
// backend. Pulls replace local collections wholesale; every local mutation
// pushes the full collection as an upsert.
type Syncer struct {
	records    *store.Store[domain.DofaRecord]
	indicators *store.Store[domain.IndicatorRecord]
	log        *zap.Logger
	events     EventRecorder
	now        func() time.Time
	newRemote  func(config.RemoteConfig) Remote

	mu     sync.RWMutex
	cfg    config.RemoteConfig
	client Remote
	status Status

	pulling          atomic.Bool
	pending          atomic.Int32
	recordsPushMu    sync.Mutex
	indicatorsPushMu sync.Mutex
	wg               sync.WaitGroup
}

func New(cfg config.RemoteConfig, opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Syncer{
		records:    opts.Records,
		indicators: opts.Indicators,
		log:        logger.Named("syncer"),
		events:     opts.Events,
		now:        opts.Now,
		newRemote:  opts.NewRemote,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newRemote == nil {
		s.newRemote = func(c config.RemoteConfig) Remote {
			cl := remote.New(c.URL, c.Key)
			if c.Timeout > 0 {
				cl.Timeout = c.Timeout
			}
			return cl
		}
	}
	s.Configure(cfg)
	s.records.OnChange(func([]domain.DofaRecord) { s.schedulePush(s.pushRecords) })
	s.indicators.OnChange(func([]domain.IndicatorRecord) { s.schedulePush(s.pushIndicators) })
	return s
}

// Configure swaps the remote settings. Disabling the remote clears the client;
// the next scheduled tick picks up the new settings.
func (s *Syncer) Configure(cfg config.RemoteConfig) {
	cfg = cfg.WithSettings(nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.client = nil
	if cfg.Enabled() {
		s.client = s.newRemote(cfg)
	}
	s.status.LastError = ""
	s.status.LastErrorAt = nil
	s.log.Info("remote configured", zap.Bool("enabled", cfg.Enabled()), zap.String("url", cfg.URL))
}

func (s *Syncer) Config() config.RemoteConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Syncer) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

func (s *Syncer) Status() Status {
	s.mu.RLock()
	st := s.status
	st.Connected = s.client != nil
	st.URL = s.cfg.URL
	st.RecordsTable = s.cfg.RecordsTable
	st.IndicatorsTable = s.cfg.IndicatorsTable
	s.mu.RUnlock()
	st.Pulling = s.pulling.Load()
	st.PendingPushes = int(s.pending.Load())
	return st
}

// DismissError clears the last recorded failure.
func (s *Syncer) DismissError() {
	s.mu.Lock()
	s.status.LastError = ""
	s.status.LastErrorAt = nil
	s.mu.Unlock()
}

func (s *Syncer) remote() (Remote, config.RemoteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, s.cfg, ErrNotConfigured
	}
	return s.client, s.cfg, nil
}

// Pull fetches both remote tables concurrently and replaces each local
// collection whose fetch succeeded. It never runs concurrently with itself.
func (s *Syncer) Pull(ctx context.Context) (PullResult, error) {
	client, cfg, err := s.remote()
	if err != nil {
		return PullResult{}, err
	}
	if !s.pulling.CompareAndSwap(false, true) {
		return PullResult{}, ErrPullInProgress
	}
	defer s.pulling.Store(false)

	var res PullResult
	var g errgroup.Group
	g.Go(func() error {
		n, err := pullInto(ctx, client, cfg.RecordsTable, s.records)
		if err != nil {
			return s.fail(ctx, "pull", cfg.RecordsTable, err)
		}
		res.Records = n
		return nil
	})
	g.Go(func() error {
		n, err := pullInto(ctx, client, cfg.IndicatorsTable, s.indicators)
		if err != nil {
			return s.fail(ctx, "pull", cfg.IndicatorsTable, err)
		}
		res.Indicators = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, err
	}
	at := s.now()
	s.mu.Lock()
	s.status.LastPullAt = &at
	s.mu.Unlock()
	s.log.Debug("pulled", zap.Int("records", res.Records), zap.Int("indicators", res.Indicators))
	return res, nil
}

// PushAll uploads both full collections.
func (s *Syncer) PushAll(ctx context.Context) error {
	if _, _, err := s.remote(); err != nil {
		return err
	}
	return errors.Join(s.pushRecords(ctx), s.pushIndicators(ctx))
}

// Wait blocks until background pushes have finished.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

// Run pulls immediately and then every interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s.log.Info("sync scheduler started", zap.Duration("interval", interval))
	s.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sync scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Syncer) tick(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	_, err := s.Pull(ctx)
	switch {
	case errors.Is(err, ErrPullInProgress):
		s.log.Debug("previous pull still running; skipping tick")
	case errors.Is(err, ErrNotConfigured):
	case err != nil && ctx.Err() == nil:
		s.log.Warn("scheduled pull failed", zap.Error(err))
	}
}

func (s *Syncer) schedulePush(push func(context.Context) error) {
	if !s.Enabled() {
		return
	}
	s.wg.Add(1)
	s.pending.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.pending.Add(-1)
		if err := push(context.Background()); err != nil && !errors.Is(err, ErrNotConfigured) {
			s.log.Warn("background push failed", zap.Error(err))
		}
	}()
}

func (s *Syncer) pushRecords(ctx context.Context) error {
	s.recordsPushMu.Lock()
	defer s.recordsPushMu.Unlock()
	client, cfg, err := s.remote()
	if err != nil {
		return err
	}
	return s.pushed(ctx, cfg.RecordsTable, pushFrom(ctx, client, cfg.RecordsTable, s.records))
}

func (s *Syncer) pushIndicators(ctx context.Context) error {
	s.indicatorsPushMu.Lock()
	defer s.indicatorsPushMu.Unlock()
	client, cfg, err := s.remote()
	if err != nil {
		return err
	}
	return s.pushed(ctx, cfg.IndicatorsTable, pushFrom(ctx, client, cfg.IndicatorsTable, s.indicators))
}

func (s *Syncer) pushed(ctx context.Context, table string, err error) error {
	if err != nil {
		return s.fail(ctx, "push", table, err)
	}
	at := s.now()
	s.mu.Lock()
	s.status.LastPushAt = &at
	s.mu.Unlock()
	return nil
}

// fail records err in the status and the activity log and returns it wrapped.
func (s *Syncer) fail(ctx context.Context, op, table string, err error) error {
	err = fmt.Errorf("%s %s: %w", op, table, err)
	at := s.now()
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.status.LastErrorAt = &at
	s.mu.Unlock()
	s.log.Error("remote sync failed", zap.String("op", op), zap.String("table", table), zap.Error(err))
	if s.events != nil {
		payload := events.EventPayload{"op": op, "table": table, "error": err.Error()}
		if aerr := s.events.Append(context.WithoutCancel(ctx), events.SyncFailed, events.KindRemote, table, events.SystemActor, payload); aerr != nil {
			s.log.Warn("append sync event", zap.Error(aerr))
		}
	}
	return err
}

func pullInto[T store.Entity](ctx context.Context, client Remote, table string, st *store.Store[T]) (int, error) {
	var rows []T
	if err := client.Select(ctx, table, &rows); err != nil {
		return 0, err
	}
	if rows == nil {
		rows = []T{}
	}
	if err := st.Replace(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func pushFrom[T store.Entity](ctx context.Context, client Remote, table string, st *store.Store[T]) error {
	items := st.List()
	return client.Upsert(ctx, table, items)
}
