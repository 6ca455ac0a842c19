package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"dofaline/internal/config"
	"dofaline/internal/domain"
	"dofaline/internal/events"
	"dofaline/internal/repo"
	"dofaline/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeRest is a PostgREST stand-in that upserts rows by id.
type fakeRest struct {
	mu     sync.Mutex
	tables map[string][]json.RawMessage
	posts  atomic.Int32
	gets   atomic.Int32
	fail   map[string]int
	// block, when set, holds GET requests until closed.
	block   chan struct{}
	entered chan struct{}
}

func newFakeRest() *fakeRest {
	return &fakeRest{tables: map[string][]json.RawMessage{}, fail: map[string]int{}}
}

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if r.Header.Get("apikey") == "" {
		http.Error(w, "missing apikey", http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	code := f.fail[table]
	f.mu.Unlock()
	if code != 0 {
		http.Error(w, `{"message":"boom"}`, code)
		return
	}
	switch r.Method {
	case http.MethodGet:
		f.gets.Add(1)
		if f.block != nil {
			if f.entered != nil {
				f.entered <- struct{}{}
			}
			<-f.block
		}
		f.mu.Lock()
		rows := f.tables[table]
		if rows == nil {
			rows = []json.RawMessage{}
		}
		data, _ := json.Marshal(rows)
		f.mu.Unlock()
		_, _ = w.Write(data)
	case http.MethodPost:
		f.posts.Add(1)
		var rows []json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		for _, row := range rows {
			var key struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(row, &key)
			replaced := false
			for i, existing := range f.tables[table] {
				var ek struct {
					ID string `json:"id"`
				}
				_ = json.Unmarshal(existing, &ek)
				if ek.ID == key.ID {
					f.tables[table][i] = row
					replaced = true
					break
				}
			}
			if !replaced {
				f.tables[table] = append(f.tables[table], row)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeRest) rowCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

type memState struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memState) GetState(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return v, nil
}

func (m *memState) PutState(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type recordedEvent struct {
	Type, Kind, ID string
}

type fakeEvents struct {
	mu  sync.Mutex
	got []recordedEvent
}

func (f *fakeEvents) Append(_ context.Context, evtType, entityKind, entityID, _ string, _ events.EventPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, recordedEvent{evtType, entityKind, entityID})
	return nil
}

func (f *fakeEvents) list() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.got...)
}

type testEnv struct {
	records    *store.Store[domain.DofaRecord]
	indicators *store.Store[domain.IndicatorRecord]
	syncer     *Syncer
	events     *fakeEvents
}

func newTestEnv(t *testing.T, baseURL string) testEnv {
	t.Helper()
	ctx := context.Background()
	st := &memState{data: map[string][]byte{}}
	recs := store.New[domain.DofaRecord](config.DefaultRecordsTable, st, zap.NewNop())
	inds := store.New[domain.IndicatorRecord](config.DefaultIndicatorsTable, st, zap.NewNop())
	recs.Load(ctx)
	inds.Load(ctx)
	ev := &fakeEvents{}
	cfg := config.RemoteConfig{Timeout: 2 * time.Second}
	if baseURL != "" {
		cfg.URL = baseURL
		cfg.Key = "anon-key"
	}
	s := New(cfg, Options{Records: recs, Indicators: inds, Logger: zap.NewNop(), Events: ev})
	t.Cleanup(s.Wait)
	return testEnv{records: recs, indicators: inds, syncer: s, events: ev}
}

func record(id string) domain.DofaRecord {
	return domain.DofaRecord{ID: id, Country: "Colombia", Type: domain.TypeStrength, Factor: "f-" + id, Impact: 3, Actions: []domain.DofaAction{}}
}

func TestPushThenPullYieldsSameRecords(t *testing.T) {
	fake := newFakeRest()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	a := newTestEnv(t, srv.URL)
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, a.records.Add(ctx, record(id)))
	}
	a.syncer.Wait()
	require.NoError(t, a.syncer.PushAll(ctx))
	assert.Equal(t, 3, fake.rowCount(config.DefaultRecordsTable))

	b := newTestEnv(t, srv.URL)
	res, err := b.syncer.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 0, res.Indicators)
	assert.ElementsMatch(t, a.records.List(), b.records.List())

	st := b.syncer.Status()
	assert.True(t, st.Connected)
	assert.NotNil(t, st.LastPullAt)
	assert.Empty(t, st.LastError)
}

func TestMutationPushesFullCollection(t *testing.T) {
	fake := newFakeRest()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	env := newTestEnv(t, srv.URL)
	require.NoError(t, env.indicators.Add(ctx, domain.IndicatorRecord{ID: "i1", Name: "OTD", Type: domain.IndicatorTactical}))
	require.NoError(t, env.indicators.Add(ctx, domain.IndicatorRecord{ID: "i2", Name: "NPS", Type: domain.IndicatorStrategic}))
	env.syncer.Wait()

	assert.Equal(t, int32(2), fake.posts.Load())
	assert.Equal(t, 2, fake.rowCount(config.DefaultIndicatorsTable))
	assert.NotNil(t, env.syncer.Status().LastPushAt)
}

func TestPullDoesNotPush(t *testing.T) {
	fake := newFakeRest()
	fake.tables[config.DefaultRecordsTable] = []json.RawMessage{json.RawMessage(`{"id":"x","factor":"remote"}`)}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	env := newTestEnv(t, srv.URL)
	require.NoError(t, env.records.Add(ctx, record("local")))
	env.syncer.Wait()
	posts := fake.posts.Load()

	_, err := env.syncer.Pull(ctx)
	require.NoError(t, err)
	env.syncer.Wait()

	assert.Equal(t, posts, fake.posts.Load())
	got := env.records.List()
	require.Len(t, got, 2)
}

func TestPullReplacesLocalCollection(t *testing.T) {
	fake := newFakeRest()
	fake.tables[config.DefaultRecordsTable] = []json.RawMessage{json.RawMessage(`{"id":"remote-only","factor":"r"}`)}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	env := newTestEnv(t, "")
	require.NoError(t, env.records.Add(ctx, record("local-only")))
	env.syncer.Configure(config.RemoteConfig{URL: srv.URL, Key: "k"})

	_, err := env.syncer.Pull(ctx)
	require.NoError(t, err)
	got := env.records.List()
	require.Len(t, got, 1)
	assert.Equal(t, "remote-only", got[0].ID)
}

func TestPullNeverOverlaps(t *testing.T) {
	fake := newFakeRest()
	fake.block = make(chan struct{})
	fake.entered = make(chan struct{}, 2)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	env := newTestEnv(t, srv.URL)
	done := make(chan error, 1)
	go func() {
		_, err := env.syncer.Pull(ctx)
		done <- err
	}()
	<-fake.entered

	_, err := env.syncer.Pull(ctx)
	require.ErrorIs(t, err, ErrPullInProgress)
	assert.True(t, env.syncer.Status().Pulling)

	close(fake.block)
	require.NoError(t, <-done)
	assert.False(t, env.syncer.Status().Pulling)
}

func TestDisabledSyncIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "")

	require.NoError(t, env.records.Add(ctx, record("r1")))
	env.syncer.Wait()

	st := env.syncer.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, 0, st.PendingPushes)

	_, err := env.syncer.Pull(ctx)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.ErrorIs(t, env.syncer.PushAll(ctx), ErrNotConfigured)
	assert.Len(t, env.records.List(), 1)
}

func TestFailuresAreRecordedAndDismissible(t *testing.T) {
	fake := newFakeRest()
	fake.fail[config.DefaultIndicatorsTable] = http.StatusInternalServerError
	fake.tables[config.DefaultRecordsTable] = []json.RawMessage{json.RawMessage(`{"id":"remote","factor":"r"}`)}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	env := newTestEnv(t, "")
	require.NoError(t, env.indicators.Add(ctx, domain.IndicatorRecord{ID: "keep"}))
	env.syncer.Configure(config.RemoteConfig{URL: srv.URL, Key: "k"})

	_, err := env.syncer.Pull(ctx)
	require.Error(t, err)

	// The records table still succeeded and was replaced.
	assert.Equal(t, "remote", env.records.List()[0].ID)
	assert.Equal(t, "keep", env.indicators.List()[0].ID)

	st := env.syncer.Status()
	assert.Contains(t, st.LastError, config.DefaultIndicatorsTable)
	assert.NotNil(t, st.LastErrorAt)
	assert.Nil(t, st.LastPullAt)

	evs := env.events.list()
	require.Len(t, evs, 1)
	assert.Equal(t, recordedEvent{events.SyncFailed, events.KindRemote, config.DefaultIndicatorsTable}, evs[0])

	env.syncer.DismissError()
	assert.Empty(t, env.syncer.Status().LastError)
}

func TestRunPullsUntilCancelled(t *testing.T) {
	fake := newFakeRest()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.syncer.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return fake.gets.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunSkipsWhileDisabled(t *testing.T) {
	env := newTestEnv(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, env.syncer.Run(ctx, 5*time.Millisecond))
	assert.Nil(t, env.syncer.Status().LastPullAt)
}
