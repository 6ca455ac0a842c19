package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dofaline/internal/domain"
	"dofaline/internal/repo"
)

type memPersister struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
	puts int
}

func newMem() *memPersister { return &memPersister{data: map[string][]byte{}} }

func (m *memPersister) GetState(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return v, nil
}

func (m *memPersister) PutState(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func newRecordStore(p Persister) *Store[domain.DofaRecord] {
	return New[domain.DofaRecord]("dofa_records", p, zap.NewNop())
}

func TestAddUpdateDeleteWriteThrough(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	s := newRecordStore(p)
	s.Load(ctx)
	require.Empty(t, s.List())

	require.NoError(t, s.Add(ctx, domain.DofaRecord{ID: "r1", Factor: "a"}))
	require.NoError(t, s.Add(ctx, domain.DofaRecord{ID: "r2", Factor: "b"}))

	ok, err := s.Update(ctx, domain.DofaRecord{ID: "r1", Factor: "a2"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Update(ctx, domain.DofaRecord{ID: "missing"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Delete(ctx, "r2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "r2")
	require.NoError(t, err)
	assert.False(t, ok)

	// A fresh store over the same persistence sees the same collection.
	reloaded := newRecordStore(p)
	reloaded.Load(ctx)
	assert.Equal(t, s.List(), reloaded.List())
	got, ok := reloaded.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "a2", got.Factor)
	assert.Equal(t, 4, p.puts)
}

func TestFailedPersistenceLeavesCollectionUnchanged(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	s := newRecordStore(p)
	s.Load(ctx)
	require.NoError(t, s.Add(ctx, domain.DofaRecord{ID: "r1", Factor: "a"}))

	var calls int
	s.OnChange(func([]domain.DofaRecord) { calls++ })

	p.fail = errors.New("disk full")
	require.Error(t, s.Add(ctx, domain.DofaRecord{ID: "r2"}))
	_, err := s.Update(ctx, domain.DofaRecord{ID: "r1", Factor: "changed"})
	require.Error(t, err)
	_, err = s.Delete(ctx, "r1")
	require.Error(t, err)
	require.Error(t, s.Replace(ctx, nil))

	assert.Equal(t, []domain.DofaRecord{{ID: "r1", Factor: "a"}}, s.List())
	assert.Zero(t, calls)
}

func TestOnChangeNotReplace(t *testing.T) {
	ctx := context.Background()
	s := newRecordStore(newMem())
	s.Load(ctx)

	var seen [][]domain.DofaRecord
	s.OnChange(func(items []domain.DofaRecord) { seen = append(seen, items) })

	require.NoError(t, s.Add(ctx, domain.DofaRecord{ID: "r1"}))
	require.NoError(t, s.Replace(ctx, []domain.DofaRecord{{ID: "x"}, {ID: "y"}}))
	assert.Len(t, s.List(), 2)
	require.Len(t, seen, 1)
	assert.Len(t, seen[0], 1)
}

func TestLoadCorruptStateIsEmpty(t *testing.T) {
	p := newMem()
	p.data["dofa_records"] = []byte("{not json")
	s := newRecordStore(p)
	s.Load(context.Background())
	assert.NotNil(t, s.List())
	assert.Empty(t, s.List())

	p.data["dofa_records"] = []byte("null")
	s.Load(context.Background())
	assert.Empty(t, s.List())
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newRecordStore(newMem())
	s.Load(ctx)
	require.NoError(t, s.Add(ctx, domain.DofaRecord{ID: "r1", Actions: []domain.DofaAction{{ID: "a1", Text: "x"}}}))

	items := s.List()
	items[0].Actions[0].Text = "mutated"
	items[0].Factor = "mutated"

	got, _ := s.Get("r1")
	assert.Equal(t, "x", got.Actions[0].Text)
	assert.Empty(t, got.Factor)
}

func TestIndicatorStore(t *testing.T) {
	ctx := context.Background()
	s := New[domain.IndicatorRecord]("saam_indicators", newMem(), nil)
	s.Load(ctx)
	require.NoError(t, s.Add(ctx, domain.IndicatorRecord{ID: "i1", Name: "OTD"}))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "saam_indicators", s.Key())
}

func TestModifyIsAtomic(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	s := newRecordStore(p)
	s.Load(ctx)
	require.NoError(t, s.Add(ctx, domain.DofaRecord{ID: "r1", Actions: []domain.DofaAction{}}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.Modify(ctx, "r1", func(r domain.DofaRecord) (domain.DofaRecord, error) {
				r.Actions = append(r.Actions, domain.DofaAction{ID: fmt.Sprintf("a%d", i)})
				return r, nil
			})
			assert.NoError(t, err)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()

	got, ok := s.Get("r1")
	require.True(t, ok)
	assert.Len(t, got.Actions, n)

	reloaded := newRecordStore(p)
	reloaded.Load(ctx)
	got, _ = reloaded.Get("r1")
	assert.Len(t, got.Actions, n)
}

func TestModifyErrorsLeaveItemUnchanged(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	s := newRecordStore(p)
	s.Load(ctx)
	require.NoError(t, s.Add(ctx, domain.DofaRecord{ID: "r1", Factor: "a"}))
	calls := 0
	s.OnChange(func([]domain.DofaRecord) { calls++ })

	boom := errors.New("boom")
	ok, err := s.Modify(ctx, "r1", func(r domain.DofaRecord) (domain.DofaRecord, error) {
		r.Factor = "changed"
		return r, boom
	})
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)

	_, err = s.Modify(ctx, "r1", func(r domain.DofaRecord) (domain.DofaRecord, error) {
		r.ID = "other"
		return r, nil
	})
	assert.Error(t, err)

	ok, err = s.Modify(ctx, "missing", func(r domain.DofaRecord) (domain.DofaRecord, error) { return r, nil })
	require.NoError(t, err)
	assert.False(t, ok)

	p.fail = errors.New("disk full")
	_, err = s.Modify(ctx, "r1", func(r domain.DofaRecord) (domain.DofaRecord, error) {
		r.Factor = "changed"
		return r, nil
	})
	assert.Error(t, err)

	got, _ := s.Get("r1")
	assert.Equal(t, "a", got.Factor)
	assert.Zero(t, calls)
}

func TestFullyPopulatedEntitiesSurviveReload(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	records := newRecordStore(p)
	indicators := New[domain.IndicatorRecord]("saam_indicators", p, nil)
	records.Load(ctx)
	indicators.Load(ctx)

	rec := domain.DofaRecord{
		ID:            "r1",
		Country:       "Panamá",
		Axis:          "Excelencia Operativa",
		Category:      "Personal",
		Type:          domain.TypeThreat,
		Factor:        "Rotación; alta",
		Description:   "línea 1\nlínea 2",
		Justification: "histórico \"2023\"",
		Impact:        5,
		User:          "ana",
		Timestamp:     1717243200000,
		Actions: []domain.DofaAction{
			{ID: "a1", Text: "Plan", Responsible: "luis", StartDate: "2024-01-01", EndDate: "2024-02-01", EffectivenessFollowUp: "cumplido"},
			{ID: "a2", Text: "Encuesta", Responsible: "marta", StartDate: "2024-03-01", EndDate: "2024-04-01T00:00:00Z", EffectivenessFollowUp: ""},
		},
	}
	ind := domain.IndicatorRecord{
		ID:          "i1",
		ProcessID:   "hse-Salud",
		ProcessName: "Salud",
		Type:        domain.IndicatorOperational,
		Name:        "Tasa de accidentes",
		Goal:        "< 1%",
		Formula:     "accidentes / horas * 100",
		Timestamp:   1717243200001,
	}
	require.NoError(t, records.Add(ctx, rec))
	require.NoError(t, indicators.Add(ctx, ind))

	reloadedRecords := newRecordStore(p)
	reloadedRecords.Load(ctx)
	reloadedIndicators := New[domain.IndicatorRecord]("saam_indicators", p, nil)
	reloadedIndicators.Load(ctx)

	assert.Equal(t, []domain.DofaRecord{rec}, reloadedRecords.List())
	assert.Equal(t, []domain.IndicatorRecord{ind}, reloadedIndicators.List())
}
