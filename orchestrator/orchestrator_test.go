package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amadeus-ai/nexuskit/fallback"
	"github.com/amadeus-ai/nexuskit/storage"
)

// fakeStore records inserts and can fail the first N calls.
type fakeStore struct {
	mu       sync.Mutex
	inserted []storage.MetadataRecord
	failures int
	calls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) InsertMetadata(ctx context.Context, record storage.MetadataRecord) error {
	return s.InsertMetadataBatch(ctx, []storage.MetadataRecord{record})
}

func (s *fakeStore) InsertMetadataBatch(_ context.Context, records []storage.MetadataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("storage unavailable")
	}
	s.inserted = append(s.inserted, records...)
	return nil
}

func (s *fakeStore) GetMetadata(context.Context, string) ([]storage.MetadataRecord, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) records() []storage.MetadataRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.MetadataRecord, len(s.inserted))
	copy(out, s.inserted)
	return out
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fastFallback keeps retry sleeps out of test runtime.
func fastFallback() Option {
	return WithFallbackOptions(
		fallback.WithInitialDelay(time.Millisecond),
		fallback.WithMaxRetries(2),
	)
}

func testPattern(campaign, category string, score float64) Pattern {
	return Pattern{CampaignID: campaign, Category: category, Score: score}
}

func TestMonitorPersistsNewPattern(t *testing.T) {
	store := newFakeStore()
	campaigns := NewCampaignManager()
	o := New(store, campaigns, fastFallback())

	_, err := o.Monitor(context.Background(), []Pattern{testPattern("recon", "beacon", 0.9)})
	require.NoError(t, err)

	records := store.records()
	require.Len(t, records, 1)
	assert.Equal(t, "pattern", records[0].EntityType)
	assert.Equal(t, "beacon", records[0].Category)
	assert.Equal(t, "recon", records[0].EntityID)
	assert.Equal(t, 0.9, records[0].Metadata["score"])
	assert.Len(t, o.KnownPatterns(), 1)
}

func TestMonitorDeduplicatesByValue(t *testing.T) {
	store := newFakeStore()
	o := New(store, NewCampaignManager(), fastFallback())

	p := testPattern("recon", "beacon", 0.5)
	duplicate := testPattern("recon", "beacon", 0.5)

	_, err := o.Monitor(context.Background(), []Pattern{p, duplicate})
	require.NoError(t, err)

	// One persistence call and one KPI sample despite two inputs.
	assert.Len(t, store.records(), 1)
	assert.Len(t, o.KnownPatterns(), 1)

	got, ok, err := o.KPIs().Aggregate("recon.beacon", "sum")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.5, got)
}

func TestMonitorDistinguishesStructurallyDifferentRecords(t *testing.T) {
	store := newFakeStore()
	o := New(store, NewCampaignManager(), fastFallback())

	a := testPattern("recon", "beacon", 0.5)
	b := testPattern("recon", "beacon", 0.5)
	b.Attributes = map[string]string{"host": "edge-1"}

	_, err := o.Monitor(context.Background(), []Pattern{a, b})
	require.NoError(t, err)
	assert.Len(t, o.KnownPatterns(), 2)
	assert.Len(t, store.records(), 2)
}

func TestMonitorRetriesTransientPersistFailure(t *testing.T) {
	store := newFakeStore()
	store.failures = 2
	o := New(store, NewCampaignManager(), fastFallback())

	_, err := o.Monitor(context.Background(), []Pattern{testPattern("recon", "beacon", 1)})
	require.NoError(t, err)

	// Two failed attempts then a successful third.
	assert.Equal(t, 3, store.callCount())
	assert.Len(t, store.records(), 1)
}

func TestMonitorPersistFailureHaltsOnlyThatRecord(t *testing.T) {
	store := newFakeStore()
	store.failures = 100
	o := New(store, NewCampaignManager(), fastFallback())

	bad := testPattern("recon", "beacon", 1)
	_, err := o.Monitor(context.Background(), []Pattern{bad})
	require.Error(t, err)

	// The record was cached but never counted.
	assert.Len(t, o.KnownPatterns(), 1)
	_, ok, kerr := o.KPIs().Aggregate("recon.beacon", "sum")
	require.NoError(t, kerr)
	assert.False(t, ok)

	// A later batch still processes fresh records.
	store.failures = 0
	store.calls = 0
	_, err = o.Monitor(context.Background(), []Pattern{testPattern("recon", "exfil", 1)})
	require.NoError(t, err)
	assert.Len(t, store.records(), 1)
}

func TestAnomalyPersistsAgainAndDebitsBudget(t *testing.T) {
	store := newFakeStore()
	campaigns := NewCampaignManager()
	campaigns.Register("recon", "goal", 10)
	o := New(store, campaigns, fastFallback())

	p := testPattern("recon", "beacon", 1)
	p.Anomaly = true

	_, err := o.Monitor(context.Background(), []Pattern{p})
	require.NoError(t, err)

	// Once as a new pattern, once more by anomaly handling.
	assert.Len(t, store.records(), 2)

	c, _ := campaigns.Get("recon")
	assert.Equal(t, float64(1), c.TokensUsed)
}

func TestAnomalyOverExhaustedBudget(t *testing.T) {
	store := newFakeStore()
	campaigns := NewCampaignManager()
	campaigns.Register("recon", "goal", 0.5)
	o := New(store, campaigns, fastFallback())

	p := testPattern("recon", "beacon", 1)
	p.Anomaly = true

	_, err := o.Monitor(context.Background(), []Pattern{p})
	require.NoError(t, err)

	c, _ := campaigns.Get("recon")
	assert.Equal(t, float64(0), c.TokensUsed)
}

func TestKnownAnomalyStillOrchestrated(t *testing.T) {
	store := newFakeStore()
	campaigns := NewCampaignManager()
	campaigns.Register("recon", "goal", 10)
	o := New(store, campaigns, fastFallback())

	p := testPattern("recon", "beacon", 1)
	p.Anomaly = true

	_, err := o.Monitor(context.Background(), []Pattern{p})
	require.NoError(t, err)
	_, err = o.Monitor(context.Background(), []Pattern{p})
	require.NoError(t, err)

	// Dedup suppresses the second new-pattern persist, not the anomaly
	// handling: 2 on first pass, 1 on second.
	assert.Len(t, store.records(), 3)
	c, _ := campaigns.Get("recon")
	assert.Equal(t, float64(2), c.TokensUsed)
}

func TestOptimizePicksBestCategoryPerCampaign(t *testing.T) {
	store := newFakeStore()
	campaigns := NewCampaignManager()
	campaigns.Register("alpha", "goal", 10)
	campaigns.Register("beta", "goal", 10)
	o := New(store, campaigns, fastFallback())

	decisions, err := o.Monitor(context.Background(), []Pattern{
		testPattern("alpha", "beacon", 0.4),
		testPattern("alpha", "exfil", 0.9),
		testPattern("beta", "scan", 0.7),
		testPattern("beta", "lateral", 0.2),
	})
	require.NoError(t, err)

	require.Len(t, decisions, 2)
	assert.Equal(t, Decision{CampaignID: "alpha", Category: "exfil", Score: 0.9}, decisions[0])
	assert.Equal(t, Decision{CampaignID: "beta", Category: "scan", Score: 0.7}, decisions[1])
}

func TestOptimizeTieGoesToFirstCategory(t *testing.T) {
	store := newFakeStore()
	campaigns := NewCampaignManager()
	campaigns.Register("alpha", "goal", 10)
	o := New(store, campaigns, fastFallback())

	decisions, err := o.Monitor(context.Background(), []Pattern{
		testPattern("alpha", "beacon", 0.5),
		testPattern("alpha", "exfil", 0.5),
	})
	require.NoError(t, err)

	require.Len(t, decisions, 1)
	assert.Equal(t, "beacon", decisions[0].Category)
}

func TestOptimizeSkipsUnregisteredCampaigns(t *testing.T) {
	store := newFakeStore()
	o := New(store, NewCampaignManager(), fastFallback())

	decisions, err := o.Monitor(context.Background(), []Pattern{
		testPattern("unregistered", "beacon", 0.9),
	})
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestScorelessPatternCountsAsOne(t *testing.T) {
	store := newFakeStore()
	campaigns := NewCampaignManager()
	campaigns.Register("alpha", "goal", 10)
	o := New(store, campaigns, fastFallback())

	decisions, err := o.Monitor(context.Background(), []Pattern{
		testPattern("alpha", "beacon", 0),
	})
	require.NoError(t, err)

	require.Len(t, decisions, 1)
	assert.Equal(t, float64(1), decisions[0].Score)
}
