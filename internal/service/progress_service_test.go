package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"ncert-tutor-go/internal/adaptive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressStepDownOnStruggle(t *testing.T) {
	f := newFixture(t, time.Second)
	st := f.student(t, "strug", 7)
	f.setCounters(t, st.ID, map[string]interface{}{
		"total_queries":             10,
		"struggle_count":            5,
		"queries_since_tier_change": 10,
	})

	snap, err := f.progress.RecordQuery(context.Background(), st.ID)
	require.NoError(t, err)
	assert.True(t, snap.TierChanged)
	assert.Equal(t, string(adaptive.TierStandard), snap.PreviousTier)
	assert.Equal(t, string(adaptive.TierFoundational), snap.Tier)

	// 冷却期内不再变化
	reloaded, err := f.students.FindByID(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.QueriesSinceTierChange)
	assert.NotNil(t, reloaded.TierChangedAt)
}

func TestProgressStepUpOnSuccess(t *testing.T) {
	f := newFixture(t, time.Second)
	st := f.student(t, "ace", 8)
	f.setCounters(t, st.ID, map[string]interface{}{
		"total_queries":               10,
		"successful_interactions":     6,
		"successes_since_tier_change": 6,
		"queries_since_tier_change":   10,
	})

	snap, err := f.progress.ApplyFeedback(context.Background(), st.ID, true, false)
	require.NoError(t, err)
	assert.True(t, snap.TierChanged)
	assert.Equal(t, string(adaptive.TierAdvanced), snap.Tier)
	assert.Equal(t, int64(10), snap.TotalQueries)
	assert.Equal(t, int64(7), snap.SuccessfulInteractions)
}

func TestProgressRespectsGradeCeiling(t *testing.T) {
	f := newFixture(t, time.Second)
	st := f.student(t, "young", 5)
	f.setCounters(t, st.ID, map[string]interface{}{
		"total_queries":               10,
		"successful_interactions":     6,
		"successes_since_tier_change": 6,
		"queries_since_tier_change":   10,
	})

	snap, err := f.progress.ApplyFeedback(context.Background(), st.ID, true, false)
	require.NoError(t, err)
	assert.False(t, snap.TierChanged)
	assert.Equal(t, string(adaptive.TierStandard), snap.Tier)
}

func TestProgressUnknownStudent(t *testing.T) {
	f := newFixture(t, time.Second)
	_, err := f.progress.RecordQuery(context.Background(), 777)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, err = f.progress.Snapshot(context.Background(), 777)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestProgressUnderstoodAndSimplerCountsBoth(t *testing.T) {
	f := newFixture(t, time.Second)
	st := f.student(t, "both", 9)
	snap, err := f.progress.ApplyFeedback(context.Background(), st.ID, true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.SuccessfulInteractions)
	assert.Equal(t, int64(1), snap.StruggleCount)
	assert.Equal(t, 1.0, snap.StruggleRatio)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  = map[uint]int{}
		maxSeen int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(key uint) {
			defer wg.Done()
			unlock := km.Lock(key)
			mu.Lock()
			inside[key]++
			if inside[key] > maxSeen {
				maxSeen = inside[key]
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside[key]--
			mu.Unlock()
			unlock()
		}(uint(i % 3))
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, km.size())
}
