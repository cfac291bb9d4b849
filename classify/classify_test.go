package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/metadata"
)

func TestClassifyFavorsSelfTransition(t *testing.T) {
	got := Classify(5, 48, metadata.ClassCold)
	require.Equal(t, metadata.ClassCold, got, "medium frequency, no recency bonus, should stay cold")
}

func TestClassifyVeryHighFrequencyGoesHot(t *testing.T) {
	got := Classify(100, 48, metadata.ClassCold)
	require.Equal(t, metadata.ClassHot, got)
}

func TestClassifyRecentAccessBoostsHot(t *testing.T) {
	got := Classify(100, 0.5, metadata.ClassHot)
	require.Equal(t, metadata.ClassHot, got)
}

func TestRecommendedPolicyByClassification(t *testing.T) {
	require.True(t, RecommendedPolicy(metadata.ClassHot).Equal(codec.Replication(3)))
	require.True(t, RecommendedPolicy(metadata.ClassWarm).Equal(codec.Replication(3)))
	require.True(t, RecommendedPolicy(metadata.ClassCold).Equal(codec.ErasureCoding(4, 2)))
}

func TestFrequencyPerDayFloorsAgeAtOneDay(t *testing.T) {
	now := time.Now()
	stats := metadata.AccessStats{ReadCount: 20, CreatedAt: now.Add(-time.Hour)}
	require.InDelta(t, 20.0, FrequencyPerDay(stats, now), 0.001)
}

func TestRecencyHoursUsesMoreRecentOfReadWrite(t *testing.T) {
	now := time.Now()
	stats := metadata.AccessStats{
		LastRead:  now.Add(-10 * time.Hour),
		LastWrite: now.Add(-2 * time.Hour),
	}
	require.InDelta(t, 2.0, RecencyHours(stats, now), 0.01)
}

func TestRecencyHoursInfiniteWhenNeverAccessed(t *testing.T) {
	require.True(t, RecencyHours(metadata.AccessStats{}, time.Now()) > 1e9)
}

func TestCachePutGetInvalidate(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)

	_, ok := c.Get("a")
	require.False(t, ok)

	c.Put("a", metadata.AccessStats{ReadCount: 1})
	stats, ok := c.Get("a")
	require.True(t, ok)
	require.EqualValues(t, 1, stats.ReadCount)

	c.Invalidate("a")
	_, ok = c.Get("a")
	require.False(t, ok)
}

func TestAdvanceUnsetClassificationWithNoAccessSettlesCold(t *testing.T) {
	now := time.Now()
	stats := metadata.AccessStats{CreatedAt: now.Add(-48 * time.Hour)}
	got := Advance(stats, now)
	require.Equal(t, metadata.ClassCold, got, "no access history at all should settle toward cold")
}
