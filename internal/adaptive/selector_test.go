package adaptive

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestSelector() *Selector {
	return NewSelector(DefaultThresholds(), nil)
}

func TestBucketForGrade(t *testing.T) {
	cases := map[int]GradeBucket{5: BucketPrimary, 6: BucketPrimary, 7: BucketMiddle, 8: BucketMiddle, 9: BucketSecondary, 10: BucketSecondary}
	for grade, want := range cases {
		got, err := BucketForGrade(grade)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, grade := range []int{0, 4, 11, -1} {
		_, err := BucketForGrade(grade)
		assert.ErrorIs(t, err, ErrGradeOutOfRange)
	}
}

func TestFirstQueryDefaultsToStandard(t *testing.T) {
	s := newTestSelector()
	for _, b := range []GradeBucket{BucketPrimary, BucketMiddle, BucketSecondary} {
		assert.Equal(t, TierStandard, s.Current(b, Progress{}))
	}

	d := s.Next(BucketMiddle, Progress{Tier: TierStandard, TotalQueries: 1, StruggleCount: 1, QueriesSinceChange: 1})
	assert.False(t, d.Changed)
	assert.Equal(t, ReasonWarmup, d.Reason)
}

func TestStepDownOnHighStruggleRatio(t *testing.T) {
	s := newTestSelector()
	p := Progress{Tier: TierStandard, TotalQueries: 10, StruggleCount: 5, QueriesSinceChange: 10}

	d := s.Next(BucketMiddle, p)
	assert.True(t, d.Changed)
	assert.Equal(t, TierFoundational, d.To)
	assert.Equal(t, ReasonStepDown, d.Reason)
	assert.InDelta(t, 0.5, d.StruggleRatio, 1e-9)

	// already at the floor
	p.Tier = TierFoundational
	d = s.Next(BucketMiddle, p)
	assert.False(t, d.Changed)
	assert.Equal(t, TierFoundational, d.To)

	// 9-10 never goes below standard
	p.Tier = TierStandard
	d = s.Next(BucketSecondary, p)
	assert.False(t, d.Changed)
}

func TestStepUpOnConsistentSuccess(t *testing.T) {
	s := newTestSelector()
	p := Progress{Tier: TierStandard, TotalQueries: 10, SuccessfulInteractions: 6, SuccessesSinceChange: 6, QueriesSinceChange: 10}

	d := s.Next(BucketMiddle, p)
	assert.True(t, d.Changed)
	assert.Equal(t, TierAdvanced, d.To)
	assert.Equal(t, ReasonStepUp, d.Reason)

	// 5-6 tops out at standard
	d = s.Next(BucketPrimary, p)
	assert.False(t, d.Changed)

	// not enough successes since the last change
	p.SuccessesSinceChange = 4
	d = s.Next(BucketMiddle, p)
	assert.False(t, d.Changed)
}

func TestCooldownAfterChange(t *testing.T) {
	s := newTestSelector()
	p := Progress{Tier: TierStandard, TotalQueries: 10, StruggleCount: 8, QueriesSinceChange: 2}
	d := s.Next(BucketMiddle, p)
	assert.False(t, d.Changed)
	assert.Equal(t, ReasonCooldown, d.Reason)
}

func TestOutOfBoundsTierIsCorrected(t *testing.T) {
	s := newTestSelector()
	d := s.Next(BucketPrimary, Progress{Tier: TierAdvanced, TotalQueries: 20, QueriesSinceChange: 20})
	assert.True(t, d.Changed)
	assert.Equal(t, TierStandard, d.To)
	assert.Equal(t, ReasonBounds, d.Reason)
}

func TestConfiguredBounds(t *testing.T) {
	s := NewSelector(DefaultThresholds(), map[GradeBucket]Bounds{
		BucketPrimary:   {Floor: TierFoundational, Ceiling: TierAdvanced},
		BucketSecondary: {Floor: TierAdvanced, Ceiling: TierFoundational}, // inverted, ignored
	})
	assert.Equal(t, TierAdvanced, s.Bounds(BucketPrimary).Ceiling)
	assert.Equal(t, TierStandard, s.Bounds(BucketSecondary).Floor)
}

// Exhaustive walk over small counter spaces: the selector stays inside the
// three tiers and the bucket bounds, and never moves more than one step.
func TestNextStaysWithinBounds(t *testing.T) {
	s := newTestSelector()
	for _, b := range []GradeBucket{BucketPrimary, BucketMiddle, BucketSecondary} {
		bounds := s.Bounds(b)
		for _, tier := range tierOrder {
			for total := int64(0); total <= 12; total++ {
				for struggles := int64(0); struggles <= total; struggles++ {
					for since := int64(0); since <= 6; since++ {
						p := Progress{
							Tier:                   tier,
							TotalQueries:           total,
							StruggleCount:          struggles,
							SuccessfulInteractions: total - struggles,
							SuccessesSinceChange:   since,
							QueriesSinceChange:     since,
						}
						name := fmt.Sprintf("%s/%s/%d/%d/%d", b, tier, total, struggles, since)
						d := s.Next(b, p)
						assert.True(t, d.To.Valid(), name)
						assert.GreaterOrEqual(t, d.To.rank(), bounds.Floor.rank(), name)
						assert.LessOrEqual(t, d.To.rank(), bounds.Ceiling.rank(), name)

						cur := s.Current(b, p)
						diff := d.To.rank() - cur.rank()
						assert.True(t, diff >= -1 && diff <= 1, name)
						if total <= 1 {
							assert.Equal(t, cur, d.To, name)
						}
					}
				}
			}
		}
	}
}

func TestStruggleRatio(t *testing.T) {
	assert.Equal(t, 0.0, StruggleRatio(Progress{}))
	assert.Equal(t, 1.0, StruggleRatio(Progress{StruggleCount: 3}))
	assert.Equal(t, 1.0, StruggleRatio(Progress{TotalQueries: 2, StruggleCount: 5}))
	assert.InDelta(t, 0.25, StruggleRatio(Progress{TotalQueries: 8, StruggleCount: 2}), 1e-9)
}
