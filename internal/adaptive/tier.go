// Package adaptive holds the pure decision logic of the tutor: query
// normalization, grade buckets, difficulty tiers and the prompt strategy
// that follows from them. Nothing in here performs I/O.
package adaptive

import (
	"errors"
	"fmt"
)

// Tier is a teaching-difficulty level.
type Tier string

const (
	TierFoundational Tier = "foundational"
	TierStandard     Tier = "standard"
	TierAdvanced     Tier = "advanced"
)

var tierOrder = []Tier{TierFoundational, TierStandard, TierAdvanced}

// ParseTier reports whether s names a known tier.
func ParseTier(s string) (Tier, bool) {
	for _, t := range tierOrder {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

func (t Tier) rank() int {
	for i, o := range tierOrder {
		if o == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is one of the three tiers.
func (t Tier) Valid() bool { return t.rank() >= 0 }

// GradeBucket groups grades that share a teaching style.
type GradeBucket string

const (
	BucketPrimary   GradeBucket = "5-6"
	BucketMiddle    GradeBucket = "7-8"
	BucketSecondary GradeBucket = "9-10"
)

const (
	MinGrade = 5
	MaxGrade = 10
)

var ErrGradeOutOfRange = errors.New("grade must be between 5 and 10")

// ValidGrade reports whether grade is a supported class.
func ValidGrade(grade int) bool {
	return grade >= MinGrade && grade <= MaxGrade
}

// BucketForGrade maps a class number to its grade bucket.
func BucketForGrade(grade int) (GradeBucket, error) {
	switch {
	case grade == 5 || grade == 6:
		return BucketPrimary, nil
	case grade == 7 || grade == 8:
		return BucketMiddle, nil
	case grade == 9 || grade == 10:
		return BucketSecondary, nil
	}
	return "", fmt.Errorf("%w: got %d", ErrGradeOutOfRange, grade)
}

// ParseBucket reports whether s names a known bucket.
func ParseBucket(s string) (GradeBucket, bool) {
	switch GradeBucket(s) {
	case BucketPrimary, BucketMiddle, BucketSecondary:
		return GradeBucket(s), true
	}
	return "", false
}

// Bounds is the tier range a grade bucket may occupy.
type Bounds struct {
	Floor   Tier
	Ceiling Tier
}

func (b Bounds) valid() bool {
	return b.Floor.Valid() && b.Ceiling.Valid() && b.Floor.rank() <= b.Ceiling.rank()
}

// clamp pulls t into [Floor, Ceiling].
func (b Bounds) clamp(t Tier) Tier {
	switch {
	case t.rank() < b.Floor.rank():
		return b.Floor
	case t.rank() > b.Ceiling.rank():
		return b.Ceiling
	}
	return t
}

// DefaultBounds keeps younger classes away from the advanced tier and
// classes 9-10 away from the foundational one.
func DefaultBounds() map[GradeBucket]Bounds {
	return map[GradeBucket]Bounds{
		BucketPrimary:   {Floor: TierFoundational, Ceiling: TierStandard},
		BucketMiddle:    {Floor: TierFoundational, Ceiling: TierAdvanced},
		BucketSecondary: {Floor: TierStandard, Ceiling: TierAdvanced},
	}
}
