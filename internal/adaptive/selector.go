package adaptive

// Thresholds configure the hysteresis of the tier state machine.
type Thresholds struct {
	// StepDownRatio: a struggle ratio strictly above this moves one tier down.
	StepDownRatio float64
	// StepUpRatio: a struggle ratio strictly below this allows a step up.
	StepUpRatio float64
	// MinSuccessesForStepUp counts successes since the last tier change.
	MinSuccessesForStepUp int64
	// MinQueriesBetweenChanges is the cooldown, in completed queries, after a change.
	MinQueriesBetweenChanges int64
}

// DefaultThresholds returns 0.4 / 0.1 / 5 with a cooldown of 3 queries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StepDownRatio:            0.4,
		StepUpRatio:              0.1,
		MinSuccessesForStepUp:    5,
		MinQueriesBetweenChanges: 3,
	}
}

// Progress is the slice of a student's counters the selector looks at.
type Progress struct {
	Tier                   Tier
	TotalQueries           int64
	SuccessfulInteractions int64
	StruggleCount          int64
	SuccessesSinceChange   int64
	QueriesSinceChange     int64
}

// Decision is the outcome of one selector evaluation.
type Decision struct {
	From          Tier
	To            Tier
	Changed       bool
	StruggleRatio float64
	Reason        string
}

// Decision reasons.
const (
	ReasonStepDown = "struggle_ratio_above_threshold"
	ReasonStepUp   = "consistent_success"
	ReasonBounds   = "outside_grade_bounds"
	ReasonWarmup   = "insufficient_data"
	ReasonCooldown = "cooldown"
)

// Selector maps grade bucket and progress counters to a tier.
type Selector struct {
	thresholds Thresholds
	bounds     map[GradeBucket]Bounds
}

// NewSelector builds a selector. Buckets missing from bounds, or with an
// inverted range, fall back to DefaultBounds.
func NewSelector(t Thresholds, bounds map[GradeBucket]Bounds) *Selector {
	merged := DefaultBounds()
	for b, v := range bounds {
		if _, ok := merged[b]; ok && v.valid() {
			merged[b] = v
		}
	}
	return &Selector{thresholds: t, bounds: merged}
}

// Bounds returns the tier range for a bucket.
func (s *Selector) Bounds(bucket GradeBucket) Bounds {
	if b, ok := s.bounds[bucket]; ok {
		return b
	}
	return Bounds{Floor: TierFoundational, Ceiling: TierAdvanced}
}

// Initial is the tier of a student without history.
func (s *Selector) Initial(bucket GradeBucket) Tier {
	return s.Bounds(bucket).clamp(TierStandard)
}

// Current returns the tier to teach at right now: the persisted tier kept
// inside the bucket's bounds, or Initial when nothing valid is persisted.
func (s *Selector) Current(bucket GradeBucket, p Progress) Tier {
	if !p.Tier.Valid() || p.TotalQueries == 0 {
		return s.Initial(bucket)
	}
	return s.Bounds(bucket).clamp(p.Tier)
}

// StruggleRatio is struggle_count / max(total_queries, 1), capped at 1.
func StruggleRatio(p Progress) float64 {
	total := p.TotalQueries
	if total < 1 {
		total = 1
	}
	r := float64(p.StruggleCount) / float64(total)
	if r > 1 {
		r = 1
	}
	if r < 0 {
		r = 0
	}
	return r
}

// Next evaluates the state machine once. It never moves more than one tier.
func (s *Selector) Next(bucket GradeBucket, p Progress) Decision {
	ratio := StruggleRatio(p)
	cur := s.Current(bucket, p)
	d := Decision{From: p.Tier, To: cur, StruggleRatio: ratio}

	// A persisted tier that is missing or outside the bounds is corrected
	// first; no other move happens in the same evaluation.
	if cur != p.Tier {
		d.Changed = true
		d.Reason = ReasonBounds
		if p.TotalQueries == 0 {
			d.Reason = ReasonWarmup
		}
		return d
	}

	if p.TotalQueries <= 1 {
		d.Reason = ReasonWarmup
		return d
	}
	if p.QueriesSinceChange < s.thresholds.MinQueriesBetweenChanges {
		d.Reason = ReasonCooldown
		return d
	}

	b := s.Bounds(bucket)
	switch {
	case ratio > s.thresholds.StepDownRatio && cur != b.Floor:
		d.To = tierOrder[cur.rank()-1]
		d.Changed = true
		d.Reason = ReasonStepDown
	case ratio < s.thresholds.StepUpRatio &&
		p.SuccessesSinceChange >= s.thresholds.MinSuccessesForStepUp &&
		cur != b.Ceiling:
		d.To = tierOrder[cur.rank()+1]
		d.Changed = true
		d.Reason = ReasonStepUp
	}
	return d
}
