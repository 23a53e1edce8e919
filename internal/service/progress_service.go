package service

import (
	"context"
	"errors"
	"fmt"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/log"

	"gorm.io/gorm"
)

// ProgressSnapshot 是学生进度的只读视图。
type ProgressSnapshot struct {
	StudentID              uint    `json:"studentId"`
	Grade                  int     `json:"grade"`
	GradeBucket            string  `json:"gradeBucket"`
	Tier                   string  `json:"difficultyTier"`
	TotalQueries           int64   `json:"totalQueries"`
	SuccessfulInteractions int64   `json:"successfulInteractions"`
	StruggleCount          int64   `json:"struggleCount"`
	StruggleRatio          float64 `json:"struggleRatio"`
	TierChanged            bool    `json:"tierChanged"`
	PreviousTier           string  `json:"previousTier,omitempty"`
}

// ProgressService 串行化同一学生的计数器更新，并驱动难度层级状态机。
type ProgressService interface {
	// RecordQuery 记录一次完成的提问（命中缓存也算）。
	RecordQuery(ctx context.Context, studentID uint) (*ProgressSnapshot, error)
	// ApplyFeedback 不增加提问数，只累加成功或吃力计数。
	ApplyFeedback(ctx context.Context, studentID uint, understood, neededSimpler bool) (*ProgressSnapshot, error)
	Snapshot(ctx context.Context, studentID uint) (*ProgressSnapshot, error)
	// CurrentTier 返回此刻应使用的教学层级。
	CurrentTier(student *model.Student) adaptive.Tier
}

type progressService struct {
	students repository.StudentRepository
	selector *adaptive.Selector
	locks    *keyedMutex
}

// NewProgressService 创建 ProgressService。
func NewProgressService(students repository.StudentRepository, selector *adaptive.Selector) ProgressService {
	return &progressService{students: students, selector: selector, locks: newKeyedMutex()}
}

func progressOf(s *model.Student) adaptive.Progress {
	return adaptive.Progress{
		Tier:                   adaptive.Tier(s.DifficultyTier),
		TotalQueries:           s.TotalQueries,
		SuccessfulInteractions: s.SuccessfulInteractions,
		StruggleCount:          s.StruggleCount,
		SuccessesSinceChange:   s.SuccessesSinceTierChange,
		QueriesSinceChange:     s.QueriesSinceTierChange,
	}
}

func (s *progressService) snapshot(st *model.Student) *ProgressSnapshot {
	bucket, _ := adaptive.BucketForGrade(st.Grade)
	return &ProgressSnapshot{
		StudentID:              st.ID,
		Grade:                  st.Grade,
		GradeBucket:            string(bucket),
		Tier:                   string(s.CurrentTier(st)),
		TotalQueries:           st.TotalQueries,
		SuccessfulInteractions: st.SuccessfulInteractions,
		StruggleCount:          st.StruggleCount,
		StruggleRatio:          adaptive.StruggleRatio(progressOf(st)),
	}
}

func (s *progressService) CurrentTier(st *model.Student) adaptive.Tier {
	bucket, err := adaptive.BucketForGrade(st.Grade)
	if err != nil {
		return adaptive.TierStandard
	}
	return s.selector.Current(bucket, progressOf(st))
}

func (s *progressService) RecordQuery(ctx context.Context, studentID uint) (*ProgressSnapshot, error) {
	return s.apply(ctx, studentID, repository.ProgressDelta{Queries: 1})
}

func (s *progressService) ApplyFeedback(ctx context.Context, studentID uint, understood, neededSimpler bool) (*ProgressSnapshot, error) {
	var d repository.ProgressDelta
	if understood {
		d.Successes = 1
	}
	if !understood || neededSimpler {
		d.Struggles = 1
	}
	return s.apply(ctx, studentID, d)
}

func (s *progressService) apply(ctx context.Context, studentID uint, delta repository.ProgressDelta) (*ProgressSnapshot, error) {
	unlock := s.locks.Lock(studentID)
	defer unlock()

	var decision adaptive.Decision
	st, err := s.students.ApplyProgress(ctx, studentID, delta, func(st *model.Student) (string, bool) {
		bucket, err := adaptive.BucketForGrade(st.Grade)
		if err != nil {
			return st.DifficultyTier, false
		}
		decision = s.selector.Next(bucket, progressOf(st))
		return string(decision.To), decision.Changed
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("更新学习进度失败: %w", err)
	}

	snap := s.snapshot(st)
	if decision.Changed {
		snap.TierChanged = true
		snap.PreviousTier = string(decision.From)
		log.Infow("难度层级变更",
			"student_id", studentID,
			"from", decision.From,
			"to", decision.To,
			"reason", decision.Reason,
			"struggle_ratio", decision.StruggleRatio)
	}
	return snap, nil
}

func (s *progressService) Snapshot(ctx context.Context, studentID uint) (*ProgressSnapshot, error) {
	st, err := s.students.FindByID(ctx, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.snapshot(st), nil
}
