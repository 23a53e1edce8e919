package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/internal/testutil"
	"ncert-tutor-go/pkg/llm"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubRetriever struct {
	mu       sync.Mutex
	passages []model.Passage
	err      error
	calls    int
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string, _ adaptive.GradeBucket, _ int) ([]model.Passage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.passages, r.err
}

type fixture struct {
	db            *gorm.DB
	students      repository.StudentRepository
	cacheRepo     repository.QueryCacheRepository
	convRepo      repository.ConversationRepository
	analyticsRepo repository.AnalyticsRepository
	cache         CacheService
	progress      ProgressService
	conversations ConversationService
	retriever     *stubRetriever
	primary       *llm.MockProvider
	fallback      *llm.MockProvider
	tutor         TutorService
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)

	f := &fixture{
		db:            db,
		students:      repository.NewStudentRepository(db),
		cacheRepo:     repository.NewQueryCacheRepository(db),
		convRepo:      repository.NewConversationRepository(db),
		analyticsRepo: repository.NewAnalyticsRepository(db),
		retriever: &stubRetriever{passages: []model.Passage{
			{Text: "Plants make food from sunlight.", Source: "hesc107.pdf (Chapter 7)", Relevance: 0.9},
		}},
		primary:  llm.NewMockProvider().WithModel("primary-model"),
		fallback: llm.NewMockProvider().WithModel("fallback-model"),
	}
	selector := adaptive.NewSelector(adaptive.DefaultThresholds(), adaptive.DefaultBounds())
	f.cache = NewCacheService(f.cacheRepo, 168*time.Hour)
	f.progress = NewProgressService(f.students, selector)
	f.conversations = NewConversationService(f.convRepo, repository.NewSessionStore(rdb, 30*time.Minute, 6), 30*time.Minute)

	synth := NewChatService(f.retriever, nil, f.primary, f.fallback, SynthesizerOptions{MinRelevance: 0.3, Timeout: timeout})
	f.tutor = NewTutorService(TutorDeps{
		Students:      f.students,
		Conversations: f.conversations,
		Cache:         f.cache,
		Progress:      f.progress,
		Synthesizer:   synth,
		Analytics:     NewAnalyticsService(f.analyticsRepo),
		Resources:     NewResourceService(repository.NewResourceRepository(db)),
		Policy:        adaptive.DefaultResourcePolicy(),
		Timeout:       timeout,
	})
	return f
}

func (f *fixture) student(t *testing.T, handle string, grade int) *model.Student {
	t.Helper()
	bucket, err := adaptive.BucketForGrade(grade)
	require.NoError(t, err)
	st := &model.Student{
		Handle:                 handle,
		Name:                   handle,
		Grade:                  grade,
		DifficultyTier:         string(adaptive.NewSelector(adaptive.DefaultThresholds(), nil).Initial(bucket)),
		PreferredLearningStyle: model.LearningStyleMixed,
	}
	require.NoError(t, f.students.Create(context.Background(), st))
	return st
}

// setCounters writes progress counters directly, bypassing the state machine.
func (f *fixture) setCounters(t *testing.T, id uint, values map[string]interface{}) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.Student{}).Where("id = ?", id).Updates(values).Error)
}
