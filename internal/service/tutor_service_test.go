package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskFirstQueryGrade7(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "Photosynthesis is how green plants make food using sunlight."})
	st := f.student(t, "asha", 7)
	ctx := context.Background()

	res, err := f.tutor.Ask(ctx, st.ID, AskRequest{Query: "What is photosynthesis?"})
	require.NoError(t, err)

	assert.False(t, res.FromCache)
	assert.Equal(t, string(adaptive.TierStandard), res.Tier)
	assert.Equal(t, int64(1), res.HitCount)
	assert.Equal(t, "primary-model", res.ModelUsed)
	assert.Contains(t, res.Answer, "green plants")
	assert.Equal(t, []string{"hesc107.pdf (Chapter 7)"}, res.Sources)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 1, f.primary.CallCount())

	// 缓存条目与计数器
	n, err := f.cacheRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	entry, err := f.cacheRepo.FindByKey(ctx, adaptive.CacheKey(adaptive.BucketMiddle, "what is photosynthesis?"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.HitCount)

	reloaded, err := f.students.FindByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.TotalQueries)
	assert.Equal(t, int64(1), res.Progress.TotalQueries)

	// 一问一答都已保存
	msgs, err := f.conversations.Messages(ctx, st.ID, res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, res.MessageID, msgs[1].ID)

	// 学习分析
	recs, err := f.analyticsRepo.ListByStudent(ctx, st.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(adaptive.SubjectScience), recs[0].Subject)
	assert.Equal(t, int64(1), recs[0].QueriesOnTopic)
}

func TestAskCacheHitIncreasesHitCount(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "An atom is the smallest unit of matter."})
	a := f.student(t, "a", 7)
	b := f.student(t, "b", 8)
	ctx := context.Background()

	first, err := f.tutor.Ask(ctx, a.ID, AskRequest{Query: "What is an atom?"})
	require.NoError(t, err)
	second, err := f.tutor.Ask(ctx, b.ID, AskRequest{Query: "  what IS   an atom? "})
	require.NoError(t, err)
	third, err := f.tutor.Ask(ctx, a.ID, AskRequest{Query: "What is an atom?", SessionID: first.SessionID})
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.True(t, third.FromCache)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Answer, third.Answer)
	assert.Less(t, first.HitCount, second.HitCount)
	assert.Less(t, second.HitCount, third.HitCount)
	assert.Equal(t, 1, f.primary.CallCount())
	assert.Equal(t, first.SessionID, third.SessionID)

	// 命中缓存也计为一次完成的提问
	snap, err := f.progress.Snapshot(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.TotalQueries)
}

func TestAskDifferentBucketsDoNotShareCache(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "Force is a push or a pull."})
	ctx := context.Background()

	_, err := f.tutor.Ask(ctx, f.student(t, "young", 5).ID, AskRequest{Query: "What is force?"})
	require.NoError(t, err)
	res, err := f.tutor.Ask(ctx, f.student(t, "older", 9).ID, AskRequest{Query: "What is force?"})
	require.NoError(t, err)

	assert.False(t, res.FromCache)
	assert.Equal(t, 2, f.primary.CallCount())
}

func TestAskConcurrentMissesSynthesizeOnce(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	release := make(chan struct{})
	f.primary.Always(llm.MockResponse{Text: "A cell is the basic unit of life.", Wait: release})
	ctx := context.Background()

	const n = 8
	ids := make([]uint, n)
	for i := range ids {
		ids[i] = f.student(t, fmt.Sprintf("s%d", i), 7).ID
	}

	var wg sync.WaitGroup
	answers := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.tutor.Ask(ctx, ids[i], AskRequest{Query: "What is a cell?"})
			errs[i] = err
			if err == nil {
				answers[i] = res.Answer
			}
		}(i)
	}
	time.Sleep(200 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "A cell is the basic unit of life.", answers[i])
	}
	count, err := f.cacheRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, f.primary.CallCount())
}

func TestAskRejectsEmptyQueryAndUnknownStudent(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	st := f.student(t, "x", 6)

	_, err := f.tutor.Ask(ctx, st.ID, AskRequest{Query: "   \n\t "})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = f.tutor.Ask(ctx, 9999, AskRequest{Query: "What is soil?"})
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Equal(t, 0, f.primary.CallCount())
}

func TestAskFallsBackToSecondModel(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Err: errors.New("connection refused")})
	f.fallback.Always(llm.MockResponse{Text: "Rivers flow from mountains to the sea."})
	st := f.student(t, "y", 6)

	res, err := f.tutor.Ask(context.Background(), st.ID, AskRequest{Query: "Where do rivers flow?"})
	require.NoError(t, err)
	assert.Equal(t, "fallback-model", res.ModelUsed)
	assert.Equal(t, 1, f.primary.CallCount())
	assert.Equal(t, 1, f.fallback.CallCount())
}

func TestAskSynthesisFailures(t *testing.T) {
	t.Run("both models down", func(t *testing.T) {
		f := newFixture(t, 5*time.Second)
		f.primary.Always(llm.MockResponse{Err: errors.New("boom")})
		st := f.student(t, "z", 8)

		_, err := f.tutor.Ask(context.Background(), st.ID, AskRequest{Query: "What is democracy?"})
		assert.ErrorIs(t, err, ErrSynthesisUnavailable)

		// 失败不落库、不计数
		snap, err := f.progress.Snapshot(context.Background(), st.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), snap.TotalQueries)
		count, err := f.cacheRepo.Count(context.Background())
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("empty answer", func(t *testing.T) {
		f := newFixture(t, 5*time.Second)
		f.primary.Always(llm.MockResponse{Text: "   "})
		f.fallback.Always(llm.MockResponse{Text: ""})
		st := f.student(t, "z", 8)

		_, err := f.tutor.Ask(context.Background(), st.ID, AskRequest{Query: "What is a map?"})
		assert.ErrorIs(t, err, ErrSynthesisUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFixture(t, 50*time.Millisecond)
		never := make(chan struct{})
		f.primary.Always(llm.MockResponse{Text: "late", Wait: never})
		f.fallback.Always(llm.MockResponse{Text: "also late", Wait: never})
		st := f.student(t, "z", 8)

		_, err := f.tutor.Ask(context.Background(), st.ID, AskRequest{Query: "What is energy?"})
		assert.ErrorIs(t, err, ErrSynthesisTimeout)
	})
}

type failingProgress struct {
	ProgressService
}

func (failingProgress) RecordQuery(context.Context, uint) (*ProgressSnapshot, error) {
	return nil, errors.New("progress store unavailable")
}

func TestAskProgressFailureSavesNoMessages(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "Magnets attract iron."})
	st := f.student(t, "p", 6)
	ctx := context.Background()

	tutor := NewTutorService(TutorDeps{
		Students:      f.students,
		Conversations: f.conversations,
		Cache:         f.cache,
		Progress:      failingProgress{f.progress},
		Synthesizer:   NewChatService(f.retriever, nil, f.primary, nil, SynthesizerOptions{Timeout: 5 * time.Second}),
		Policy:        adaptive.DefaultResourcePolicy(),
		Timeout:       5 * time.Second,
	})
	_, err := tutor.Ask(ctx, st.ID, AskRequest{Query: "What do magnets attract?"})
	require.Error(t, err)

	var n int64
	require.NoError(t, f.db.Model(&model.Message{}).Count(&n).Error)
	assert.Zero(t, n)

	// 重试成功后只保存一组问答
	res, err := f.tutor.Ask(ctx, st.ID, AskRequest{Query: "What do magnets attract?"})
	require.NoError(t, err)
	msgs, err := f.conversations.Messages(ctx, st.ID, res.SessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestAskCallerGivesUpButSynthesisCompletes(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	release := make(chan struct{})
	f.primary.Always(llm.MockResponse{Text: "Volume is the space an object occupies.", Wait: release})
	st := f.student(t, "impatient", 9)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.tutor.Ask(ctx, st.ID, AskRequest{Query: "What is volume?"})
	assert.ErrorIs(t, err, ErrSynthesisTimeout)

	close(release)
	assert.Eventually(t, func() bool {
		n, err := f.cacheRepo.Count(context.Background())
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAskWeakRetrievalRecommendsResources(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.retriever.passages = []model.Passage{
		{Text: "Clouds form when vapour cools.", Source: "a.pdf", Relevance: 0.35},
		{Text: "unrelated", Source: "b.pdf", Relevance: 0.2},
		{Text: "unrelated", Source: "c.pdf", Relevance: 0.2},
	}
	f.primary.Always(llm.MockResponse{Text: "Water evaporates, condenses and falls as rain."})
	st := f.student(t, "w", 10)

	res, err := f.tutor.Ask(context.Background(), st.ID, AskRequest{Query: "Explain the water cycle"})
	require.NoError(t, err)
	// 平均相关度 0.25 低于阈值，仍保留全部段落
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, res.Sources)
	require.Len(t, f.primary.Calls, 1)
	assert.Contains(t, f.primary.Calls[0].Messages[0].Content, "Clouds form")
	assert.NotEmpty(t, res.Resources)
}

func TestAskStrongRetrievalSkipsResources(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "Plants make food using sunlight."})
	st := f.student(t, "s", 7)

	res, err := f.tutor.Ask(context.Background(), st.ID, AskRequest{Query: "What is photosynthesis?"})
	require.NoError(t, err)
	assert.Empty(t, res.Resources)
}

func TestAskExamFormattingForSeniorClasses(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "To solve the equation, subtract 3 from both sides."})
	st := f.student(t, "senior", 10)

	res, err := f.tutor.Ask(context.Background(), st.ID, AskRequest{Query: "Solve the equation x + 3 = 5"})
	require.NoError(t, err)
	assert.Equal(t, string(adaptive.SubjectMathematics), res.Subject)
	assert.NotEqual(t, "To solve the equation, subtract 3 from both sides.", res.Answer)

	// 缓存里保存的是未格式化的答案
	entry, err := f.cacheRepo.FindByKey(context.Background(), adaptive.CacheKey(adaptive.BucketSecondary, "solve the equation x + 3 = 5"))
	require.NoError(t, err)
	assert.Equal(t, "To solve the equation, subtract 3 from both sides.", entry.Answer)
}

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(_ context.Context, _ string, _ io.Reader) (string, error) {
	return s.text, s.err
}

func TestAskVoice(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "A molecule is a group of atoms."})
	st := f.student(t, "voice", 8)
	ctx := context.Background()

	_, err := f.tutor.AskVoice(ctx, st.ID, "q.webm", strings.NewReader("audio"), AskRequest{})
	assert.ErrorIs(t, err, ErrTranscriptionFailed)

	tutor := f.tutor.(*tutorService)
	tutor.Transcriber = stubTranscriber{text: "  "}
	_, err = f.tutor.AskVoice(ctx, st.ID, "q.webm", strings.NewReader("audio"), AskRequest{})
	assert.ErrorIs(t, err, ErrTranscriptionFailed)

	tutor.Transcriber = stubTranscriber{err: errors.New("bad codec")}
	_, err = f.tutor.AskVoice(ctx, st.ID, "q.webm", strings.NewReader("audio"), AskRequest{})
	assert.ErrorIs(t, err, ErrTranscriptionFailed)

	tutor.Transcriber = stubTranscriber{text: "What is a molecule?"}
	res, err := f.tutor.AskVoice(ctx, st.ID, "q.webm", strings.NewReader("audio"), AskRequest{})
	require.NoError(t, err)
	assert.Equal(t, "What is a molecule?", res.Transcript)
	assert.Contains(t, res.Answer, "group of atoms")
}

func TestFeedback(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "Fractions describe parts of a whole."})
	st := f.student(t, "fb", 6)
	other := f.student(t, "other", 6)
	ctx := context.Background()

	res, err := f.tutor.Ask(ctx, st.ID, AskRequest{Query: "What is a fraction?"})
	require.NoError(t, err)

	snap, err := f.tutor.Feedback(ctx, st.ID, FeedbackRequest{MessageID: res.MessageID, Understood: false, NeededSimpler: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.StruggleCount)
	assert.Equal(t, int64(1), snap.TotalQueries, "feedback never counts as a query")

	_, err = f.tutor.Feedback(ctx, st.ID, FeedbackRequest{MessageID: 424242, Understood: true})
	assert.ErrorIs(t, err, ErrNotFound)

	// 别人的消息与用户自己的提问都视为不存在
	_, err = f.tutor.Feedback(ctx, other.ID, FeedbackRequest{MessageID: res.MessageID, Understood: true})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.tutor.Feedback(ctx, st.ID, FeedbackRequest{MessageID: res.MessageID - 1, Understood: true})
	assert.ErrorIs(t, err, ErrNotFound)

	recs, err := f.analyticsRepo.ListByStudent(ctx, st.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].NeededSimplerExplanation)
	assert.True(t, recs[0].Feedback)
	assert.False(t, recs[1].Feedback)
	// 反馈不算作一次提问
	assert.Equal(t, int64(1), recs[0].QueriesOnTopic)
	assert.Equal(t, int64(1), recs[1].QueriesOnTopic)

	_, err = f.tutor.Ask(ctx, st.ID, AskRequest{Query: "What is a fraction?", SessionID: res.SessionID})
	require.NoError(t, err)
	recs, err = f.analyticsRepo.ListByStudent(ctx, st.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.False(t, recs[0].Feedback)
	assert.Equal(t, int64(2), recs[0].QueriesOnTopic)
}

func TestConcurrentFeedbackLosesNoUpdates(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.primary.Always(llm.MockResponse{Text: "Democracy is rule by the people."})
	st := f.student(t, "busy", 8)
	ctx := context.Background()

	res, err := f.tutor.Ask(ctx, st.ID, AskRequest{Query: "What is democracy?"})
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tutor.Feedback(ctx, st.ID, FeedbackRequest{MessageID: res.MessageID, Understood: false})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := f.progress.Snapshot(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), snap.StruggleCount)
	assert.Equal(t, int64(1), snap.TotalQueries)
}
