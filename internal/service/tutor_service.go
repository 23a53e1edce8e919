package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/scraper"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// AskRequest 是一次文字提问。
type AskRequest struct {
	Query     string
	SessionID string
	// Subject 为空时按关键词推断。
	Subject   string
	WantAudio bool
}

// AskResult 是返回给学生的答案及其元数据。
type AskResult struct {
	MessageID      uint                           `json:"messageId"`
	SessionID      string                         `json:"sessionId"`
	Answer         string                         `json:"answer"`
	Subject        string                         `json:"subject"`
	Tier           string                         `json:"difficultyTier"`
	FromCache      bool                           `json:"fromCache"`
	HitCount       int64                          `json:"hitCount"`
	Sources        []string                       `json:"sources"`
	Suggestions    []string                       `json:"suggestions"`
	Resources      []model.ResourceRecommendation `json:"resources,omitempty"`
	Audio          *MediaObject                   `json:"audio,omitempty"`
	Diagram        *MediaObject                   `json:"diagram,omitempty"`
	ModelUsed      string                         `json:"modelUsed"`
	ResponseTimeMS int64                          `json:"responseTimeMs"`
	Progress       *ProgressSnapshot              `json:"progress"`
	Transcript     string                         `json:"transcript,omitempty"`
}

// FeedbackRequest 是学生对某条回答的反馈。
type FeedbackRequest struct {
	MessageID         uint
	Understood        bool
	NeededSimpler     bool
	AskedForResources bool
}

// Transcriber 把语音转成文字。
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// TutorService 编排一次提问的完整流程：规范化、缓存、分层、合成、进度与分析。
type TutorService interface {
	Ask(ctx context.Context, studentID uint, req AskRequest) (*AskResult, error)
	AskVoice(ctx context.Context, studentID uint, filename string, audio io.Reader, req AskRequest) (*AskResult, error)
	Feedback(ctx context.Context, studentID uint, req FeedbackRequest) (*ProgressSnapshot, error)
}

// TutorDeps 汇集 TutorService 的依赖。Media 与 Transcriber 可以为 nil。
type TutorDeps struct {
	Students      repository.StudentRepository
	Conversations ConversationService
	Cache         CacheService
	Progress      ProgressService
	Synthesizer   Synthesizer
	Analytics     AnalyticsService
	Resources     ResourceService
	Media         MediaService
	Transcriber   Transcriber
	Policy        adaptive.ResourcePolicy
	// Timeout 是一次合成允许的最长时间，由调用方施加。
	Timeout time.Duration
}

type tutorService struct {
	TutorDeps
	group singleflight.Group
}

// NewTutorService 创建 TutorService。
func NewTutorService(deps TutorDeps) TutorService {
	if deps.Timeout <= 0 {
		deps.Timeout = 90 * time.Second
	}
	return &tutorService{TutorDeps: deps}
}

// answer 是合成或缓存得到的、与学生无关的答案。
type answer struct {
	text      string
	sources   []string
	modelUsed string
	relevance float64
	hitCount  int64
	fromCache bool
}

func (s *tutorService) Ask(ctx context.Context, studentID uint, req AskRequest) (*AskResult, error) {
	start := time.Now()

	// 1. 规范化
	normalized, err := adaptive.Normalize(req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	query := strings.TrimSpace(req.Query)

	// 2. 学生档案与年级段
	student, err := s.Students.FindByID(ctx, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	bucket, err := adaptive.BucketForGrade(student.Grade)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	conv, err := s.Conversations.Resolve(ctx, studentID, req.SessionID)
	if err != nil {
		return nil, err
	}

	subject := adaptive.DetectSubject(query)
	if req.Subject != "" {
		subject = adaptive.ParseSubject(req.Subject)
	}
	tier := s.Progress.CurrentTier(student)

	// 3. 缓存查询，未命中时合成
	ans, err := s.lookupOrSynthesize(ctx, bucket, normalized, SynthesisRequest{
		Query:         query,
		Grade:         student.Grade,
		Bucket:        bucket,
		Tier:          tier,
		Subject:       subject,
		LearningStyle: adaptive.LearningStyle(student.PreferredLearningStyle),
	})
	if err != nil {
		return nil, err
	}

	text := adaptive.FormatExamStyle(ans.text, student.Grade, subject, adaptive.ExamMarks)
	topic := adaptive.Topic(query)

	// 4. 媒体，尽力而为
	var audio, dgm *MediaObject
	if s.Media != nil {
		if req.WantAudio {
			if audio, err = s.Media.Speak(ctx, ans.text); err != nil {
				log.Warnf("[TutorService] 语音合成失败: %v", err)
			}
		}
		if spec := adaptive.DetectDiagramNeed(query, ans.text); spec != nil {
			if dgm, err = s.Media.Diagram(ctx, *spec); err != nil {
				log.Warnf("[TutorService] 图示生成失败: %v", err)
			}
		}
	}

	// 5. 进度，失败时不保存消息
	progress, err := s.Progress.RecordQuery(ctx, studentID)
	if err != nil {
		return nil, err
	}

	// 6. 保存一问一答
	history, err := s.Conversations.History(ctx, conv.SessionID)
	if err != nil {
		log.Warnf("[TutorService] 读取近期对话失败: %v", err)
	}
	sources, _ := json.Marshal(ans.sources)
	elapsed := time.Since(start)
	userMsg := &model.Message{Role: model.RoleUser, Content: query, Subject: string(subject), Topic: topic}
	botMsg := &model.Message{
		Role:           model.RoleAssistant,
		Content:        text,
		Subject:        string(subject),
		Topic:          topic,
		Sources:        string(sources),
		ModelUsed:      ans.modelUsed,
		ResponseTimeMS: elapsed.Milliseconds(),
		FromCache:      ans.fromCache,
	}
	if audio != nil {
		botMsg.AudioObject = audio.ObjectName
	}
	if dgm != nil {
		botMsg.DiagramObject = dgm.ObjectName
	}
	if err := s.Conversations.RecordExchange(ctx, conv, userMsg, botMsg); err != nil {
		return nil, err
	}

	// 7. 资源推荐与学习分析，尽力而为
	var resources []model.ResourceRecommendation
	if s.Resources != nil && s.Policy.ShouldRecommend(query, ans.relevance, progress.StruggleCount) {
		links := scraper.Recommendations(topic, student.Grade)
		resources = s.Resources.Save(ctx, studentID, &botMsg.ID, string(subject), topic, links)
	}
	if s.Analytics != nil {
		s.Analytics.Record(ctx, &model.LearningAnalytics{
			StudentID:         studentID,
			MessageID:         &botMsg.ID,
			Subject:           string(subject),
			Topic:             topic,
			AskedForResources: len(resources) > 0,
			FollowUpQuestions: followUps(history),
			TimeSpentMinutes:  timeSpent(history, time.Now()),
			FromCache:         ans.fromCache,
		})
	}

	log.Infow("[TutorService] 回答完成",
		"student_id", studentID,
		"bucket", bucket,
		"tier", tier,
		"from_cache", ans.fromCache,
		"elapsed_ms", elapsed.Milliseconds())

	return &AskResult{
		MessageID:      botMsg.ID,
		SessionID:      conv.SessionID,
		Answer:         text,
		Subject:        string(subject),
		Tier:           string(tier),
		FromCache:      ans.fromCache,
		HitCount:       ans.hitCount,
		Sources:        ans.sources,
		Suggestions:    adaptive.SuggestNextSteps(subject),
		Resources:      resources,
		Audio:          audio,
		Diagram:        dgm,
		ModelUsed:      ans.modelUsed,
		ResponseTimeMS: elapsed.Milliseconds(),
		Progress:       progress,
	}, nil
}

// lookupOrSynthesize 命中缓存直接返回；未命中时同 key 的并发请求只合成一次，
// 合成期间不持有任何学生锁。
func (s *tutorService) lookupOrSynthesize(ctx context.Context, bucket adaptive.GradeBucket, normalized string, req SynthesisRequest) (*answer, error) {
	hit, err := s.Cache.Lookup(ctx, bucket, normalized)
	if err != nil {
		log.Warnf("[TutorService] 缓存查询失败，按未命中处理: %v", err)
	}
	if hit.Hit {
		return entryAnswer(hit.Entry, true), nil
	}

	key := adaptive.CacheKey(bucket, normalized)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		// 共享的合成不随第一个调用方取消
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Timeout)
		defer cancel()

		syn, err := s.Synthesizer.Synthesize(sctx, req)
		if err != nil {
			return nil, err
		}
		sources, _ := json.Marshal(syn.Sources)
		entry, err := s.Cache.Store(sctx, &model.QueryCacheEntry{
			GradeBucket:     string(bucket),
			NormalizedQuery: normalized,
			Answer:          syn.Answer,
			Sources:         string(sources),
			Subject:         string(req.Subject),
			ModelUsed:       syn.ModelUsed,
			Relevance:       syn.Relevance,
		})
		if err != nil {
			// 缓存写入失败不影响本次回答
			log.Warnf("[TutorService] 写入缓存失败: %v", err)
			return &answer{text: syn.Answer, sources: syn.Sources, modelUsed: syn.ModelUsed, relevance: syn.Relevance, hitCount: 1}, nil
		}
		return entryAnswer(entry, false), nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrSynthesisTimeout, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		a := *res.Val.(*answer)
		return &a, nil
	}
}

func entryAnswer(e *model.QueryCacheEntry, fromCache bool) *answer {
	var sources []string
	if e.Sources != "" {
		_ = json.Unmarshal([]byte(e.Sources), &sources)
	}
	return &answer{
		text:      e.Answer,
		sources:   sources,
		modelUsed: e.ModelUsed,
		relevance: e.Relevance,
		hitCount:  e.HitCount,
		fromCache: fromCache,
	}
}

// followUps 是当前会话中此前的提问数。
func followUps(history []model.ChatTurn) int64 {
	var n int64
	for _, t := range history {
		if t.Role == model.RoleUser {
			n++
		}
	}
	return n
}

// timeSpent 以距上一轮对话的间隔估计本次用时，上限 30 分钟。
func timeSpent(history []model.ChatTurn, now time.Time) float64 {
	if len(history) == 0 {
		return 0
	}
	last := history[len(history)-1].Timestamp
	if last.IsZero() || now.Before(last) {
		return 0
	}
	d := now.Sub(last)
	if d > 30*time.Minute {
		d = 30 * time.Minute
	}
	return d.Minutes()
}

func (s *tutorService) AskVoice(ctx context.Context, studentID uint, filename string, audio io.Reader, req AskRequest) (*AskResult, error) {
	if s.Transcriber == nil {
		return nil, fmt.Errorf("%w: speech is not configured", ErrTranscriptionFailed)
	}
	text, err := s.Transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrTranscriptionFailed
	}
	req.Query = text
	res, err := s.Ask(ctx, studentID, req)
	if err != nil {
		return nil, err
	}
	res.Transcript = text
	return res, nil
}

func (s *tutorService) Feedback(ctx context.Context, studentID uint, req FeedbackRequest) (*ProgressSnapshot, error) {
	msg, err := s.findOwnedAnswer(ctx, studentID, req.MessageID)
	if err != nil {
		return nil, err
	}

	snap, err := s.Progress.ApplyFeedback(ctx, studentID, req.Understood, req.NeededSimpler)
	if err != nil {
		return nil, err
	}

	if s.Analytics != nil {
		s.Analytics.Record(ctx, &model.LearningAnalytics{
			StudentID:                studentID,
			MessageID:                &msg.ID,
			Subject:                  msg.Subject,
			Topic:                    msg.Topic,
			Understood:               req.Understood,
			NeededSimplerExplanation: req.NeededSimpler,
			AskedForResources:        req.AskedForResources,
			FromCache:                msg.FromCache,
			Feedback:                 true,
		})
	}
	return snap, nil
}

// findOwnedAnswer 只接受该学生会话中的助手消息，其余一律视为不存在。
func (s *tutorService) findOwnedAnswer(ctx context.Context, studentID, messageID uint) (*model.Message, error) {
	msg, conv, err := s.Conversations.Message(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Role != model.RoleAssistant || conv.StudentID != studentID {
		return nil, ErrNotFound
	}
	return msg, nil
}
