package service

import (
	"context"
	"errors"

	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/scraper"

	"gorm.io/gorm"
)

// ResourceService 保存与查询学习资源推荐。
type ResourceService interface {
	// Save 尽力保存推荐，失败只记录日志。
	Save(ctx context.Context, studentID uint, messageID *uint, subject, topic string, links []scraper.Link) []model.ResourceRecommendation
	List(ctx context.Context, studentID uint, limit int) ([]model.ResourceRecommendation, error)
	MarkHelpful(ctx context.Context, studentID, id uint) (*model.ResourceRecommendation, error)
}

type resourceService struct {
	repo repository.ResourceRepository
}

// NewResourceService 创建 ResourceService。
func NewResourceService(repo repository.ResourceRepository) ResourceService {
	return &resourceService{repo: repo}
}

func (s *resourceService) Save(ctx context.Context, studentID uint, messageID *uint, subject, topic string, links []scraper.Link) []model.ResourceRecommendation {
	recs := make([]model.ResourceRecommendation, 0, len(links))
	for _, l := range links {
		recs = append(recs, model.ResourceRecommendation{
			StudentID:    studentID,
			MessageID:    messageID,
			Subject:      subject,
			Topic:        topic,
			ResourceType: model.ResourceVideo,
			Title:        l.Title,
			URL:          l.URL,
			Description:  l.Description,
		})
	}
	if err := s.repo.CreateBatch(ctx, recs); err != nil {
		log.Warnf("[ResourceService] 保存资源推荐失败: %v", err)
	}
	return recs
}

func (s *resourceService) List(ctx context.Context, studentID uint, limit int) ([]model.ResourceRecommendation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByStudent(ctx, studentID, limit)
}

func (s *resourceService) MarkHelpful(ctx context.Context, studentID, id uint) (*model.ResourceRecommendation, error) {
	rec, err := s.repo.IncrementEffectiveness(ctx, id, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}
