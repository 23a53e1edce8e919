package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/tasks"

	"gorm.io/gorm"
)

// MaxTextbookSize 是单个教材 PDF 的大小上限 (100MB)。
const MaxTextbookSize = 100 << 20

// TaskPublisher 把教材处理任务投递到队列，由 kafka.Producer 实现。
type TaskPublisher interface {
	ProduceIngestTask(ctx context.Context, task tasks.TextbookIngestTask) error
}

// TextbookUpload 是一次教材上传的元数据。
type TextbookUpload struct {
	FileName string
	Grade    int
	Subject  string
}

// IngestionService 接收教材 PDF，存入 MinIO 并投递向量化任务。
type IngestionService interface {
	// Upload 以文件 MD5 保证幂等：已存在且未失败的教材直接返回，失败的教材重新投递。
	Upload(ctx context.Context, meta TextbookUpload, r io.Reader) (textbook *model.Textbook, created bool, err error)
	Get(ctx context.Context, fileMD5 string) (*model.Textbook, error)
}

type ingestionService struct {
	textbookRepo repository.TextbookRepository
	store        ObjectStore
	publisher    TaskPublisher
}

// NewIngestionService 创建一个新的 IngestionService 实例。
func NewIngestionService(textbookRepo repository.TextbookRepository, store ObjectStore, publisher TaskPublisher) IngestionService {
	return &ingestionService{textbookRepo: textbookRepo, store: store, publisher: publisher}
}

func validateUpload(meta *TextbookUpload) error {
	meta.FileName = filepath.Base(strings.TrimSpace(meta.FileName))
	if !strings.EqualFold(filepath.Ext(meta.FileName), ".pdf") {
		return fmt.Errorf("%w: only PDF textbooks are supported", ErrInvalidUpload)
	}
	if !adaptive.ValidGrade(meta.Grade) {
		return fmt.Errorf("%w: grade must be between %d and %d", ErrInvalidUpload, adaptive.MinGrade, adaptive.MaxGrade)
	}
	subject := adaptive.ParseSubject(meta.Subject)
	if subject == adaptive.SubjectGeneral {
		return fmt.Errorf("%w: unknown subject %q", ErrInvalidUpload, meta.Subject)
	}
	meta.Subject = string(subject)
	return nil
}

func (s *ingestionService) Upload(ctx context.Context, meta TextbookUpload, r io.Reader) (*model.Textbook, bool, error) {
	// 1. 校验元数据
	if err := validateUpload(&meta); err != nil {
		return nil, false, err
	}

	// 2. 读入内存并计算 MD5
	data, err := io.ReadAll(io.LimitReader(r, MaxTextbookSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}
	if len(data) > MaxTextbookSize {
		return nil, false, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidUpload, MaxTextbookSize)
	}
	sum := md5.Sum(data)
	fileMD5 := hex.EncodeToString(sum[:])
	log.Infof("[IngestionService] 收到教材上传, 文件名: %s, MD5: %s, 大小: %d", meta.FileName, fileMD5, len(data))

	// 3. 秒传检查
	existing, err := s.textbookRepo.FindByMD5(ctx, fileMD5)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if existing != nil {
		if existing.Status != model.TextbookFailed {
			log.Infof("[IngestionService] 教材已存在, 跳过上传. MD5: %s, 状态: %d", fileMD5, existing.Status)
			return existing, false, nil
		}
		log.Infof("[IngestionService] 教材上次处理失败, 重新投递. MD5: %s", fileMD5)
		if err := s.textbookRepo.UpdateStatus(ctx, fileMD5, model.TextbookPending, 0); err != nil {
			return nil, false, err
		}
		existing.Status = model.TextbookPending
		if err := s.publish(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	// 4. 上传到 MinIO
	objectName := fmt.Sprintf("textbooks/%s.pdf", fileMD5)
	if err := s.store.Put(ctx, objectName, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		log.Errorf("[IngestionService] 上传教材到MinIO失败, objectName: %s, error: %v", objectName, err)
		return nil, false, fmt.Errorf("上传教材失败: %w", err)
	}

	// 5. 落库
	tb := &model.Textbook{
		FileMD5:    fileMD5,
		FileName:   meta.FileName,
		ObjectName: objectName,
		TotalSize:  int64(len(data)),
		Grade:      meta.Grade,
		Subject:    meta.Subject,
		Status:     model.TextbookPending,
	}
	if err := s.textbookRepo.Create(ctx, tb); err != nil {
		return nil, false, fmt.Errorf("创建教材记录失败: %w", err)
	}

	// 6. 投递处理任务
	if err := s.publish(ctx, tb); err != nil {
		return nil, false, err
	}
	return tb, true, nil
}

// publish 投递任务；投递失败时把教材标记为失败，下一次上传会重新投递。
func (s *ingestionService) publish(ctx context.Context, tb *model.Textbook) error {
	task := tasks.TextbookIngestTask{
		FileMD5:    tb.FileMD5,
		ObjectName: tb.ObjectName,
		FileName:   tb.FileName,
		Grade:      tb.Grade,
		Subject:    tb.Subject,
	}
	if err := s.publisher.ProduceIngestTask(ctx, task); err != nil {
		log.Errorf("[IngestionService] 投递处理任务失败, MD5: %s, error: %v", tb.FileMD5, err)
		if uerr := s.textbookRepo.UpdateStatus(context.WithoutCancel(ctx), tb.FileMD5, model.TextbookFailed, 0); uerr != nil {
			log.Error("[IngestionService] 标记教材失败状态出错", uerr)
		}
		tb.Status = model.TextbookFailed
		return fmt.Errorf("投递处理任务失败: %w", err)
	}
	log.Infof("[IngestionService] 处理任务已投递, MD5: %s", tb.FileMD5)
	return nil
}

func (s *ingestionService) Get(ctx context.Context, fileMD5 string) (*model.Textbook, error) {
	tb, err := s.textbookRepo.FindByMD5(ctx, fileMD5)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return tb, err
}
