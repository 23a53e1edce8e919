// Package pipeline 定义了教材入库的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"unicode/utf8"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/embedding"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/tasks"
)

const (
	chunkSize    = 1000
	chunkOverlap = 100
	embedBatch   = 16
)

// NCERT 教材文件名形如 hemh101.pdf，最后两位是章节号。
var chapterFilePattern = regexp.MustCompile(`(?i)^[a-z]{4}1(\d{2})\.pdf$`)

// ObjectGetter 从对象存储读取教材。
type ObjectGetter interface {
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
}

// TextExtractor 从 PDF 中提取纯文本，由 tika.Client 实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// PassageWriter 把段落写入检索索引，由 es.PassageIndex 实现。
type PassageWriter interface {
	DeleteByFile(ctx context.Context, fileMD5 string) error
	IndexDocument(ctx context.Context, doc model.EsDocument) error
}

// Processor 封装了教材处理的所有依赖和逻辑。
type Processor struct {
	store        ObjectGetter
	extractor    TextExtractor
	embedder     embedding.Client
	index        PassageWriter
	textbookRepo repository.TextbookRepository
	modelVersion string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	store ObjectGetter,
	extractor TextExtractor,
	embedder embedding.Client,
	index PassageWriter,
	textbookRepo repository.TextbookRepository,
	modelVersion string,
) *Processor {
	return &Processor{
		store:        store,
		extractor:    extractor,
		embedder:     embedder,
		index:        index,
		textbookRepo: textbookRepo,
		modelVersion: modelVersion,
	}
}

// ChapterFromFileName 按 NCERT 命名规则解析章节，无法识别时返回空串。
func ChapterFromFileName(fileName string) string {
	m := chapterFilePattern.FindStringSubmatch(filepath.Base(fileName))
	if m == nil {
		return ""
	}
	n, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("Chapter %d", n)
}

// Process 是教材处理的主函数。重复处理同一教材会覆盖此前的分块与索引。
func (p *Processor) Process(ctx context.Context, task tasks.TextbookIngestTask) error {
	log.Infof("[Processor] 开始处理教材, FileMD5: %s, FileName: %s, Grade: %d", task.FileMD5, task.FileName, task.Grade)
	bucket, err := adaptive.BucketForGrade(task.Grade)
	if err != nil {
		return err
	}

	// 1. 从 MinIO 下载文件
	object, err := p.store.Get(ctx, task.ObjectName)
	if err != nil {
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	object.Close()
	if err != nil {
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	if size == 0 {
		return errors.New("文件内容为空")
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)

	// 2. 使用 Tika 提取文本
	text, err := p.extractor.ExtractText(ctx, bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if text == "" {
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 3. 文本切块并落库
	pieces := splitText(text, chunkSize, chunkOverlap)
	chapter := ChapterFromFileName(task.FileName)
	chunks := make([]model.TextbookChunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, model.TextbookChunk{
			FileMD5:      task.FileMD5,
			ChunkID:      i,
			Chapter:      chapter,
			TextContent:  piece,
			ModelVersion: p.modelVersion,
		})
	}
	if err := p.textbookRepo.ReplaceChunks(ctx, task.FileMD5, chunks); err != nil {
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 共 %d 个分块, 章节: %q", len(chunks), chapter)

	// 4. 向量化并索引到 ES
	if err := p.index.DeleteByFile(ctx, task.FileMD5); err != nil {
		return fmt.Errorf("清理旧索引失败: %w", err)
	}
	for start := 0; start < len(chunks); start += embedBatch {
		end := min(start+embedBatch, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.TextContent)
		}
		vectors, err := p.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("分块 %d-%d 向量化失败: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(vectors))
		}
		for i, c := range chunks[start:end] {
			doc := model.EsDocument{
				VectorID:     fmt.Sprintf("%s_%d", c.FileMD5, c.ChunkID),
				FileMD5:      c.FileMD5,
				FileName:     task.FileName,
				ChunkID:      c.ChunkID,
				TextContent:  c.TextContent,
				Vector:       vectors[i],
				ModelVersion: p.modelVersion,
				Grade:        task.Grade,
				GradeBucket:  string(bucket),
				Subject:      task.Subject,
				Chapter:      chapter,
			}
			if err := p.index.IndexDocument(ctx, doc); err != nil {
				return fmt.Errorf("索引块 %d 到 Elasticsearch 失败: %w", c.ChunkID, err)
			}
		}
	}

	// 5. 更新教材状态
	if err := p.textbookRepo.UpdateStatus(ctx, task.FileMD5, model.TextbookIndexed, len(chunks)); err != nil {
		return fmt.Errorf("更新教材状态失败: %w", err)
	}
	log.Infof("[Processor] 教材处理成功完成, FileMD5: %s, 分块数: %d", task.FileMD5, len(chunks))
	return nil
}

// MarkFailed 在重试耗尽后把教材标记为失败。
func (p *Processor) MarkFailed(ctx context.Context, task tasks.TextbookIngestTask, cause error) error {
	log.Errorf("[Processor] 教材处理最终失败, FileMD5: %s, error: %v", task.FileMD5, cause)
	return p.textbookRepo.UpdateStatus(ctx, task.FileMD5, model.TextbookFailed, 0)
}

// splitText 将长文本按指定大小和重叠进行切分。
func splitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
