// Package seed 在启动时把本地目录中的教材导入系统。
package seed

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/log"
)

// Result 统计一次导入的结果。
type Result struct {
	Created int
	Skipped int
	Failed  int
}

// Textbooks 扫描 dir/<grade>/<subject>/*.pdf 并通过标准上传流程导入（幂等）。
// 目录不存在时直接返回。
func Textbooks(ctx context.Context, dir string, ingestion service.IngestionService) Result {
	var res Result
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seed: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return res
	}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		meta, ok := uploadMeta(dir, path)
		if !ok {
			log.Warnf("seed: 路径不符合 <grade>/<subject>/<file>.pdf，跳过: %s", path)
			res.Skipped++
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warnf("seed: 打开文件失败: %s, err=%v", path, err)
			res.Failed++
			return nil
		}
		defer f.Close()

		textbook, created, err := ingestion.Upload(ctx, meta, f)
		if err != nil {
			log.Warnf("seed: 导入失败: %s, err=%v", path, err)
			res.Failed++
			return nil
		}
		if !created {
			log.Infof("seed: 已存在，跳过: %s (md5=%s)", meta.FileName, textbook.FileMD5)
			res.Skipped++
			return nil
		}
		log.Infof("seed: 导入完成并已触发向量化: %s", meta.FileName)
		res.Created++
		return nil
	})
	if walkErr != nil {
		log.Warnf("seed: 遍历目录发生错误: %v", walkErr)
	}
	return res
}

// uploadMeta 从相对路径中解析年级和学科。
func uploadMeta(root, path string) (service.TextbookUpload, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return service.TextbookUpload{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return service.TextbookUpload{}, false
	}
	grade, err := strconv.Atoi(parts[0])
	if err != nil {
		return service.TextbookUpload{}, false
	}
	return service.TextbookUpload{FileName: parts[2], Grade: grade, Subject: parts[1]}, true
}
