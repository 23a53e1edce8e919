package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"ncert-tutor-go/pkg/diagram"

	"github.com/google/uuid"
)

// ObjectStore 是 storage.Store 上媒体与教材用到的部分。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, objectName string) (string, error)
}

// Speaker 把文本合成为 MP3。
type Speaker interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// MediaObject 是一个已存储的媒体文件。
type MediaObject struct {
	ObjectName string `json:"objectName"`
	URL        string `json:"url"`
}

// MediaService 生成语音与图示，存入对象存储并返回预签名地址。
type MediaService interface {
	Speak(ctx context.Context, text string) (*MediaObject, error)
	Diagram(ctx context.Context, spec diagram.Spec) (*MediaObject, error)
	URL(ctx context.Context, objectName string) (string, error)
}

type mediaService struct {
	store    ObjectStore
	speaker  Speaker
	renderer *diagram.Renderer
}

// NewMediaService 创建 MediaService。
func NewMediaService(store ObjectStore, speaker Speaker, renderer *diagram.Renderer) MediaService {
	return &mediaService{store: store, speaker: speaker, renderer: renderer}
}

// Speak 的文本长度上限由 Speaker 负责截断。
func (s *mediaService) Speak(ctx context.Context, text string) (*MediaObject, error) {
	audio, err := s.speaker.Speak(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.put(ctx, "audio/"+uuid.NewString()+".mp3", audio, "audio/mpeg")
}

func (s *mediaService) Diagram(ctx context.Context, spec diagram.Spec) (*MediaObject, error) {
	png, err := s.renderer.Render(spec)
	if err != nil {
		return nil, err
	}
	return s.put(ctx, "diagrams/"+uuid.NewString()+".png", png, "image/png")
}

func (s *mediaService) URL(ctx context.Context, objectName string) (string, error) {
	return s.store.PresignedURL(ctx, objectName)
}

func (s *mediaService) put(ctx context.Context, name string, data []byte, contentType string) (*MediaObject, error) {
	if err := s.store.Put(ctx, name, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, err
	}
	u, err := s.store.PresignedURL(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("生成媒体地址失败: %w", err)
	}
	return &MediaObject{ObjectName: name, URL: u}, nil
}
