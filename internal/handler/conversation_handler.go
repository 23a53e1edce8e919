package handler

import (
	"net/http"
	"time"

	"ncert-tutor-go/internal/middleware"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与会话历史相关的请求。
type ConversationHandler struct {
	conversations service.ConversationService
	media         service.MediaService
}

// NewConversationHandler 创建一个新的 ConversationHandler。media 可以为 nil。
func NewConversationHandler(conversations service.ConversationService, media service.MediaService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, media: media}
}

// List 返回当前学生的会话，最新的在前。
func (h *ConversationHandler) List(c *gin.Context) {
	student, _ := middleware.CurrentStudent(c)
	convs, err := h.conversations.List(c.Request.Context(), student.ID, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	success(c, http.StatusOK, convs)
}

// MessageView 是返回给前端的消息，媒体对象换成预签名地址。
type MessageView struct {
	model.Message
	AudioURL   string `json:"audioUrl,omitempty"`
	DiagramURL string `json:"diagramUrl,omitempty"`
}

// Messages 返回一个会话中的全部消息。
func (h *ConversationHandler) Messages(c *gin.Context) {
	student, _ := middleware.CurrentStudent(c)
	msgs, err := h.conversations.Messages(c.Request.Context(), student.ID, c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{Message: m}
		if h.media != nil {
			v.AudioURL = h.presign(c, m.AudioObject)
			v.DiagramURL = h.presign(c, m.DiagramObject)
		}
		views = append(views, v)
	}
	success(c, http.StatusOK, views)
}

func (h *ConversationHandler) presign(c *gin.Context, objectName string) string {
	if objectName == "" {
		return ""
	}
	u, err := h.media.URL(c.Request.Context(), objectName)
	if err != nil {
		log.Warnf("生成预签名地址失败, object: %s, error: %v", objectName, err)
		return ""
	}
	return u
}

// Close 结束一个会话。
func (h *ConversationHandler) Close(c *gin.Context) {
	student, _ := middleware.CurrentStudent(c)
	sessionID := c.Param("sessionId")
	if err := h.conversations.Close(c.Request.Context(), student.ID, sessionID); err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"sessionId": sessionID, "endedAt": time.Now()})
}
