package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ncert-tutor-go/internal/middleware"
	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 语音文件大小上限 (25MB)，与转写接口的限制一致。
const maxAudioBytes = 25 << 20

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责提问、语音提问、反馈以及 WebSocket 聊天。
type ChatHandler struct {
	tutor      service.TutorService
	profiles   service.ProfileService
	jwtManager *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(tutor service.TutorService, profiles service.ProfileService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{tutor: tutor, profiles: profiles, jwtManager: jwtManager}
}

// ChatRequest 是一次文字提问的请求体，也是 WebSocket 中的 JSON 帧格式。
type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	Subject   string `json:"subject"`
	WantAudio bool   `json:"wantAudio"`
}

func (r ChatRequest) toAsk() service.AskRequest {
	return service.AskRequest{Query: r.Query, SessionID: r.SessionID, Subject: r.Subject, WantAudio: r.WantAudio}
}

// Chat 处理文字提问。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, KindInvalidQuery, err)
		return
	}
	student, _ := middleware.CurrentStudent(c)

	res, err := h.tutor.Ask(c.Request.Context(), student.ID, req.toAsk())
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, res)
}

// Voice 处理 multipart 语音提问：audio_file 为音频，其余字段同 ChatRequest。
func (h *ChatHandler) Voice(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioBytes+1<<20)
	fileHeader, err := c.FormFile("audio_file")
	if err != nil {
		badRequest(c, KindTranscriptionFailed, errors.New("缺少 audio_file"))
		return
	}
	if fileHeader.Size == 0 || fileHeader.Size > maxAudioBytes {
		badRequest(c, KindTranscriptionFailed, errors.New("音频文件为空或过大"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	wantAudio, _ := strconv.ParseBool(c.PostForm("want_audio"))
	req := service.AskRequest{
		SessionID: c.PostForm("session_id"),
		Subject:   c.PostForm("subject"),
		WantAudio: wantAudio,
	}
	student, _ := middleware.CurrentStudent(c)

	res, err := h.tutor.AskVoice(c.Request.Context(), student.ID, fileHeader.Filename, file, req)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, res)
}

// FeedbackRequest 是反馈的请求体。
type FeedbackRequest struct {
	MessageID         uint `json:"messageId" binding:"required"`
	Understood        bool `json:"understood"`
	NeededSimpler     bool `json:"neededSimplerExplanation"`
	AskedForResources bool `json:"askedForResources"`
}

// Feedback 记录学生对回答的反馈，并返回更新后的进度。
func (h *ChatHandler) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, KindInvalidQuery, err)
		return
	}
	student, _ := middleware.CurrentStudent(c)

	snap, err := h.tutor.Feedback(c.Request.Context(), student.ID, service.FeedbackRequest{
		MessageID:         req.MessageID,
		Understood:        req.Understood,
		NeededSimpler:     req.NeededSimpler,
		AskedForResources: req.AskedForResources,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, http.StatusOK, snap)
}

// wsFrame 是服务端发往 WebSocket 客户端的消息。
type wsFrame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func writeFrame(conn *websocket.Conn, f wsFrame) error {
	f.Timestamp = time.Now().UnixMilli()
	b, _ := json.Marshal(f)
	return conn.WriteMessage(websocket.TextMessage, b)
}

// Handle 处理一个传入的 WebSocket 连接。每个文本帧是一条问题或一个 JSON ChatRequest，
// 同一连接内的提问沿用第一次回答返回的会话。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil || claims.Role != token.RoleStudent {
		fail(c, http.StatusUnauthorized, KindUnauthorized, "无效的 token", "")
		return
	}
	student, err := h.profiles.Get(c.Request.Context(), claims.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，学生: %s", student.Handle)

	sessionID := ""
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		req := ChatRequest{Query: string(message)}
		if len(message) > 0 && message[0] == '{' {
			if err := json.Unmarshal(message, &req); err != nil {
				_ = writeFrame(conn, wsFrame{Type: "error", Error: KindInvalidQuery, Message: "无法解析的 JSON 消息"})
				continue
			}
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		res, err := h.tutor.Ask(c.Request.Context(), student.ID, req.toAsk())
		if err != nil {
			_, kind := classify(err)
			if kind == KindConversationClosed {
				// 会话被关闭后下一次提问开启新会话
				sessionID = ""
			}
			if werr := writeFrame(conn, wsFrame{Type: "error", Error: kind, Message: err.Error()}); werr != nil {
				return
			}
			continue
		}
		sessionID = res.SessionID
		if err := writeFrame(conn, wsFrame{Type: "answer", Data: res}); err != nil {
			log.Warnf("写入 WebSocket 失败: %v", err)
			return
		}
	}
}
