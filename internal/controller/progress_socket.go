package controller

import (
	"encoding/json"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 令牌鉴权已在中间件完成，跨域来源由 CORS 白名单约束
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SocketMessage 推送给 WebSocket 客户端的消息
type SocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type progressSocket struct {
	id     string
	unitID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
}

// readPump 只处理 pong 与关闭，客户端上行消息忽略
func (s *progressSocket) readPump() {
	defer close(s.done)
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { return s.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("progress socket unexpected close", zap.String("socket", s.id), zap.Error(err))
			}
			return
		}
	}
}

func (s *progressSocket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			return
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *progressSocket) push(msgType string, data interface{}) {
	payload, err := json.Marshal(SocketMessage{Type: msgType, Data: data})
	if err != nil {
		logger.Log.Error("progress socket encode failed", zap.Error(err))
		return
	}
	select {
	case s.send <- payload:
	default:
		logger.Log.Warn("progress socket full, message dropped",
			zap.String("socket", s.id),
			zap.String("unitId", s.unitID),
		)
	}
}

// @Summary 订阅单元进度（WebSocket）
// @Description 与 /progress/stream 推送相同的进度事件，消息格式为 {type, data}
// @Tags 进度
// @Security BearerAuth
// @Param unitId query string true "单元ID"
// @Router /api/progress/ws [get]
func (c *ProgressController) Socket(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	unitID := ctx.Query("unitId")
	if unitID == "" {
		util.BadRequest(ctx, "unitId is required")
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logger.Log.Warn("progress socket upgrade failed", zap.Error(err))
		return
	}

	sock := &progressSocket{
		id:     uuid.NewString(),
		unitID: unitID,
		conn:   conn,
		send:   make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	cancel := c.ProgressService.Subscribe(user.UserID, unitID, func(ev service.ProgressEvent) {
		sock.push("progress", ev)
	})
	defer cancel()

	sock.push("ready", gin.H{"socket": sock.id, "unitId": unitID})
	go sock.readPump()
	sock.writePump()
}
