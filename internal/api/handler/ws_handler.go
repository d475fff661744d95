package handler

import (
	log "log/slog"
	"net/http"
	"strconv"

	"github.com/digitzh/FlyBook/internal/pkg/response"
	"github.com/digitzh/FlyBook/internal/push"
	"github.com/digitzh/FlyBook/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	table *push.ConnTable
}

func NewWsHandler(table *push.ConnTable) *WsHandler {
	return &WsHandler{table: table}
}

// Connect 建立推送长连接。
// 登记到连接表后由读循环托管，直到空闲超时或对端断开
func (s *WsHandler) Connect(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "userID", userID, "err", err)
		return
	}

	log.InfoContext(c.Request.Context(), "用户 WS 连接已建立", "userID", userID)

	conn := s.table.Attach(userID, ws)
	s.table.Serve(conn)

	log.InfoContext(c.Request.Context(), "用户 WS 连接已断开", "userID", userID)
}
