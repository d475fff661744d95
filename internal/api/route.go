package api

import (
	"net/http"

	"github.com/digitzh/FlyBook/internal/api/middleware"
	"github.com/digitzh/FlyBook/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	// 推送长连接，身份走路径参数，由网关层保证只转发本人的连接请求
	r.GET("/ws/:user_id", group.WsHandler.Connect)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		imGroup.Use(middleware.AuthMiddleware())
		{
			imGroup.POST("/message", group.IMHandler.SendMessage)
			imGroup.POST("/message/revoke", group.IMHandler.RevokeMessage)
			imGroup.GET("/messages/sync", group.IMHandler.SyncMessages)
			imGroup.GET("/messages/history", group.IMHandler.GetChatHistory)
			imGroup.GET("/conversations", group.IMHandler.GetConversationList)
			imGroup.GET("/unread/total", group.IMHandler.GetTotalUnread)
			imGroup.POST("/read", group.IMHandler.MarkAsRead)
		}
	}

	return r
}
