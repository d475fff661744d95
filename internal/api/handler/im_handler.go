package handler

import (
	"github.com/digitzh/FlyBook/internal/api/dto"
	"github.com/digitzh/FlyBook/internal/pkg/response"
	"github.com/digitzh/FlyBook/internal/service"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	imSvc service.IMService
}

func NewIMHandler(imSvc service.IMService) *IMHandler {
	return &IMHandler{imSvc: imSvc}
}

func (s *IMHandler) SendMessage(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	msg, err := s.imSvc.SendMessage(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

func (s *IMHandler) SyncMessages(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.SyncMessagesReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, err)
		return
	}

	msgs, err := s.imSvc.SyncMessages(c.Request.Context(), userID, req.ConversationID, req.AfterSeq, req.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msgs)
}

func (s *IMHandler) GetChatHistory(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.ChatHistoryReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, err)
		return
	}

	msgs, err := s.imSvc.GetChatHistory(c.Request.Context(), userID, req.ConversationID, req.LastSeq, req.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msgs)
}

func (s *IMHandler) GetConversationList(c *gin.Context) {
	userID := c.GetUint64("user_id")

	list, err := s.imSvc.GetConversationList(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

func (s *IMHandler) GetTotalUnread(c *gin.Context) {
	userID := c.GetUint64("user_id")

	total, err := s.imSvc.GetTotalUnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.TotalUnreadDTO{Total: total})
}

func (s *IMHandler) MarkAsRead(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.MarkAsReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.imSvc.MarkAsRead(c.Request.Context(), userID, req.ConversationID, req.Seq); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) RevokeMessage(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.RevokeMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.imSvc.RevokeMessage(c.Request.Context(), userID, req.ConversationID, req.Seq); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
