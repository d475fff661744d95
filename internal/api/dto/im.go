package dto

import "time"

// SendMessageReq 发送消息请求
type SendMessageReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	MsgType        int    `json:"msg_type" binding:"required,min=1,max=5"`
	Content        string `json:"content" binding:"required,max=10000"`
	Mentions       string `json:"mentions"`
	QuoteID        uint64 `json:"quote_id"`
}

// SyncMessagesReq 增量同步请求
type SyncMessagesReq struct {
	ConversationID uint64 `form:"conversation_id" binding:"required"`
	AfterSeq       uint64 `form:"after_seq"`
	Limit          int    `form:"limit"`
}

// ChatHistoryReq 历史消息翻页请求
type ChatHistoryReq struct {
	ConversationID uint64 `form:"conversation_id" binding:"required"`
	LastSeq        uint64 `form:"last_seq"`
	PageSize       int    `form:"page_size"`
}

// MarkAsReadReq 标记已读请求
type MarkAsReadReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	Seq            uint64 `json:"seq" binding:"required"`
}

// RevokeMessageReq 撤回消息请求
type RevokeMessageReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	Seq            uint64 `json:"seq" binding:"required"`
}

// MessageDTO 消息视图，也是 WebSocket 推送的载荷
type MessageDTO struct {
	ID             uint64    `json:"id,omitempty"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	MsgType        int       `json:"msg_type"`
	Content        string    `json:"content"`
	Mentions       string    `json:"mentions,omitempty"`
	QuoteID        uint64    `json:"quote_id,omitempty"`
	Seq            uint64    `json:"seq"`
	IsRevoked      int8      `json:"is_revoked"`
	CreatedTime    time.Time `json:"created_time"`
}

// ConversationDTO 会话列表条目
type ConversationDTO struct {
	ConversationID uint64    `json:"conversation_id"`
	Type           int8      `json:"type"`
	Name           string    `json:"name"`
	OwnerID        uint64    `json:"owner_id"`
	LastMsgContent string    `json:"last_msg_content"`
	LastMsgTime    time.Time `json:"last_msg_time"`
	UnreadCount    uint64    `json:"unread_count"`
	LastAckSeq     uint64    `json:"last_ack_seq"`
	IsMuted        bool      `json:"is_muted"`
	IsTop          bool      `json:"is_top"`
}

// TotalUnreadDTO 全局未读数
type TotalUnreadDTO struct {
	Total int64 `json:"total"`
}
