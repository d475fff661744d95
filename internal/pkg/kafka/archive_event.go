package kafka

import "time"

// ArchiveEvent 消息落库后发布的归档事件。
// 归档消费者据此异步写入 MongoDB，发送主链路不等待归档结果
type ArchiveEvent struct {
	ConversationID uint64    `json:"conversation_id"`
	Seq            uint64    `json:"seq"`
	SenderID       uint64    `json:"sender_id"`
	MsgType        int       `json:"msg_type"`
	Content        string    `json:"content"`
	Mentions       string    `json:"mentions,omitempty"`
	QuoteID        uint64    `json:"quote_id,omitempty"`
	IsRevoked      int8      `json:"is_revoked,omitempty"`
	CreatedTime    time.Time `json:"created_time"`
}
