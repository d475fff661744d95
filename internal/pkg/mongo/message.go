package mongo

import "time"

// ArchiveMessage 消息归档模型。
// 归档由 Kafka 消费异步写入，仅服务历史翻页等富查询；
// 定序与增量同步的权威数据始终在 MySQL 消息表
type ArchiveMessage struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	ConversationID uint64    `bson:"conversation_id" json:"conversationId"`
	SenderID       uint64    `bson:"sender_id" json:"senderId"`
	MsgType        int       `bson:"msg_type" json:"msgType"`
	Content        string    `bson:"content" json:"content"`
	Mentions       string    `bson:"mentions,omitempty" json:"mentions"`
	QuoteID        uint64    `bson:"quote_id,omitempty" json:"quoteId"`
	Seq            uint64    `bson:"seq" json:"seq"` // 来自 MySQL 的会话内绝对序号
	IsRevoked      int8      `bson:"is_revoked" json:"isRevoked"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}
