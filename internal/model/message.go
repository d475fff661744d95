package model

import "time"

// Message 消息表
// (ConversationID, Seq) 唯一索引是防止定序出错的最后一道防线：
// 即使上游并发控制失效，重复的 Seq 也会被数据库拒绝
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"messageId"`
	ConversationID uint64    `gorm:"uniqueIndex:idx_conv_seq;not null" json:"conversationId"`
	Seq            uint64    `gorm:"uniqueIndex:idx_conv_seq;not null" json:"seq"` // 会话内绝对序号
	SenderID       uint64    `gorm:"index;not null" json:"senderId"`
	MsgType        int       `gorm:"not null;default:1" json:"msgType"` // 1-文本, 2-图片, 3-视频, 4-文件, 5-待办卡片
	Content        string    `gorm:"type:text" json:"content"`          // JSON 字符串
	Mentions       string    `gorm:"type:varchar(512)" json:"mentions"` // 被 @ 的用户 ID 列表, JSON
	QuoteID        uint64    `gorm:"not null;default:0" json:"quoteId"`
	IsRevoked      int8      `gorm:"not null;default:0" json:"isRevoked"` // 撤回标记, 落库后唯一可变字段
	CreatedTime    time.Time `json:"createdTime"`
}

func (Message) TableName() string { return "messages" }
