package model

import "time"

// Conversation 会话主表
// CurrentSeq 是下一条消息定序的唯一依据，只允许在定序事务内推进
type Conversation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type           int8      `gorm:"not null;default:1" json:"type"` // 1-单聊, 2-群聊
	Name           string    `gorm:"type:varchar(64)" json:"name"`
	AvatarURL      string    `gorm:"type:varchar(255)" json:"avatarUrl"`
	OwnerID        uint64    `gorm:"not null;default:0" json:"ownerId"`
	CurrentSeq     uint64    `gorm:"not null;default:0" json:"currentSeq"` // 会话内当前序列号
	LastMsgContent string    `gorm:"type:varchar(255)" json:"lastMsgContent"`
	LastMsgTime    time.Time `gorm:"index" json:"lastMsgTime"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMember 会话成员表
type ConversationMember struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID         uint64    `gorm:"uniqueIndex:idx_conv_user;index" json:"userId"`
	LastAckSeq     uint64    `gorm:"not null;default:0" json:"lastAckSeq"` // 已读进度
	UnreadCount    uint64    `gorm:"not null;default:0" json:"unreadCount"`
	Role           int8      `gorm:"not null;default:0" json:"role"` // 0-成员, 1-群主, 2-管理员
	IsMuted        int8      `gorm:"not null;default:0" json:"isMuted"`
	IsTop          int8      `gorm:"not null;default:0" json:"isTop"`
	JoinedAt       time.Time `json:"joinedAt"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"conversation"`
}

func (ConversationMember) TableName() string { return "conversation_members" }
