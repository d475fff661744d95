package repository

import "errors"

var (
	// ErrConversationNotFound 定序目标会话不存在
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrDuplicateSeq (conversation_id, seq) 唯一索引冲突，说明定序器出现了并发缺陷
	ErrDuplicateSeq = errors.New("duplicate seq for conversation")
)
