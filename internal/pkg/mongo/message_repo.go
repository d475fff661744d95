package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ArchiveRepo interface {
	SaveMessage(ctx context.Context, msg *ArchiveMessage) error
	GetHistory(ctx context.Context, convID uint64, lastSeq uint64, pageSize int) ([]*ArchiveMessage, error)
}

type archiveRepoImpl struct {
	col *mongo.Collection
}

func NewArchiveRepo(db *mongo.Database) ArchiveRepo {
	return &archiveRepoImpl{
		col: db.Collection("message_archive"),
	}
}

// EnsureIndexes 建立 (conversation_id, seq) 唯一索引，归档重放时保持幂等
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("message_archive").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "conversation_id", Value: 1},
			{Key: "seq", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// SaveMessage 按 (conversation_id, seq) 覆盖写入。
// Kafka 至少一次投递会重复消费，覆盖写保证归档幂等
func (s *archiveRepoImpl) SaveMessage(ctx context.Context, msg *ArchiveMessage) error {
	filter := bson.M{
		"conversation_id": msg.ConversationID,
		"seq":             msg.Seq,
	}
	update := bson.M{"$set": bson.M{
		"sender_id":  msg.SenderID,
		"msg_type":   msg.MsgType,
		"content":    msg.Content,
		"mentions":   msg.Mentions,
		"quote_id":   msg.QuoteID,
		"is_revoked": msg.IsRevoked,
		"created_at": msg.CreatedAt,
	}}
	_, err := s.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// GetHistory 历史消息查询逻辑
// lastSeq 为当前页面最旧一条消息的序号。如果是第一页，传 0。
func (s *archiveRepoImpl) GetHistory(ctx context.Context, convID uint64, lastSeq uint64, pageSize int) ([]*ArchiveMessage, error) {
	filter := bson.M{"conversation_id": convID}

	// 游标过滤：拉取比当前最旧序号更小的消息
	if lastSeq > 0 {
		filter["seq"] = bson.M{"$lt": lastSeq}
	}

	// 按 seq 降序排列（最新的在前），限制返回条数
	findOptions := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(int64(pageSize))

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*ArchiveMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}
