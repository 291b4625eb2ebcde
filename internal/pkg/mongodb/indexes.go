package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// 镜像集合名
const (
	ConversationCollection = "conversations"
	MessageCollection      = "chat_messages"
)

// EnsureIndexes 创建镜像集合的索引，可重复执行
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	convIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_user_updated"),
		},
		{
			Keys:    bson.D{bson.E{Key: "assistant_id", Value: 1}, bson.E{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_assistant_user"),
		},
	}
	if err := CreateIndexes(ctx, db.Collection(ConversationCollection), convIndexes); err != nil {
		return err
	}

	msgIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "conversation_id", Value: 1},
				bson.E{Key: "user_id", Value: 1},
				bson.E{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_conv_user_created"),
		},
	}
	return CreateIndexes(ctx, db.Collection(MessageCollection), msgIndexes)
}

// CreateIndexes 批量创建索引
func CreateIndexes(ctx context.Context, coll *mongo.Collection, indexes []mongo.IndexModel) error {
	if len(indexes) == 0 {
		return nil
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
