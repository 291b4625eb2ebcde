// Package mongostore 基于 MongoDB 的镜像存储
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatrelay/internal/model"
	"chatrelay/internal/pkg/mongodb"
	"chatrelay/internal/repository"
)

// Store MongoDB 镜像存储，会话以上游 conversation id 作为 _id
type Store struct {
	client        *mongodb.Client
	conversations *mongo.Collection
	messages      *mongo.Collection
}

var _ repository.MirrorStore = (*Store)(nil)

// New 创建存储，Close 时断开 client
func New(client *mongodb.Client) *Store {
	return &Store{
		client:        client,
		conversations: client.Collection(mongodb.ConversationCollection),
		messages:      client.Collection(mongodb.MessageCollection),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return mongodb.EnsureIndexes(ctx, s.client.Database())
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Close(ctx)
}

func (s *Store) UpsertConversation(ctx context.Context, conv *model.Conversation) error {
	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":      conv.UserID,
			"assistant_id": conv.AssistantID,
			"title":        conv.Title,
			"created_at":   conv.CreatedAt,
		},
		"$set": bson.M{"updated_at": conv.UpdatedAt},
	}
	_, err := s.conversations.UpdateByID(ctx, conv.ID, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// InsertConversation 过滤条件带上 user_id，_id 已属于其他用户时 upsert 触发主键冲突
func (s *Store) InsertConversation(ctx context.Context, conv *model.Conversation) error {
	filter := bson.M{"_id": conv.ID, "user_id": conv.UserID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"assistant_id": conv.AssistantID,
			"created_at":   conv.CreatedAt,
		},
		"$set": bson.M{"title": conv.Title, "updated_at": conv.UpdatedAt},
	}
	_, err := s.conversations.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("conversation %s: %w", conv.ID, repository.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *Store) UpdateConversationTitle(ctx context.Context, id, userID, title string, updatedAt time.Time) (int64, error) {
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"title": title, "updated_at": updatedAt}})
	if err != nil {
		return 0, fmt.Errorf("update conversation title: %w", err)
	}
	return res.MatchedCount, nil
}

func (s *Store) GetConversation(ctx context.Context, id, userID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.conversations.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, find *model.FindConversation) ([]*model.Conversation, error) {
	filter := bson.M{"user_id": find.UserID}
	if find.AssistantID != "" {
		filter["assistant_id"] = find.AssistantID
	}
	opts := options.Find().SetSort(bson.D{bson.E{Key: "updated_at", Value: -1}})
	if find.Limit > 0 {
		opts.SetLimit(int64(find.Limit))
	}

	cursor, err := s.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	convs := make([]*model.Conversation, 0)
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return convs, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id, userID string) (int64, error) {
	res, err := s.conversations.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) InsertMessages(ctx context.Context, msgs ...*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	docs := make([]any, len(msgs))
	for i, m := range msgs {
		docs[i] = m
	}
	if _, err := s.messages.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID, userID string) ([]*model.Message, error) {
	opts := options.Find().SetSort(bson.D{bson.E{Key: "created_at", Value: 1}, bson.E{Key: "_id", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID, "user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	msgs := make([]*model.Message, 0)
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) DeleteMessages(ctx context.Context, conversationID, userID string) (int64, error) {
	res, err := s.messages.DeleteMany(ctx, bson.M{"conversation_id": conversationID, "user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.DeletedCount, nil
}
