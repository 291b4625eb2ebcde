// Package repotest 镜像存储驱动的公共测试用例，各驱动的测试复用
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/model"
	"chatrelay/internal/repository"
)

// Run 对 store 执行完整用例，调用前 store 应为空库
func Run(t *testing.T, store repository.MirrorStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrate must be idempotent")

	t.Run("upsert keeps title and bumps updated_at", func(t *testing.T) {
		convID := "conv-" + uuid.NewString()
		t0 := time.Now().UTC().Truncate(time.Millisecond)
		first := &model.Conversation{ID: convID, UserID: "user-1", AssistantID: "a1", Title: "first", CreatedAt: t0, UpdatedAt: t0}
		require.NoError(t, store.UpsertConversation(ctx, first))

		t1 := t0.Add(time.Minute)
		again := &model.Conversation{ID: convID, UserID: "user-1", AssistantID: "a1", Title: "ignored", CreatedAt: t1, UpdatedAt: t1}
		require.NoError(t, store.UpsertConversation(ctx, again))

		got, err := store.GetConversation(ctx, convID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "first", got.Title)
		assert.True(t, got.CreatedAt.Equal(t0))
		assert.True(t, got.UpdatedAt.Equal(t1))
	})

	t.Run("update title is scoped by user", func(t *testing.T) {
		convID := "conv-" + uuid.NewString()
		now := time.Now().UTC()

		n, err := store.UpdateConversationTitle(ctx, convID, "user-1", "x", now)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, store.InsertConversation(ctx, &model.Conversation{ID: convID, UserID: "user-1", Title: "x", CreatedAt: now, UpdatedAt: now}))

		n, err = store.UpdateConversationTitle(ctx, convID, "user-2", "stolen", now)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = store.UpdateConversationTitle(ctx, convID, "user-1", "renamed", now)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		got, err := store.GetConversation(ctx, convID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Title)

		_, err = store.GetConversation(ctx, convID, "user-2")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("insert conversation is last writer wins", func(t *testing.T) {
		convID := "conv-" + uuid.NewString()
		now := time.Now().UTC()
		require.NoError(t, store.InsertConversation(ctx, &model.Conversation{ID: convID, UserID: "user-1", Title: "a", CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, store.InsertConversation(ctx, &model.Conversation{ID: convID, UserID: "user-1", Title: "b", CreatedAt: now, UpdatedAt: now}))

		got, err := store.GetConversation(ctx, convID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "b", got.Title)
	})

	t.Run("insert conversation owned by another user conflicts", func(t *testing.T) {
		convID := "conv-" + uuid.NewString()
		t0 := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, store.InsertConversation(ctx, &model.Conversation{ID: convID, UserID: "user-a", Title: "mine", CreatedAt: t0, UpdatedAt: t0}))

		t1 := t0.Add(time.Minute)
		err := store.InsertConversation(ctx, &model.Conversation{ID: convID, UserID: "user-b", Title: "hijacked", CreatedAt: t1, UpdatedAt: t1})
		assert.ErrorIs(t, err, repository.ErrConflict)

		got, err := store.GetConversation(ctx, convID, "user-a")
		require.NoError(t, err)
		assert.Equal(t, "mine", got.Title)
		assert.True(t, got.UpdatedAt.Equal(t0))

		_, err = store.GetConversation(ctx, convID, "user-b")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("messages are listed chronologically and deleted by scope", func(t *testing.T) {
		convID := "conv-" + uuid.NewString()
		base := time.Now().UTC().Truncate(time.Millisecond)
		var msgs []*model.Message
		for i := 0; i < 3; i++ {
			at := base.Add(time.Duration(i) * time.Second)
			msgs = append(msgs,
				&model.Message{ID: uuid.NewString(), ConversationID: convID, Role: model.RoleUser, Content: "q", UserID: "user-1", CreatedAt: at.Add(-10 * time.Millisecond)},
				&model.Message{ID: uuid.NewString(), ConversationID: convID, Role: model.RoleAssistant, Content: "a", UserID: "user-1", CreatedAt: at},
			)
		}
		// 乱序写入，读取时按时间排序
		require.NoError(t, store.InsertMessages(ctx, msgs[4], msgs[5]))
		require.NoError(t, store.InsertMessages(ctx, msgs[0], msgs[1], msgs[2], msgs[3]))
		require.NoError(t, store.InsertMessages(ctx, &model.Message{ID: uuid.NewString(), ConversationID: convID, Role: model.RoleUser, Content: "other", UserID: "user-2", CreatedAt: base}))

		got, err := store.ListMessages(ctx, convID, "user-1")
		require.NoError(t, err)
		require.Len(t, got, 6)
		for i := range got {
			assert.Equal(t, msgs[i].ID, got[i].ID)
		}
		assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))

		n, err := store.DeleteMessages(ctx, convID, "user-1")
		require.NoError(t, err)
		assert.EqualValues(t, 6, n)

		got, err = store.ListMessages(ctx, convID, "user-1")
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = store.ListMessages(ctx, convID, "user-2")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("list conversations newest first", func(t *testing.T) {
		user := "user-" + uuid.NewString()
		base := time.Now().UTC().Truncate(time.Millisecond)
		for i, id := range []string{"old", "mid", "new"} {
			at := base.Add(time.Duration(i) * time.Second)
			require.NoError(t, store.UpsertConversation(ctx, &model.Conversation{
				ID: user + "-" + id, UserID: user, AssistantID: "a1", Title: id, CreatedAt: at, UpdatedAt: at,
			}))
		}
		require.NoError(t, store.UpsertConversation(ctx, &model.Conversation{
			ID: user + "-other", UserID: user, AssistantID: "a2", CreatedAt: base, UpdatedAt: base,
		}))

		list, err := store.ListConversations(ctx, &model.FindConversation{UserID: user, AssistantID: "a1", Limit: 2})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "new", list[0].Title)
		assert.Equal(t, "mid", list[1].Title)

		list, err = store.ListConversations(ctx, &model.FindConversation{UserID: user})
		require.NoError(t, err)
		assert.Len(t, list, 4)
	})

	t.Run("delete conversation", func(t *testing.T) {
		convID := "conv-" + uuid.NewString()
		now := time.Now().UTC()
		require.NoError(t, store.UpsertConversation(ctx, &model.Conversation{ID: convID, UserID: "user-1", CreatedAt: now, UpdatedAt: now}))

		n, err := store.DeleteConversation(ctx, convID, "user-2")
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = store.DeleteConversation(ctx, convID, "user-1")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		_, err = store.GetConversation(ctx, convID, "user-1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	require.NoError(t, store.Ping(ctx))
}
