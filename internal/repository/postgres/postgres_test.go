package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/repository/repotest"
)

func TestMirrorStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	store, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	_, err = store.db.ExecContext(ctx, `TRUNCATE conversations, chat_messages`)
	require.NoError(t, err)

	repotest.Run(t, store)
}

func TestPlaceholders(t *testing.T) {
	require.Equal(t, "$1, $2, $3", placeholders(3))
	require.Equal(t, "$7, $8", placeholdersFrom(7, 2))
}
