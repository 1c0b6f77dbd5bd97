package worker

import (
	"context"
	"path/filepath"
	"testing"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
	"kharcha/internal/sheets/memory"
	"kharcha/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorker(t *testing.T) (*MirrorWorker, *storage.SQLiteRepository, *memory.Store) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	mirror := memory.New()
	return NewMirrorWorker(repo, mirror), repo, mirror
}

func createExpense(t *testing.T, repo *storage.SQLiteRepository, userID int64) int64 {
	t.Helper()
	id, err := repo.CreateExpense(context.Background(), core.Expense{
		UserID:   userID,
		Amount:   core.Money{Cents: 5000},
		Purpose:  "test purchase",
		Category: "Food & Dining",
		Date:     core.NewDate(2025, 5, 1),
	})
	require.NoError(t, err)
	return id
}

func TestHandleEventUpsert(t *testing.T) {
	w, repo, mirror := setupWorker(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "alice", "hash", "Alice", core.RoleRegular)
	require.NoError(t, err)
	id := createExpense(t, repo, user.ID)

	err = w.HandleEvent(ctx, amqp.NewExpenseEventMessage(id, amqp.ActionUpsert))
	require.NoError(t, err)

	mirrored, owner, ok := mirror.Get(id)
	require.True(t, ok)
	assert.Equal(t, int64(5000), mirrored.Amount.Cents)
	assert.Equal(t, "Alice", owner)

	// A second upsert replaces the row instead of duplicating it.
	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEventMessage(id, amqp.ActionUpsert)))
	assert.Equal(t, 1, mirror.Len())
}

func TestHandleEventDelete(t *testing.T) {
	w, repo, mirror := setupWorker(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "alice", "hash", "Alice", core.RoleRegular)
	require.NoError(t, err)
	id := createExpense(t, repo, user.ID)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEventMessage(id, amqp.ActionUpsert)))
	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEventMessage(id, amqp.ActionDelete)))
	assert.Equal(t, 0, mirror.Len())
}

func TestHandleEventUpsertVanishedExpense(t *testing.T) {
	w, _, mirror := setupWorker(t)
	ctx := context.Background()

	// An upsert for an expense that no longer exists converges to a delete.
	err := w.HandleEvent(ctx, amqp.NewExpenseEventMessage(999, amqp.ActionUpsert))
	require.NoError(t, err)
	assert.Equal(t, 0, mirror.Len())
}

func TestHandleEventDeletedOwner(t *testing.T) {
	w, repo, mirror := setupWorker(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "bob", "hash", "Bob", core.RoleRegular)
	require.NoError(t, err)
	id := createExpense(t, repo, user.ID)
	require.NoError(t, repo.DeleteUser(ctx, user.ID))

	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEventMessage(id, amqp.ActionUpsert)))

	_, owner, ok := mirror.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Deleted user", owner)
}

func TestResync(t *testing.T) {
	w, repo, mirror := setupWorker(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "alice", "hash", "Alice", core.RoleRegular)
	require.NoError(t, err)
	id1 := createExpense(t, repo, user.ID)
	id2 := createExpense(t, repo, user.ID)

	require.NoError(t, w.Resync(ctx))
	assert.Equal(t, 2, mirror.Len())

	_, _, ok := mirror.Get(id1)
	assert.True(t, ok)
	_, _, ok = mirror.Get(id2)
	assert.True(t, ok)
}
